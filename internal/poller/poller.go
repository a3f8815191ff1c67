// Package poller drives the recurring fetch-and-ingest cycle.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/printwatch-io/printwatch/internal/joblog"
	"github.com/printwatch-io/printwatch/internal/mail/connector"
	"github.com/printwatch-io/printwatch/internal/mail/extract"
	"github.com/printwatch-io/printwatch/internal/registry"
	"github.com/printwatch-io/printwatch/internal/repository"
)

// ErrFetchingDisabled is returned by manual triggers while mailbox
// credentials are missing. The state lasts for the process lifetime.
var ErrFetchingDisabled = errors.New("poller: fetching disabled, mailbox credentials not configured")

const defaultInterval = 10 * time.Minute

// Store persists one payload's records transactionally.
type Store interface {
	Persist(ctx context.Context, device registry.Device, records []joblog.JobRecord) (repository.IngestResult, error)
}

// Extractor attributes a raw message to a device and its payload.
type Extractor interface {
	Extract(raw []byte) (*extract.Extraction, bool)
}

// CycleReport summarizes one fetch-and-ingest cycle.
type CycleReport struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Messages      int       `json:"messages"`
	Processed     int       `json:"processed"`
	Skipped       int       `json:"skipped"`
	JobsCreated   int       `json:"jobs_created"`
	JobsDuplicate int       `json:"jobs_duplicate"`
	JobsFailed    int       `json:"jobs_failed"`
	Errors        []string  `json:"errors,omitempty"`
}

// Poller owns the cycle mutex, the cron loop and the manual trigger.
// At most one cycle runs at any instant regardless of which path
// started it.
type Poller struct {
	mu        sync.Mutex
	cron      *cron.Cron
	interval  time.Duration
	fetcher   connector.Fetcher
	account   connector.Account
	extractor Extractor
	store     Store
	logger    *log.Logger
	metrics   *cycleMetrics
	now       func() time.Time
	enabled   bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// Option customizes the poller.
type Option func(*Poller)

// New wires a poller over the fetcher, extractor and store. Without a
// complete account the poller starts in the permanent disabled mode.
func New(fetcher connector.Fetcher, extractor Extractor, store Store, opts ...Option) *Poller {
	p := &Poller{
		cron:      cron.New(),
		interval:  defaultInterval,
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		logger:    log.Default(),
		metrics:   globalCycleMetrics(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.enabled = p.account.Host != "" && p.account.Username != "" && len(p.account.Password) > 0
	return p
}

// WithAccount sets the mailbox to poll.
func WithAccount(account connector.Account) Option {
	return func(p *Poller) {
		p.account = account
	}
}

// WithInterval overrides the cycle period.
func WithInterval(interval time.Duration) Option {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithPollerLogger overrides the logger used for diagnostics.
func WithPollerLogger(logger *log.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPollerClock overrides the wall clock, primarily for tests.
func WithPollerClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// Enabled reports whether fetch cycles will run.
func (p *Poller) Enabled() bool {
	return p.enabled
}

// Start schedules the recurring cycle. In disabled mode it logs once
// and schedules nothing; the state is not retried until restart.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		if !p.enabled {
			p.logger.Printf("poller: mailbox credentials not configured, fetching disabled")
			return
		}
		p.cron.Schedule(cron.Every(p.interval), cron.FuncJob(func() {
			p.runScheduled(ctx)
		}))
		p.cron.Start()
		p.logger.Printf("poller: fetching every %s from %s", p.interval, p.account.Host)
	})
}

// Stop halts the cron loop and waits briefly for an in-flight cycle.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		stopCtx := p.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(30 * time.Second):
			p.logger.Printf("poller: timed out waiting for cycle to finish")
		}
	})
}

// RunNow executes one cycle synchronously. A concurrent scheduled
// cycle blocks the trigger until it finishes; the two never overlap.
func (p *Poller) RunNow(ctx context.Context) (CycleReport, error) {
	if !p.enabled {
		return CycleReport{}, ErrFetchingDisabled
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runCycle(ctx)
}

func (p *Poller) runScheduled(ctx context.Context) {
	report, err := p.RunNow(ctx)
	if err != nil {
		p.logger.Printf("poller: cycle %s failed: %v", report.RunID, err)
		return
	}
	p.logger.Printf("poller: cycle %s done: %d message(s), %d processed, %d skipped, %d job(s) created, %d duplicate",
		report.RunID, report.Messages, report.Processed, report.Skipped, report.JobsCreated, report.JobsDuplicate)
}

func (p *Poller) runCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{RunID: uuid.NewString(), StartedAt: p.now()}
	handler := &cycleHandler{poller: p, report: &report}

	err := p.fetcher.Fetch(ctx, p.account, handler)
	report.FinishedAt = p.now()
	if err != nil {
		err = fmt.Errorf("poller: cycle aborted: %w", err)
		report.Errors = append(report.Errors, err.Error())
	}
	p.metrics.observeCycle(report, err)
	return report, err
}

type cycleHandler struct {
	poller *Poller
	report *CycleReport
}

// Handle runs extract, decode and persist for one message. Only a
// fully persisted payload reports Processed, which lets the connector
// delete the message; every other outcome leaves it on the server.
func (h *cycleHandler) Handle(ctx context.Context, msg *connector.Message) (connector.Disposition, error) {
	p := h.poller
	h.report.Messages++

	ext, ok := p.extractor.Extract(msg.Raw)
	if !ok {
		h.report.Skipped++
		return connector.Skip, nil
	}

	decoded, err := joblog.Decode(ext.Payload)
	if err != nil {
		h.report.Skipped++
		h.recordError(fmt.Sprintf("message %s: %v", msg.UID, err))
		return connector.Skip, nil
	}
	for _, entryErr := range decoded.Malformed {
		h.recordError(fmt.Sprintf("message %s: %v", msg.UID, entryErr))
	}
	h.report.JobsFailed += len(decoded.Malformed)

	result, err := p.store.Persist(ctx, ext.Device, decoded.Jobs)
	if err != nil {
		h.report.Skipped++
		h.report.JobsFailed += result.Failed
		h.recordError(fmt.Sprintf("message %s: %v", msg.UID, err))
		return connector.Skip, nil
	}

	h.report.Processed++
	h.report.JobsCreated += result.Created
	h.report.JobsDuplicate += result.Duplicates
	h.report.JobsFailed += result.Failed
	return connector.Processed, nil
}

func (h *cycleHandler) recordError(msg string) {
	h.report.Errors = append(h.report.Errors, msg)
	h.poller.logger.Printf("poller: %s", msg)
}
