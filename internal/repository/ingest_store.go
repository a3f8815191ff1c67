// Package repository persists decoded job records.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/printwatch-io/printwatch/internal/joblog"
	"github.com/printwatch-io/printwatch/internal/models"
	"github.com/printwatch-io/printwatch/internal/registry"
)

// ErrPersistence marks store-level failures that abort a payload as a
// unit. Duplicate job numbers are not persistence faults.
var ErrPersistence = errors.New("repository: persistence fault")

// IngestResult counts the outcome of persisting one payload.
type IngestResult struct {
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// IngestStore writes devices and jobs inside a transaction per
// payload. Re-ingesting a payload is a no-op for every job number the
// store has already seen.
type IngestStore struct {
	db     *sqlx.DB
	logger *log.Logger
	now    func() time.Time
}

// IngestStoreOption customizes the store.
type IngestStoreOption func(*IngestStore)

// NewIngestStore wires the store around the shared connection.
func NewIngestStore(db *sqlx.DB, opts ...IngestStoreOption) *IngestStore {
	s := &IngestStore{
		db:     db,
		logger: log.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// WithIngestStoreLogger overrides the logger used for diagnostics.
func WithIngestStoreLogger(logger *log.Logger) IngestStoreOption {
	return func(s *IngestStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIngestStoreClock overrides the ingestion timestamp source.
func WithIngestStoreClock(now func() time.Time) IngestStoreOption {
	return func(s *IngestStore) {
		if now != nil {
			s.now = now
		}
	}
}

// Persist upserts the device and inserts every new job record in one
// transaction. Either every new row of the payload becomes durable or
// none does. Duplicate job numbers are counted, never errors.
func (s *IngestStore) Persist(ctx context.Context, device registry.Device, records []joblog.JobRecord) (IngestResult, error) {
	var res IngestResult
	if s == nil || s.db == nil {
		return res, fmt.Errorf("%w: store unavailable", ErrPersistence)
	}
	if device.EquipmentID == "" {
		return res, fmt.Errorf("%w: device without equipment id", ErrPersistence)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("%w: begin: %v", ErrPersistence, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	printerID, err := s.upsertPrinter(ctx, tx, device)
	if err != nil {
		res.Failed = len(records)
		return res, err
	}

	ingestedAt := s.now()
	for _, rec := range records {
		created, err := s.insertJob(ctx, tx, printerID, rec, ingestedAt)
		if err != nil {
			failed := IngestResult{Failed: len(records)}
			return failed, err
		}
		if created {
			res.Created++
		} else {
			res.Duplicates++
		}
	}

	if err := tx.Commit(); err != nil {
		return IngestResult{Failed: len(records)}, fmt.Errorf("%w: commit: %v", ErrPersistence, err)
	}
	return res, nil
}

// FindPrinter returns the stored device row for an equipment id.
func (s *IngestStore) FindPrinter(ctx context.Context, equipmentID string) (*models.Printer, error) {
	var printer models.Printer
	query := s.db.Rebind(`SELECT id, equipment_id, model_name, serial_number FROM printers WHERE equipment_id = ?`)
	err := s.db.GetContext(ctx, &printer, query, equipmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find printer: %v", ErrPersistence, err)
	}
	return &printer, nil
}

// CountJobs reports the number of stored jobs.
func (s *IngestStore) CountJobs(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM jobs`); err != nil {
		return 0, fmt.Errorf("%w: count jobs: %v", ErrPersistence, err)
	}
	return n, nil
}

func (s *IngestStore) upsertPrinter(ctx context.Context, tx *sqlx.Tx, device registry.Device) (int, error) {
	selectQ := tx.Rebind(`SELECT id FROM printers WHERE equipment_id = ?`)
	var id int
	err := tx.GetContext(ctx, &id, selectQ, device.EquipmentID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: printer lookup: %v", ErrPersistence, err)
	}

	insertQ := tx.Rebind(`INSERT INTO printers (equipment_id, model_name, serial_number) VALUES (?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insertQ, device.EquipmentID, device.ModelName, device.SerialNumber); err != nil {
		if !isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: printer insert: %v", ErrPersistence, err)
		}
	}
	if err := tx.GetContext(ctx, &id, selectQ, device.EquipmentID); err != nil {
		return 0, fmt.Errorf("%w: printer reread: %v", ErrPersistence, err)
	}
	return id, nil
}

func (s *IngestStore) insertJob(ctx context.Context, tx *sqlx.Tx, printerID int, rec joblog.JobRecord, ingestedAt time.Time) (bool, error) {
	existsQ := tx.Rebind(`SELECT COUNT(*) FROM jobs WHERE job_number = ?`)
	var n int
	if err := tx.GetContext(ctx, &n, existsQ, rec.JobNumber); err != nil {
		return false, fmt.Errorf("%w: job lookup %d: %v", ErrPersistence, rec.JobNumber, err)
	}
	if n > 0 {
		return false, nil
	}

	insertQ := tx.Rebind(`
		INSERT INTO jobs (
			job_number, job_kind, job_name, job_result, job_result_detail,
			start_time, end_time, account_name, account_code, pages,
			user_name, login_id, operation_executioner_login_id,
			operation_executioner_domain_name, print_color_mode,
			complete_copies, copies, complete_pages, printer_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := tx.ExecContext(ctx, insertQ,
		rec.JobNumber,
		rec.JobKind,
		rec.JobName,
		rec.JobResult,
		rec.JobResultDetail,
		rec.StartTime,
		rec.EndTime,
		rec.AccountName,
		rec.AccountCode,
		rec.Pages,
		rec.UserName,
		rec.LoginID,
		rec.OperationExecutionerLoginID,
		rec.OperationExecutionerDomainName,
		rec.PrintColorMode,
		rec.CompleteCopies,
		rec.Copies,
		rec.CompletePages,
		printerID,
		ingestedAt,
	)
	if err != nil {
		// A row that appeared since the lookup is still just a
		// duplicate, not a fault.
		if isUniqueViolation(err) {
			s.logf("repository: job %d raced a concurrent insert, counted as duplicate", rec.JobNumber)
			return false, nil
		}
		return false, fmt.Errorf("%w: job insert %d: %v", ErrPersistence, rec.JobNumber, err)
	}
	return true, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func (s *IngestStore) logf(format string, args ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
