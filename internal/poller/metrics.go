package poller

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type cycleMetrics struct {
	cycles   *prometheus.CounterVec
	messages *prometheus.CounterVec
	jobs     *prometheus.CounterVec
	duration prometheus.Histogram
}

var (
	metricsOnce   sync.Once
	sharedMetrics *cycleMetrics
)

func globalCycleMetrics() *cycleMetrics {
	metricsOnce.Do(func() {
		sharedMetrics = &cycleMetrics{
			cycles: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "printwatch_fetch_cycles_total",
				Help: "Fetch-and-ingest cycles by outcome.",
			}, []string{"status"}),
			messages: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "printwatch_fetch_messages_total",
				Help: "Mailbox messages seen by per-message outcome.",
			}, []string{"result"}),
			jobs: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "printwatch_fetch_jobs_total",
				Help: "Job records by ingestion outcome.",
			}, []string{"result"}),
			duration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "printwatch_fetch_cycle_duration_seconds",
				Help:    "Wall time of one fetch-and-ingest cycle.",
				Buckets: prometheus.DefBuckets,
			}),
		}
	})
	return sharedMetrics
}

func (m *cycleMetrics) observeCycle(report CycleReport, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.cycles.WithLabelValues(status).Inc()
	m.messages.WithLabelValues("processed").Add(float64(report.Processed))
	m.messages.WithLabelValues("skipped").Add(float64(report.Skipped))
	m.jobs.WithLabelValues("created").Add(float64(report.JobsCreated))
	m.jobs.WithLabelValues("duplicate").Add(float64(report.JobsDuplicate))
	m.jobs.WithLabelValues("failed").Add(float64(report.JobsFailed))
	m.duration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
}
