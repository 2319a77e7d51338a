// Package metrics exposes Prometheus instrumentation for fetches and runs.
// The CLI pushes the default registry to a Pushgateway after each command,
// since scrapes are batch jobs with no long-lived endpoint to scrape.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/sandboxnu/searchneu-sub001/db"
	"github.com/sandboxnu/searchneu-sub001/fetch"
	"github.com/sandboxnu/searchneu-sub001/scrape"
	"github.com/sandboxnu/searchneu-sub001/updater"
)

var (
	// Fetch engine
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchneu_fetch_attempts_total",
			Help: "HTTP attempts started by the fetch engine",
		},
		[]string{"endpoint"},
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchneu_fetch_retries_total",
			Help: "Attempts that failed and were scheduled for retry",
		},
		[]string{"endpoint", "status"},
	)

	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchneu_fetch_requests_total",
			Help: "Requests settled by the fetch engine",
		},
		[]string{"endpoint", "outcome"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchneu_fetch_duration_seconds",
			Help:    "Time from enqueue to settlement, including queueing and retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint"},
	)

	// Scrape runs
	ScrapeRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchneu_scrape_runs_total",
			Help: "Term scrapes by outcome",
		},
		[]string{"outcome"},
	)

	ScrapeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "searchneu_scrape_duration_seconds",
			Help:    "Duration of a term scrape",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
		},
	)

	ScrapeItemFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchneu_scrape_item_failures_total",
			Help: "Enrichment items that could not be fetched, by stage",
		},
		[]string{"stage"},
	)

	ScrapedSections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "searchneu_scraped_sections",
			Help: "Sections in the latest scrape of a term",
		},
		[]string{"term"},
	)

	// Uploads
	UploadRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchneu_upload_rows_total",
			Help: "Rows written or deleted by uploads",
		},
		[]string{"table", "op"},
	)

	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "searchneu_upload_duration_seconds",
			Help:    "Duration of a term upload transaction",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Updater
	UpdaterChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchneu_updater_changes_total",
			Help: "Sections per diff bucket found by the updater",
		},
		[]string{"bucket"},
	)
)

// Endpoint reduces a request URL to its last path segment.
func Endpoint(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "unknown"
	}
	return path.Base(u.Path)
}

// FetchObserver records fetch engine events.
type FetchObserver struct{}

var _ fetch.Observer = FetchObserver{}

func (FetchObserver) Enqueued(fetch.Event) {}

func (FetchObserver) Started(e fetch.Event) {
	FetchAttempts.WithLabelValues(Endpoint(e.URL)).Inc()
}

func (FetchObserver) Retrying(e fetch.Event) {
	FetchRetries.WithLabelValues(Endpoint(e.URL), statusLabel(e.StatusCode)).Inc()
}

func (FetchObserver) Succeeded(e fetch.Event) {
	settle(e, "succeeded")
}

func (FetchObserver) Failed(e fetch.Event) {
	settle(e, "failed")
}

func settle(e fetch.Event, outcome string) {
	endpoint := Endpoint(e.URL)
	FetchRequests.WithLabelValues(endpoint, outcome).Inc()
	FetchDuration.WithLabelValues(endpoint).Observe(e.Elapsed.Seconds())
}

func statusLabel(code int) string {
	if code == 0 {
		return "error"
	}
	return strconv.Itoa(code)
}

// ObserveScrape records one term scrape. report may be nil when the run
// failed before it started.
func ObserveScrape(report *scrape.Report, err error) {
	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
	}
	ScrapeRuns.WithLabelValues(outcome).Inc()
	if report == nil {
		return
	}

	ScrapeDuration.Observe(report.Duration.Seconds())
	for _, stage := range report.Stages() {
		if n := len(report.Failures(stage)); n > 0 {
			ScrapeItemFailures.WithLabelValues(string(stage)).Add(float64(n))
		}
	}
	if err == nil {
		ScrapedSections.WithLabelValues(report.Term).Set(float64(report.Sections))
	}
}

func ObserveUpload(stats *db.UploadStats) {
	UploadDuration.Observe(stats.Duration.Seconds())
	UploadRows.WithLabelValues("courses", "upsert").Add(float64(stats.Courses))
	UploadRows.WithLabelValues("sections", "upsert").Add(float64(stats.Sections))
	UploadRows.WithLabelValues("meeting_times", "upsert").Add(float64(stats.MeetingTimes))
	UploadRows.WithLabelValues("sections", "delete").Add(float64(stats.DeletedSections))
	UploadRows.WithLabelValues("meeting_times", "delete").Add(float64(stats.DeletedMeetings))
}

func ObserveUpdate(report *updater.Report) {
	buckets := map[string]int{
		"seats_available":           len(report.SeatsAvailable),
		"seats_changed":             len(report.SeatsChanged),
		"waitlist_available":        len(report.WaitlistAvailable),
		"waitlist_changed":          len(report.WaitlistChanged),
		"capacity_changed":          len(report.CapacityChanged),
		"waitlist_capacity_changed": len(report.WaitlistCapacityChanged),
		"missing":                   len(report.Missing),
		"new":                       len(report.New),
		"unrooted":                  len(report.Unrooted),
	}
	for bucket, n := range buckets {
		UpdaterChanges.WithLabelValues(bucket).Add(float64(n))
	}
}

// Push sends the default registry to a Pushgateway under job.
func Push(ctx context.Context, gateway, job string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := push.New(gateway, job).
		Gatherer(prometheus.DefaultGatherer).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("metrics: push to %s: %w", gateway, err)
	}
	return nil
}
