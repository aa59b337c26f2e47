package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/pfrederiksen/wca-events/internal/config"
	"github.com/pfrederiksen/wca-events/internal/event"
	"github.com/pfrederiksen/wca-events/internal/logger"
	"github.com/pfrederiksen/wca-events/internal/notifier"
	"github.com/pfrederiksen/wca-events/internal/storage"
)

// Metric names recorded by the poller.
const (
	MetricCycles              = "cycles.total"
	MetricCyclesFailed        = "cycles.failed"
	MetricEventsNew           = "events.new"
	MetricNotificationsSent   = "notifications.sent"
	MetricNotificationsFailed = "notifications.failed"
	MetricStoreSize           = "store.size"
	MetricCycleDuration       = "cycle.duration"
)

// Fetcher produces the current listing.
type Fetcher interface {
	FetchListing(ctx context.Context) ([]event.Record, error)
}

// Result describes one completed cycle.
type Result struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	event.Diff
	Channels int    `json:"channels"`
	Error    string `json:"error,omitempty"`
}

// Poller owns the seen store and runs cycles against it.
type Poller struct {
	fetcher  Fetcher
	store    storage.Store
	notifier notifier.Notifier
	country  string
	interval time.Duration
	metrics  *logger.Metrics

	cycleMu sync.Mutex

	lastMu sync.RWMutex
	last   *Result

	cron *cron.Cron
}

// New creates a Poller for cfg.
func New(cfg config.Config, fetcher Fetcher, store storage.Store, n notifier.Notifier) *Poller {
	return &Poller{
		fetcher:  fetcher,
		store:    store,
		notifier: n,
		country:  cfg.TargetCountry,
		interval: cfg.PollInterval,
		metrics:  logger.DefaultMetrics(),
	}
}

// WithMetrics records metrics into m instead of the default registry.
func (p *Poller) WithMetrics(m *logger.Metrics) *Poller {
	p.metrics = m
	return p
}

// Last returns the most recent cycle result, or nil before the first cycle.
func (p *Poller) Last() *Result {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	return p.last
}

// Cycle runs one detection cycle. The returned error joins every failure of
// the cycle; the Result is always non-nil.
//
// New keys are persisted before the announcement is sent. If sending fails
// the keys stay seen and are not announced again.
func (p *Poller) Cycle(ctx context.Context) (*Result, error) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	start := time.Now()
	result := &Result{
		ID:        uuid.NewString(),
		StartedAt: start.UTC(),
	}
	fields := logger.Fields{"cycle": result.ID}

	var errs []error

	records, err := p.fetcher.FetchListing(ctx)
	if err != nil {
		errs = append(errs, err)
		records = nil
	}

	diff, err := event.Detect(records, p.country, p.store)
	if err != nil {
		logger.Error("Persisting seen events failed", fields, err)
		errs = append(errs, err)
	}
	result.Diff = *diff

	if len(diff.NewKeys) == 0 {
		logger.Info("No new competitions", logger.Fields{
			"cycle":   result.ID,
			"scraped": diff.Scraped,
			"matched": diff.Matched,
		})
	} else {
		logger.Info("Sending message", logger.Fields{
			"cycle":  result.ID,
			"events": len(diff.NewKeys),
		})
		n, err := p.notifier.Notify(ctx, diff.Message())
		if err != nil {
			// The failure itself was logged where it happened.
			logger.Warn("Announcement not sent", logger.Fields{
				"cycle":  result.ID,
				"events": len(diff.NewKeys),
			})
			p.metrics.IncrCounter(MetricNotificationsFailed)
			errs = append(errs, err)
		} else {
			result.Channels = n
			p.metrics.AddCounter(MetricNotificationsSent, int64(n))
		}
	}

	elapsed := time.Since(start)
	result.Duration = elapsed.Round(time.Millisecond).String()

	cycleErr := errors.Join(errs...)
	if cycleErr != nil {
		result.Error = cycleErr.Error()
		p.metrics.IncrCounter(MetricCyclesFailed)
	}
	p.metrics.IncrCounter(MetricCycles)
	p.metrics.AddCounter(MetricEventsNew, int64(len(diff.NewKeys)))
	p.metrics.SetGauge(MetricStoreSize, float64(p.store.Len()))
	p.metrics.RecordTiming(MetricCycleDuration, elapsed)

	p.lastMu.Lock()
	p.last = result
	p.lastMu.Unlock()

	return result, cycleErr
}

// Start schedules cycles every interval, counted from now, and runs the
// first cycle immediately. Scheduled cycles use ctx; a tick is skipped while
// the previous cycle is still running.
func (p *Poller) Start(ctx context.Context) {
	cl := CronLogger{}
	p.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	p.cron.Schedule(cron.Every(p.interval), cron.FuncJob(func() {
		p.tick(ctx)
	}))

	logger.Info("Starting poller", logger.Fields{
		"country":  p.country,
		"interval": p.interval.String(),
		"seen":     p.store.Len(),
	})

	p.cron.Start()
	p.tick(ctx)
}

// Stop stops scheduling and waits for a running cycle to finish.
func (p *Poller) Stop() {
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
	logger.Info("Poller stopped", nil)
}

// Run starts the poller and blocks until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
}

func (p *Poller) tick(ctx context.Context) {
	result, err := p.Cycle(ctx)
	if err != nil && ctx.Err() != nil {
		return
	}
	logger.Info("Cycle complete", logger.Fields{
		"cycle":      result.ID,
		"new":        len(result.NewKeys),
		"channels":   result.Channels,
		"duration":   result.Duration,
		"next_check": humanize.Time(result.StartedAt.Add(p.interval)),
	})
}
