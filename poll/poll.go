// Package poll runs check cycles over the configured creators.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"patreon-tier-notifier/config"
	"patreon-tier-notifier/metrics"
	"patreon-tier-notifier/pkg/notifier"
	"patreon-tier-notifier/tiers"
)

// Scraper fetches and extracts the tiers listed on a membership page.
type Scraper interface {
	Tiers(ctx context.Context, pageURL, userAgent string) ([]notifier.Tier, error)
}

// Store persists the alert cache between invocations.
type Store interface {
	LoadCache(ctx context.Context) (tiers.Cache, error)
	SaveCache(ctx context.Context, cache tiers.Cache) error
}

// Deliverer hands alerts to the notification layer. It must not fail.
type Deliverer interface {
	Deliver(ctx context.Context, alerts []notifier.Alert)
}

// Mode selects how creators within one cycle are checked.
type Mode int

const (
	// Sequential checks creators one at a time with the request delay between them.
	Sequential Mode = iota
	// Concurrent checks up to max_concurrency creators at once.
	Concurrent
)

func (m Mode) String() string {
	if m == Concurrent {
		return "concurrent"
	}
	return "sequential"
}

type failureState struct {
	count     int
	lastError time.Time
}

// Monitor owns the alert cache and per-creator failure tracking.
type Monitor struct {
	scraper  Scraper
	store    Store // optional
	recorder metrics.Recorder
	logger   *slog.Logger
	mode     Mode
	now      func() time.Time

	cycleMu sync.Mutex // one cycle at a time

	mu       sync.Mutex // guards cache and failures
	cache    tiers.Cache
	failures map[string]*failureState
}

// New creates a new poll monitor. store may be nil, in which case the cache
// lives only as long as the Monitor.
func New(scraper Scraper, store Store, recorder metrics.Recorder, logger *slog.Logger, mode Mode) *Monitor {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Monitor{
		scraper:  scraper,
		store:    store,
		recorder: recorder,
		logger:   logger,
		mode:     mode,
		now:      time.Now,
		cache:    tiers.Cache{},
		failures: make(map[string]*failureState),
	}
}

// CheckAll runs one cycle over every creator and returns the alerts emitted.
// Creator failures are logged and skipped; only context cancellation is
// returned as an error.
func (m *Monitor) CheckAll(ctx context.Context, cfg *config.Config, d Deliverer) ([]notifier.Alert, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	start := m.now()
	m.logger.Info("Checking creators",
		"count", len(cfg.Creators),
		"mode", m.mode.String(),
		"timestamp", start.Format(time.RFC3339))

	m.loadCache(ctx)

	var alerts []notifier.Alert
	var err error
	if m.mode == Concurrent {
		alerts, err = m.checkConcurrent(ctx, cfg, d)
	} else {
		alerts, err = m.checkSequential(ctx, cfg, d)
	}

	m.saveCache(ctx)

	duration := m.now().Sub(start)
	m.recorder.CycleCompleted(duration)
	m.logger.Info("Creator check completed",
		"creators", len(cfg.Creators),
		"alerts", len(alerts),
		"duration_ms", duration.Milliseconds())

	return alerts, err
}

func (m *Monitor) checkSequential(ctx context.Context, cfg *config.Config, d Deliverer) ([]notifier.Alert, error) {
	var all []notifier.Alert
	for i, c := range cfg.Creators {
		// Check for context cancellation
		select {
		case <-ctx.Done():
			m.logger.Info("Context cancelled, stopping check cycle", "error", ctx.Err())
			return all, ctx.Err()
		default:
		}

		fetched, alerts := m.checkCreator(ctx, cfg, c, d)
		all = append(all, alerts...)

		// Politeness delay between page fetches, not after skipped creators.
		if fetched && i < len(cfg.Creators)-1 && cfg.RequestDelay() > 0 {
			if err := sleep(ctx, cfg.RequestDelay()); err != nil {
				m.logger.Info("Context cancelled, stopping check cycle", "error", err)
				return all, err
			}
		}
	}
	return all, nil
}

func (m *Monitor) checkConcurrent(ctx context.Context, cfg *config.Config, d Deliverer) ([]notifier.Alert, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrency)

	var mu sync.Mutex
	var all []notifier.Alert
	for _, c := range cfg.Creators {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, alerts := m.checkCreator(gctx, cfg, c, d)
			if len(alerts) > 0 {
				mu.Lock()
				all = append(all, alerts...)
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	return all, err
}

// checkCreator fetches one page, evaluates it and delivers any alerts.
// It reports whether a fetch was attempted.
func (m *Monitor) checkCreator(ctx context.Context, cfg *config.Config, c notifier.Creator, d Deliverer) (bool, []notifier.Alert) {
	if wait := m.backoffRemaining(cfg, c.Name); wait > 0 {
		m.logger.Info("Skipping creator (backing off after failures)",
			"creator", c.Name,
			"retry_in", wait.Round(time.Second).String())
		m.recorder.CreatorChecked(c.Name, metrics.ResultSkipped)
		return false, nil
	}

	m.logger.Info("Starting creator check", "creator", c.Name, "url", c.URL)

	scraped, err := m.scraper.Tiers(ctx, c.URL, cfg.UserAgent)
	if err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		failures := m.recordFailure(c.Name)
		m.recorder.CreatorChecked(c.Name, metrics.ResultFailed)
		m.logger.Warn("Creator check failed",
			"creator", c.Name,
			"consecutive_failures", failures,
			"error", err)
		return true, nil
	}
	m.recordSuccess(c.Name)

	snap := tiers.Normalize(scraped)
	m.logger.Debug("Tiers fetched", "creator", c.Name, "found", len(scraped), "distinct", len(snap))

	m.mu.Lock()
	alerts := tiers.Evaluate(snap, c, m.cache)
	m.mu.Unlock()

	m.recorder.CreatorChecked(c.Name, metrics.ResultOK)
	if len(alerts) > 0 {
		m.recorder.AlertsEmitted(c.Name, len(alerts))
		m.logger.Info("New tier availability detected", "creator", c.Name, "count", len(alerts))
	}
	d.Deliver(ctx, alerts)
	return true, alerts
}

func (m *Monitor) loadCache(ctx context.Context) {
	if m.store == nil {
		return
	}
	cache, err := m.store.LoadCache(ctx)
	if err != nil {
		m.logger.Warn("Failed to load alert cache, using in-memory state", "error", err)
		return
	}
	if cache == nil {
		cache = tiers.Cache{}
	}
	m.mu.Lock()
	m.cache = cache
	m.mu.Unlock()
}

func (m *Monitor) saveCache(ctx context.Context) {
	if m.store == nil {
		return
	}
	m.mu.Lock()
	snapshot := make(tiers.Cache, len(m.cache))
	for k, v := range m.cache {
		snapshot[k] = v
	}
	m.mu.Unlock()

	// Persist even when the cycle was cancelled so emitted alerts stay recorded.
	if err := m.store.SaveCache(context.WithoutCancel(ctx), snapshot); err != nil {
		m.logger.Warn("Failed to save alert cache", "error", err)
	}
}

func (m *Monitor) recordFailure(creator string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.failures[creator]
	if !ok {
		f = &failureState{}
		m.failures[creator] = f
	}
	f.count++
	f.lastError = m.now()
	return f.count
}

func (m *Monitor) recordSuccess(creator string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.failures[creator]; ok {
		m.logger.Info("Creator recovered", "creator", creator, "after_failures", f.count)
		delete(m.failures, creator)
	}
}

// backoffRemaining returns how long the creator should still be skipped.
func (m *Monitor) backoffRemaining(cfg *config.Config, creator string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.failures[creator]
	if !ok {
		return 0
	}
	next := f.lastError.Add(backoffInterval(cfg.CheckInterval(), cfg.MaxBackoff(), f.count))
	return next.Sub(m.now())
}

// backoffInterval determines how long to wait after consecutive failures:
// base after the first, doubling each time, capped at limit.
func backoffInterval(base, limit time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	interval := base
	for i := 1; i < failures; i++ {
		interval *= 2
		if interval >= limit {
			return limit
		}
	}
	return min(interval, limit)
}

// Run checks every creator, sleeps for the check interval and repeats until
// ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, cfg *config.Config, d Deliverer) error {
	m.logger.Info("Starting monitor loop",
		"creators", len(cfg.Creators),
		"interval", cfg.CheckInterval().String())

	for {
		if _, err := m.CheckAll(ctx, cfg, d); err != nil {
			return err
		}

		next := m.now().Add(cfg.CheckInterval())
		m.logger.Info("Check cycle complete, sleeping", "next_check", next.Format(time.RFC3339))
		if err := sleep(ctx, cfg.CheckInterval()); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
