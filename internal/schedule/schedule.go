// Package schedule resolves configured schedules into recurrences with
// holiday exceptions applied.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"recurcal/internal/config"
	"recurcal/internal/ics"
	appLog "recurcal/internal/log"
	"recurcal/internal/model"
	"recurcal/recur"
)

// DefaultTTL is how long a resolved schedule is served from cache.
const DefaultTTL = time.Hour

// ErrNotFound is returned for an unknown schedule ID or name.
var ErrNotFound = errors.New("schedule not found")

type cacheEntry struct {
	schedule   model.Schedule
	resolvedAt time.Time
}

// Resolver builds schedules from configuration and caches them.
type Resolver struct {
	cfg     *config.Config
	fetcher *ics.Fetcher
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewResolver creates a Resolver. A nil fetcher disables holiday feeds;
// ttl <= 0 uses DefaultTTL.
func NewResolver(cfg *config.Config, fetcher *ics.Fetcher, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		cfg:     cfg,
		fetcher: fetcher,
		ttl:     ttl,
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
}

// Config returns the configuration the resolver reads.
func (r *Resolver) Config() *config.Config {
	return r.cfg
}

// Options returns the recurrence options implied by the configuration:
// location, week start and search limit.
func Options(cfg *config.Config) ([]recur.Option, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return []recur.Option{
		recur.WithLocation(loc),
		recur.WithWeekStart(cfg.WeekStartDay()),
		recur.WithSearchLimit(cfg.MaxSearchDays),
	}, nil
}

// Build turns a schedule definition into a recurrence without holidays.
func Build(cfg *config.Config, sc config.ScheduleConfig) (*recur.Recurrence, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	rec, err := recur.FromRecord(sc.Recurrence, opts...)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", sc.ID, err)
	}
	return rec, nil
}

// Resolve returns the schedule with the given ID or name, serving it from
// cache while fresh. The returned recurrence is a copy the caller may
// modify.
func (r *Resolver) Resolve(ctx context.Context, key string) (model.Schedule, error) {
	sc, ok := r.cfg.FindSchedule(key)
	if !ok {
		return model.Schedule{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	r.mu.Lock()
	entry, hit := r.cache[sc.ID]
	r.mu.Unlock()
	if hit && r.now().Sub(entry.resolvedAt) < r.ttl {
		return copySchedule(entry.schedule), nil
	}

	s, err := r.resolve(ctx, sc)
	if err != nil {
		return model.Schedule{}, err
	}

	r.mu.Lock()
	r.cache[sc.ID] = cacheEntry{schedule: s, resolvedAt: r.now()}
	r.mu.Unlock()

	return copySchedule(s), nil
}

// ResolveAll resolves every configured schedule in configuration order.
func (r *Resolver) ResolveAll(ctx context.Context) ([]model.Schedule, error) {
	out := make([]model.Schedule, 0, len(r.cfg.Schedules))
	for _, sc := range r.cfg.Schedules {
		s, err := r.Resolve(ctx, sc.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Invalidate drops every cached schedule.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[string]cacheEntry)
	r.mu.Unlock()
}

// Refresh invalidates the cache and resolves every schedule again,
// refetching holiday feeds.
func (r *Resolver) Refresh(ctx context.Context) error {
	r.Invalidate()
	schedules, err := r.ResolveAll(ctx)
	if err != nil {
		appLog.Error("schedule refresh failed", err)
		return err
	}
	appLog.Info("schedules refreshed", "count", len(schedules))
	return nil
}

// StartRefresh runs Refresh on the cron spec until ctx is done.
func (r *Resolver) StartRefresh(ctx context.Context, spec string) (*cron.Cron, error) {
	loc, err := r.cfg.Location()
	if err != nil {
		return nil, err
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, func() {
		_ = r.Refresh(ctx)
	}); err != nil {
		return nil, fmt.Errorf("refresh schedule %q: %w", spec, err)
	}
	c.Start()
	appLog.Info("schedule refresh started", "spec", spec)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}

func (r *Resolver) resolve(ctx context.Context, sc config.ScheduleConfig) (model.Schedule, error) {
	rec, err := Build(r.cfg, sc)
	if err != nil {
		return model.Schedule{}, err
	}

	s := model.Schedule{ID: sc.ID, Name: sc.Name, Recurrence: rec}
	if len(sc.Holidays) == 0 || r.fetcher == nil {
		return s, nil
	}

	feeds := make([]ics.Feed, len(sc.Holidays))
	for i, url := range sc.Holidays {
		feeds[i] = ics.Feed{ID: sc.ID, URL: url}
	}
	// Feed failures are logged by FetchAll; the schedule resolves without them.
	results, _ := r.fetcher.FetchAll(ctx, feeds)

	from, to := r.holidayWindow(rec)
	for _, res := range results {
		days, err := ics.ExpandDates(res.Events, from, to, 0)
		if err != nil {
			appLog.Error("holiday feed skipped", err, "schedule", sc.ID)
			continue
		}
		for _, d := range days {
			if !rec.IsException(d) {
				rec.Except(d)
				s.Holidays++
			}
		}
	}
	appLog.Debug("schedule resolved", "schedule", sc.ID, "holidays", s.Holidays)
	return s, nil
}

// holidayWindow is [start, end] for bounded schedules. Open-ended schedules
// look HolidayHorizonDays past today, or past start if that is later.
func (r *Resolver) holidayWindow(rec *recur.Recurrence) (recur.Date, recur.Date) {
	from := rec.Start()
	if end, ok := rec.End(); ok {
		return from, end
	}
	base := recur.DateOf(r.now().In(rec.Location()))
	if base.Before(from) {
		base = from
	}
	return from, base.AddDays(r.cfg.HolidayHorizonDays)
}

func copySchedule(s model.Schedule) model.Schedule {
	s.Recurrence = s.Recurrence.Clone()
	return s
}
