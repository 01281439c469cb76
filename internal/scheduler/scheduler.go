// Package scheduler runs the reminder dispatch loop.
//
// One tick per interval, one tick at a time: each tick scans due reminders
// and fans them out to a bounded worker pool. Every reminder is one unit of
// work (deliver, then advance or consume); a reminder's failure never
// blocks the rest of the tick.
//
// Delivery is at-most-once. State advancement does not depend on delivery
// success: a stuck or doubly-fired reminder is considered worse than a
// silently lost message.
package scheduler

import (
	"context"
	"sync"
	"time"

	"reminderbot/internal/cron"
	rtsup "reminderbot/internal/runtime/supervisor"
	"reminderbot/internal/store"
	logx "reminderbot/pkg/logx"
)

// Notifier delivers one reminder message. Errors are logged and otherwise
// ignored by the scheduler (no redelivery for that occurrence).
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Authorizer re-checks the owner at fire time. Reminders whose owner fell
// off the allow-list are skipped (and not advanced), so they resume firing
// if the owner is re-authorized.
type Authorizer interface {
	Allowed(id int64) bool
}

type Config struct {
	Tick    time.Duration // default 60s, aligned to minute boundaries
	Workers int           // per-tick dispatch parallelism, default 4
}

type Service struct {
	cfg   Config
	store store.Store
	notif Notifier
	authz Authorizer
	log   logx.Logger

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(cfg Config, st store.Store, notif Notifier, authz Authorizer, log logx.Logger) *Service {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: st, notif: notif, authz: authz, log: log}
}

func (s *Service) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.Go0("scheduler.loop", s.loop)
	s.log.Info("scheduler started",
		logx.Duration("tick", s.cfg.Tick),
		logx.Int("workers", s.cfg.Workers),
	)
}

func (s *Service) Stop(ctx context.Context) {
	s.runMu.Lock()
	sup := s.sup
	s.sup = nil
	wasRunning := s.running
	s.running = false
	s.runMu.Unlock()

	if !wasRunning {
		return
	}
	sup.Cancel()
	_ = sup.Wait(ctx)
	s.log.Info("scheduler stopped")
}

func (s *Service) loop(ctx context.Context) {
	// Align the first tick to the next minute boundary so "next remind"
	// timestamps line up with actual delivery times.
	first := time.Until(time.Now().Truncate(time.Minute).Add(time.Minute))
	timer := time.NewTimer(first)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	s.runTick(ctx, time.Now())

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Ticks run sequentially; a long tick delays the next one
			// rather than overlapping it.
			s.runTick(ctx, time.Now())
		}
	}
}

// runTick performs one due-scan and dispatch pass.
func (s *Service) runTick(ctx context.Context, now time.Time) {
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		s.log.Warn("due scan failed, skipping tick", logx.Err(err))
		return
	}
	if len(due) == 0 {
		return
	}
	s.log.Debug("tick", logx.Int("due", len(due)), logx.Time("now", now))

	workers := s.cfg.Workers
	if workers > len(due) {
		workers = len(due)
	}

	// Each reminder is consumed by exactly one worker.
	jobs := make(chan store.Job)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				s.fireOne(ctx, now, j)
			}
		}()
	}
	for _, j := range due {
		jobs <- j
	}
	close(jobs)
	wg.Wait()
}

// fireOne delivers one due reminder and advances or consumes it.
func (s *Service) fireOne(ctx context.Context, now time.Time, j store.Job) {
	log := s.log.With(logx.Int64("id", j.ID), logx.Int64("owner", j.Owner))
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while firing reminder", logx.Any("panic", r))
		}
	}()

	if s.authz != nil && !s.authz.Allowed(j.Owner) {
		log.Warn("reminder owner no longer authorized, skipping")
		return
	}

	if err := s.notif.Notify(ctx, j.Owner, j.Message); err != nil {
		// At-most-once: the occurrence still counts as fired.
		log.Warn("delivery failed", logx.Err(err))
	}

	if j.OneShot() {
		if err := s.store.Delete(ctx, j.ID); err != nil {
			log.Error("consuming one-shot reminder failed", logx.Err(err))
		}
		return
	}

	sched, err := cron.Parse(j.Spec)
	if err != nil {
		// Row predates validation or was edited by hand. Pause it rather
		// than re-firing every tick.
		log.Error("stored schedule no longer parses, pausing", logx.Err(err))
		j.Paused = true
		if uerr := s.store.Update(ctx, &j); uerr != nil {
			log.Error("pausing broken reminder failed", logx.Err(uerr))
		}
		return
	}

	// Advance from now, not from the stale NextFire: an overdue reminder
	// (resumed, or missed while the bot was down) gets exactly one
	// catch-up firing instead of one per missed interval.
	next := sched.Next(now)
	if next.IsZero() {
		log.Warn("schedule has no future occurrence, pausing")
		j.Paused = true
		if uerr := s.store.Update(ctx, &j); uerr != nil {
			log.Error("pausing exhausted reminder failed", logx.Err(uerr))
		}
		return
	}
	j.NextFire = next
	if err := s.store.Update(ctx, &j); err != nil {
		log.Error("advancing reminder failed", logx.Err(err))
	}
}
