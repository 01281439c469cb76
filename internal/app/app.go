// Package app wires the services together and owns their lifecycle:
// config manager, logging, transport adapter, store, notifier, scheduler
// and command router.
package app

import (
	"context"
	"fmt"
	"time"

	"reminderbot/internal/auth"
	"reminderbot/internal/config"
	"reminderbot/internal/notifier"
	"reminderbot/internal/router"
	rtsup "reminderbot/internal/runtime/supervisor"
	"reminderbot/internal/scheduler"
	"reminderbot/internal/store"
	kit "reminderbot/internal/transport"
	telegram "reminderbot/internal/transport/telegram"
	logx "reminderbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter
	store   store.Store
	authz   *auth.Registry
	notif   *notifier.Service
	sched   *scheduler.Service
	router  *router.Router

	updates chan kit.Update
}

// reminderNotifier narrows the notifier service to the scheduler's port.
type reminderNotifier struct {
	n *notifier.Service
}

func (r reminderNotifier) Notify(ctx context.Context, chatID int64, text string) error {
	return r.n.Send(ctx, chatID, text, nil)
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "./reminderbot.db"
	}
	st, err := store.Open(store.Config{
		Path:        dbPath,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	authz := auth.NewRegistry(auth.NewList(cfg.Telegram.AllowedIDs))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")))

	tick, err := config.ParseDurationOrDefault("scheduler.tick", cfg.Scheduler.Tick, time.Minute)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(scheduler.Config{
		Tick:    tick,
		Workers: cfg.Scheduler.Workers,
	}, st, reminderNotifier{notif}, authz, log.With(logx.String("comp", "scheduler")))

	rt := router.New(st, authz, notif, log.With(logx.String("comp", "router")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: ad,
		store:   st,
		authz:   authz,
		notif:   notif,
		sched:   sched,
		router:  rt,
		updates: make(chan kit.Update, 256),
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	sendTimeout, err := config.ParseDurationField("notifier.send_timeout", cfg.Notifier.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RatePerSec:  cfg.Notifier.RatePerSec,
		SendTimeout: sendTimeout,
	}, nil
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.router.Start(a.sup.Context(), a.updates)
	a.sched.Start(a.sup.Context())

	// Hot reload: allow-list, logging and notifier settings apply live.
	// Storage and telegram settings need a restart.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(newCfg)
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
	a.authz.Swap(auth.NewList(cfg.Telegram.AllowedIDs))

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	// Validated before publish, so the mapping cannot fail here.
	if ncfg, err := mapNotifierConfig(cfg); err == nil {
		a.notif.Apply(ncfg)
	}

	a.log.Info("config reloaded", logx.Int("allowed_ids", len(cfg.Telegram.AllowedIDs)))
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Bound each shutdown step so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("router", 2*time.Second, func(c context.Context) error { a.router.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("store", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
