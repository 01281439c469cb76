// Package notifier wraps the transport adapter with a send rate limit and
// a bounded per-send timeout, so one slow or unreachable chat cannot stall
// a scheduler tick. Deliveries are at-most-once: errors are returned to the
// caller, never retried here.
package notifier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "reminderbot/internal/transport"
	logx "reminderbot/pkg/logx"
)

type Config struct {
	RatePerSec  int
	SendTimeout time.Duration
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter kit.Adapter
	log     logx.Logger
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Send delivers one message to the chat. The rate-limiter wait and the
// actual send share a single timeout budget.
func (s *Service) Send(ctx context.Context, chatID int64, text string, opt *kit.SendOptions) error {
	s.mu.Lock()
	lim := s.limiter
	timeout := s.cfg.SendTimeout
	s.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := lim.Wait(cctx); err != nil {
		return err
	}
	return s.adapter.SendText(cctx, kit.ChatTarget{ChatID: chatID}, text, opt)
}
