// Package router maps inbound chat commands to store operations.
//
// It consumes transport updates from a channel, checks the allow-list, and
// dispatches to per-command handlers through a small middleware chain
// (panic recovery, request logging). All replies go through the notifier
// so command traffic shares the same send rate budget as reminders.
package router

import (
	"context"
	"strings"
	"sync"
	"time"

	"reminderbot/internal/auth"
	rtsup "reminderbot/internal/runtime/supervisor"
	"reminderbot/internal/store"
	kit "reminderbot/internal/transport"
	logx "reminderbot/pkg/logx"
)

// Replier sends a command reply. Satisfied by notifier.Service.
type Replier interface {
	Send(ctx context.Context, chatID int64, text string, opt *kit.SendOptions) error
}

// Request carries one parsed inbound command.
type Request struct {
	ChatID     int64
	FromID     int64
	Command    string
	Payload    string
	Authorized bool
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Router struct {
	store store.Store
	authz *auth.Registry
	reply Replier
	log   logx.Logger

	// now is swapped in tests for deterministic start-date seeding.
	now func() time.Time

	handler HandlerFunc // middleware-wrapped dispatch

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(st store.Store, authz *auth.Registry, reply Replier, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		store: st,
		authz: authz,
		reply: reply,
		log:   log,
		now:   time.Now,
	}
	r.handler = Chain(r.dispatch, MWPanicRecover(log), MWRequestLog(log))
	return r
}

func (r *Router) Start(ctx context.Context, updates <-chan kit.Update) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.sup = rtsup.New(ctx, rtsup.WithLogger(r.log))
	r.sup.Go0("router.consume", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case up, ok := <-updates:
				if !ok {
					return
				}
				r.handleUpdate(c, up)
			}
		}
	})
}

func (r *Router) Stop(ctx context.Context) {
	r.runMu.Lock()
	sup := r.sup
	r.sup = nil
	wasRunning := r.running
	r.running = false
	r.runMu.Unlock()

	if !wasRunning {
		return
	}
	sup.Cancel()
	_ = sup.Wait(ctx)
}

func (r *Router) handleUpdate(ctx context.Context, up kit.Update) {
	m := up.Message
	if m == nil {
		return
	}
	cmd, payload, ok := splitCommand(m.Text)
	if !ok {
		return
	}
	req := &Request{
		ChatID:     m.ChatID,
		FromID:     m.FromID,
		Command:    cmd,
		Payload:    payload,
		Authorized: r.authz.Allowed(m.ChatID),
	}
	_ = r.handler(ctx, req)
}

// splitCommand parses "/cmd[@botname] payload". Non-command text is ignored.
func splitCommand(text string) (cmd, payload string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if head == "" {
		return "", "", false
	}
	// Group chats address commands as /cmd@botname.
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

func (r *Router) dispatch(ctx context.Context, req *Request) error {
	switch req.Command {
	case "start":
		return r.handleStart(ctx, req)
	case "help":
		return r.handleHelp(ctx, req)
	case "addjob":
		return r.handleAddJob(ctx, req)
	case "showjobs":
		return r.handleShowJobs(ctx, req)
	case "pausejob":
		return r.handlePauseJob(ctx, req)
	case "resumejob":
		return r.handleResumeJob(ctx, req)
	case "deletejob":
		return r.handleDeleteJob(ctx, req)
	default:
		// Unknown commands are ignored; in group chats most slash
		// commands are addressed to other bots.
		return nil
	}
}

func (r *Router) send(ctx context.Context, chatID int64, text string) {
	if err := r.reply.Send(ctx, chatID, text, nil); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (r *Router) sendMarkdown(ctx context.Context, chatID int64, text string) {
	opt := &kit.SendOptions{ParseMode: "Markdown", DisablePreview: true}
	if err := r.reply.Send(ctx, chatID, text, opt); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}
