package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"reminderbot/internal/store"
	logx "reminderbot/pkg/logx"
)

const helpText = `Possible commands :
/start - Welcome message
/help - Help center
/addjob cron;message[;start_date] - Add a job
/showjobs - Show my jobs
/pausejob jobid - Pause the job with id jobid
/resumejob jobid - Resume the job with id jobid
/deletejob jobid - Delete the job with id jobid

In /addjob, the start_date is optional and uses the dd/mm/yy hh:mm:ss format (e.g. 25/12/22 09:00:00).
The possible cron values are @specific (reminder at the start date), @minutely, @hourly, @daily, @midnight, @weekly, @monthly, @yearly, @annually and any valid cron expression.`

const genericFailure = "Something went wrong, please try again later"

func (r *Router) handleStart(ctx context.Context, req *Request) error {
	if !req.Authorized {
		r.send(ctx, req.ChatID, "You are not authorized to use this bot. Please see /help for more details")
		return nil
	}
	r.send(ctx, req.ChatID, "Welcome to reminderbot. I am a bot to send reminders. Please see the documentation with the /help command")
	return nil
}

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	if !req.Authorized {
		r.send(ctx, req.ChatID, fmt.Sprintf(
			"You are not authorized to use this bot. Please consider adding your id to the authorized list : %d (or asking for it)",
			req.ChatID))
		return nil
	}
	r.send(ctx, req.ChatID, helpText)
	return nil
}

func (r *Router) handleAddJob(ctx context.Context, req *Request) error {
	if !req.Authorized {
		r.log.Info("unauthorized user tried to add a job", logx.Int64("chat_id", req.ChatID))
		return nil
	}
	j, err := parseAddJob(req.Payload, req.ChatID, r.now())
	if err != nil {
		r.send(ctx, req.ChatID, err.Error())
		return nil
	}
	if err := r.store.Create(ctx, j); err != nil {
		r.log.Error("creating reminder failed", logx.Int64("chat_id", req.ChatID), logx.Err(err))
		r.send(ctx, req.ChatID, genericFailure)
		return nil
	}
	r.log.Info("job added",
		logx.Int64("id", j.ID),
		logx.Int64("chat_id", req.ChatID),
		logx.String("spec", j.Spec),
		logx.Time("next_fire", j.NextFire),
	)
	r.send(ctx, req.ChatID, "Job was added")
	return nil
}

func (r *Router) handleShowJobs(ctx context.Context, req *Request) error {
	if !req.Authorized {
		r.log.Info("unauthorized user tried to display jobs", logx.Int64("chat_id", req.ChatID))
		return nil
	}
	jobs, err := r.store.ListByOwner(ctx, req.ChatID)
	if err != nil {
		r.log.Error("listing reminders failed", logx.Int64("chat_id", req.ChatID), logx.Err(err))
		r.send(ctx, req.ChatID, genericFailure)
		return nil
	}
	if len(jobs) == 0 {
		r.send(ctx, req.ChatID, "You don't have any job")
		return nil
	}
	r.sendMarkdown(ctx, req.ChatID, renderJobTable(jobs))
	return nil
}

func (r *Router) handlePauseJob(ctx context.Context, req *Request) error {
	return r.mutateJob(ctx, req, "pause", func(j *store.Job) {
		j.Paused = true
	})
}

func (r *Router) handleResumeJob(ctx context.Context, req *Request) error {
	// NextFire is deliberately left untouched: a resumed overdue reminder
	// gets exactly one catch-up firing on the scheduler's next tick.
	return r.mutateJob(ctx, req, "resume", func(j *store.Job) {
		j.Paused = false
	})
}

func (r *Router) handleDeleteJob(ctx context.Context, req *Request) error {
	return r.mutateJob(ctx, req, "delete", nil)
}

// mutateJob implements the shared id-argument commands: parse the id, check
// existence and ownership, then apply the mutation (nil = delete).
func (r *Router) mutateJob(ctx context.Context, req *Request, verb string, mutate func(*store.Job)) error {
	if !req.Authorized {
		r.log.Info("unauthorized user tried to "+verb+" a job", logx.Int64("chat_id", req.ChatID))
		return nil
	}

	arg := strings.TrimSpace(req.Payload)
	id, err := strconv.ParseInt(arg, 10, 64)
	if arg == "" || strings.ContainsAny(arg, " \t") || err != nil {
		r.send(ctx, req.ChatID, "Failed to parse the command")
		return nil
	}

	j, err := r.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Warn("job does not exist", logx.Int64("chat_id", req.ChatID), logx.Int64("id", id))
		r.send(ctx, req.ChatID, "This job does not exist")
		return nil
	}
	if err != nil {
		r.log.Error("loading reminder failed", logx.Int64("id", id), logx.Err(err))
		r.send(ctx, req.ChatID, genericFailure)
		return nil
	}
	if j.Owner != req.ChatID {
		r.log.Warn("ownership check failed",
			logx.Int64("chat_id", req.ChatID),
			logx.Int64("id", id),
			logx.Int64("owner", j.Owner),
		)
		r.send(ctx, req.ChatID, "You are not the owner of this job")
		return nil
	}

	if mutate == nil {
		err = r.store.Delete(ctx, id)
	} else {
		mutate(&j)
		err = r.store.Update(ctx, &j)
	}
	if err != nil {
		r.log.Error(verb+" failed", logx.Int64("id", id), logx.Err(err))
		r.send(ctx, req.ChatID, genericFailure)
		return nil
	}

	r.log.Info("job "+verb+"d", logx.Int64("chat_id", req.ChatID), logx.Int64("id", id))
	r.send(ctx, req.ChatID, fmt.Sprintf("The job %d was %sd", id, verb))
	return nil
}
