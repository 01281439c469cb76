package router

import (
	"errors"
	"strings"
	"time"

	"reminderbot/internal/cron"
	"reminderbot/internal/store"
)

// dateLayout is the user-facing time format for /addjob start dates and the
// "Next remind" column of /showjobs.
const dateLayout = "02/01/06 15:04:05"

var (
	errBadCommand = errors.New("Failed to parse the command")
	errBadCron    = errors.New("The first argument must be a valid cron expression (including @daily, @hourly, etc...) or @specific")
	errBadDate    = errors.New("Failed to parse the start date, expected dd/mm/yy hh:mm:ss")
	errNeverFires = errors.New("This schedule never fires")
)

// parseAddJob turns an /addjob payload ("schedule;message[;start_date]")
// into a reminder seeded with its first firing time. The returned error
// text is sent verbatim as the reply.
func parseAddJob(payload string, owner int64, now time.Time) (*store.Job, error) {
	parts := strings.Split(payload, ";")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, errBadCommand
	}

	spec := strings.ToLower(strings.TrimSpace(parts[0]))
	message := strings.TrimSpace(parts[1])
	if spec == "" || message == "" {
		return nil, errBadCommand
	}

	start := now
	if len(parts) == 3 {
		t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(parts[2]), now.Location())
		if err != nil {
			return nil, errBadDate
		}
		start = t
	}

	j := &store.Job{
		Owner:     owner,
		Spec:      spec,
		Message:   message,
		CreatedAt: now,
	}

	if spec == store.OneShotSpec {
		j.NextFire = start
		return j, nil
	}

	sched, err := cron.Parse(spec)
	if err != nil {
		return nil, errBadCron
	}
	next := sched.Next(start)
	if next.IsZero() {
		return nil, errNeverFires
	}
	j.NextFire = next
	return j, nil
}
