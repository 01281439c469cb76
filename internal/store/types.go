package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no reminder has the given id.
var ErrNotFound = errors.New("reminder not found")

// OneShotSpec is the schedule sentinel for reminders that fire exactly once
// at their NextFire instant and are then removed.
const OneShotSpec = "@specific"

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Job is a reminder row.
//
// ID and Owner are immutable after creation. NextFire is seeded by the
// command router at creation and afterwards written only by the scheduler
// (recurring advance). Paused is toggled by pause/resume commands.
type Job struct {
	ID        int64
	Owner     int64
	Spec      string // 5-field cron expression, @shortcut, or OneShotSpec
	Message   string
	NextFire  time.Time
	Paused    bool
	CreatedAt time.Time
}

// OneShot reports whether the job fires once and is then consumed.
func (j Job) OneShot() bool { return j.Spec == OneShotSpec }

// Store is the persistence boundary for reminders.
//
// Update and Delete are conditioned on the row still existing: mutating a
// concurrently deleted reminder is a no-op, not an error. This keeps a
// deletejob racing an in-flight firing from resurrecting the row.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id int64) (Job, error)
	ListByOwner(ctx context.Context, owner int64) ([]Job, error)
	ListDue(ctx context.Context, now time.Time) ([]Job, error)
	Update(ctx context.Context, j *Job) error
	Delete(ctx context.Context, id int64) error
	Close() error
}
