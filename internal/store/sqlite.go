package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "reminderbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Times are persisted as fixed-width UTC strings so that SQL string
// comparison orders them chronologically.
const timeLayout = time.RFC3339

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (or creates) the sqlite database and applies migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Create(ctx context.Context, j *Job) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(owner_id, spec, message, next_fire, paused, created_at)
		 VALUES(?,?,?,?,?,?)`,
		j.Owner, j.Spec, j.Message, fmtTime(j.NextFire), boolInt(j.Paused), fmtTime(j.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	j.ID = id
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, id int64) (Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, spec, message, next_fire, paused, created_at
		 FROM reminders WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("get reminder %d: %w", id, err)
	}
	return j, nil
}

func (s *sqliteStore) ListByOwner(ctx context.Context, owner int64) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, spec, message, next_fire, paused, created_at
		 FROM reminders WHERE owner_id = ? ORDER BY id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list reminders for %d: %w", owner, err)
	}
	return collectJobs(rows)
}

func (s *sqliteStore) ListDue(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, spec, message, next_fire, paused, created_at
		 FROM reminders WHERE paused = 0 AND next_fire <= ? ORDER BY id`, fmtTime(now))
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return collectJobs(rows)
}

func (s *sqliteStore) Update(ctx context.Context, j *Job) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET next_fire = ?, paused = ? WHERE id = ?`,
		fmtTime(j.NextFire), boolInt(j.Paused), j.ID)
	if err != nil {
		return fmt.Errorf("update reminder %d: %w", j.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Row deleted underneath us; the delete wins.
		s.log.Debug("update skipped, reminder gone", logx.Int64("id", j.ID))
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete reminder %d: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (Job, error) {
	var (
		j                 Job
		nextFire, created string
		paused            int
	)
	if err := r.Scan(&j.ID, &j.Owner, &j.Spec, &j.Message, &nextFire, &paused, &created); err != nil {
		return Job{}, err
	}
	var err error
	if j.NextFire, err = time.Parse(timeLayout, nextFire); err != nil {
		return Job{}, fmt.Errorf("bad next_fire %q: %w", nextFire, err)
	}
	if j.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return Job{}, fmt.Errorf("bad created_at %q: %w", created, err)
	}
	j.Paused = paused != 0
	return j, nil
}

func collectJobs(rows *sql.Rows) ([]Job, error) {
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
