package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"reminderbot/internal/store"
	logx "reminderbot/pkg/logx"
)

// memStore is an in-memory store.Store for scheduler tests.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	jobs    map[int64]store.Job
	listErr error
	delErr  map[int64]error
}

func newMemStore() *memStore {
	return &memStore{jobs: map[int64]store.Job{}, delErr: map[int64]error{}}
}

func (m *memStore) Create(_ context.Context, j *store.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	j.ID = m.nextID
	m.jobs[j.ID] = *j
	return nil
}

func (m *memStore) Get(_ context.Context, id int64) (store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return store.Job{}, store.ErrNotFound
	}
	return j, nil
}

func (m *memStore) ListByOwner(_ context.Context, owner int64) ([]store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Job
	for _, j := range m.jobs {
		if j.Owner == owner {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (m *memStore) ListDue(_ context.Context, now time.Time) ([]store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []store.Job
	for _, j := range m.jobs {
		if !j.Paused && !j.NextFire.After(now) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (m *memStore) Update(_ context.Context, j *store.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; !ok {
		return nil // mirror sqlite: stale update of a deleted row is a no-op
	}
	m.jobs[j.ID] = *j
	return nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.delErr[id]; err != nil {
		return err
	}
	delete(m.jobs, id)
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) get(t *testing.T, id int64) store.Job {
	t.Helper()
	j, err := m.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("job %d: %v", id, err)
	}
	return j
}

// fakeNotifier records sends and can fail selected chats.
type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	fails map[int64]error
}

func (f *fakeNotifier) Notify(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeNotifier) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.sent...)
	sort.Strings(out)
	return out
}

type allowAll struct{}

func (allowAll) Allowed(int64) bool { return true }

type denyAll struct{}

func (denyAll) Allowed(int64) bool { return false }

func newTestService(st store.Store, n Notifier, a Authorizer) *Service {
	return New(Config{Workers: 2}, st, n, a, logx.Nop())
}

func mustAt(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestTickAdvancesRecurring(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	n := &fakeNotifier{}
	svc := newTestService(st, n, allowAll{})
	ctx := context.Background()

	fire := mustAt("2022-12-25 10:01:00")
	j := &store.Job{Owner: 1, Spec: "@minutely", Message: "ping", NextFire: fire}
	_ = st.Create(ctx, j)

	svc.runTick(ctx, fire)

	if got := n.sentTexts(); len(got) != 1 || got[0] != "ping" {
		t.Fatalf("sent = %v, want [ping]", got)
	}
	if got, want := st.get(t, j.ID).NextFire, mustAt("2022-12-25 10:02:00"); !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v", got, want)
	}
}

func TestNextFireStrictlyIncreases(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	n := &fakeNotifier{}
	svc := newTestService(st, n, allowAll{})
	ctx := context.Background()

	j := &store.Job{Owner: 1, Spec: "*/5 * * * *", Message: "m", NextFire: mustAt("2022-12-25 10:00:00")}
	_ = st.Create(ctx, j)

	prev := j.NextFire
	for i := 0; i < 10; i++ {
		svc.runTick(ctx, prev)
		cur := st.get(t, j.ID).NextFire
		if !cur.After(prev) {
			t.Fatalf("NextFire %v not strictly after %v", cur, prev)
		}
		prev = cur
	}
	if got := len(n.sentTexts()); got != 10 {
		t.Fatalf("sent %d messages, want 10", got)
	}
}

func TestOneShotConsumedOnSuccess(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	n := &fakeNotifier{}
	svc := newTestService(st, n, allowAll{})
	ctx := context.Background()

	fire := mustAt("2022-12-25 09:00:00")
	j := &store.Job{Owner: 1, Spec: store.OneShotSpec, Message: "hello", NextFire: fire}
	_ = st.Create(ctx, j)

	svc.runTick(ctx, fire)

	if got := n.sentTexts(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("sent = %v, want [hello]", got)
	}
	if _, err := st.Get(ctx, j.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("one-shot survived its firing")
	}

	// A later tick must not fire it again.
	svc.runTick(ctx, fire.Add(time.Minute))
	if got := len(n.sentTexts()); got != 1 {
		t.Fatalf("one-shot fired %d times", got)
	}
}

func TestOneShotConsumedOnDeliveryFailure(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	n := &fakeNotifier{fails: map[int64]error{1: errors.New("chat unreachable")}}
	svc := newTestService(st, n, allowAll{})
	ctx := context.Background()

	fire := mustAt("2022-12-25 09:00:00")
	j := &store.Job{Owner: 1, Spec: store.OneShotSpec, Message: "hello", NextFire: fire}
	_ = st.Create(ctx, j)

	svc.runTick(ctx, fire)

	if _, err := st.Get(ctx, j.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("failed one-shot was not consumed")
	}
}

func TestDeliveryFailureStillAdvancesRecurring(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	n := &fakeNotifier{fails: map[int64]error{1: errors.New("chat unreachable")}}
	svc := newTestService(st, n, allowAll{})
	ctx := context.Background()

	fire := mustAt("2022-12-25 10:00:00")
	j := &store.Job{Owner: 1, Spec: "@minutely", Message: "m", NextFire: fire}
	_ = st.Create(ctx, j)

	svc.runTick(ctx, fire)

	if got, want := st.get(t, j.ID).NextFire, mustAt("2022-12-25 10:01:00"); !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v (state must advance despite delivery error)", got, want)
	}
}

func TestOverdueFiresOnceThenAdvancesFromNow(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	n := &fakeNotifier{}
	svc := newTestService(st, n, allowAll{})
	ctx := context.Background()

	// Resumed (or missed) reminder, three hours behind.
	now := mustAt("2022-12-25 13:00:00")
	j := &store.Job{Owner: 1, Spec: "@minutely", Message: "catchup", NextFire: mustAt("2022-12-25 10:00:00")}
	_ = st.Create(ctx, j)

	svc.runTick(ctx, now)

	if got := len(n.sentTexts()); got != 1 {
		t.Fatalf("catch-up fired %d times, want exactly 1", got)
	}
	if got, want := st.get(t, j.ID).NextFire, mustAt("2022-12-25 13:01:00"); !got.Equal(want) {
		t.Fatalf("NextFire = %v, want %v (advance from now, not from backlog)", got, want)
	}
}

func TestJobFailureIsolated(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	n := &fakeNotifier{fails: map[int64]error{1: errors.New("boom")}}
	svc := newTestService(st, n, allowAll{})
	ctx := context.Background()

	fire := mustAt("2022-12-25 10:00:00")
	bad := &store.Job{Owner: 1, Spec: store.OneShotSpec, Message: "bad", NextFire: fire}
	good := &store.Job{Owner: 2, Spec: "@minutely", Message: "good", NextFire: fire}
	_ = st.Create(ctx, bad)
	_ = st.Create(ctx, good)
	st.delErr[bad.ID] = errors.New("disk full")

	svc.runTick(ctx, fire)

	if got := n.sentTexts(); len(got) != 1 || got[0] != "good" {
		t.Fatalf("sent = %v, want [good]", got)
	}
	if got, want := st.get(t, good.ID).NextFire, mustAt("2022-12-25 10:01:00"); !got.Equal(want) {
		t.Fatalf("healthy job not advanced: %v", got)
	}
}

func TestListDueErrorSkipsTick(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	st.listErr = errors.New("database is locked")
	n := &fakeNotifier{}
	svc := newTestService(st, n, allowAll{})

	svc.runTick(context.Background(), time.Now())

	if got := len(n.sentTexts()); got != 0 {
		t.Fatalf("tick fired %d messages despite scan failure", got)
	}
}

func TestUnauthorizedOwnerSkipped(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	n := &fakeNotifier{}
	svc := newTestService(st, n, denyAll{})
	ctx := context.Background()

	fire := mustAt("2022-12-25 10:00:00")
	j := &store.Job{Owner: 1, Spec: "@minutely", Message: "m", NextFire: fire}
	_ = st.Create(ctx, j)

	svc.runTick(ctx, fire)

	if got := len(n.sentTexts()); got != 0 {
		t.Fatal("unauthorized reminder was delivered")
	}
	if got := st.get(t, j.ID).NextFire; !got.Equal(fire) {
		t.Fatalf("unauthorized reminder advanced to %v", got)
	}
}

func TestBrokenStoredSchedulePaused(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	n := &fakeNotifier{}
	svc := newTestService(st, n, allowAll{})
	ctx := context.Background()

	fire := mustAt("2022-12-25 10:00:00")
	j := &store.Job{Owner: 1, Spec: "not a cron", Message: "m", NextFire: fire}
	_ = st.Create(ctx, j)

	svc.runTick(ctx, fire)
	svc.runTick(ctx, fire.Add(time.Minute))

	// Delivered once, then parked instead of re-firing every tick.
	if got := len(n.sentTexts()); got != 1 {
		t.Fatalf("broken reminder fired %d times, want 1", got)
	}
	if !st.get(t, j.ID).Paused {
		t.Fatal("broken reminder not paused")
	}
}
