package usecase

import (
	"context"
	"sync"

	"ai-image-queue/internal/domain"
	"ai-image-queue/internal/domain/model"
	"ai-image-queue/internal/domain/ports/adapter"
)

// memJobRepo is a small in-memory job store used by unit tests. ClaimBatch
// holds the lock for the whole check-and-pop, mirroring the atomicity the
// Redis script provides.
type memJobRepo struct {
	mu       sync.Mutex
	store    map[string]*model.Job
	waiting  []string
	inflight map[string]bool

	findErr      error
	updateErr    error
	claimErr     error
	listErr      error
	removeErrFor map[string]error // per-id failure injection
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{
		store:        make(map[string]*model.Job),
		inflight:     make(map[string]bool),
		removeErrFor: make(map[string]error),
	}
}

func copyJob(j *model.Job) *model.Job {
	cp := *j
	cp.Buttons = append([]string(nil), j.Buttons...)
	return &cp
}

func (m *memJobRepo) Enqueue(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[job.ID] = copyJob(job)
	m.waiting = append(m.waiting, job.ID)
	return nil
}

func (m *memJobRepo) Find(ctx context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyJob(j), nil
}

func (m *memJobRepo) Update(ctx context.Context, id string, upd model.JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	j, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if upd.Status != nil {
		j.Status = *upd.Status
	}
	if upd.StartedAt != nil {
		j.StartedAt = *upd.StartedAt
	}
	if upd.Progress != nil {
		j.Progress = *upd.Progress
	}
	if upd.ImageURL != nil {
		j.ImageURL = *upd.ImageURL
	}
	if upd.Buttons != nil {
		j.Buttons = append([]string(nil), upd.Buttons...)
	}
	if upd.MessageID != nil {
		j.MessageID = *upd.MessageID
	}
	if upd.Reason != nil {
		j.Reason = *upd.Reason
	}
	return nil
}

func (m *memJobRepo) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.removeErrFor[id]; err != nil {
		return err
	}
	delete(m.store, id)
	delete(m.inflight, id)
	for i, w := range m.waiting {
		if w == id {
			m.waiting = append(m.waiting[:i], m.waiting[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memJobRepo) WaitingPosition(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.waiting {
		if w == id {
			return i, nil
		}
	}
	return 0, domain.ErrNotFound
}

func (m *memJobRepo) ClaimBatch(ctx context.Context, capacity int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	spare := capacity - len(m.inflight)
	var claimed []string
	for spare > 0 && len(m.waiting) > 0 {
		id := m.waiting[0]
		m.waiting = m.waiting[1:]
		m.inflight[id] = true
		claimed = append(claimed, id)
		spare--
	}
	return claimed, nil
}

func (m *memJobRepo) ReleaseInFlight(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, id)
	return nil
}

func (m *memJobRepo) ListIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]string, 0, len(m.store))
	for id := range m.store {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memJobRepo) inFlightCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

func (m *memJobRepo) isInFlight(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight[id]
}

func (m *memJobRepo) isWaiting(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.waiting {
		if w == id {
			return true
		}
	}
	return false
}

// ---- Fakes ----

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string
	err        error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, job *model.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, job.ID)
	return f.err
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatched)
}

type fakeCredits struct {
	mu      sync.Mutex
	refunds map[string]int
	err     error
}

func newFakeCredits() *fakeCredits {
	return &fakeCredits{refunds: make(map[string]int)}
}

func (f *fakeCredits) RefundOnDemand(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.refunds[userID]++
	return nil
}

func (f *fakeCredits) refundsFor(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refunds[userID]
}

type fakeAnalytics struct {
	mu     sync.Mutex
	events []adapter.JobEvent
	err    error
}

func (f *fakeAnalytics) Record(ctx context.Context, ev adapter.JobEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeAnalytics) countKind(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type fakeAlerter struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (f *fakeAlerter) Notify(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeAlerter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

// syncRunner executes submitted tasks inline so tests stay deterministic.
type syncRunner struct{}

func (syncRunner) Submit(task func(ctx context.Context) error) error {
	return task(context.Background())
}
