package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"ai-image-queue/internal/domain"
	"ai-image-queue/internal/domain/model"
	"ai-image-queue/internal/domain/ports/adapter"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type queueFixture struct {
	repo       *memJobRepo
	dispatcher *fakeDispatcher
	analytics  *fakeAnalytics
	uc         *queueUC
}

func newQueueFixture(capacity int) *queueFixture {
	repo := newMemJobRepo()
	dispatcher := &fakeDispatcher{}
	analytics := &fakeAnalytics{}
	uc := NewQueueUseCase(repo, dispatcher, analytics, syncRunner{}, capacity, testLogger())
	return &queueFixture{repo: repo, dispatcher: dispatcher, analytics: analytics, uc: uc}
}

func genReq(prompt string) model.GenerateRequest {
	return model.GenerateRequest{Prompt: prompt, Style: "photo", Quality: "hd", Temperature: 0.7}
}

func TestSubmitValidatesRequest(t *testing.T) {
	f := newQueueFixture(5)
	ctx := context.Background()

	if _, err := f.uc.Submit(ctx, "u1", model.GenerateRequest{Prompt: "   "}, false); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for blank prompt, got %v", err)
	}
	if _, err := f.uc.Submit(ctx, "", genReq("a cat"), false); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty user, got %v", err)
	}
	if _, err := f.uc.Submit(ctx, "u1", model.ButtonRequest{Label: "U1"}, false); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for button without message id, got %v", err)
	}
}

func TestSubmitEnqueuesQueuedJob(t *testing.T) {
	f := newQueueFixture(5)
	ctx := context.Background()

	snap, err := f.uc.Submit(ctx, "u1", genReq("a red fox"), true)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if snap.Status != model.JobStatusQueued {
		t.Fatalf("expected QUEUED, got %s", snap.Status)
	}
	if snap.Position != 0 {
		t.Fatalf("expected position 0, got %d", snap.Position)
	}
	job, err := f.repo.Find(ctx, snap.JobID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !job.OnDemandCredit {
		t.Fatal("expected on-demand credit flag to persist")
	}
	if got := f.analytics.countKind(adapter.EventEnqueued); got != 1 {
		t.Fatalf("expected 1 enqueued event, got %d", got)
	}
}

func TestPollAdmitsUpToCapacity(t *testing.T) {
	f := newQueueFixture(5)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 7; i++ {
		snap, err := f.uc.Submit(ctx, "u1", genReq("prompt"), false)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, snap.JobID)
	}

	// First poll of J1 drains the queue up to capacity.
	if _, err := f.uc.Poll(ctx, ids[0]); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	for i := 0; i < 5; i++ {
		job, err := f.repo.Find(ctx, ids[i])
		if err != nil {
			t.Fatalf("Find %s: %v", ids[i], err)
		}
		if job.Status != model.JobStatusProcessing {
			t.Fatalf("job %d: expected PROCESSING, got %s", i, job.Status)
		}
		if job.StartedAt.IsZero() {
			t.Fatalf("job %d: expected StartedAt to be set", i)
		}
		if !f.repo.isInFlight(ids[i]) {
			t.Fatalf("job %d: expected in-flight", i)
		}
	}
	if got := f.dispatcher.count(); got != 5 {
		t.Fatalf("expected 5 dispatches, got %d", got)
	}

	snap6, err := f.uc.Poll(ctx, ids[5])
	if err != nil {
		t.Fatalf("Poll J6: %v", err)
	}
	if snap6.Status != model.JobStatusQueued || snap6.Position != 0 {
		t.Fatalf("J6: expected QUEUED at position 0, got %s at %d", snap6.Status, snap6.Position)
	}
	snap7, err := f.uc.Poll(ctx, ids[6])
	if err != nil {
		t.Fatalf("Poll J7: %v", err)
	}
	if snap7.Status != model.JobStatusQueued || snap7.Position != 1 {
		t.Fatalf("J7: expected QUEUED at position 1, got %s at %d", snap7.Status, snap7.Position)
	}
	if f.repo.inFlightCount() != 5 {
		t.Fatalf("expected 5 in flight, got %d", f.repo.inFlightCount())
	}
}

func TestConcurrentAdmitNeverExceedsCapacity(t *testing.T) {
	f := newQueueFixture(5)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if _, err := f.uc.Submit(ctx, "u1", genReq("prompt"), false); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := f.uc.AdmitWaiting(ctx)
			if err != nil {
				t.Errorf("AdmitWaiting: %v", err)
				return
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 5 {
		t.Fatalf("expected 5 total admissions, got %d", total)
	}
	if f.repo.inFlightCount() != 5 {
		t.Fatalf("expected 5 in flight, got %d", f.repo.inFlightCount())
	}
}

func TestJobNeverWaitingAndInFlight(t *testing.T) {
	f := newQueueFixture(5)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 8; i++ {
		snap, _ := f.uc.Submit(ctx, "u1", genReq("prompt"), false)
		ids = append(ids, snap.JobID)
	}
	if _, err := f.uc.AdmitWaiting(ctx); err != nil {
		t.Fatalf("AdmitWaiting: %v", err)
	}
	for _, id := range ids {
		if f.repo.isWaiting(id) && f.repo.isInFlight(id) {
			t.Fatalf("job %s is both waiting and in flight", id)
		}
	}
}

func TestPollTerminalReturnsExactlyOnce(t *testing.T) {
	f := newQueueFixture(5)
	ctx := context.Background()

	snap, _ := f.uc.Submit(ctx, "u1", genReq("prompt"), false)
	if _, err := f.uc.Poll(ctx, snap.JobID); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	status := model.JobStatusCompleted
	url := "https://cdn.example.com/x.png"
	if err := f.repo.Update(ctx, snap.JobID, model.JobUpdate{Status: &status, ImageURL: &url, Buttons: []string{"U1", "U2"}}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	first, err := f.uc.Poll(ctx, snap.JobID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if first.Status != model.JobStatusCompleted || first.ImageURL != url {
		t.Fatalf("unexpected terminal snapshot: %+v", first)
	}
	if len(first.Buttons) != 2 {
		t.Fatalf("expected 2 buttons, got %v", first.Buttons)
	}

	second, err := f.uc.Poll(ctx, snap.JobID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !second.Expired || second.Status != model.JobStatusFailed || second.Reason != expiredReason {
		t.Fatalf("expected synthesized expired failure, got %+v", second)
	}
}

func TestPollUnknownJobSynthesizesExpiredFailure(t *testing.T) {
	f := newQueueFixture(5)

	snap, err := f.uc.Poll(context.Background(), "no-such-job")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !snap.Expired || snap.Status != model.JobStatusFailed || snap.Reason != expiredReason {
		t.Fatalf("expected expired failure, got %+v", snap)
	}
}

func TestDispatchFailureLeavesJobProcessing(t *testing.T) {
	f := newQueueFixture(5)
	f.dispatcher.err = errors.New("worker unreachable")
	ctx := context.Background()

	snap, _ := f.uc.Submit(ctx, "u1", genReq("prompt"), false)
	if _, err := f.uc.AdmitWaiting(ctx); err != nil {
		t.Fatalf("AdmitWaiting: %v", err)
	}

	job, err := f.repo.Find(ctx, snap.JobID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	// Dispatch failures are not retried; the stale sweep reclaims later.
	if job.Status != model.JobStatusProcessing {
		t.Fatalf("expected PROCESSING after failed dispatch, got %s", job.Status)
	}
	if !f.repo.isInFlight(snap.JobID) {
		t.Fatal("expected job to stay in flight")
	}
}

func TestRetrySubmitsBrandNewJob(t *testing.T) {
	f := newQueueFixture(5)
	ctx := context.Background()

	snap, _ := f.uc.Submit(ctx, "u1", genReq("a red fox"), true)
	status := model.JobStatusFailed
	reason := "banned prompt"
	_ = f.repo.Update(ctx, snap.JobID, model.JobUpdate{Status: &status, Reason: &reason})

	terminal, err := f.uc.Poll(ctx, snap.JobID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	req, ok := terminal.Request.(model.GenerateRequest)
	if !ok {
		t.Fatalf("expected the original request to be echoed, got %T", terminal.Request)
	}

	retried, err := f.uc.Submit(ctx, "u1", req, true)
	if err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if retried.JobID == snap.JobID {
		t.Fatal("retry must produce a new job id")
	}
	if retried.Status != model.JobStatusQueued {
		t.Fatalf("expected retried job QUEUED, got %s", retried.Status)
	}
	if _, err := f.repo.Find(ctx, snap.JobID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("old job must not be resurrected")
	}
}

func TestAdmitSkipsJobFailedWhileWaiting(t *testing.T) {
	f := newQueueFixture(5)
	ctx := context.Background()

	snap, _ := f.uc.Submit(ctx, "u1", genReq("prompt"), false)
	status := model.JobStatusFailed
	reason := "admission timeout"
	if err := f.repo.Update(ctx, snap.JobID, model.JobUpdate{Status: &status, Reason: &reason}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	n, err := f.uc.AdmitWaiting(ctx)
	if err != nil {
		t.Fatalf("AdmitWaiting: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 admissions, got %d", n)
	}
	job, err := f.repo.Find(ctx, snap.JobID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if job.Status != model.JobStatusFailed {
		t.Fatalf("terminal job must never move backward, got %s", job.Status)
	}
	if f.repo.inFlightCount() != 0 {
		t.Fatalf("expected slot released, %d still in flight", f.repo.inFlightCount())
	}
}

func TestAdmitWaitingPropagatesClaimError(t *testing.T) {
	f := newQueueFixture(5)
	f.repo.claimErr = errors.New("redis down")

	if _, err := f.uc.AdmitWaiting(context.Background()); err == nil {
		t.Fatal("expected claim error to surface")
	}
}

func TestAdmitReleasesSlotWhenJobVanished(t *testing.T) {
	f := newQueueFixture(5)
	ctx := context.Background()

	snap, _ := f.uc.Submit(ctx, "u1", genReq("prompt"), false)
	// Simulate a concurrent eviction between claim and read.
	f.repo.mu.Lock()
	delete(f.repo.store, snap.JobID)
	f.repo.mu.Unlock()

	n, err := f.uc.AdmitWaiting(ctx)
	if err != nil {
		t.Fatalf("AdmitWaiting: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 admissions, got %d", n)
	}
	if f.repo.inFlightCount() != 0 {
		t.Fatalf("expected slot released, %d still in flight", f.repo.inFlightCount())
	}
}
