package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"proof-host/internal/events"
	"proof-host/internal/models"
	"proof-host/internal/repository"
	"proof-host/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// fakeBackend blocks every Prove until release is closed unless result is
// preset, and records calls and cancellations.
type fakeBackend struct {
	mu        sync.Mutex
	calls     map[string]int
	cancelled map[string]int
	release   chan struct{}
	done      chan struct{}
	proof     *types.ProofArtifact
	err       error
	ignoreCtx bool
}

func newFakeBackend(blocking bool) *fakeBackend {
	b := &fakeBackend{
		calls:     make(map[string]int),
		cancelled: make(map[string]int),
		release:   make(chan struct{}),
		done:      make(chan struct{}, 16),
		proof:     &types.ProofArtifact{Proof: "0xproof"},
	}
	if !blocking {
		close(b.release)
	}
	return b
}

func (b *fakeBackend) Prove(ctx context.Context, key types.ProofTaskDescriptor, _ *types.ProofRequest) (*types.ProofArtifact, error) {
	b.mu.Lock()
	b.calls[key.ID()]++
	b.mu.Unlock()
	defer func() { b.done <- struct{}{} }()

	if b.ignoreCtx {
		<-b.release
	} else {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.proof, b.err
}

func (b *fakeBackend) Cancel(_ context.Context, key types.ProofTaskDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled[key.ID()]++
	return nil
}

func (b *fakeBackend) callCount(key types.ProofTaskDescriptor) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key.ID()]
}

func (b *fakeBackend) cancelCount(key types.ProofTaskDescriptor) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled[key.ID()]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TaskEvent
}

func (r *recordingPublisher) PublishTaskEvent(event events.TaskEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) statuses() []types.TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.TaskStatus, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Status.Code)
	}
	return out
}

func actorTask(block uint64) (types.ProofTaskDescriptor, *types.ProofRequest) {
	req := &types.ProofRequest{
		BlockNumber: block,
		Network:     "taiko_mainnet",
		Prover:      common.HexToAddress("0x0000000000000000000000000000000000000abc"),
		ProofType:   types.ProofTypeSgx,
	}
	return types.NewProofTaskDescriptor(167000, common.BigToHash(common.Big2), req), req
}

func newTestActor(t *testing.T, store repository.TaskRepository, backend Backend, publisher events.Publisher) *RequestActor {
	t.Helper()
	actor := NewRequestActor(RequestActorConfig{ChannelCapacity: 16, EnqueueTimeout: time.Second}, store, backend, publisher, quietLogger())
	actor.Start()
	t.Cleanup(actor.Stop)
	return actor
}

func currentStatus(t *testing.T, store repository.TaskRepository, key types.ProofTaskDescriptor) types.TaskStatus {
	t.Helper()
	task, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return task.Status
}

func TestSubmitThenSuccess(t *testing.T) {
	store := repository.NewMemoryTaskRepository()
	backend := newFakeBackend(false)
	publisher := &recordingPublisher{}
	actor := newTestActor(t, store, backend, publisher)
	ctx := context.Background()
	key, req := actorTask(100)

	task, err := actor.Submit(ctx, key, req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.Status != types.TaskStatusRegistered {
		t.Fatalf("submit should answer registered, got %s", task.Status)
	}
	waitFor(t, "success", func() bool { return currentStatus(t, store, key) == types.TaskStatusSuccess })

	got, _ := store.Get(ctx, key)
	if proof := got.CurrentStatus().Proof; proof == nil || proof.Proof != "0xproof" {
		t.Fatalf("proof not stored: %+v", got.CurrentStatus())
	}

	// a finished proof is reused, not recomputed
	again, err := actor.Submit(ctx, key, req)
	if err != nil || again.ID != task.ID || again.Status != types.TaskStatusSuccess {
		t.Fatalf("resubmit should return the success record, got %+v (%v)", again, err)
	}
	if n := backend.callCount(key); n != 1 {
		t.Fatalf("backend called %d times, want 1", n)
	}

	want := []types.TaskStatus{types.TaskStatusRegistered, types.TaskStatusWorkInProgress, types.TaskStatusSuccess}
	waitFor(t, "events", func() bool { return len(publisher.statuses()) == len(want) })
	for i, st := range publisher.statuses() {
		if st != want[i] {
			t.Fatalf("event %d = %s, want %s", i, st, want[i])
		}
	}
}

func TestConcurrentSubmitsDeduplicate(t *testing.T) {
	store := repository.NewMemoryTaskRepository()
	backend := newFakeBackend(true)
	actor := newTestActor(t, store, backend, nil)
	key, req := actorTask(101)

	var wg sync.WaitGroup
	ids := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := actor.Submit(context.Background(), key, req)
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			ids <- task.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Fatalf("expected one task record, got %d", len(seen))
	}
	waitFor(t, "backend dispatch", func() bool { return backend.callCount(key) == 1 })
	close(backend.release)
	waitFor(t, "success", func() bool { return currentStatus(t, store, key) == types.TaskStatusSuccess })
	if n := backend.callCount(key); n != 1 {
		t.Fatalf("backend called %d times, want 1", n)
	}
}

func TestFailedTaskIsReattempted(t *testing.T) {
	store := repository.NewMemoryTaskRepository()
	backend := newFakeBackend(false)
	backend.err = errors.New("guest crashed")
	actor := newTestActor(t, store, backend, nil)
	ctx := context.Background()
	key, req := actorTask(102)

	first, err := actor.Submit(ctx, key, req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "failure", func() bool { return currentStatus(t, store, key) == types.TaskStatusFailed })
	failed, _ := store.Get(ctx, key)
	if failed.CurrentStatus().Error != "guest crashed" {
		t.Fatalf("error message not recorded: %+v", failed.CurrentStatus())
	}

	backend.mu.Lock()
	backend.err = nil
	backend.mu.Unlock()

	second, err := actor.Submit(ctx, key, req)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.ID == first.ID || second.Attempt != 2 || second.Status != types.TaskStatusRegistered {
		t.Fatalf("expected a fresh registered attempt, got %+v", second)
	}
	waitFor(t, "second attempt success", func() bool { return currentStatus(t, store, key) == types.TaskStatusSuccess })
}

func TestCancelWinsOverLateSuccess(t *testing.T) {
	store := repository.NewMemoryTaskRepository()
	backend := newFakeBackend(true)
	backend.ignoreCtx = true
	actor := newTestActor(t, store, backend, nil)
	ctx := context.Background()
	key, req := actorTask(103)

	if _, err := actor.Submit(ctx, key, req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "backend dispatch", func() bool { return backend.callCount(key) == 1 })

	cancelled, err := actor.Cancel(ctx, key)
	if err != nil || cancelled.Status != types.TaskStatusCancelled {
		t.Fatalf("cancel: %+v (%v)", cancelled, err)
	}
	waitFor(t, "backend cancel signal", func() bool { return backend.cancelCount(key) == 1 })

	// the backend finishes anyway
	close(backend.release)
	<-backend.done
	time.Sleep(50 * time.Millisecond)

	if st := currentStatus(t, store, key); st != types.TaskStatusCancelled {
		t.Fatalf("late success overwrote cancellation: %s", st)
	}

	// cancelling again is a no-op on the terminal record
	again, err := actor.Cancel(ctx, key)
	if err != nil || again.ID != cancelled.ID || again.Status != types.TaskStatusCancelled {
		t.Fatalf("second cancel: %+v (%v)", again, err)
	}
	if n := backend.cancelCount(key); n != 1 {
		t.Fatalf("backend cancelled %d times, want 1", n)
	}
}

func TestCancelUnknownKey(t *testing.T) {
	actor := newTestActor(t, repository.NewMemoryTaskRepository(), newFakeBackend(false), nil)
	key, _ := actorTask(104)
	if _, err := actor.Cancel(context.Background(), key); !errors.Is(err, types.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestEnqueueBackpressure(t *testing.T) {
	store := repository.NewMemoryTaskRepository()
	// not started: nothing drains the channel
	actor := NewRequestActor(RequestActorConfig{ChannelCapacity: 1, EnqueueTimeout: 10 * time.Millisecond},
		store, newFakeBackend(false), nil, quietLogger())
	key, req := actorTask(105)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := actor.Submit(ctx, key, req); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("first submit should be queued and time out waiting, got %v", err)
	}

	started := time.Now()
	if _, err := actor.Submit(context.Background(), key, req); !errors.Is(err, types.ErrBackpressure) {
		t.Fatalf("expected ErrBackpressure, got %v", err)
	}
	if time.Since(started) < 10*time.Millisecond {
		t.Fatalf("enqueue did not wait for the configured timeout")
	}
	if _, err := store.Get(context.Background(), key); !errors.Is(err, types.ErrTaskNotFound) {
		t.Fatalf("no record should exist, got %v", err)
	}
}

func TestStoppedActorRejectsCommands(t *testing.T) {
	actor := NewRequestActor(RequestActorConfig{ChannelCapacity: 4}, repository.NewMemoryTaskRepository(), newFakeBackend(false), nil, quietLogger())
	actor.Start()
	actor.Stop()
	key, req := actorTask(106)
	if _, err := actor.Submit(context.Background(), key, req); !errors.Is(err, types.ErrActorStopped) {
		t.Fatalf("expected ErrActorStopped, got %v", err)
	}
}

func TestRecoverPendingTasksOnStart(t *testing.T) {
	store := repository.NewMemoryTaskRepository()
	ctx := context.Background()
	registeredKey, registeredReq := actorTask(107)
	runningKey, runningReq := actorTask(108)
	if _, _, err := store.UpsertRegistered(ctx, registeredKey, registeredReq); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := store.UpsertRegistered(ctx, runningKey, runningReq); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.UpdateProgress(ctx, runningKey, types.WorkInProgress()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	backend := newFakeBackend(false)
	newTestActor(t, store, backend, nil)

	for _, key := range []types.ProofTaskDescriptor{registeredKey, runningKey} {
		key := key
		waitFor(t, "recovered success", func() bool { return currentStatus(t, store, key) == types.TaskStatusSuccess })
		if n := backend.callCount(key); n != 1 {
			t.Fatalf("backend called %d times for %s, want 1", n, key)
		}
	}
}

// failingStartStore refuses the first registered -> work_in_progress write
type failingStartStore struct {
	*repository.MemoryTaskRepository
	mu     sync.Mutex
	failed bool
}

func (s *failingStartStore) UpdateAttempt(ctx context.Context, key types.ProofTaskDescriptor, attemptID string, status types.Status) (*models.ProofTask, error) {
	s.mu.Lock()
	if !s.failed && status.Code == types.TaskStatusWorkInProgress {
		s.failed = true
		s.mu.Unlock()
		return nil, errors.New("connection reset")
	}
	s.mu.Unlock()
	return s.MemoryTaskRepository.UpdateAttempt(ctx, key, attemptID, status)
}

func TestStartFailureDoesNotStrandTask(t *testing.T) {
	store := &failingStartStore{MemoryTaskRepository: repository.NewMemoryTaskRepository()}
	backend := newFakeBackend(false)
	actor := newTestActor(t, store, backend, nil)
	ctx := context.Background()
	key, req := actorTask(109)

	first, err := actor.Submit(ctx, key, req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.Status != types.TaskStatusFailed || first.LastError == "" {
		t.Fatalf("attempt that could not start should be failed, got %+v", first)
	}

	second, err := actor.Submit(ctx, key, req)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.Attempt != 2 {
		t.Fatalf("resubmit should open attempt 2, got %+v", second)
	}
	waitFor(t, "second attempt success", func() bool { return currentStatus(t, store, key) == types.TaskStatusSuccess })
	if n := backend.callCount(key); n != 1 {
		t.Fatalf("backend called %d times, want 1", n)
	}
}

func TestCancelledTaskIsReattemptedWhileOldJobRuns(t *testing.T) {
	store := repository.NewMemoryTaskRepository()
	backend := newFakeBackend(true)
	backend.ignoreCtx = true
	actor := newTestActor(t, store, backend, nil)
	ctx := context.Background()
	key, req := actorTask(110)

	first, err := actor.Submit(ctx, key, req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "first dispatch", func() bool { return backend.callCount(key) == 1 })
	if _, err := actor.Cancel(ctx, key); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	second, err := actor.Submit(ctx, key, req)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.ID == first.ID || second.Attempt != 2 {
		t.Fatalf("expected a fresh attempt, got %+v", second)
	}
	waitFor(t, "second dispatch", func() bool { return backend.callCount(key) == 2 })

	// both jobs finish; only attempt 2 may record its result
	close(backend.release)
	waitFor(t, "second attempt success", func() bool { return currentStatus(t, store, key) == types.TaskStatusSuccess })
	<-backend.done
	<-backend.done
	time.Sleep(50 * time.Millisecond)

	history, err := store.History(ctx, key)
	if err != nil || len(history) != 2 {
		t.Fatalf("history: %d records (%v)", len(history), err)
	}
	if history[0].Status != types.TaskStatusCancelled || history[1].Status != types.TaskStatusSuccess {
		t.Fatalf("history = %s, %s; want cancelled, success", history[0].Status, history[1].Status)
	}
	if history[1].ID != second.ID {
		t.Fatalf("success recorded on the wrong attempt")
	}
}

func TestQueuedSubmitRunsAfterCallerGivesUp(t *testing.T) {
	store := repository.NewMemoryTaskRepository()
	actor := NewRequestActor(RequestActorConfig{ChannelCapacity: 4}, store, newFakeBackend(false), nil, quietLogger())
	key, req := actorTask(111)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := actor.Submit(ctx, key, req); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the caller to time out, got %v", err)
	}

	actor.Start()
	t.Cleanup(actor.Stop)
	waitFor(t, "queued submit to run", func() bool {
		task, err := store.Get(context.Background(), key)
		return err == nil && task.Status == types.TaskStatusSuccess
	})
}
