package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"proof-host/internal/events"
	"proof-host/internal/metrics"
	"proof-host/internal/models"
	"proof-host/internal/repository"
	"proof-host/internal/types"

	"github.com/sirupsen/logrus"
)

// Backend is the proving capability the actor dispatches to
type Backend interface {
	Prove(ctx context.Context, key types.ProofTaskDescriptor, req *types.ProofRequest) (*types.ProofArtifact, error)
	Cancel(ctx context.Context, key types.ProofTaskDescriptor) error
}

type commandKind int

const (
	commandSubmit commandKind = iota
	commandCancel
)

func (k commandKind) String() string {
	if k == commandCancel {
		return "cancel"
	}
	return "submit"
}

type commandResult struct {
	task *models.ProofTask
	err  error
}

type command struct {
	kind  commandKind
	key   types.ProofTaskDescriptor
	req   *types.ProofRequest
	reply chan commandResult // buffered, the loop never blocks on it
}

// completion is sent by a backend job when it finishes
type completion struct {
	key       types.ProofTaskDescriptor
	attemptID string
	proof     *types.ProofArtifact
	err       error
}

type inflightJob struct {
	attemptID string
	cancel    context.CancelFunc
}

// RequestActor is the only writer of task transitions. Submissions,
// cancellations and backend completions are applied one at a time by a single
// loop, so commands for the same key are handled in arrival order.
type RequestActor struct {
	store          repository.TaskRepository
	backend        Backend
	publisher      events.Publisher
	logger         *logrus.Logger
	enqueueTimeout time.Duration
	cancelTimeout  time.Duration

	commands    chan command
	completions chan completion
	inflight    map[string]*inflightJob // loop goroutine only

	jobCtx    context.Context
	jobCancel context.CancelFunc
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup // loop
	jobs      sync.WaitGroup // backend goroutines
}

// RequestActorConfig sizes the actor channel
type RequestActorConfig struct {
	ChannelCapacity int
	EnqueueTimeout  time.Duration // <= 0 fails immediately when the channel is full
}

// NewRequestActor creates a stopped actor; call Start to run it
func NewRequestActor(cfg RequestActorConfig, store repository.TaskRepository, backend Backend, publisher events.Publisher, logger *logrus.Logger) *RequestActor {
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = 1024
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	jobCtx, jobCancel := context.WithCancel(context.Background())
	return &RequestActor{
		store:          store,
		backend:        backend,
		publisher:      publisher,
		logger:         logger,
		enqueueTimeout: cfg.EnqueueTimeout,
		cancelTimeout:  30 * time.Second,
		commands:       make(chan command, cfg.ChannelCapacity),
		completions:    make(chan completion, cfg.ChannelCapacity),
		inflight:       make(map[string]*inflightJob),
		jobCtx:         jobCtx,
		jobCancel:      jobCancel,
		stopChan:       make(chan struct{}),
	}
}

// Start runs the actor loop. Tasks left live by a previous process are
// re-dispatched before the first command is served.
func (a *RequestActor) Start() {
	a.logger.WithField("component", "request_actor").Info("🚀 Starting request actor")
	a.wg.Add(1)
	go a.loop()
}

// Stop ends the loop and aborts running backend jobs. Their records stay live
// and are recovered on the next Start.
func (a *RequestActor) Stop() {
	a.stopOnce.Do(func() {
		a.logger.WithField("component", "request_actor").Info("🛑 Stopping request actor")
		close(a.stopChan)
		a.jobCancel()
		a.wg.Wait()
		a.jobs.Wait()
		a.logger.WithField("component", "request_actor").Info("✅ Request actor stopped")
	})
}

// Submit registers req under key. A key whose current record is success is
// answered with that record; a live record is returned unchanged.
func (a *RequestActor) Submit(ctx context.Context, key types.ProofTaskDescriptor, req *types.ProofRequest) (*models.ProofTask, error) {
	return a.send(ctx, command{kind: commandSubmit, key: key, req: req})
}

// Cancel cancels the live record of key. Terminal records are returned as-is.
func (a *RequestActor) Cancel(ctx context.Context, key types.ProofTaskDescriptor) (*models.ProofTask, error) {
	return a.send(ctx, command{kind: commandCancel, key: key})
}

// send queues cmd and waits for its result. Once queued the command runs even
// if ctx ends first, so a caller that gives up may still have created a task.
func (a *RequestActor) send(ctx context.Context, cmd command) (*models.ProofTask, error) {
	cmd.reply = make(chan commandResult, 1)
	if err := a.enqueue(ctx, cmd); err != nil {
		return nil, err
	}
	select {
	case res := <-cmd.reply:
		return res.task, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.stopChan:
		return nil, types.ErrActorStopped
	}
}

func (a *RequestActor) enqueue(ctx context.Context, cmd command) error {
	select {
	case <-a.stopChan:
		return types.ErrActorStopped
	default:
	}

	select {
	case a.commands <- cmd:
		metrics.ActorQueueDepth.Set(float64(len(a.commands)))
		return nil
	default:
	}
	if a.enqueueTimeout <= 0 {
		metrics.ActorBackpressureCount.Inc()
		return types.ErrBackpressure
	}

	timer := time.NewTimer(a.enqueueTimeout)
	defer timer.Stop()
	select {
	case a.commands <- cmd:
		metrics.ActorQueueDepth.Set(float64(len(a.commands)))
		return nil
	case <-timer.C:
		metrics.ActorBackpressureCount.Inc()
		a.logger.WithFields(logrus.Fields{
			"component": "request_actor",
			"command":   cmd.kind.String(),
			"task_key":  cmd.key.String(),
		}).Warn("⚠️ Actor channel full, rejecting command")
		return types.ErrBackpressure
	case <-ctx.Done():
		return ctx.Err()
	case <-a.stopChan:
		return types.ErrActorStopped
	}
}

func (a *RequestActor) loop() {
	defer a.wg.Done()

	if err := a.recoverPendingTasks(); err != nil {
		a.logger.WithField("component", "request_actor").WithError(err).Warn("⚠️ Failed to recover pending tasks")
	}

	for {
		select {
		case <-a.stopChan:
			return
		case c := <-a.completions:
			a.handleCompletion(c)
		case cmd := <-a.commands:
			metrics.ActorQueueDepth.Set(float64(len(a.commands)))
			var res commandResult
			switch cmd.kind {
			case commandSubmit:
				res.task, res.err = a.handleSubmit(cmd.key, cmd.req)
			case commandCancel:
				res.task, res.err = a.handleCancel(cmd.key)
			}
			cmd.reply <- res
		}
	}
}

func (a *RequestActor) entry(key types.ProofTaskDescriptor) *logrus.Entry {
	return a.logger.WithFields(logrus.Fields{
		"component":    "request_actor",
		"task_key":     key.String(),
		"proof_type":   key.ProofType,
		"block_number": key.BlockNumber,
	})
}

func (a *RequestActor) handleSubmit(key types.ProofTaskDescriptor, req *types.ProofRequest) (*models.ProofTask, error) {
	ctx := context.Background()

	current, err := a.store.Get(ctx, key)
	if err != nil && !errors.Is(err, types.ErrTaskNotFound) {
		return nil, err
	}
	if current != nil && current.Status == types.TaskStatusSuccess {
		return current, nil
	}

	task, created, err := a.store.UpsertRegistered(ctx, key, req)
	if err != nil {
		return nil, err
	}
	if !created {
		return task, nil
	}
	a.entry(key).WithField("attempt", task.Attempt).Info("📝 Task registered")
	a.publish(task)

	started, err := a.store.UpdateAttempt(ctx, key, task.ID, types.WorkInProgress())
	if err != nil {
		a.entry(key).WithError(err).Error("❌ Failed to mark task in progress")
		// a registered record with no job would absorb every resubmit
		failed, ferr := a.store.UpdateAttempt(ctx, key, task.ID, types.Failed("failed to start: "+err.Error()))
		if ferr != nil {
			return nil, fmt.Errorf("failed to start task: %w", err)
		}
		a.publish(failed)
		return failed, nil
	}
	a.publish(started)
	a.dispatch(key, started.ID, req)
	return task, nil
}

func (a *RequestActor) handleCancel(key types.ProofTaskDescriptor) (*models.ProofTask, error) {
	ctx := context.Background()

	current, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return current, nil
	}

	cancelled, err := a.store.UpdateProgress(ctx, key, types.Cancelled())
	if err != nil {
		return nil, err
	}
	metrics.GuestProofCancelCount.WithLabelValues(string(key.ProofType)).Inc()
	a.entry(key).Info("🚫 Task cancelled")
	a.publish(cancelled)

	keyID := key.ID()
	if job, ok := a.inflight[keyID]; ok {
		job.cancel()
		delete(a.inflight, keyID)
	}

	a.jobs.Add(1)
	go func() {
		defer a.jobs.Done()
		cancelCtx, cancel := context.WithTimeout(context.Background(), a.cancelTimeout)
		defer cancel()
		if err := a.backend.Cancel(cancelCtx, key); err != nil {
			a.entry(key).WithError(err).Warn("⚠️ Backend cancel failed")
		}
	}()
	return cancelled, nil
}

func (a *RequestActor) handleCompletion(c completion) {
	keyID := c.key.ID()
	if job, ok := a.inflight[keyID]; ok && job.attemptID == c.attemptID {
		job.cancel()
		delete(a.inflight, keyID)
	}

	status := types.Success(c.proof)
	if c.err != nil {
		status = types.Failed(c.err.Error())
	}
	updated, err := a.store.UpdateAttempt(context.Background(), c.key, c.attemptID, status)
	if errors.Is(err, types.ErrStaleAttempt) {
		a.entry(c.key).WithField("attempt_id", c.attemptID).Info("Ignoring stale backend completion")
		return
	}
	if err != nil {
		a.entry(c.key).WithError(err).Error("❌ Failed to record backend result")
		return
	}
	if c.err != nil {
		a.entry(c.key).WithError(c.err).Warn("❌ Proof failed")
	} else {
		a.entry(c.key).Info("✅ Proof generated")
	}
	a.publish(updated)
}

// dispatch starts the backend job for one attempt. Must run on the loop.
func (a *RequestActor) dispatch(key types.ProofTaskDescriptor, attemptID string, req *types.ProofRequest) {
	ctx, cancel := context.WithCancel(a.jobCtx)
	a.inflight[key.ID()] = &inflightJob{attemptID: attemptID, cancel: cancel}

	a.jobs.Add(1)
	go func() {
		defer a.jobs.Done()
		defer cancel()
		proof, err := a.backend.Prove(ctx, key, req)
		select {
		case a.completions <- completion{key: key, attemptID: attemptID, proof: proof, err: err}:
		case <-a.stopChan:
		}
	}()
}

// recoverPendingTasks re-dispatches records a previous process left live
func (a *RequestActor) recoverPendingTasks() error {
	ctx := context.Background()
	pending, err := a.store.ListByStatus(ctx, types.TaskStatusRegistered, types.TaskStatusWorkInProgress)
	if err != nil {
		return err
	}
	for _, task := range pending {
		key := task.Descriptor()
		req, err := task.Request()
		if err != nil {
			a.entry(key).WithError(err).Warn("⚠️ Stored request unreadable, failing task")
			if failed, err := a.store.UpdateProgress(ctx, key, types.Failed("stored request unreadable: "+err.Error())); err == nil {
				a.publish(failed)
			}
			continue
		}
		if task.Status == types.TaskStatusRegistered {
			if task, err = a.store.UpdateProgress(ctx, key, types.WorkInProgress()); err != nil {
				a.entry(key).WithError(err).Warn("⚠️ Failed to restart task")
				continue
			}
			a.publish(task)
		}
		a.entry(key).WithField("attempt", task.Attempt).Info("🔄 Recovered pending task")
		a.dispatch(key, task.ID, req)
	}
	if len(pending) > 0 {
		a.logger.WithFields(logrus.Fields{"component": "request_actor", "count": len(pending)}).Info("✅ Pending tasks recovered")
	}
	return nil
}

func (a *RequestActor) publish(task *models.ProofTask) {
	status := task.CurrentStatus()
	metrics.TaskTransitions.WithLabelValues(string(status.Code)).Inc()
	a.publisher.PublishTaskEvent(events.TaskEvent{
		TaskKey:    task.TaskKey,
		Descriptor: task.Descriptor(),
		AttemptID:  task.ID,
		Attempt:    task.Attempt,
		Status:     status,
		Timestamp:  task.UpdatedAt,
	})
}
