package services

import (
	"context"

	"proof-host/internal/models"
	"proof-host/internal/repository"
	"proof-host/internal/types"

	"github.com/sirupsen/logrus"
)

// TaskOutcome is the per-sub-request result of a batch call. Task is set on
// success and Err otherwise; Key is zero when chain resolution failed.
type TaskOutcome struct {
	Request *types.ProofRequest
	Key     types.ProofTaskDescriptor
	Task    *models.ProofTask
	Err     error
}

// Status returns the task status, or the zero Status when Err is set
func (o TaskOutcome) Status() types.Status {
	if o.Task == nil {
		return types.Status{}
	}
	return o.Task.CurrentStatus()
}

// SubmitOutcome is the result of submitting one sub-request
type SubmitOutcome = TaskOutcome

// CancelOutcome is the result of cancelling one sub-request
type CancelOutcome = TaskOutcome

// ProofService is the entry point shared by every API surface
type ProofService struct {
	gate     *AdmissionGate
	splitter *AggregationSplitter
	actor    *RequestActor
	store    repository.TaskRepository
	logger   *logrus.Logger
}

func NewProofService(gate *AdmissionGate, splitter *AggregationSplitter, actor *RequestActor, store repository.TaskRepository, logger *logrus.Logger) *ProofService {
	return &ProofService{
		gate:     gate,
		splitter: splitter,
		actor:    actor,
		store:    store,
		logger:   logger,
	}
}

// Submit registers every sub-request of agg. Batch errors are
// ConfigurationError and ErrSystemPaused; everything else is reported per
// sub-request.
func (s *ProofService) Submit(ctx context.Context, agg types.AggregationRequest) ([]SubmitOutcome, error) {
	if err := s.gate.Check(); err != nil {
		return nil, err
	}
	subs, err := s.splitter.Split(ctx, agg)
	if err != nil {
		return nil, err
	}

	outcomes := make([]SubmitOutcome, len(subs))
	for i, sub := range subs {
		outcomes[i] = SubmitOutcome{Request: sub.Request, Key: sub.Key, Err: sub.Err}
		if sub.Err != nil {
			s.logger.WithFields(logrus.Fields{
				"component":    "proof_service",
				"network":      sub.Request.Network,
				"block_number": sub.Request.BlockNumber,
			}).WithError(sub.Err).Warn("⚠️ Sub-request not submitted")
			continue
		}
		outcomes[i].Task, outcomes[i].Err = s.actor.Submit(ctx, sub.Key, sub.Request)
	}
	return outcomes, nil
}

// Cancel cancels every sub-request of agg. Cancellation ignores the
// admission gate.
func (s *ProofService) Cancel(ctx context.Context, agg types.AggregationRequest) ([]CancelOutcome, error) {
	subs, err := s.splitter.Split(ctx, agg)
	if err != nil {
		return nil, err
	}

	outcomes := make([]CancelOutcome, len(subs))
	for i, sub := range subs {
		outcomes[i] = CancelOutcome{Request: sub.Request, Key: sub.Key, Err: sub.Err}
		if sub.Err != nil {
			continue
		}
		outcomes[i].Task, outcomes[i].Err = s.actor.Cancel(ctx, sub.Key)
	}
	return outcomes, nil
}

// Query reads the current record of every sub-request without creating any
func (s *ProofService) Query(ctx context.Context, agg types.AggregationRequest) ([]TaskOutcome, error) {
	subs, err := s.splitter.Split(ctx, agg)
	if err != nil {
		return nil, err
	}

	outcomes := make([]TaskOutcome, len(subs))
	for i, sub := range subs {
		outcomes[i] = TaskOutcome{Request: sub.Request, Key: sub.Key, Err: sub.Err}
		if sub.Err != nil {
			continue
		}
		outcomes[i].Task, outcomes[i].Err = s.store.Get(ctx, sub.Key)
	}
	return outcomes, nil
}

// Status returns the current status of key
func (s *ProofService) Status(ctx context.Context, key types.ProofTaskDescriptor) (types.Status, error) {
	task, err := s.store.Get(ctx, key)
	if err != nil {
		return types.Status{}, err
	}
	return task.CurrentStatus(), nil
}

// History returns every attempt recorded for key
func (s *ProofService) History(ctx context.Context, key types.ProofTaskDescriptor) ([]*models.ProofTask, error) {
	return s.store.History(ctx, key)
}

// Gate exposes the admission gate to operator surfaces
func (s *ProofService) Gate() *AdmissionGate {
	return s.gate
}
