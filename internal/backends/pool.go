// Package backends holds the proving backends and the pool that routes
// requests to them by proof type.
package backends

import (
	"context"
	"fmt"
	"sync"
	"time"

	"proof-host/internal/metrics"
	"proof-host/internal/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Prover computes proofs for one proof type. Implementations must be safe
// for concurrent use with distinct keys and should return promptly once ctx
// is cancelled.
type Prover interface {
	Prove(ctx context.Context, key types.ProofTaskDescriptor, req *types.ProofRequest) (*types.ProofArtifact, error)
}

// Canceller is implemented by provers that can be told to stop remote work
type Canceller interface {
	Cancel(ctx context.Context, key types.ProofTaskDescriptor) error
}

// Pool dispatches to the prover registered for a request's proof type
type Pool struct {
	mu      sync.RWMutex
	provers map[types.ProofType]Prover
	sem     *semaphore.Weighted // nil means unbounded
	logger  *logrus.Logger
}

// NewPool creates a pool. maxConcurrency <= 0 leaves concurrent jobs unbounded.
func NewPool(maxConcurrency int64, logger *logrus.Logger) *Pool {
	p := &Pool{
		provers: make(map[types.ProofType]Prover),
		logger:  logger,
	}
	if maxConcurrency > 0 {
		p.sem = semaphore.NewWeighted(maxConcurrency)
	}
	return p
}

// Register installs the prover for a proof type, replacing any previous one
func (p *Pool) Register(proofType types.ProofType, prover Prover) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.provers[proofType] = prover
}

func (p *Pool) prover(proofType types.ProofType) (Prover, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	prover, ok := p.provers[proofType]
	if !ok {
		return nil, fmt.Errorf("no prover registered for proof type %s", proofType)
	}
	return prover, nil
}

// Prove runs the request on its backend. Errors are returned as *types.BackendError.
func (p *Pool) Prove(ctx context.Context, key types.ProofTaskDescriptor, req *types.ProofRequest) (artifact *types.ProofArtifact, err error) {
	prover, err := p.prover(req.ProofType)
	if err != nil {
		return nil, &types.BackendError{ProofType: req.ProofType, Err: err}
	}

	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, &types.BackendError{ProofType: req.ProofType, Err: err}
		}
		defer p.sem.Release(1)
	}

	label := string(req.ProofType)
	metrics.GuestProofRequestCount.WithLabelValues(label).Inc()
	metrics.ConcurrentRequests.Inc()
	defer metrics.ConcurrentRequests.Dec()

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"component":  "pool",
				"task_key":   key.String(),
				"proof_type": label,
				"panic":      r,
			}).Error("Prover panicked")
			artifact = nil
			err = &types.BackendError{ProofType: req.ProofType, Err: fmt.Errorf("prover panic: %v", r)}
		}
	}()

	started := time.Now()
	artifact, err = prover.Prove(ctx, key, req)
	metrics.GuestProofTime.WithLabelValues(label).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.GuestProofErrorCount.WithLabelValues(label).Inc()
		return nil, &types.BackendError{ProofType: req.ProofType, Err: err}
	}
	metrics.GuestProofSuccessCount.WithLabelValues(label).Inc()
	return artifact, nil
}

// Cancel forwards a best-effort stop signal to the key's backend
func (p *Pool) Cancel(ctx context.Context, key types.ProofTaskDescriptor) error {
	prover, err := p.prover(key.ProofType)
	if err != nil {
		return err
	}
	canceller, ok := prover.(Canceller)
	if !ok {
		return nil
	}
	return canceller.Cancel(ctx, key)
}
