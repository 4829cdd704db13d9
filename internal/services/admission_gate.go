package services

import (
	"sync/atomic"

	"proof-host/internal/metrics"
	"proof-host/internal/types"

	"github.com/sirupsen/logrus"
)

// AdmissionGate is the process-wide pause switch. While paused no new task
// is created; cancellation and status reads are unaffected.
type AdmissionGate struct {
	paused atomic.Bool
	logger *logrus.Logger
}

func NewAdmissionGate(paused bool, logger *logrus.Logger) *AdmissionGate {
	g := &AdmissionGate{logger: logger}
	g.SetPaused(paused)
	return g
}

func (g *AdmissionGate) IsPaused() bool {
	return g.paused.Load()
}

// SetPaused flips the gate and reports whether the state changed
func (g *AdmissionGate) SetPaused(paused bool) bool {
	changed := g.paused.Swap(paused) != paused
	if paused {
		metrics.SystemPaused.Set(1)
	} else {
		metrics.SystemPaused.Set(0)
	}
	if changed {
		g.logger.WithFields(logrus.Fields{"component": "admission_gate", "paused": paused}).Warn("⏸️ Admission gate changed")
	}
	return changed
}

// Check returns ErrSystemPaused while the gate is closed
func (g *AdmissionGate) Check() error {
	if g.IsPaused() {
		return types.ErrSystemPaused
	}
	return nil
}
