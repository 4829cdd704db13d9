package types

import "fmt"

// TaskStatus is the state of one task attempt
type TaskStatus string

const (
	TaskStatusRegistered     TaskStatus = "registered"       // accepted, not yet started
	TaskStatusWorkInProgress TaskStatus = "work_in_progress" // backend computing
	TaskStatusSuccess        TaskStatus = "success"
	TaskStatusFailed         TaskStatus = "failed"
	TaskStatusCancelled      TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transition is expected
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Status is the version-agnostic task status exposed by the core.
// Proof is set only for success, Error only for failed.
type Status struct {
	Code  TaskStatus     `json:"status"`
	Proof *ProofArtifact `json:"proof,omitempty"`
	Error string         `json:"error,omitempty"`
}

func Registered() Status     { return Status{Code: TaskStatusRegistered} }
func WorkInProgress() Status { return Status{Code: TaskStatusWorkInProgress} }
func Cancelled() Status      { return Status{Code: TaskStatusCancelled} }

// Success builds a success status carrying the proof
func Success(proof *ProofArtifact) Status {
	return Status{Code: TaskStatusSuccess, Proof: proof}
}

// Failed builds a failed status carrying the error message
func Failed(err string) Status {
	return Status{Code: TaskStatusFailed, Error: err}
}

func (s Status) IsTerminal() bool {
	return s.Code.IsTerminal()
}

func (s Status) String() string {
	switch s.Code {
	case TaskStatusFailed:
		return fmt.Sprintf("failed(%s)", s.Error)
	case TaskStatusSuccess:
		return "success"
	}
	return string(s.Code)
}
