package dto

import "proof-host/internal/types"

// ==================== API v3 ====================
// v3 accepts aggregation batches and answers with one entry per expanded
// sub-request. Fields are camelCase.

// V3ProofRequest is the body of the v3 proof endpoints
type V3ProofRequest = types.AggregationRequest

// V3Proof proof payload
type V3Proof struct {
	Proof    string `json:"proof,omitempty"`
	Input    string `json:"input,omitempty"`
	Quote    string `json:"quote,omitempty"`
	KzgProof string `json:"kzgProof,omitempty"`
	UUID     string `json:"uuid,omitempty"`
}

// V3ProofResponse is either a task status or a proof
type V3ProofResponse struct {
	Status       types.TaskStatus `json:"status,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	Proof        *V3Proof         `json:"proof,omitempty"`
}

// V3Status per-task envelope
type V3Status struct {
	Status      string           `json:"status"`
	TaskKey     string           `json:"taskKey,omitempty"`
	BlockNumber uint64           `json:"blockNumber,omitempty"`
	ProofType   types.ProofType  `json:"proofType,omitempty"`
	Data        *V3ProofResponse `json:"data,omitempty"`
	Error       string           `json:"error,omitempty"`
	Message     string           `json:"message,omitempty"`
}

// V3CancelStatus per-task cancel envelope
type V3CancelStatus struct {
	Status      string `json:"status"`
	TaskKey     string `json:"taskKey,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Error       string `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`
}

// V3BatchStatus wraps the per-task statuses of a batch
type V3BatchStatus struct {
	Status string     `json:"status"`
	Tasks  []V3Status `json:"tasks"`
}

// V3BatchCancelStatus wraps the per-task cancel results of a batch
type V3BatchCancelStatus struct {
	Status string           `json:"status"`
	Tasks  []V3CancelStatus `json:"tasks"`
}

// ErrorResponse batch-level error body
type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}
