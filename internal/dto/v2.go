package dto

import "proof-host/internal/types"

// ==================== API v2 ====================

// V2ProofRequest is the body of POST /v2/proof, /v2/proof/cancel and /v2/proof/status
type V2ProofRequest = types.ProofRequestOpt

// V2Proof proof payload, snake_case fields
type V2Proof struct {
	Proof    string `json:"proof,omitempty"`
	Input    string `json:"input,omitempty"`
	Quote    string `json:"quote,omitempty"`
	KzgProof string `json:"kzg_proof,omitempty"`
	UUID     string `json:"uuid,omitempty"`
}

// V2ProofResponse is either a task status or a proof
type V2ProofResponse struct {
	Status types.TaskStatus `json:"status,omitempty"` // "error" for failed tasks
	Error  string           `json:"error,omitempty"`
	Proof  *V2Proof         `json:"proof,omitempty"`
}

// V2Status response envelope
type V2Status struct {
	Status    string           `json:"status"` // ok | error
	ProofType types.ProofType  `json:"proof_type,omitempty"`
	Data      *V2ProofResponse `json:"data,omitempty"`
	Error     string           `json:"error,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// V2CancelStatus cancel response envelope
type V2CancelStatus struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// V2PauseRequest admin pause body
type V2PauseRequest struct {
	Paused bool `json:"paused"`
}
