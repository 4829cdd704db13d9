package handlers

import (
	"fmt"

	"proof-host/internal/dto"
	"proof-host/internal/types"
)

const (
	envelopeOK    = "ok"
	envelopeError = "error"

	errTaskFailed   = "task_failed"
	errCancelFailed = "cancel_failed"

	// external status of a failed task
	statusError types.TaskStatus = "error"
)

// externalStatus is the version-neutral classification every schema renders
type externalStatus struct {
	lookupFailed bool
	message      string // lookup error or task failure
	code         types.TaskStatus
	proof        *types.ProofArtifact
}

func classify(status types.Status, err error) externalStatus {
	if err != nil {
		return externalStatus{lookupFailed: true, message: err.Error()}
	}
	switch status.Code {
	case types.TaskStatusFailed:
		return externalStatus{code: statusError, message: status.Error}
	case types.TaskStatusSuccess:
		proof := status.Proof
		if proof == nil {
			proof = &types.ProofArtifact{}
		}
		return externalStatus{code: types.TaskStatusSuccess, proof: proof}
	}
	return externalStatus{code: status.Code}
}

// classifyCancel reports whether a cancel result counts as done
func classifyCancel(status types.Status, err error) (ok bool, message string) {
	if err != nil {
		return false, err.Error()
	}
	if status.IsTerminal() {
		return true, ""
	}
	return false, fmt.Sprintf("cancellation response unexpected status %s", status)
}

// ToV2Status renders a status lookup for API v2
func ToV2Status(status types.Status, err error) dto.V2Status {
	ext := classify(status, err)
	if ext.lookupFailed {
		return dto.V2Status{Status: envelopeError, Error: errTaskFailed, Message: ext.message}
	}
	data := &dto.V2ProofResponse{}
	switch {
	case ext.proof != nil:
		data.Proof = &dto.V2Proof{
			Proof:    ext.proof.Proof,
			Input:    ext.proof.Input,
			Quote:    ext.proof.Quote,
			KzgProof: ext.proof.KzgProof,
			UUID:     ext.proof.UUID,
		}
	case ext.code == statusError:
		data.Status = statusError
		data.Error = ext.message
	default:
		data.Status = ext.code
	}
	return dto.V2Status{Status: envelopeOK, Data: data}
}

// ToV3Status renders a status lookup for API v3
func ToV3Status(status types.Status, err error) dto.V3Status {
	ext := classify(status, err)
	if ext.lookupFailed {
		return dto.V3Status{Status: envelopeError, Error: errTaskFailed, Message: ext.message}
	}
	data := &dto.V3ProofResponse{}
	switch {
	case ext.proof != nil:
		data.Proof = &dto.V3Proof{
			Proof:    ext.proof.Proof,
			Input:    ext.proof.Input,
			Quote:    ext.proof.Quote,
			KzgProof: ext.proof.KzgProof,
			UUID:     ext.proof.UUID,
		}
	case ext.code == statusError:
		data.Status = statusError
		data.ErrorMessage = ext.message
	default:
		data.Status = ext.code
	}
	return dto.V3Status{Status: envelopeOK, Data: data}
}

// ToV2CancelStatus renders a cancel result for API v2
func ToV2CancelStatus(status types.Status, err error) dto.V2CancelStatus {
	if ok, message := classifyCancel(status, err); !ok {
		return dto.V2CancelStatus{Status: envelopeError, Error: errCancelFailed, Message: message}
	}
	return dto.V2CancelStatus{Status: envelopeOK}
}

// ToV3CancelStatus renders a cancel result for API v3
func ToV3CancelStatus(status types.Status, err error) dto.V3CancelStatus {
	if ok, message := classifyCancel(status, err); !ok {
		return dto.V3CancelStatus{Status: envelopeError, Error: errCancelFailed, Message: message}
	}
	return dto.V3CancelStatus{Status: envelopeOK}
}
