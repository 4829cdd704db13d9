package models

import (
	"encoding/json"
	"time"

	"proof-host/internal/types"

	"github.com/ethereum/go-ethereum/common"
)

// ProofTask is one attempt at proving a task key. The row with the highest
// attempt for a key is the current record.
type ProofTask struct {
	ID      string `json:"id" gorm:"primaryKey"`                                      // UUID of this attempt
	TaskKey string `json:"task_key" gorm:"not null;uniqueIndex:idx_task_key_attempt"` // ProofTaskDescriptor.ID()
	Attempt int    `json:"attempt" gorm:"not null;uniqueIndex:idx_task_key_attempt"`

	// descriptor columns
	ChainID     uint64 `json:"chain_id" gorm:"not null;index"`
	BlockNumber uint64 `json:"block_number" gorm:"not null;index"`
	BlockHash   string `json:"block_hash" gorm:"type:varchar(66);not null"`
	ProofType   string `json:"proof_type" gorm:"type:varchar(16);not null;index"`
	Prover      string `json:"prover" gorm:"type:varchar(66);not null"`
	ImageID     string `json:"image_id" gorm:"type:varchar(130)"`

	Status types.TaskStatus `json:"status" gorm:"type:varchar(32);not null;default:registered;index"`

	// request payload (JSON), kept so live tasks can be re-dispatched after a restart
	RequestData string `json:"request_data" gorm:"type:text"`
	// proof payload (JSON), set on success
	ProofData string `json:"proof_data" gorm:"type:text"`
	LastError string `json:"last_error" gorm:"type:text"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// TableName 指定表名
func (ProofTask) TableName() string {
	return "proof_tasks"
}

// Descriptor rebuilds the task key from the descriptor columns
func (t *ProofTask) Descriptor() types.ProofTaskDescriptor {
	return types.ProofTaskDescriptor{
		ChainID:     t.ChainID,
		BlockNumber: t.BlockNumber,
		BlockHash:   common.HexToHash(t.BlockHash),
		ProofType:   types.ProofType(t.ProofType),
		Prover:      t.Prover,
		ImageID:     t.ImageID,
	}
}

// CurrentStatus converts the row into the core status value
func (t *ProofTask) CurrentStatus() types.Status {
	switch t.Status {
	case types.TaskStatusSuccess:
		var proof types.ProofArtifact
		if t.ProofData != "" {
			if err := json.Unmarshal([]byte(t.ProofData), &proof); err != nil {
				// never report a corrupt row as an empty proof
				return types.Failed("stored proof unreadable: " + err.Error())
			}
		}
		return types.Success(&proof)
	case types.TaskStatusFailed:
		return types.Failed(t.LastError)
	}
	return types.Status{Code: t.Status}
}

// ApplyStatus writes a status transition onto the row
func (t *ProofTask) ApplyStatus(status types.Status, now time.Time) error {
	t.Status = status.Code
	t.UpdatedAt = now
	switch status.Code {
	case types.TaskStatusWorkInProgress:
		t.StartedAt = &now
	case types.TaskStatusSuccess:
		data, err := json.Marshal(status.Proof)
		if err != nil {
			return err
		}
		t.ProofData = string(data)
		t.CompletedAt = &now
	case types.TaskStatusFailed:
		t.LastError = status.Error
		t.CompletedAt = &now
	case types.TaskStatusCancelled:
		t.CompletedAt = &now
	}
	return nil
}

// Request decodes the stored request payload
func (t *ProofTask) Request() (*types.ProofRequest, error) {
	var req types.ProofRequest
	if err := json.Unmarshal([]byte(t.RequestData), &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// NewProofTask builds a fresh registered attempt for key
func NewProofTask(id string, key types.ProofTaskDescriptor, attempt int, req *types.ProofRequest, now time.Time) (*ProofTask, error) {
	var requestData string
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		requestData = string(data)
	}
	return &ProofTask{
		ID:          id,
		TaskKey:     key.ID(),
		Attempt:     attempt,
		ChainID:     key.ChainID,
		BlockNumber: key.BlockNumber,
		BlockHash:   key.BlockHash.Hex(),
		ProofType:   string(key.ProofType),
		Prover:      key.Prover,
		ImageID:     key.ImageID,
		Status:      types.TaskStatusRegistered,
		RequestData: requestData,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
