package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"proof-host/internal/types"

	"github.com/sirupsen/logrus"
)

// RemoteProver drives a guest prover service over HTTP/JSON
type RemoteProver struct {
	BaseURL   string
	ProofType types.ProofType
	Client    *http.Client
	logger    *logrus.Logger
}

// NewRemoteProver creates a remote prover client. A zero timeout defaults to
// ten minutes since proving is slow.
func NewRemoteProver(proofType types.ProofType, baseURL string, timeout time.Duration, logger *logrus.Logger) *RemoteProver {
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	logger.WithFields(logrus.Fields{
		"component":  "remote_prover",
		"proof_type": proofType,
		"base_url":   baseURL,
		"timeout":    timeout,
	}).Info("🔧 Created remote prover client")

	return &RemoteProver{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ProofType: proofType,
		Client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// RemoteProveRequest is the body sent to the guest service
type RemoteProveRequest struct {
	TaskID    string                    `json:"task_id"`
	Task      types.ProofTaskDescriptor `json:"task"`
	Request   *types.ProofRequest       `json:"request"`
	ProofType types.ProofType           `json:"proof_type"`
}

// RemoteProveResponse is the guest service reply
type RemoteProveResponse struct {
	Success      bool                 `json:"success"`
	Proof        *types.ProofArtifact `json:"proof"`
	ErrorMessage *string              `json:"error_message"`
}

// RemoteCancelRequest asks the guest service to drop a task
type RemoteCancelRequest struct {
	TaskID string                    `json:"task_id"`
	Task   types.ProofTaskDescriptor `json:"task"`
}

func (c *RemoteProver) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"component":  "remote_prover",
			"proof_type": c.ProofType,
			"path":       path,
			"status":     resp.StatusCode,
			"body":       string(respBody),
		}).Warn("❌ Prover service returned non-200")
		return nil, fmt.Errorf("prover service returned error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// Prove implements Prover
func (c *RemoteProver) Prove(ctx context.Context, key types.ProofTaskDescriptor, req *types.ProofRequest) (*types.ProofArtifact, error) {
	body, err := c.post(ctx, "/proof", RemoteProveRequest{
		TaskID:    key.ID(),
		Task:      key,
		Request:   req,
		ProofType: c.ProofType,
	})
	if err != nil {
		return nil, err
	}

	var result RemoteProveResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !result.Success {
		errorMsg := "Unknown error"
		if result.ErrorMessage != nil {
			errorMsg = *result.ErrorMessage
		}
		return nil, fmt.Errorf("prover service returned error: %s", errorMsg)
	}
	if result.Proof == nil {
		return nil, fmt.Errorf("prover service returned no proof")
	}
	return result.Proof, nil
}

// Cancel implements Canceller
func (c *RemoteProver) Cancel(ctx context.Context, key types.ProofTaskDescriptor) error {
	_, err := c.post(ctx, "/proof/cancel", RemoteCancelRequest{TaskID: key.ID(), Task: key})
	return err
}
