package models

import (
	"strings"
	"testing"
	"time"

	"proof-host/internal/types"
)

func TestCurrentStatusDecodesProof(t *testing.T) {
	task := &ProofTask{}
	if err := task.ApplyStatus(types.Success(&types.ProofArtifact{Proof: "0xbeef"}), time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	status := task.CurrentStatus()
	if status.Code != types.TaskStatusSuccess || status.Proof == nil || status.Proof.Proof != "0xbeef" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestCurrentStatusCorruptProof(t *testing.T) {
	task := &ProofTask{Status: types.TaskStatusSuccess, ProofData: `{"proof":`}
	status := task.CurrentStatus()
	if status.Code != types.TaskStatusFailed {
		t.Fatalf("corrupt proof reported as %s", status.Code)
	}
	if !strings.Contains(status.Error, "stored proof unreadable") {
		t.Fatalf("error message %q", status.Error)
	}
}
