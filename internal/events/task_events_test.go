package events

import (
	"testing"

	"proof-host/internal/types"
)

type recordingPublisher struct {
	events []TaskEvent
}

func (r *recordingPublisher) PublishTaskEvent(event TaskEvent) {
	r.events = append(r.events, event)
}

func TestMultiPublisherFansOut(t *testing.T) {
	a, b := &recordingPublisher{}, &recordingPublisher{}
	multi := NewMultiPublisher(a, nil)
	multi.Add(b)
	multi.Add(NopPublisher{})

	multi.PublishTaskEvent(TaskEvent{TaskKey: "k", Status: types.Cancelled()})

	if len(a.events) != 1 || len(b.events) != 1 || b.events[0].TaskKey != "k" {
		t.Fatalf("event not delivered to every sink: a=%v b=%v", a.events, b.events)
	}
}

func TestSubjects(t *testing.T) {
	if got := TaskSubject("proofhost", types.TaskStatusWorkInProgress); got != "proofhost.task.work_in_progress" {
		t.Fatalf("unexpected task subject %q", got)
	}
	if got := PauseSubject("proofhost"); got != "proofhost.admin.pause" {
		t.Fatalf("unexpected pause subject %q", got)
	}
}

func TestDecodePauseCommand(t *testing.T) {
	cmd, err := DecodePauseCommand([]byte(`{"paused":true}`))
	if err != nil || !cmd.Paused {
		t.Fatalf("unexpected decode result %+v (%v)", cmd, err)
	}
	if _, err := DecodePauseCommand([]byte(`pause`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
