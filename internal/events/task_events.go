// Package events fans task status changes out to interested sinks
// (NATS subjects, the websocket feed) and carries operator control messages.
package events

import (
	"sync"
	"time"

	"proof-host/internal/types"
)

// TaskEvent is emitted whenever the request actor moves a task attempt
type TaskEvent struct {
	TaskKey    string                    `json:"task_key"`
	Descriptor types.ProofTaskDescriptor `json:"descriptor"`
	AttemptID  string                    `json:"attempt_id"`
	Attempt    int                       `json:"attempt"`
	Status     types.Status              `json:"status"`
	Timestamp  time.Time                 `json:"timestamp"`
}

// Publisher receives task events. Implementations must not block the caller
// for long; the request actor publishes from its loop.
type Publisher interface {
	PublishTaskEvent(event TaskEvent)
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) PublishTaskEvent(TaskEvent) {}

// MultiPublisher forwards events to every registered publisher in order
type MultiPublisher struct {
	mu    sync.RWMutex
	sinks []Publisher
}

func NewMultiPublisher(sinks ...Publisher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, sink := range sinks {
		m.Add(sink)
	}
	return m
}

// Add registers a sink; nil is ignored
func (m *MultiPublisher) Add(sink Publisher) {
	if sink == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

func (m *MultiPublisher) PublishTaskEvent(event TaskEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sink := range m.sinks {
		sink.PublishTaskEvent(event)
	}
}
