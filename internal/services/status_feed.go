package services

import (
	"encoding/json"
	"sync"

	"proof-host/internal/events"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FeedClient is one subscriber of the live status feed
type FeedClient struct {
	ID   string
	Send chan []byte

	mu      sync.RWMutex
	taskKey map[string]bool // empty = every task
}

// Watch restricts the client to the given task keys; no keys means all
func (c *FeedClient) Watch(taskKeys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taskKey = make(map[string]bool, len(taskKeys))
	for _, key := range taskKeys {
		c.taskKey[key] = true
	}
}

func (c *FeedClient) wants(taskKey string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.taskKey) == 0 || c.taskKey[taskKey]
}

// StatusFeed pushes task events to websocket clients
type StatusFeed struct {
	mu      sync.RWMutex
	clients map[string]*FeedClient
	logger  *logrus.Logger
}

func NewStatusFeed(logger *logrus.Logger) *StatusFeed {
	return &StatusFeed{
		clients: make(map[string]*FeedClient),
		logger:  logger,
	}
}

// Register adds a client with a fresh id
func (f *StatusFeed) Register() *FeedClient {
	client := &FeedClient{
		ID:   uuid.New().String(),
		Send: make(chan []byte, 256),
	}
	f.mu.Lock()
	f.clients[client.ID] = client
	f.mu.Unlock()
	return client
}

// Unregister removes a client and closes its send channel
func (f *StatusFeed) Unregister(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.clients[clientID]; ok {
		delete(f.clients, clientID)
		close(client.Send)
	}
}

// ClientCount returns the number of connected clients
func (f *StatusFeed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// PublishTaskEvent implements events.Publisher. Slow clients miss events
// instead of blocking the actor.
func (f *StatusFeed) PublishTaskEvent(event events.TaskEvent) {
	data, err := json.Marshal(struct {
		Type string `json:"type"`
		events.TaskEvent
	}{Type: "task_status", TaskEvent: event})
	if err != nil {
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, client := range f.clients {
		if !client.wants(event.TaskKey) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			f.logger.WithFields(logrus.Fields{
				"component": "status_feed",
				"client_id": client.ID,
			}).Warn("⚠️ Feed client too slow, dropping event")
		}
	}
}
