package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"proof-host/internal/config"
	"proof-host/internal/metrics"
	"proof-host/internal/types"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// PauseCommand is the payload of the admin pause subject
type PauseCommand struct {
	Paused bool `json:"paused"`
}

// PauseReply is sent back when the pause request carries a reply subject
type PauseReply struct {
	Paused bool   `json:"paused"`
	Error  string `json:"error,omitempty"`
}

// NATSPublisher publishes task events to <prefix>.task.<status> and listens for
// operator pause commands on <prefix>.admin.pause.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *logrus.Logger
	subs   []*nats.Subscription
}

// NewNATSPublisher connects to NATS with the configured reconnect policy
func NewNATSPublisher(cfg config.NATSConfig, logger *logrus.Logger) (*NATSPublisher, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 5 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}
	entry := logger.WithField("component", "nats")

	conn, err := nats.Connect(cfg.URL,
		nats.Name("proof-host"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			entry.WithError(err).Warn("NATS disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			entry.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connectionNATSfailed: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)
	entry.WithField("url", cfg.URL).Info("✅ NATS connected")

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "proofhost"
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}, nil
}

// TaskSubject is the subject a task event with the given status goes to
func TaskSubject(prefix string, status types.TaskStatus) string {
	return strings.Join([]string{prefix, "task", string(status)}, ".")
}

// PauseSubject is the operator control subject
func PauseSubject(prefix string) string {
	return prefix + ".admin.pause"
}

// PublishTaskEvent implements Publisher
func (p *NATSPublisher) PublishTaskEvent(event TaskEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		metrics.NATSMessagesFailed.WithLabelValues("marshal").Inc()
		return
	}
	subject := TaskSubject(p.prefix, event.Status.Code)
	if err := p.conn.Publish(subject, data); err != nil {
		metrics.NATSMessagesFailed.WithLabelValues("publish").Inc()
		p.logger.WithFields(logrus.Fields{
			"component": "nats",
			"subject":   subject,
			"task_key":  event.TaskKey,
		}).WithError(err).Warn("❌ Failed to publish task event")
		return
	}
	metrics.NATSMessagesPublished.WithLabelValues(string(event.Status.Code)).Inc()
}

// SubscribePause calls setPaused for every valid pause command received
func (p *NATSPublisher) SubscribePause(setPaused func(paused bool)) error {
	subject := PauseSubject(p.prefix)
	sub, err := p.conn.Subscribe(subject, func(msg *nats.Msg) {
		reply := PauseReply{}
		cmd, err := DecodePauseCommand(msg.Data)
		if err != nil {
			metrics.NATSMessagesFailed.WithLabelValues("pause_decode").Inc()
			reply.Error = err.Error()
		} else {
			setPaused(cmd.Paused)
			reply.Paused = cmd.Paused
		}
		if msg.Reply != "" {
			data, _ := json.Marshal(reply)
			_ = msg.Respond(data)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	p.subs = append(p.subs, sub)
	p.logger.WithFields(logrus.Fields{"component": "nats", "subject": subject}).Info("📡 Listening for pause commands")
	return nil
}

// DecodePauseCommand parses a pause payload
func DecodePauseCommand(data []byte) (PauseCommand, error) {
	var cmd PauseCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("invalid pause command: %w", err)
	}
	return cmd, nil
}

// Close drains subscriptions and closes the connection
func (p *NATSPublisher) Close() {
	for _, sub := range p.subs {
		_ = sub.Unsubscribe()
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
	metrics.NATSConnectionStatus.Set(0)
}
