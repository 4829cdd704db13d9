package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Host request metrics
	// ============================================
	HostRequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "host_request_count",
			Help: "Total number of proof requests sent to this host",
		},
		[]string{"endpoint"},
	)

	HostErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "host_error_count",
			Help: "Total number of requests failed outside of guest execution",
		},
		[]string{"endpoint", "error_type"},
	)

	// ============================================
	// Guest (backend) metrics
	// ============================================
	GuestProofRequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guest_proof_request_count",
			Help: "Total number of proof requests dispatched to a guest",
		},
		[]string{"proof_type"},
	)

	GuestProofSuccessCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guest_proof_success_count",
			Help: "Total number of proofs successfully generated by a guest",
		},
		[]string{"proof_type"},
	)

	GuestProofErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guest_proof_error_count",
			Help: "Total number of failed proofs by a guest",
		},
		[]string{"proof_type"},
	)

	GuestProofCancelCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guest_proof_cancel_count",
			Help: "Total number of proof tasks cancelled",
		},
		[]string{"proof_type"},
	)

	GuestProofTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guest_proof_time_histogram",
			Help:    "Time taken for proof generation by a guest in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
		[]string{"proof_type"},
	)

	ConcurrentRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concurrent_requests",
		Help: "Number of proof jobs currently running on backends",
	})

	// ============================================
	// Orchestration metrics
	// ============================================
	ActorQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "request_actor_queue_depth",
		Help: "Number of commands waiting in the request actor channel",
	})

	ActorBackpressureCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "request_actor_backpressure_total",
		Help: "Number of commands rejected because the actor channel was full",
	})

	TaskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_status_transitions_total",
			Help: "Number of task status transitions applied by the request actor",
		},
		[]string{"status"},
	)

	SystemPaused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_paused",
		Help: "Admission gate state (1=paused, 0=accepting)",
	})

	LiveTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "live_tasks",
			Help: "Current task records not yet terminal, by status",
		},
		[]string{"status"},
	)

	StaleTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stale_tasks",
		Help: "Live task records not updated within the stale threshold",
	})

	// ============================================
	// NATS 连接指标
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of task events published to NATS",
		},
		[]string{"status"},
	)

	NATSMessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_failed_total",
			Help: "Total number of NATS publish or handling failures",
		},
		[]string{"error_type"},
	)
)
