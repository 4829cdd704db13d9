// Task Monitor
// Periodically samples live task records into gauges and flags stale ones
package services

import (
	"context"
	"sync"
	"time"

	"proof-host/internal/metrics"
	"proof-host/internal/repository"
	"proof-host/internal/types"

	"github.com/sirupsen/logrus"
)

// TaskMonitor samples the store on an interval
type TaskMonitor struct {
	store      repository.TaskRepository
	logger     *logrus.Logger
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// TaskSnapshot is the result of one sample
type TaskSnapshot struct {
	Live  map[types.TaskStatus]int
	Stale []string // task keys
}

// NewTaskMonitor creates a new TaskMonitor instance
func NewTaskMonitor(store repository.TaskRepository, interval, staleAfter time.Duration, logger *logrus.Logger) *TaskMonitor {
	return &TaskMonitor{
		store:      store,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
		stopChan:   make(chan struct{}),
	}
}

// Start begins sampling. A non-positive interval leaves the monitor idle.
func (m *TaskMonitor) Start() {
	if m.interval <= 0 {
		m.logger.WithField("component", "task_monitor").Info("Task monitor disabled")
		return
	}
	m.wg.Add(1)
	go m.run()
	m.logger.WithFields(logrus.Fields{
		"component":   "task_monitor",
		"interval":    m.interval.String(),
		"stale_after": m.staleAfter.String(),
	}).Info("🚀 Task monitor started")
}

// Stop gracefully stops sampling
func (m *TaskMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()
}

func (m *TaskMonitor) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.interval)
			if _, err := m.Sample(ctx); err != nil {
				m.logger.WithField("component", "task_monitor").WithError(err).Warn("❌ Task sample failed")
			}
			cancel()
		case <-m.stopChan:
			return
		}
	}
}

// Sample reads live records once, updates the gauges and returns the counts
func (m *TaskMonitor) Sample(ctx context.Context) (TaskSnapshot, error) {
	live := []types.TaskStatus{types.TaskStatusRegistered, types.TaskStatusWorkInProgress}
	tasks, err := m.store.ListByStatus(ctx, live...)
	if err != nil {
		return TaskSnapshot{}, err
	}

	snapshot := TaskSnapshot{Live: make(map[types.TaskStatus]int, len(live))}
	for _, status := range live {
		snapshot.Live[status] = 0
	}
	cutoff := m.now().Add(-m.staleAfter)
	for _, task := range tasks {
		snapshot.Live[task.Status]++
		if m.staleAfter > 0 && task.UpdatedAt.Before(cutoff) {
			snapshot.Stale = append(snapshot.Stale, task.TaskKey)
		}
	}

	for status, count := range snapshot.Live {
		metrics.LiveTasks.WithLabelValues(string(status)).Set(float64(count))
	}
	metrics.StaleTasks.Set(float64(len(snapshot.Stale)))
	if len(snapshot.Stale) > 0 {
		m.logger.WithFields(logrus.Fields{
			"component": "task_monitor",
			"stale":     len(snapshot.Stale),
			"first":     snapshot.Stale[0],
		}).Warn("⚠️ Live tasks not updated within threshold")
	}
	return snapshot, nil
}
