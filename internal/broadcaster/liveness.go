package broadcaster

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LivenessMonitor periodically closes connections whose last heartbeat is
// older than the timeout.
type LivenessMonitor struct {
	logger   *zap.Logger
	registry Registry
	metrics  *Metrics
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

func NewLivenessMonitor(
	logger *zap.Logger,
	registry Registry,
	metrics *Metrics,
	interval time.Duration,
	timeout time.Duration,
) *LivenessMonitor {
	return &LivenessMonitor{
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Sweep evicts every stale connection and returns how many were evicted.
// A connection replaced after the snapshot was taken is left untouched.
func (m *LivenessMonitor) Sweep() int {
	start := time.Now()
	now := m.now()
	evicted := 0

	for _, connection := range m.registry.Connections() {
		age := now.Sub(connection.LastHeartbeat())
		if age <= m.timeout {
			continue
		}

		if m.registry.Evict(connection, CloseHeartbeatTimeout) {
			m.logger.Info("closed stale connection",
				zap.String("userId", connection.UserId),
				zap.String("connectionId", connection.Id),
				zap.Duration("age", age))

			evicted++
		}
	}

	m.metrics.ObserveSweepDuration(time.Since(start).Seconds())

	return evicted
}

func (m *LivenessMonitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Sweep()
		}
	}
}
