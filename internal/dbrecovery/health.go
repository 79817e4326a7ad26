package dbrecovery

import (
	"time"

	"github.com/gigaelk/worrybox/internal/resilience/breaker"
)

// PoolMetrics mirrors sql.DBStats for the diagnostics API.
type PoolMetrics struct {
	Open        int   `json:"open"`
	InUse       int   `json:"in_use"`
	Idle        int   `json:"idle"`
	MaxOpen     int   `json:"max_open"`
	WaitCount   int64 `json:"wait_count"`
	WaitSeconds int64 `json:"wait_seconds"`
}

// HealthMetrics is a point-in-time snapshot of the recovery service.
type HealthMetrics struct {
	State               ConnState        `json:"state"`
	IsRecovering        bool             `json:"is_recovering"`
	Breaker             breaker.Snapshot `json:"breaker"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	TotalFailures       int64            `json:"total_failures"`
	TotalOperations     int64            `json:"total_operations"`
	LastSuccess         time.Time        `json:"last_success,omitempty"`
	QueueDepth          int              `json:"queue_depth"`
	Pool                PoolMetrics      `json:"pool"`
	AverageLatency      time.Duration    `json:"average_latency"`
	SlowOperations      int64            `json:"slow_operations"`
	ErrorRate           float64          `json:"error_rate"`
	ThroughputPerMin    float64          `json:"throughput_per_min"`
	RecentErrors        []errorEntry     `json:"recent_errors"`
}

// HealthMetrics synthesizes a snapshot from connection state, pool stats
// and the rolling latency window.
func (s *Service) HealthMetrics() HealthMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	hm := HealthMetrics{
		State:               s.state,
		IsRecovering:        s.isRecovering,
		Breaker:             s.brk.Snapshot(),
		ConsecutiveFailures: s.consecutive,
		TotalFailures:       s.totalFails,
		TotalOperations:     s.totalOps,
		LastSuccess:         s.lastSuccess,
		QueueDepth:          s.queue.depth(),
		SlowOperations:      s.slowOps,
		RecentErrors:        append([]errorEntry(nil), s.recentErrs...),
	}

	if s.db != nil {
		stats := s.db.Stats()
		hm.Pool = PoolMetrics{
			Open:        stats.OpenConnections,
			InUse:       stats.InUse,
			Idle:        stats.Idle,
			MaxOpen:     stats.MaxOpenConnections,
			WaitCount:   stats.WaitCount,
			WaitSeconds: int64(stats.WaitDuration.Seconds()),
		}
	}

	if len(s.latencies) > 0 {
		var total time.Duration
		for _, l := range s.latencies {
			total += l
		}
		hm.AverageLatency = total / time.Duration(len(s.latencies))
	}

	if s.totalOps > 0 {
		hm.ErrorRate = float64(s.totalFails) / float64(s.totalOps)
	}
	if uptime := time.Since(s.startedAt); uptime > 0 {
		hm.ThroughputPerMin = float64(s.totalOps) / uptime.Minutes()
	}

	return hm
}
