package database

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PoolStats is a point-in-time snapshot of connection health, exposed
// through the daemon's health endpoint.
type PoolStats struct {
	TotalConns      int32         `json:"total_conns"`
	AcquiredConns   int32         `json:"acquired_conns"`
	IdleConns       int32         `json:"idle_conns"`
	MaxConns        int32         `json:"max_conns"`
	AcquireCount    int64         `json:"acquire_count"`
	AcquireDuration time.Duration `json:"acquire_duration"`
	PingLatency     time.Duration `json:"ping_latency"`
	Healthy         bool          `json:"healthy"`
}

// Stats pings the database and snapshots pool counters.
func (p *ConnectionPool) Stats(ctx context.Context) PoolStats {
	stat := p.pool.Stat()
	stats := PoolStats{
		TotalConns:      stat.TotalConns(),
		AcquiredConns:   stat.AcquiredConns(),
		IdleConns:       stat.IdleConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := p.pool.Ping(pingCtx)
	stats.PingLatency = time.Since(start)
	stats.Healthy = err == nil

	if err != nil {
		p.logger.Warn("pool stats ping failed", zap.Error(err))
	}

	return stats
}
