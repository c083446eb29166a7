package storage

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/ledamatch/internal/telemetry"
)

// RegisterPoolMetrics registers an async gauge for in-use and idle
// connections in db's pool against the global OTEL meter provider. Safe to
// call once the meter provider is installed (after telemetry.Init); a
// no-op provider before that just drops the registration's callback calls.
func (db *DB) RegisterPoolMetrics() error {
	meter := telemetry.Meter("ledamatch/storage")

	acquired, err := meter.Int64ObservableGauge("db.pool.acquired_conns",
		metric.WithDescription("Connections currently acquired from the pool"))
	if err != nil {
		return err
	}
	idle, err := meter.Int64ObservableGauge("db.pool.idle_conns",
		metric.WithDescription("Idle connections held by the pool"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stat := db.pool.Stat()
		o.ObserveInt64(acquired, int64(stat.AcquiredConns()))
		o.ObserveInt64(idle, int64(stat.IdleConns()))
		return nil
	}, acquired, idle)
	return err
}
