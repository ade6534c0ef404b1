package internal

import (
	"context"
	"sync"
)

// telemetry.go
// Lightweight telemetry hook layer used by the query engine.
// This file exposes simple emitter functions the rest of the codebase can call.
// The implementation is intentionally minimal: callers may register a real OpenTelemetry
// emitter (or a test stub) via RegisterTelemetryEmitter. By default the emitter is a no-op,
// avoiding any hard dependency on an OTEL SDK.

type telemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl telemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {
		// noop by default
	}
)

// RegisterTelemetryEmitter registers a custom emitter function. Callers (e.g. service
// wiring) can provide an OpenTelemetry-backed emitter or a test meter.
func RegisterTelemetryEmitter(fn telemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

// EmitQueryLatency records a latency measure (milliseconds) per strategy.
// name: "columnar_query_latency_histogram" with label {"strategy": "<sequential|simd|parallel>"}
func EmitQueryLatency(ctx context.Context, strategy string, ms float64) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	labels := map[string]string{"strategy": strategy}
	fn(ctx, "columnar_query_latency_histogram", labels, ms)
}

// EmitRowCount records selected row counts per strategy.
// name: "columnar_query_row_count" with label {"strategy": "<sequential|simd|parallel>"}
func EmitRowCount(ctx context.Context, strategy string, rows int64) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	labels := map[string]string{"strategy": strategy}
	fn(ctx, "columnar_query_row_count", labels, rows)
}
