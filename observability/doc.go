// Package observability wires OpenTelemetry tracing and metrics for cmdkit.
//
// Init installs OTLP/HTTP exporters as the global providers when telemetry is
// enabled and returns a shutdown function to flush them on exit:
//
//	shutdown, err := observability.Init(ctx, cfg.Telemetry)
//	defer shutdown(context.Background())
//
// ProcessMetrics holds the instruments recorded for every command attempt:
//
//	m, err := observability.NewProcessMetrics(observability.Meter(observability.InstrumentationName))
//	m.RecordAttempt(ctx, "rsync", 24, 3*time.Second)
package observability
