// Package observability provides logging, tracing and HTTP metrics for
// accessd.
//
// Logging is structured via zap behind the Logger interface; libraries
// default to NopLogger and receive a real logger through options.
// Tracing uses OpenTelemetry with an optional OTLP gRPC exporter.
// Metrics owns the Prometheus registry behind /metrics; engine packages
// register their collectors on it.
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("access decision",
//	    observability.String("resource", "documents"),
//	    observability.Bool("allowed", true),
//	)
package observability
