package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	TokensUsed          metric.Int64Counter
	StageDuration       metric.Float64Histogram
	CacheLookups        metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
	TasksCompleted      metric.Int64Counter
	DatabaseOperations  metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("documind")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"llm.tokens.used",
		metric.WithDescription("Total LLM tokens used"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram(
		"pipeline.stage.duration",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter(
		"cache.lookups",
		metric.WithDescription("LLM result cache lookups"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	tasksCompleted, err := meter.Int64Counter(
		"tasks.completed",
		metric.WithDescription("Analysis tasks reaching a terminal status"),
	)
	if err != nil {
		return nil, err
	}

	databaseOperations, err := meter.Int64Counter(
		"database.operations.total",
		metric.WithDescription("Total database operations"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		TokensUsed:          tokensUsed,
		StageDuration:       stageDuration,
		CacheLookups:        cacheLookups,
		CircuitBreakerState: circuitBreakerState,
		TasksCompleted:      tasksCompleted,
		DatabaseOperations:  databaseOperations,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordTokensUsed records provider token usage
func (m *Metrics) RecordTokensUsed(stage, model string, input, output int) {
	if m == nil {
		return
	}
	for direction, n := range map[string]int{"input": input, "output": output} {
		m.TokensUsed.Add(context.Background(), int64(n), metric.WithAttributes(
			attribute.String("llm.model", model),
			attribute.String("pipeline.stage", stage),
			attribute.String("direction", direction),
		))
	}
}

// RecordStageDuration records one stage execution
func (m *Metrics) RecordStageDuration(stage, status string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.Record(context.Background(), seconds, metric.WithAttributes(
		attribute.String("pipeline.stage", stage),
		attribute.String("stage.status", status),
	))
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(stage string, hit bool) {
	if m == nil {
		return
	}
	m.CacheLookups.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("pipeline.stage", stage),
		attribute.Bool("cache.hit", hit),
	))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordTaskCompleted records a task reaching a terminal status
func (m *Metrics) RecordTaskCompleted(status string) {
	if m == nil {
		return
	}
	m.TasksCompleted.Add(context.Background(), 1, metric.WithAttributes(attribute.String("task.status", status)))
}

// RecordDatabaseOperation records database operation metrics
func (m *Metrics) RecordDatabaseOperation(operation, collection string, success bool) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("db.operation", operation),
		attribute.String("db.collection", collection),
		attribute.Bool("db.success", success),
	}

	m.DatabaseOperations.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
