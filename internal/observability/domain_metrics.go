package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	agentTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablepilot_agent_turns_total",
			Help: "Completed agent turns by terminal response type.",
		},
		[]string{"response_type"},
	)
	validationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablepilot_validation_failures_total",
			Help: "SQL validation failures by pipeline stage.",
		},
		[]string{"stage"},
	)
	generationRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablepilot_generation_retries_total",
			Help: "SQL generation retries triggered by validation failures.",
		},
	)
	generationLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablepilot_generation_latency_ms",
			Help:    "Model generation latency in milliseconds by provider.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
		[]string{"provider"},
	)
	queryExecutionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tablepilot_query_execution_latency_ms",
			Help:    "Target database execution latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000},
		},
	)
	writeExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablepilot_write_executions_total",
			Help: "Confirmed write executions by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		agentTurnsTotal,
		validationFailuresTotal,
		generationRetriesTotal,
		generationLatencyMs,
		queryExecutionLatencyMs,
		writeExecutionsTotal,
	)
}

func ObserveAgentTurn(responseType string) {
	agentTurnsTotal.WithLabelValues(responseType).Inc()
}

func ObserveValidationFailure(stage string) {
	validationFailuresTotal.WithLabelValues(stage).Inc()
}

func IncrementGenerationRetry() {
	generationRetriesTotal.Inc()
}

func ObserveGenerationLatency(provider string, elapsed time.Duration) {
	generationLatencyMs.WithLabelValues(provider).Observe(float64(elapsed.Milliseconds()))
}

func ObserveQueryExecution(elapsed time.Duration) {
	queryExecutionLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveWriteExecution(outcome string) {
	writeExecutionsTotal.WithLabelValues(outcome).Inc()
}
