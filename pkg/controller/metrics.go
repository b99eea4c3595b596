package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	modelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursemate",
			Name:      "model_calls_total",
			Help:      "Total model API calls",
		},
		[]string{"provider", "model", "status"},
	)

	modelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coursemate",
			Name:      "model_call_duration_seconds",
			Help:      "Duration of model API calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"provider", "model"},
	)

	modelTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursemate",
			Name:      "model_tokens_total",
			Help:      "Total model tokens consumed",
		},
		[]string{"provider", "model", "direction"}, // "input", "output"
	)

	toolExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursemate",
			Name:      "tool_executions_total",
			Help:      "Total tool executions requested by the model",
		},
		[]string{"tool", "status"},
	)

	toolRoundsPerQuery = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "coursemate",
			Name:      "tool_rounds_per_query",
			Help:      "Number of tool rounds executed per query",
			Buckets:   []float64{0, 1, 2, 3, 5},
		},
	)

	forcedSynthesesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursemate",
			Name:      "forced_syntheses_total",
			Help:      "Total final answers produced without tools",
		},
		[]string{"reason"}, // "max_rounds", "tool_error"
	)
)
