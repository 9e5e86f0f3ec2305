// Package metrics implements ports.MetricsCollector with Prometheus
// collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector records task, judge, token, and per-call metrics.
// All methods are safe for concurrent use. It implements both
// ports.MetricsCollector and the llm middleware's CallMetrics interface,
// so one collector serves the run engine and the provider call chain.
type PrometheusCollector struct {
	tasksTotal   *prometheus.CounterVec
	taskLatency  *prometheus.HistogramVec
	judgeScores  *prometheus.HistogramVec
	tokensTotal  *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

// NewPrometheusCollector registers the collectors with reg. Pass
// prometheus.DefaultRegisterer outside tests.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		tasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptlab",
			Name:      "tasks_total",
			Help:      "Completed experiment tasks by provider, model, and cache disposition.",
		}, []string{"provider", "model", "cached"}),

		taskLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "promptlab",
			Name:      "task_latency_seconds",
			Help:      "Provider call latency per completed task.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"provider", "model"}),

		judgeScores: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "promptlab",
			Name:      "judge_scores",
			Help:      "Judge score distribution by judge model.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}, []string{"model"}),

		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptlab",
			Name:      "tokens_total",
			Help:      "Token usage for live provider calls by direction.",
		}, []string{"provider", "model", "direction"}),

		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "promptlab",
			Name:      "provider_call_duration_seconds",
			Help:      "Wall-clock duration of individual provider calls by mode and outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"provider", "model", "mode", "status"}),
	}
}

// RecordTask records one completed task.
func (c *PrometheusCollector) RecordTask(provider, model string, latencyMS int64, cached bool) {
	c.tasksTotal.WithLabelValues(provider, model, strconv.FormatBool(cached)).Inc()
	if !cached {
		c.taskLatency.WithLabelValues(provider, model).Observe(float64(latencyMS) / 1000)
	}
}

// RecordJudge records one judge evaluation outcome.
func (c *PrometheusCollector) RecordJudge(model string, score int) {
	c.judgeScores.WithLabelValues(model).Observe(float64(score))
}

// RecordTokens records token usage for a live provider call.
func (c *PrometheusCollector) RecordTokens(provider, model string, input, output int64) {
	c.tokensTotal.WithLabelValues(provider, model, "input").Add(float64(input))
	c.tokensTotal.WithLabelValues(provider, model, "output").Add(float64(output))
}

// RecordCall records one provider call made through the middleware chain.
// mode distinguishes free-text from structured completions.
func (c *PrometheusCollector) RecordCall(provider, model, mode string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.callDuration.WithLabelValues(provider, model, mode, status).Observe(duration.Seconds())
}
