package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API metrics
	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quizforge_api_request_duration_seconds",
			Help:    "Generation backend request duration in seconds by model",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~200s
		},
		[]string{"model", "status"},
	)

	rateLimiterWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quizforge_rate_limiter_wait_duration_seconds",
			Help:    "Rate limiter wait duration in seconds by model",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"model"},
	)

	apiTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizforge_api_tokens_total",
			Help: "Tokens consumed by model and kind",
		},
		[]string{"model", "kind"}, // "prompt", "completion"
	)

	// Task metrics
	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quizforge_task_duration_seconds",
			Help:    "Task duration including fallback attempts",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~500s
		},
		[]string{"category", "outcome"},
	)

	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizforge_tasks_total",
			Help: "Resolved tasks by outcome (success or the error kind)",
		},
		[]string{"category", "outcome"},
	)

	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizforge_items_total",
			Help: "Candidate items by outcome",
		},
		[]string{"category", "outcome"}, // "saved", "duplicate", "invalid"
	)

	activeTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quizforge_active_tasks",
			Help: "Tasks currently running by category",
		},
		[]string{"category"},
	)

	// Session metrics
	sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizforge_sessions_total",
			Help: "Finished sessions by final status",
		},
		[]string{"status"},
	)

	sessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quizforge_sessions_evicted_total",
			Help: "Sessions removed by the retention sweep",
		},
	)
)

// Collector provides convenience methods for recording metrics.
// A nil *Collector records nothing.
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// RecordAPIRequest records a backend request duration
func (c *Collector) RecordAPIRequest(model string, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	apiRequestDuration.WithLabelValues(model, status(success)).Observe(duration.Seconds())
}

// RecordRateLimiterWait records rate limiter wait time
func (c *Collector) RecordRateLimiterWait(model string, duration time.Duration) {
	if c == nil {
		return
	}
	rateLimiterWaitDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordTokens counts the tokens reported by one completion
func (c *Collector) RecordTokens(model string, prompt, completion int) {
	if c == nil {
		return
	}
	if prompt > 0 {
		apiTokensTotal.WithLabelValues(model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		apiTokensTotal.WithLabelValues(model, "completion").Add(float64(completion))
	}
}

// RecordTask records one resolved task
func (c *Collector) RecordTask(category, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	tasksTotal.WithLabelValues(category, outcome).Inc()
	taskDuration.WithLabelValues(category, outcome).Observe(duration.Seconds())
}

// AddItems counts candidate items with the given outcome
func (c *Collector) AddItems(category, outcome string, n int) {
	if c == nil || n <= 0 {
		return
	}
	itemsTotal.WithLabelValues(category, outcome).Add(float64(n))
}

// TaskStarted increments the active task gauge
func (c *Collector) TaskStarted(category string) {
	if c == nil {
		return
	}
	activeTasks.WithLabelValues(category).Inc()
}

// TaskFinished decrements the active task gauge
func (c *Collector) TaskFinished(category string) {
	if c == nil {
		return
	}
	activeTasks.WithLabelValues(category).Dec()
}

// RecordSession counts a finished session
func (c *Collector) RecordSession(finalStatus string) {
	if c == nil {
		return
	}
	sessionsTotal.WithLabelValues(finalStatus).Inc()
}

// RecordEvictions counts sessions removed by the sweeper
func (c *Collector) RecordEvictions(n int) {
	if c == nil || n <= 0 {
		return
	}
	sessionsEvicted.Add(float64(n))
	c.logger.Debug("Recorded session evictions", "count", n)
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
