// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 训练指标
	stepsTotal       *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	epochsTotal      *prometheus.CounterVec
	cost             *prometheus.GaugeVec
	accuracy         *prometheus.GaugeVec
	perplexity       *prometheus.GaugeVec
	throughput       *prometheus.GaugeVec
	learningRate     prometheus.Gauge
	gradNorm         prometheus.Histogram
	stateTransitions *prometheus.CounterVec

	// 检查点指标
	checkpointsTotal   *prometheus.CounterVec
	checkpointDuration prometheus.Histogram

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 训练指标
	c.stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of model steps",
		},
		[]string{"mode"}, // mode: train, eval
	)

	c.stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Model step duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"mode"},
	)

	c.epochsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epochs_total",
			Help:      "Total number of completed epochs",
		},
		[]string{"mode"},
	)

	c.cost = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cost",
			Help:      "Cross-entropy cost of the last step",
		},
		[]string{"mode"},
	)

	c.accuracy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accuracy",
			Help:      "Batch accuracy of the last step",
		},
		[]string{"mode"},
	)

	c.perplexity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "perplexity",
			Help:      "Running perplexity of the current epoch",
		},
		[]string{"mode"},
	)

	c.throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "videos_per_second",
			Help:      "Videos processed per second in the current epoch",
		},
		[]string{"mode"},
	)

	c.learningRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "learning_rate",
			Help:      "Current learning rate",
		},
	)

	c.gradNorm = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grad_norm",
			Help:      "Global gradient norm before clipping",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	c.stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of training state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	// 检查点指标
	c.checkpointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Total number of checkpoint saves",
		},
		[]string{"status"},
	)

	c.checkpointDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_duration_seconds",
			Help:      "Checkpoint save duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🏋️ 训练指标记录
// =============================================================================

// RecordStep 记录一步的耗时、代价与准确率
func (c *Collector) RecordStep(mode string, duration time.Duration, cost, accuracy float64) {
	c.stepsTotal.WithLabelValues(mode).Inc()
	c.stepDuration.WithLabelValues(mode).Observe(duration.Seconds())
	c.cost.WithLabelValues(mode).Set(cost)
	c.accuracy.WithLabelValues(mode).Set(accuracy)
}

// RecordProgress 记录当前轮的困惑度与吞吐
func (c *Collector) RecordProgress(mode string, perplexity, videosPerSecond float64) {
	c.perplexity.WithLabelValues(mode).Set(perplexity)
	c.throughput.WithLabelValues(mode).Set(videosPerSecond)
}

// RecordEpoch 记录一轮结束
func (c *Collector) RecordEpoch(mode string, perplexity float64) {
	c.epochsTotal.WithLabelValues(mode).Inc()
	c.perplexity.WithLabelValues(mode).Set(perplexity)
}

// SetLearningRate 记录学习率
func (c *Collector) SetLearningRate(lr float64) {
	c.learningRate.Set(lr)
}

// RecordGradNorm 记录裁剪前的全局梯度范数
func (c *Collector) RecordGradNorm(norm float64) {
	c.gradNorm.Observe(norm)
}

// RecordStateTransition 记录训练状态转换
func (c *Collector) RecordStateTransition(fromState, toState string) {
	c.stateTransitions.WithLabelValues(fromState, toState).Inc()
}

// =============================================================================
// 💾 检查点指标记录
// =============================================================================

// RecordCheckpoint 记录一次检查点保存
func (c *Collector) RecordCheckpoint(status string, duration time.Duration) {
	c.checkpointsTotal.WithLabelValues(status).Inc()
	c.checkpointDuration.Observe(duration.Seconds())
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
