package diag

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 进程内指标（私有 Registry，不注册到全局默认）：
// - votefuse_op_total{comp,stage,result}
// - votefuse_error_total{comp,code}
// - votefuse_op_duration_ms{comp,stage}
// - votefuse_rows_total{outcome}
var (
	registry = prometheus.NewRegistry()

	opTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "votefuse",
		Name:      "op_total",
		Help:      "Pipeline operations by component, stage and result.",
	}, []string{"comp", "stage", "result"})

	errorTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "votefuse",
		Name:      "error_total",
		Help:      "Classified errors by component.",
	}, []string{"comp", "code"})

	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "votefuse",
		Name:      "op_duration_ms",
		Help:      "Stage duration in milliseconds.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"comp", "stage"})

	rowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "votefuse",
		Name:      "rows_total",
		Help:      "Ballot rows by outcome (emitted or a skip reason).",
	}, []string{"outcome"})
)

func init() {
	registry.MustRegister(opTotal, errorTotal, opDuration, rowsTotal)
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	errorTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// AddRows 按结局累加行数；n<=0 忽略。
func AddRows(outcome string, n int64) {
	if n <= 0 {
		return
	}
	rowsTotal.WithLabelValues(outcome).Add(float64(n))
}

// Registry 暴露私有 Registry（测试与导出使用）。
func Registry() *prometheus.Registry { return registry }

// WriteMetrics 以文本暴露格式写出全部指标（node-exporter textfile 约定，原子替换）。
func WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}
