// Package observability 提供对话存储的 Prometheus 指标。
package observability

import (
	"net/http"

	"github.com/jiyuchen1/AiHistory/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 汇总服务使用的全部 Prometheus 指标。
type Metrics struct {
	registry      *prometheus.Registry
	Operations    *prometheus.CounterVec
	Records       prometheus.Gauge
	SnapshotBytes prometheus.Gauge
	Notifications *prometheus.CounterVec
}

// NewMetrics 在独立的 registry 上注册指标，便于在同一进程内多次创建。
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "对话存储操作次数，按操作与结果级别区分。",
		}, []string{"op", "level"}),
		Records: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_records",
			Help:      "当前持有的对话记录数。",
		}),
		SnapshotBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_bytes",
			Help:      "最近一次成功保存的快照字节数。",
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "推送给 WebSocket 客户端的提示数，按级别区分。",
		}, []string{"level"}),
	}
}

var _ service.Recorder = (*Metrics)(nil)

// RecordOperation 按操作和结果级别计数。
func (m *Metrics) RecordOperation(op string, level service.Level) {
	m.Operations.WithLabelValues(op, string(level)).Inc()
}

// RecordSnapshot 记录最近一次成功保存的记录数与快照大小。
func (m *Metrics) RecordSnapshot(records, bytes int) {
	m.Records.Set(float64(records))
	m.SnapshotBytes.Set(float64(bytes))
}

// RecordNotification 按级别统计推送给客户端的提示。
func (m *Metrics) RecordNotification(level service.Level) {
	m.Notifications.WithLabelValues(string(level)).Inc()
}

// Handler 返回暴露独立 registry 的 /metrics 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
