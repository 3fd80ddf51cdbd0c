// Package metrics 网关的Prometheus指标
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 网关指标集合
type Metrics struct {
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	TokenRequests  *prometheus.CounterVec
	Recognitions   *prometheus.CounterVec
	AudioBytes     prometheus.Histogram
	StreamSessions prometheus.Gauge
	StreamEvents   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New 在给定的注册表上创建指标
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_wizard_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_wizard_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		TokenRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_wizard_token_requests_total",
			Help: "CreateToken calls by result",
		}, []string{"result"}),
		Recognitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_wizard_recognitions_total",
			Help: "One-shot recognition calls by result",
		}, []string{"result"}),
		AudioBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_wizard_recognition_audio_bytes",
			Help:    "Size of audio bodies sent to recognition",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 8),
		}),
		StreamSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voice_wizard_stream_sessions",
			Help: "Active streaming recognition sessions",
		}),
		StreamEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_wizard_stream_events_total",
			Help: "Messages forwarded to streaming clients by type",
		}, []string{"type"}),
		gatherer: reg,
	}
}

// RecordHTTPRequest 记录一次HTTP请求
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Result 将成功与否转换为标签值
func Result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
