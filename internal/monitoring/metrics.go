package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 业务指标
	SubmissionsTotal  *prometheus.CounterVec
	MailSendDuration  *prometheus.HistogramVec
	UploadSize        prometheus.Histogram
	AttachmentsFailed prometheus.Counter
	UploadsRemoved    *prometheus.CounterVec

	// 错误指标
	PanicsTotal prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics 在 reg 上注册全部指标
//
// 参数:
//   - reg: 指标注册表，nil 时新建独立注册表（测试场景）
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "incorvix_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "incorvix_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "incorvix_submissions_total",
				Help: "Form submissions by form and outcome",
			},
			[]string{"form", "outcome"},
		),

		MailSendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "incorvix_mail_send_duration_seconds",
				Help:    "Outbound mail send duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"transport", "kind", "result"},
		),

		UploadSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "incorvix_upload_bytes",
				Help:    "Accepted CV upload size in bytes",
				Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
			},
		),

		AttachmentsFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "incorvix_attachment_failures_total",
				Help: "Applications sent without their CV because the attachment failed",
			},
		),

		UploadsRemoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "incorvix_upload_cleanup_total",
				Help: "Temporary upload cleanups by result",
			},
			[]string{"result"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "incorvix_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		gatherer: reg,
	}
}

// NewDefaultMetrics 使用带 Go 运行时与进程采集器的注册表
func NewDefaultMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetrics(reg)
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSubmission 记录表单提交结果
func (m *Metrics) RecordSubmission(form, outcome string) {
	m.SubmissionsTotal.WithLabelValues(form, outcome).Inc()
}

// RecordMailSend 记录一次邮件发送
func (m *Metrics) RecordMailSend(transport, kind string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.MailSendDuration.WithLabelValues(transport, kind, result).Observe(duration.Seconds())
}

// RecordUpload 记录已接受的上传大小
func (m *Metrics) RecordUpload(size int64) {
	m.UploadSize.Observe(float64(size))
}

// RecordAttachmentFailure 记录附件降级
func (m *Metrics) RecordAttachmentFailure() {
	m.AttachmentsFailed.Inc()
}

// RecordCleanup 记录临时文件清理结果
func (m *Metrics) RecordCleanup(err error) {
	if err != nil {
		m.UploadsRemoved.WithLabelValues("error").Inc()
		return
	}
	m.UploadsRemoved.WithLabelValues("removed").Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
