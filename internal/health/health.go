// Package health 提供存活与就绪检查。
package health

import (
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"incorvix/backend/internal/config"
)

// WritableChecker 上传目录可写检查
type WritableChecker interface {
	CheckWritable() error
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
//
// 参数:
//   - cfg: 系统配置，用于确定需要检查的邮件服务器
//   - transport: 启动时选定的传输方式名称
//   - uploads: 上传目录
//   - logger: 日志记录器
func NewHealthChecker(cfg *config.Config, transport string, uploads WritableChecker, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		logger: logger,
	}

	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))

	hc.addReadiness("upload_dir", func() error {
		return uploads.CheckWritable()
	})

	// 只检查 TCP 可达，不做认证，避免每次探测都登录邮件服务器
	if transport == config.TransportSMTP && cfg.SMTP.Host != "" {
		timeout := cfg.SMTP.Timeout
		if timeout <= 0 || timeout > 5*time.Second {
			timeout = 5 * time.Second
		}
		hc.addReadiness("smtp", healthcheck.Async(healthcheck.TCPDialCheck(cfg.SMTP.Address(), timeout), 30*time.Second))
	}

	return hc
}

// addReadiness 注册就绪检查，失败时记录告警
func (hc *HealthChecker) addReadiness(name string, check healthcheck.Check) {
	hc.health.AddReadinessCheck(name, func() error {
		err := check()
		if err != nil {
			hc.logger.Warn("就绪检查未通过", zap.String("check", name), zap.Error(err))
		}
		return err
	})
}

// LiveHandler 存活检查处理器
func (hc *HealthChecker) LiveHandler() http.Handler {
	return http.HandlerFunc(hc.health.LiveEndpoint)
}

// ReadyHandler 就绪检查处理器
func (hc *HealthChecker) ReadyHandler() http.Handler {
	return http.HandlerFunc(hc.health.ReadyEndpoint)
}
