// Package httptransport 提供网站表单的 HTTP 接口。
package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"incorvix/backend/internal/config"
	"incorvix/backend/internal/health"
	"incorvix/backend/internal/middleware"
	"incorvix/backend/internal/monitoring"
	"incorvix/backend/internal/service"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	applications  *service.ApplicationService
	contacts      *service.ContactService
	consultations *service.ConsultationService
	diagnostics   *service.DiagnosticsService
	method        string
	debug         bool
	maxMemory     int64
	logger        *zap.Logger
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config              *config.Config
	ApplicationService  *service.ApplicationService
	ContactService      *service.ContactService
	ConsultationService *service.ConsultationService
	DiagnosticsService  *service.DiagnosticsService
	TransportName       string                // 选定的传输方式，用于提前失败的响应
	Metrics             *monitoring.Metrics   // 可为 nil
	HealthChecker       *health.HealthChecker // 可为 nil
	Logger              *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
	router.Use(monitor.PanicRecovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.SecurityHeaders())

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowOrigins = nil
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := &Handler{
		applications:  deps.ApplicationService,
		contacts:      deps.ContactService,
		consultations: deps.ConsultationService,
		diagnostics:   deps.DiagnosticsService,
		method:        deps.TransportName,
		debug:         deps.Config.Pipeline.Debug,
		// 内存上限等于请求体上限，校验通过前简历不会落到临时目录
		maxMemory:     middleware.UploadBodyLimit(deps.Config.Upload.MaxSize),
		logger:        deps.Logger,
	}

	router.NoMethod(func(c *gin.Context) {
		Error(c, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
	})
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, MsgNotFound)
	})

	// Swagger 文档
	if deps.Config.Server.Mode != gin.ReleaseMode {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.HealthChecker != nil {
		router.GET("/health/live", gin.WrapH(deps.HealthChecker.LiveHandler()))
		router.GET("/health/ready", gin.WrapH(deps.HealthChecker.ReadyHandler()))
	}

	// Prometheus 指标端点
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	uploadLimit := middleware.BodySizeLimit(middleware.UploadBodyLimit(deps.Config.Upload.MaxSize))
	jsonLimit := middleware.BodySizeLimit(middleware.SmallBodyLimit)

	// 职位申请：/submit-application 为旧表单地址
	router.POST("/submit-application", uploadLimit, handler.submitApplication)

	api := router.Group("/api")
	{
		api.POST("/careers", uploadLimit, handler.submitApplication)
		api.POST("/contact", jsonLimit, handler.submitContact)
		api.POST("/consultation", jsonLimit, handler.submitConsultation)

		// 诊断接口会暴露配置细节，只在诊断模式注册
		if deps.Config.Pipeline.Debug && deps.DiagnosticsService != nil {
			api.GET("/test-email", handler.mailDiagnostics)
			api.POST("/test-email", jsonLimit, handler.sendTestEmail)
		}
	}

	return router
}
