package main

// @title Incorvix Website Backend API
// @version 1.0
// @description 职位申请、联系与咨询表单的邮件投递接口
// @BasePath /
// @schemes http https

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "incorvix/backend/docs"
	"incorvix/backend/internal/compose"
	"incorvix/backend/internal/config"
	"incorvix/backend/internal/domain"
	"incorvix/backend/internal/health"
	"incorvix/backend/internal/logger"
	"incorvix/backend/internal/mailer"
	"incorvix/backend/internal/monitoring"
	"incorvix/backend/internal/service"
	httptransport "incorvix/backend/internal/transport/http"
	"incorvix/backend/internal/upload"
)

// main 启动表单投递 HTTP 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	gin.SetMode(cfg.Server.Mode)

	// 初始化日志系统
	log, err := logger.NewLogger(logger.FromAppConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting incorvix backend",
		zap.String("mode", cfg.Server.Mode),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("debug_responses", cfg.Pipeline.Debug),
	)
	if cfg.Pipeline.Debug && cfg.Server.Mode == gin.ReleaseMode {
		log.Warn("pipeline.debug is enabled in release mode; error responses will carry diagnostics")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化监控系统
	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewDefaultMetrics()
	}

	// 上传目录与邮件构建
	store, err := upload.NewStore(cfg.Upload, log)
	if err != nil {
		log.Fatal("failed to initialize upload store", zap.Error(err))
	}
	positions := domain.NewPositionCatalog(cfg.Mail.Positions)
	composer, err := compose.New(cfg.Mail, positions)
	if err != nil {
		log.Fatal("failed to initialize message composer", zap.Error(err))
	}

	// 传输方式只在启动时选定一次
	selected, err := mailer.Select(ctx, cfg, log)
	if err != nil {
		log.Fatal("no usable mail transport", zap.Error(err))
	}
	transport := mailer.Instrument(selected, metrics, log)
	log.Info("mail transport selected",
		zap.String("transport", transport.Name()),
		zap.String("recipient", composer.Recipient()),
		zap.Int("positions", positions.Len()),
	)

	// 初始化服务层
	applications := service.NewApplicationService(cfg, store, composer, transport, metrics, log)
	contacts := service.NewContactService(cfg, composer, transport, metrics, log)
	consultations := service.NewConsultationService(cfg, composer, transport, metrics, log)
	diagnostics := service.NewDiagnosticsService(cfg, store, composer, transport, log)

	healthChecker := health.NewHealthChecker(cfg, transport.Name(), store, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:              cfg,
		ApplicationService:  applications,
		ContactService:      contacts,
		ConsultationService: consultations,
		DiagnosticsService:  diagnostics,
		TransportName:       transport.Name(),
		Metrics:             metrics,
		HealthChecker:       healthChecker,
		Logger:              log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		log.Info("server stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
