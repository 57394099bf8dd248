package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"incorvix/backend/internal/config"
	"incorvix/backend/internal/logger"
	"incorvix/backend/internal/smtp"
)

// main 启动本地开发用的 SMTP 收件服务。
//
// 把网站的 INCORVIX_SMTP_HOST 指向这里（encryption=none），
// 即可在不接触真实邮件服务商的情况下检查发出的邮件。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.NewLogger(logger.FromAppConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	backend, err := smtp.NewBackend(cfg.Sink, log)
	if err != nil {
		log.Fatal("failed to initialize mail sink", zap.Error(err))
	}
	server := smtp.NewServer(backend, cfg.Sink)

	listener, err := net.Listen("tcp", cfg.Sink.Addr)
	if err != nil {
		log.Fatal("failed to listen", zap.String("address", cfg.Sink.Addr), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting mail sink",
		zap.String("address", listener.Addr().String()),
		zap.String("domain", cfg.Sink.Domain),
		zap.Bool("auth_required", cfg.Sink.Username != ""),
		zap.String("output_dir", cfg.Sink.OutputDir),
	)
	if err := smtp.Serve(ctx, server, listener); err != nil {
		log.Fatal("mail sink error", zap.Error(err))
	}
	log.Info("mail sink stopped", zap.Int("received", len(backend.Messages())))
}
