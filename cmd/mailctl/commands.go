package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"incorvix/backend/internal/compose"
	"incorvix/backend/internal/config"
	"incorvix/backend/internal/domain"
	"incorvix/backend/internal/logger"
	"incorvix/backend/internal/mailer"
	"incorvix/backend/internal/service"
	"incorvix/backend/internal/smtp"
	"incorvix/backend/internal/upload"
)

// options 全局命令行参数
type options struct {
	verbose bool
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "mailctl",
		Short: "Inspect and exercise the website mail setup",
		Long: `mailctl reads the same INCORVIX_* configuration as the server and
reports which transport would be used, or sends a test message through it.

Example:
  mailctl diagnose
  mailctl send-test --to ops@example.com
  mailctl inspect ./mail-sink/20250101T120000_ab12cd34.eml`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout for mail operations")

	root.AddCommand(newDiagnoseCmd(opts))
	root.AddCommand(newSendTestCmd(opts))
	root.AddCommand(newInspectCmd())
	return root
}

// environment 与服务端相同的依赖装配
type environment struct {
	cfg         *config.Config
	log         *zap.Logger
	diagnostics *service.DiagnosticsService
}

func setup(ctx context.Context, opts *options) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logCfg := logger.FromAppConfig(cfg.Log)
	logCfg.Format = "console"
	logCfg.LogFile = ""
	if opts.verbose {
		logCfg.Level = "debug"
	}
	log, err := logger.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := upload.NewStore(cfg.Upload, log)
	if err != nil {
		return nil, err
	}
	composer, err := compose.New(cfg.Mail, domain.NewPositionCatalog(cfg.Mail.Positions))
	if err != nil {
		return nil, err
	}
	transport, err := mailer.Select(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if opts.timeout > 0 {
		cfg.Pipeline.Timeout = opts.timeout
	}
	return &environment{
		cfg:         cfg,
		log:         log,
		diagnostics: service.NewDiagnosticsService(cfg, store, composer, mailer.Instrument(transport, nil, log), log),
	}, nil
}

func newDiagnoseCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Print the effective mail configuration",
		Long:  `Print the selected transport and upload settings as JSON. Credentials are never printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), env.diagnostics.Report())
		},
	}
}

func newSendTestCmd(opts *options) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "send-test",
		Short: "Send a test message through the selected transport",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			outcome, err := env.diagnostics.SendTest(cmd.Context(), to)
			if err != nil {
				return fmt.Errorf("send via %s: %w", outcome.Method, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "test email sent to %s via %s\n", outcome.Recipient, outcome.Method)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient address (default: the internal recipient)")
	return cmd
}

// inspection inspect 命令的输出
type inspection struct {
	Subject     string            `json:"subject"`
	From        string            `json:"from"`
	To          []string          `json:"to"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Headers     map[string]string `json:"headers"`
	TextLength  int               `json:"text_length"`
	HTMLLength  int               `json:"html_length"`
	Attachments []attachmentInfo  `json:"attachments"`
}

type attachmentInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.eml>",
		Short: "Summarize a message saved by the mail sink",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			parsed, err := smtp.ParseEmail(raw)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			return writeJSON(cmd.OutOrStdout(), summarize(parsed))
		},
	}
}

func summarize(parsed *smtp.ParsedEmail) inspection {
	out := inspection{
		Subject:     parsed.Subject,
		From:        parsed.From,
		To:          parsed.To,
		ReplyTo:     parsed.ReplyTo,
		Headers:     parsed.Headers,
		TextLength:  len(parsed.Text),
		HTMLLength:  len(parsed.HTML),
		Attachments: make([]attachmentInfo, 0, len(parsed.Attachments)),
	}
	for _, att := range parsed.Attachments {
		out.Attachments = append(out.Attachments, attachmentInfo{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        len(att.Content),
		})
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
