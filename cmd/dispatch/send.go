// cmd/dispatch/send.go
// send 命令 - 執行一次批次發送

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mail-dispatch/internal/api/routes"
	"mail-dispatch/internal/config"
	"mail-dispatch/internal/dispatch"
	"mail-dispatch/internal/logger"
	"mail-dispatch/internal/models"
	"mail-dispatch/internal/services"
)

func newSendCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send the selected template to every recipient",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSend(ctx, cfg, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport (smtp, sendgrid)")
	f.StringSliceVar(&cfg.SMTPHosts, "hosts", cfg.SMTPHosts, "SMTP relay hosts (comma separated)")
	f.IntVar(&cfg.SMTPPort, "port", cfg.SMTPPort, "SMTP port (587 STARTTLS, 465 implicit TLS)")
	f.IntVarP(&cfg.Concurrency, "concurrency", "c", cfg.Concurrency, "messages sent concurrently per window")
	f.Float64VarP(&cfg.DelaySeconds, "delay", "d", cfg.DelaySeconds, "seconds to wait between windows")
	f.BoolVar(&cfg.RotationEnabled, "rotation", cfg.RotationEnabled, "rotate sender names and relay hosts")
	f.IntVar(&cfg.MilestoneEvery, "milestone-every", cfg.MilestoneEvery, "notify every N successful sends")
	f.StringVar(&cfg.SenderPolicy, "sender-policy", cfg.SenderPolicy, "sender identity policy (rotate_name, tagged_address)")
	f.StringVar(&cfg.SenderEmail, "from", cfg.SenderEmail, "fixed sender address (rotate_name)")
	f.StringSliceVar(&cfg.SenderNames, "names", cfg.SenderNames, "sender display names (comma separated)")
	f.StringVar(&cfg.SenderDomain, "domain", cfg.SenderDomain, "sender domain (tagged_address)")
	f.StringVar(&cfg.SubjectsPath, "subjects", cfg.SubjectsPath, "subject file, one per line")
	f.StringVar(&cfg.TemplatesDir, "templates-dir", cfg.TemplatesDir, "template directory")
	f.StringVarP(&cfg.TemplateName, "template", "t", cfg.TemplateName, "template file name (default: first in directory)")
	f.StringVar(&cfg.TemplateEngine, "engine", cfg.TemplateEngine, "template engine (placeholder, liquid)")
	f.StringVarP(&cfg.RecipientsPath, "recipients", "r", cfg.RecipientsPath, "recipient CSV file")
	f.StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "serve the status API on this address while sending")

	return cmd
}

// jobFromConfig 取出單次發送的固定參數
func jobFromConfig(cfg *config.Config) models.DispatchJob {
	return models.DispatchJob{
		Concurrency:     cfg.Concurrency,
		Delay:           cfg.Delay(),
		Port:            cfg.SMTPPort,
		Transport:       cfg.Transport,
		RotationEnabled: cfg.RotationEnabled,
		MilestoneEvery:  cfg.MilestoneEvery,
		TemplateEngine:  cfg.TemplateEngine,
	}
}

// transportFor 依設定回傳傳輸主機與 TransportFactory
func transportFor(cfg *config.Config, log zerolog.Logger) ([]string, services.TransportFactory) {
	if cfg.Transport == config.TransportSendGrid {
		return []string{"api.sendgrid.com"}, services.NewSendGridFactory(cfg.SendGridAPIKey)
	}
	return cfg.SMTPHosts, services.NewSMTPFactory(cfg, log)
}

func runSend(ctx context.Context, cfg *config.Config, cmd *cobra.Command) error {
	log := logger.New(cfg.Env, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return &dispatch.FatalError{Stage: dispatch.StageConfig, Err: err}
	}

	// 通知服務
	var notifier services.Notifier = services.NewLogNotifier(log)
	if cfg.TelegramBotToken != "" {
		tg, err := services.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, "")
		if err != nil {
			log.Warn().Err(err).Msg("telegram disabled, milestones will be logged")
		} else {
			notifier = tg
		}
	}

	// 狀態快取 (可選)
	var store services.StatusStore
	var keydb *services.KeyDBService
	if cfg.KeyDBURL != "" {
		svc, err := services.NewKeyDBService(cfg.KeyDBURL, cfg.KeyDBPassword, cfg.KeyDBStatusTTL)
		if err != nil {
			log.Warn().Err(err).Msg("status store disabled")
		} else {
			defer svc.Close()
			keydb, store = svc, svc
		}
	}

	// 發送結果事件 (可選)
	var outcomes services.OutcomePublisher
	if cfg.RabbitMQURL != "" {
		q, err := services.NewQueueService(cfg.RabbitMQURL, cfg.OutcomeQueueName)
		if err != nil {
			log.Warn().Err(err).Msg("outcome publisher disabled")
		} else {
			defer q.Close()
			outcomes = q
		}
	}

	reporter := dispatch.NewReporter(dispatch.ReporterOptions{
		Every:    cfg.MilestoneEvery,
		Notifier: notifier,
		Store:    store,
		Log:      log,
	})

	if cfg.StatusAddr != "" {
		deps := &routes.Dependencies{Version: version, JWTSecret: cfg.JWTSecret, Live: reporter}
		if keydb != nil {
			deps.Store, deps.KeyDB = keydb, keydb
		}
		srv := startStatusServer(cfg, deps, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("status server forced to shutdown")
			}
		}()
	}

	hosts, factory := transportFor(cfg, log)
	orch := dispatch.NewOrchestrator(dispatch.OrchestratorOptions{
		Job:      jobFromConfig(cfg),
		Identity: dispatch.IdentityConfigFrom(cfg),
		Hosts:    hosts,
		Factory:  factory,
		Reporter: reporter,
		Outcomes: outcomes,
		Log:      log,
	})

	src := &dispatch.FileSources{
		SubjectsPath:   cfg.SubjectsPath,
		TemplatesDir:   cfg.TemplatesDir,
		TemplateName:   cfg.TemplateName,
		RecipientsPath: cfg.RecipientsPath,
		Log:            log,
	}

	totals, err := orch.Run(ctx, src)

	var fatal *dispatch.FatalError
	if errors.As(err, &fatal) {
		return err
	}

	summary := reporter.Summary()
	fmt.Fprintf(cmd.OutOrStdout(), "%s | Total: %d\n", summary.Title(), totals.Processed)

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("dispatch interrupted after %d of %d recipients", totals.Processed, summary.Total)
	}
	return err
}

// startStatusServer 在背景啟動狀態 API
func startStatusServer(cfg *config.Config, deps *routes.Dependencies, log zerolog.Logger) *http.Server {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	routes.RegisterRoutes(router, deps)

	srv := &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.StatusAddr).Msg("status API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("status API stopped")
		}
	}()

	return srv
}
