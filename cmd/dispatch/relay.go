// cmd/dispatch/relay.go
// relay 命令 - 啟動本機 Capture Relay，試發送時使用

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mail-dispatch/internal/config"
	"mail-dispatch/internal/logger"
	"mail-dispatch/internal/smtp"
)

func newRelayCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a local SMTP relay that captures and logs every message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRelay(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.RelayPort, "listen-port", cfg.RelayPort, "port to listen on")
	cmd.Flags().IntVar(&cfg.RelayMaxMessageSize, "max-size", cfg.RelayMaxMessageSize, "maximum message size in MB")

	return cmd
}

func runRelay(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Env, cfg.LogLevel)

	srv := smtp.NewServer(smtp.Options{
		Addr:            ":" + cfg.RelayPort,
		Domain:          cfg.SMTPHeloDomain,
		MaxMessageBytes: int64(cfg.RelayMaxMessageSize) * 1024 * 1024,
	}, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := srv.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown relay: %w", err)
	}
	log.Info().Int("captured", len(srv.Messages())).Msg("capture relay stopped")
	return nil
}
