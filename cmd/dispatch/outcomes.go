// cmd/dispatch/outcomes.go
// outcomes 命令 - 讀取 RabbitMQ 發送結果事件，結束時輸出每次發送的統計

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mail-dispatch/internal/config"
	"mail-dispatch/internal/logger"
	"mail-dispatch/internal/models"
	"mail-dispatch/internal/worker"
)

func newOutcomesCmd(cfg *config.Config) *cobra.Command {
	var prefetch int

	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "Consume published send outcomes and print failures until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.RabbitMQURL == "" {
				return errors.New("RABBITMQ_URL is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := logger.New(cfg.Env, cfg.LogLevel)
			out := cmd.OutOrStdout()
			tally := worker.NewTally()

			handler := func(ctx context.Context, o models.Outcome) error {
				if !o.Delivered() {
					fmt.Fprintf(out, "FAILED %s %s: %s\n", o.RunID, o.Email, o.Reason)
				}
				return tally.Handle(ctx, o)
			}

			consumer := worker.NewConsumer(cfg.RabbitMQURL, cfg.OutcomeQueueName, prefetch, handler, log)
			if err := consumer.Start(ctx); err != nil {
				consumer.GracefulShutdown()
				return err
			}

			<-ctx.Done()
			consumer.GracefulShutdown()

			for _, r := range tally.Runs() {
				fmt.Fprintf(out, "%s delivered=%d failed=%d\n", r.RunID, r.Delivered, r.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.OutcomeQueueName, "queue", cfg.OutcomeQueueName, "outcome queue name")
	cmd.Flags().IntVar(&prefetch, "prefetch", 50, "RabbitMQ prefetch count")

	return cmd
}
