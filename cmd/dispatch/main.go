// cmd/dispatch/main.go
// 批次發信 CLI 入口

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mail-dispatch/internal/config"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	if err := newRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd 建立根命令，flag 預設值來自環境變數設定
func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "dispatch",
		Short:         "Mail Dispatch - bulk personalized mail sender",
		Long:          "Sends one personalized message per recipient through SMTP relays or SendGrid,\nwith windowed concurrency and subject/identity/host rotation.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.Env, "env", cfg.Env, "environment (development, production)")

	root.AddCommand(newSendCmd(cfg))
	root.AddCommand(newRelayCmd(cfg))
	root.AddCommand(newTemplatesCmd(cfg))
	root.AddCommand(newTokenCmd(cfg))
	root.AddCommand(newOutcomesCmd(cfg))

	return root
}
