package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hitushen/isitdown/internal/client"
	"github.com/hitushen/isitdown/internal/config"
	"github.com/hitushen/isitdown/internal/logging"
)

var (
	// 全局参数
	flagURL  string
	flagJSON bool

	api *client.Client
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "isitdown",
		Short:         "Check whether a site, port or service is reachable",
		Long:          "Runs HTTP, TCP port and port-scan checks through an isitdown server.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			if flagURL != "" {
				cfg.BaseURL = flagURL
			}
			if err := logging.Setup(cfg.LogLevel, "text"); err != nil {
				return err
			}
			api = client.New(cfg)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "server base URL (overrides ISITDOWN_URL)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "print raw JSON responses")

	rootCmd.AddCommand(
		newHTTPCmd(),
		newPortCmd(),
		newScanCmd(),
		newStreamCmd(),
		newWatchCmd(),
		newStatusCmd(),
		newHistoryCmd(),
		newIPCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
