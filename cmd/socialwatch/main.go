// socialwatch — операторская утилита: outbox, scheduler state, ручной run.
//
// Использование:
//
//	socialwatch [--api-url URL] [--scheduler-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	outbox  Просмотр outbox, повторная постановка dead_letter
//	state   Scheduler state клиента
//	run     Ручной запуск run и его статус
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/socialwatch/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var (
		apiURL       string
		schedulerURL string
		jsonOutput   bool
		timeout      time.Duration
	)

	rootCmd := &cobra.Command{
		Use:           "socialwatch",
		Short:         "socialwatch CLI — outbox and run operations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("SOCIALWATCH_API_URL", "http://localhost:8082"), "Worker API URL")
	rootCmd.PersistentFlags().StringVar(&schedulerURL, "scheduler-url", envOr("SOCIALWATCH_SCHEDULER_URL", "http://localhost:8081"), "Scheduler API URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "HTTP timeout")

	apiClient := func() *cli.Client { return cli.NewClient(apiURL, timeout) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	// run trigger --wait ждёт весь run: таймаут не меньше бюджета run
	runClient := func() *cli.Client { return cli.NewClient(schedulerURL, max(timeout, 31*time.Minute)) }

	rootCmd.AddCommand(
		cli.NewOutboxCmd(apiClient, outputFn),
		cli.NewStateCmd(apiClient, outputFn),
		cli.NewRunCmd(runClient, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		cli.NewOutput(false).Error(err.Error())
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
