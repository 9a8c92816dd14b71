package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stacklok/seatwatch/internal/app"
	"github.com/stacklok/seatwatch/internal/monitor"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one monitoring cycle and exit",
	Long: `Run a single check-and-notify cycle and print its summary as JSON.

This is the entry point for external schedulers such as cron or a Kubernetes
CronJob. With --notify=false every course is checked and the per-course results
are printed, but no notifications are sent.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	checkCmd.Flags().Bool("notify", true, "Notify subscribers of newly opened courses")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	notify, err := cmd.Flags().GetBool("notify")
	if err != nil {
		return fmt.Errorf("failed to get notify flag: %w", err)
	}

	seatwatchApp, err := app.NewSeatwatchApp(ctx, app.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	defer seatwatchApp.Close()

	var result any
	if notify {
		result, err = seatwatchApp.Monitor().RunCycle(ctx)
	} else {
		var results []monitor.CheckResult
		results, err = seatwatchApp.Monitor().CheckAll(ctx)
		if results == nil {
			results = []monitor.CheckResult{}
		}
		result = results
	}
	if err != nil {
		return fmt.Errorf("monitoring cycle failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
