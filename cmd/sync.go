package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/collectarr/collectarr/internal/config"
	"github.com/collectarr/collectarr/internal/database"
	"github.com/collectarr/collectarr/internal/logger"
	"github.com/spf13/cobra"
)

var syncRuleID string

// syncCmd runs a single sync cycle and exits, for cron-style setups.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		logger.InitializeLoggers(cfg.GetAppLogLevel(), cfg.GetDatabaseLogLevel())
		log := logger.AppLogger()

		if err := database.Initialize(logger.DatabaseLogger()); err != nil {
			return fmt.Errorf("database initialization failed: %w", err)
		}
		defer database.Close()

		engine, _, _, _ := buildSyncer(log)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		var report interface{}
		var err error
		if syncRuleID != "" {
			report, err = engine.SyncRule(ctx, syncRuleID)
		} else {
			report, err = engine.SyncAll(ctx, "manual")
		}
		if err != nil {
			return err
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncRuleID, "rule", "", "sync a single rule by ID")
}
