package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/collectarr/collectarr/internal/api"
	"github.com/collectarr/collectarr/internal/config"
	"github.com/collectarr/collectarr/internal/database"
	"github.com/collectarr/collectarr/internal/external/channelsdvr"
	"github.com/collectarr/collectarr/internal/external/dispatcharr"
	"github.com/collectarr/collectarr/internal/logger"
	"github.com/collectarr/collectarr/internal/rules"
	"github.com/collectarr/collectarr/internal/shutdown"
	"github.com/collectarr/collectarr/internal/syncer"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "collectarr",
	Short: "Collectarr keeps Channels DVR collections in sync with pattern rules",
	Long: `Collectarr evaluates user-defined pattern rules against the channel
lineup of a Channels DVR server and reconciles named channel collections
to match, on demand and on a schedule.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of Collectarr",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Collectarr v0.1.0")
	},
}

var configFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(syncCmd)
}

func initConfig() {
	// Skip config loading for version command
	if len(os.Args) > 1 && os.Args[1] == "version" {
		return
	}

	if err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}

// buildSyncer wires the collaborators shared by serve and the one-shot
// sync command.
func buildSyncer(log *logger.Logger) (*syncer.Syncer, *rules.Store, *channelsdvr.Client, api.IPTVManager) {
	cfg := config.Get()

	dvr := channelsdvr.New(channelsdvr.Config{
		BaseURL: cfg.DVR.URL,
		Timeout: time.Duration(cfg.DVR.TimeoutSeconds) * time.Second,
	})

	store := rules.NewStore(database.Get())

	var manager *dispatcharr.Client
	var resolver syncer.Resolver
	if cfg.Dispatcharr.Enabled {
		manager = dispatcharr.New(dispatcharr.Config{
			BaseURL:  cfg.Dispatcharr.URL,
			Username: cfg.Dispatcharr.Username,
			Password: cfg.Dispatcharr.Password,
			Timeout:  time.Duration(cfg.Dispatcharr.TimeoutSeconds) * time.Second,
			Logger:   log,
		})
		resolver = rules.NewResolver(manager, log)
	} else {
		resolver = rules.NewResolver(nil, log)
	}

	engine := syncer.New(dvr, store, resolver, database.Get(), log, syncer.Config{
		Concurrency:           cfg.Sync.Concurrency,
		AutoCreateCollections: cfg.Sync.AutoCreateCollections,
	})

	if manager != nil {
		return engine, store, dvr, manager
	}
	return engine, store, dvr, nil
}

func serve() error {
	cfg := config.Get()

	logger.InitializeLoggers(cfg.GetAppLogLevel(), cfg.GetDatabaseLogLevel())
	log := logger.AppLogger()

	if err := database.Initialize(logger.DatabaseLogger()); err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}

	handler := shutdown.New(30 * time.Second)
	handler.Register(func(ctx context.Context) error {
		return database.Close()
	})

	engine, store, dvr, manager := buildSyncer(log)

	ctx, cancel := context.WithCancel(context.Background())
	handler.Register(func(shutdownCtx context.Context) error {
		cancel()
		return nil
	})

	if cfg.Sync.SyncOnStartup {
		go func() {
			if _, err := engine.SyncAll(ctx, "interval"); err != nil {
				log.Error("Startup sync failed", err)
			}
		}()
	}

	scheduler := syncer.NewScheduler(engine, store, log,
		time.Duration(cfg.Sync.IntervalMinutes)*time.Minute)
	scheduler.Start(ctx)
	handler.Register(func(shutdownCtx context.Context) error {
		scheduler.Stop()
		return nil
	})

	server := api.NewServer(api.Config{
		Store:       store,
		Syncer:      engine,
		DVR:         dvr,
		Manager:     manager,
		Logger:      log,
		CORSOrigins: cfg.API.CORSOrigins,
	})

	go func() {
		log.WithFields(map[string]interface{}{
			"port": cfg.API.Port,
		}).Info("Starting API server")
		if err := server.Run(cfg.API.Port); err != nil {
			log.Error("API server stopped", err)
			handler.TriggerShutdown()
		}
	}()

	handler.Wait()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
