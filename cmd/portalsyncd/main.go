// Command portalsyncd runs the offline sync daemon for the condominium
// portal: a local cache + outbox layer between the UI and the hosted
// backend.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qualivida/portalsync/internal/config"
	"github.com/qualivida/portalsync/internal/connectivity"
	"github.com/qualivida/portalsync/internal/data"
	"github.com/qualivida/portalsync/internal/logging"
	"github.com/qualivida/portalsync/internal/remote"
	"github.com/qualivida/portalsync/internal/server"
	"github.com/qualivida/portalsync/internal/store"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "portalsync.toml"
	}
	return filepath.Join(home, ".config", "portalsync", "config.toml")
}

// app bundles everything a command needs. Callers must defer Close.
type app struct {
	cfg    *config.Config
	db     *store.DB
	cache  *store.Cache
	outbox *store.Outbox
	facade *data.Facade
}

func (a *app) Close() error {
	return a.db.Close()
}

// newApp reads the config, opens the local store and wires the facade.
// reachable may be nil for one-shot commands that just try the network.
func newApp(reachable func() bool) (*app, error) {
	cfg, err := config.ReadFromFile(configPath)
	if err != nil {
		return nil, err
	}
	logging.Init(os.Stdout, logging.ParseLevel(cfg.LogLevel))

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	cache := store.NewCache(db)
	outbox := store.NewOutbox(db)
	client := remote.NewClient(cfg.Remote.URL, cfg.Remote.APIKey,
		remote.WithTimeout(cfg.RemoteTimeout()))

	opts := []data.Option{data.WithReplayTimeout(cfg.ReplayTimeout())}
	if reachable != nil {
		opts = append(opts, data.WithReachable(reachable))
	}
	facade := data.NewFacade(cache, outbox, client, opts...)

	return &app{cfg: cfg, db: db, cache: cache, outbox: outbox, facade: facade}, nil
}

var rootCmd = &cobra.Command{
	Use:   "portalsyncd",
	Short: "Offline cache and outbox sync daemon for the condominium portal",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default(filepath.Dir(configPath))
		if err := config.Init(configPath, cfg); err != nil {
			return err
		}
		fmt.Printf("Configuration initialized at %s\n", configPath)
		fmt.Println("Set remote.url and remote.api_key before starting the daemon.")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon and local HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Probe first so the facade sees live reachability.
		var probe connectivity.Source
		var stopProbe func()

		cfgPeek, err := config.ReadFromFile(configPath)
		if err != nil {
			return err
		}
		target := cfgPeek.ProbeTarget()
		if strings.HasPrefix(target, "ws://") || strings.HasPrefix(target, "wss://") {
			p := connectivity.NewWebsocketProbe(target, cfgPeek.ProbeInterval())
			p.Start(ctx)
			probe, stopProbe = p, p.Stop
		} else {
			p := connectivity.NewHTTPProbe(target, cfgPeek.ProbeInterval())
			p.Start(ctx)
			probe, stopProbe = p, p.Stop
		}
		defer stopProbe()

		a, err := newApp(probe.Online)
		if err != nil {
			return err
		}
		defer a.Close()

		monitor := connectivity.NewMonitor(probe, a.facade, a.cfg.SyncInterval())
		monitor.Start(ctx)
		defer monitor.Stop()

		if days := a.cfg.Sync.PruneAfterDays; days > 0 {
			go pruneLoop(ctx, a, days)
		}

		srv := &http.Server{
			Addr:    a.cfg.ListenAddr,
			Handler: server.NewRouter(a.facade),
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		logging.Info("portalsyncd listening", map[string]interface{}{"addr": a.cfg.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

// pruneLoop trims old synced outbox entries once at startup and then
// twice a day.
func pruneLoop(ctx context.Context, a *app, days int) {
	prune := func() {
		cutoff := time.Now().AddDate(0, 0, -days)
		n, err := a.outbox.Prune(ctx, cutoff)
		if err != nil {
			logging.Error("outbox prune failed", err, nil)
			return
		}
		if n > 0 {
			logging.Info("pruned synced outbox entries", map[string]interface{}{"count": n})
		}
	}

	prune()
	ticker := time.NewTicker(12 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// openUnmigrated opens the database for explicit schema management,
// skipping the automatic migration that newApp/store.Open performs.
func openUnmigrated() (*store.DB, error) {
	cfg, err := config.ReadFromFile(configPath)
	if err != nil {
		return nil, err
	}
	logging.Init(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	return store.OpenUnmigrated(cfg.DataDir)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the local database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openUnmigrated()
		if err != nil {
			return err
		}
		defer db.Close()

		migrator := store.NewMigrator(db.DB)
		if err := migrator.Up(); err != nil {
			return err
		}
		version, err := migrator.CurrentVersion()
		if err != nil {
			return err
		}
		fmt.Printf("Schema at version %d\n", version)
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent schema migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openUnmigrated()
		if err != nil {
			return err
		}
		defer db.Close()

		migrator := store.NewMigrator(db.DB)
		if err := migrator.Initialize(); err != nil {
			return err
		}
		if err := migrator.Down(); err != nil {
			return err
		}
		version, err := migrator.CurrentVersion()
		if err != nil {
			return err
		}
		fmt.Printf("Schema at version %d\n", version)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openUnmigrated()
		if err != nil {
			return err
		}
		defer db.Close()

		migrator := store.NewMigrator(db.DB)
		if err := migrator.Initialize(); err != nil {
			return err
		}
		applied, err := migrator.AppliedMigrations()
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("No migrations applied")
			return nil
		}
		for _, m := range applied {
			fmt.Printf("V%d  %s  %s\n", m.Version, m.AppliedAt.Format(time.RFC3339), m.Description)
		}
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Flush pending outbox entries once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.facade.SyncOutbox(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Synced: %d  Failed: %d  (%.2fs)\n",
			result.Synced, result.Failed, result.Duration.Seconds())
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show outbox status counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		status, err := a.facade.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Pending: %d\nSynced:  %d\nErrored: %d\nTotal:   %d\n",
			status.Outbox.Pending, status.Outbox.Synced, status.Outbox.Errored, status.Outbox.Total)
		if status.LastSync != nil {
			fmt.Printf("Last sync: %s\n", status.LastSync.Format(time.RFC3339))
		}
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-queue errored outbox entries and flush them",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		count, result, err := a.facade.RetryErrored(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Re-queued: %d\n", count)
		if result != nil && !result.Skipped {
			fmt.Printf("Synced: %d  Failed: %d\n", result.Synced, result.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to config file")

	configCmd.AddCommand(configInitCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(configCmd, serveCmd, syncCmd, statusCmd, retryCmd, migrateCmd)
}
