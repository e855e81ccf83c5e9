package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ankityadav/uptimed/internal/checker"
	"github.com/ankityadav/uptimed/internal/config"
	"github.com/ankityadav/uptimed/internal/feed"
	"github.com/ankityadav/uptimed/internal/incident"
	"github.com/ankityadav/uptimed/internal/logger"
	"github.com/ankityadav/uptimed/internal/notifier"
	"github.com/ankityadav/uptimed/internal/status"
	"github.com/ankityadav/uptimed/internal/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           config.AppName,
	Short:         "Uptime probing scheduler",
	Long:          "Probes every active target on its own schedule, records incidents and alerts owners.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler until interrupted",
	RunE:  runDaemon,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *logrus.Logger, *storage.Database, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database initialization failed: %w", err)
	}
	return cfg, log, db, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	_, log, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}
	log.Info("schema up to date")
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, log, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	throttler := notifier.NewThrottler(db, notifier.FromConfig(cfg, log), cfg.Alert.Cooldown, log)
	reg := checker.New(db, checker.NewHTTPProber(nil), incident.New(db, log), throttler, log)

	listener, err := feed.New(cfg.Feed, db, log)
	if err != nil {
		return err
	}
	if c, ok := listener.(io.Closer); ok {
		defer c.Close()
	}

	// Every listener sends Resync once subscribed, which covers changes made
	// between this load and the subscription.
	if _, err := reg.LoadAll(ctx); err != nil {
		return err
	}

	var bg sync.WaitGroup
	events := make(chan feed.Event, 64)
	sup := &feed.Supervisor{
		Listener:   listener,
		MinBackoff: feed.DefaultMinBackoff,
		MaxBackoff: feed.DefaultMaxBackoff,
		Log:        log.WithField("component", "feed"),
	}
	bg.Add(2)
	go func() {
		defer bg.Done()
		sup.Run(ctx, events)
	}()
	go func() {
		defer bg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				reg.HandleEvent(ctx, ev)
			}
		}
	}()

	var srv *status.Server
	if cfg.Status.Addr != "" {
		srv = status.New(cfg.Status.Addr, reg, log.WithField("component", "status"))
		srv.Start()
	}

	log.WithFields(logrus.Fields{"feed": cfg.Feed.Driver, "pollers": reg.Len()}).Info("scheduler started")
	<-ctx.Done()
	log.Info("shutting down")

	bg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Grace)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("status endpoint shutdown")
		}
	}
	if err := reg.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("in-flight checks abandoned")
	}
	log.Info("stopped")
	return nil
}
