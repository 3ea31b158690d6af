package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdamBeresnev/knockout-cup/internal/archive"
	"github.com/AdamBeresnev/knockout-cup/internal/config"
	"github.com/AdamBeresnev/knockout-cup/internal/db"
	"github.com/AdamBeresnev/knockout-cup/internal/keylock"
	"github.com/AdamBeresnev/knockout-cup/internal/notify"
	"github.com/AdamBeresnev/knockout-cup/internal/queue"
	"github.com/AdamBeresnev/knockout-cup/internal/service"
	"github.com/AdamBeresnev/knockout-cup/internal/store"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "knockout-cup",
		Short:        "Single elimination cup brackets, live match tracking and winner progression",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and serve the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			database, err := db.Connect(cmd.Context(), cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer database.Close()

			if down {
				if err := db.RollbackMigrations(database); err != nil {
					return err
				}
				slog.Info("migrations rolled back")
				return nil
			}
			return db.RunMigrations(database)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back every migration instead of applying them")
	return cmd
}

// loadConfig reads the configuration and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	database, err := db.Connect(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		return err
	}

	a, err := newApp(ctx, database, cfg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           newRouter(a, cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return a.queue.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("server starting", "addr", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type app struct {
	tournaments *service.TournamentService
	teams       *service.TeamService
	resolver    *service.TeamResolver
	brackets    *service.BracketService
	matches     *service.MatchService
	progression *service.ProgressionService
	queue       *queue.Queue
	hub         *notify.Hub
}

func newApp(ctx context.Context, database *sqlx.DB, cfg *config.Config) (*app, error) {
	logger := slog.Default()

	tournamentStore := store.NewTournamentStore(database)
	teamStore := store.NewTeamStore(database)
	matchStore := store.NewMatchStore(database)
	// shared so registration, generation and progression of one tournament never interleave
	tournamentLocks := keylock.New()

	var archiver service.Archiver
	if cfg.Archive.Enabled() {
		s3Archiver, err := archive.NewS3Archiver(ctx, archive.Config{
			Bucket:          cfg.Archive.Bucket,
			Endpoint:        cfg.Archive.Endpoint,
			Region:          cfg.Archive.Region,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			Prefix:          cfg.Archive.Prefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		archiver = s3Archiver
	}

	hub := notify.NewHub(logger)
	progression := service.NewProgressionService(database, matchStore, tournamentStore, tournamentLocks, hub, archiver, logger)
	progressionQueue := queue.New(progression.Progress, queue.Config{
		Delay:        cfg.Progression.Delay,
		Workers:      cfg.Progression.Workers,
		MaxAttempts:  cfg.Progression.MaxAttempts,
		RetryBackoff: cfg.Progression.RetryBackoff,
	}, logger)
	resolver := service.NewTeamResolver(database, tournamentStore, teamStore)

	return &app{
		tournaments: service.NewTournamentService(database, tournamentStore, tournamentLocks, cfg.BracketMaxSize, logger),
		teams:       service.NewTeamService(database, teamStore, logger),
		resolver:    resolver,
		brackets: service.NewBracketService(database, tournamentStore, matchStore, resolver, tournamentLocks, hub, logger, service.BracketConfig{
			MaxSize:      cfg.BracketMaxSize,
			RoundSpacing: cfg.BracketRoundSpacing,
		}),
		matches:     service.NewMatchService(database, matchStore, teamStore, tournamentStore, progressionQueue, hub, logger),
		progression: progression,
		queue:       progressionQueue,
		hub:         hub,
	}, nil
}
