package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/srlistener/internal/config"
	"github.com/ehr/srlistener/internal/domain/measurement"
	"github.com/ehr/srlistener/internal/platform/auth"
	"github.com/ehr/srlistener/internal/platform/db"
	"github.com/ehr/srlistener/internal/platform/metrics"
	"github.com/ehr/srlistener/internal/platform/middleware"
	"github.com/ehr/srlistener/internal/platform/orthanc"
	"github.com/ehr/srlistener/internal/platform/poller"
	"github.com/ehr/srlistener/internal/platform/resultfile"
	"github.com/ehr/srlistener/internal/platform/websocket"
	"github.com/ehr/srlistener/internal/sr"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "sr-listener",
		Short:        "Extracts measurements from structured reports stored in Orthanc",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the archive poller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract measurements from a tag document and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			targets, _ := cmd.Flags().GetString("targets")
			return runExtract(cmd.InOrStdin(), cmd.OutOrStdout(), file, targets)
		},
	}
	cmd.Flags().String("file", "-", "Tag document (Orthanc /instances/{id}/tags JSON), - for stdin")
	cmd.Flags().String("targets", "", "YAML file listing target concept meanings")
	return cmd
}

// runExtract reads one tag document and writes the extracted result. A
// document the engine cannot read yields an empty result, like the listener.
func runExtract(stdin io.Reader, out io.Writer, file, targetsPath string) error {
	targets, err := config.LoadTargets(targetsPath)
	if err != nil {
		return err
	}

	var raw []byte
	if file == "" || file == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(file)
	}
	if err != nil {
		return fmt.Errorf("read tag document: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(sr.ExtractJSON(raw, targets))
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres extraction schema",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatuses(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(fn func(context.Context, *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.StorePostgres {
		return fmt.Errorf("migrations apply to the postgres store, STORE_DRIVER is %q", cfg.StoreDriver)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, db.Migrations()))
}

func printStatuses(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// store is an opened extraction repository together with what /health
// should probe and how to release it.
type store struct {
	repo   measurement.ExtractionRepository
	health db.Pinger
	close  func()
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		applied, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Int("applied", applied).Msg("connected to postgres")
		return &store{repo: measurement.NewExtractionRepoPG(pool), health: pool, close: pool.Close}, nil

	case config.StoreSQLite:
		repo, err := measurement.OpenExtractionRepoSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.DatabaseURL).Msg("opened sqlite store")
		return &store{repo: repo, health: repo, close: func() { repo.Close() }}, nil

	default:
		repo := measurement.NewExtractionRepoMemory()
		return &store{repo: repo, health: repo, close: func() {}}, nil
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(nil)
		bootLogger.Error().Err(err).Msg("failed to load config")
		return err
	}

	// Logger
	logger := newLogger(cfg)

	targets, err := config.LoadTargets(cfg.TargetsFile)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load targets")
		return err
	}
	logger.Info().Int("targets", targets.Len()).Msg("targets loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
		return err
	}
	defer st.close()

	archive := orthanc.NewClient(orthanc.Config{
		BaseURL:           cfg.OrthancURL,
		Username:          cfg.OrthancUsername,
		Password:          cfg.OrthancPassword,
		Timeout:           cfg.OrthancTimeout,
		RequestsPerSecond: cfg.OrthancRPS,
	})
	results := resultfile.New(cfg.ResultsFile, cfg.ArchiveDir)
	hub := websocket.NewHub(logger)
	m := metrics.New()

	svc := measurement.NewService(st.repo, targets, logger,
		measurement.WithFetcher(archive),
		measurement.WithResultSink(results),
		measurement.WithPublisher(hub),
		measurement.WithRecorder(m),
	)

	p := poller.New(archive, poller.ProcessorFunc(func(ctx context.Context, instanceID string) error {
		_, err := svc.ProcessInstance(ctx, instanceID)
		return err
	}), poller.Config{
		Interval: cfg.PollInterval,
		Observe:  func(o poller.Outcome) { m.ObservePoll(string(o)) },
	}, logger)

	e := newServer(cfg, logger, svc, hub, m, st.health)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr()).Str("orthanc", cfg.OrthancURL).Msg("starting sr-listener")
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
	}

	if cfg.CleanupOnExit {
		if rmErr := results.Remove(); rmErr != nil {
			logger.Warn().Err(rmErr).Str("path", results.Path()).Msg("failed to remove results file")
		} else {
			logger.Info().Str("path", results.Path()).Msg("results file removed")
		}
	}
	return err
}

// newServer builds the echo instance with every route mounted.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *measurement.Service, hub *websocket.Hub, m *metrics.Metrics, health db.Pinger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M", "32M"))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "Orthanc Listener is running"})
	})
	e.GET("/health", db.HealthHandler(health, cfg.StoreDriver))
	e.GET("/metrics", m.Handler())

	root := e.Group("", middleware.RateLimit(rateLimitCfg))

	// Auth middleware
	apiV1 := e.Group("/api/v1")
	if cfg.AuthSigningKey != "" {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	} else {
		apiV1.Use(auth.DevAuthMiddleware())
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	measurement.NewHandler(svc).RegisterRoutes(root, apiV1)
	websocket.NewWebSocketHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1)

	return e
}
