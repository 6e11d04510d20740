// Command dspash-coordinator runs the worker manager: it dispatches split
// graphs to workers, listens for completion notices and shell commands, and
// reschedules work when the liveness poller reports a worker gone.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dspash/dspash-go/cmd/config"
	"github.com/dspash/dspash-go/internal/application/coordinator"
	"github.com/dspash/dspash-go/internal/infrastructure/cache"
	"github.com/dspash/dspash-go/internal/infrastructure/discovery"
	"github.com/dspash/dspash-go/internal/infrastructure/http/middleware"
	"github.com/dspash/dspash-go/internal/infrastructure/liveness"
	"github.com/dspash/dspash-go/internal/infrastructure/messaging/nats"
	"github.com/dspash/dspash-go/internal/infrastructure/monitoring"
	"github.com/dspash/dspash-go/internal/infrastructure/persistence/postgres"
	"github.com/dspash/dspash-go/internal/infrastructure/wire"
	"github.com/dspash/dspash-go/internal/pkg/eventbus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

type runFlags struct {
	clusterConfig string
	livenessSpec  string
	skipMigrate   bool
}

func newRootCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "dspash-coordinator",
		Short: "Run the dspash worker-manager coordinator",
		Long: `dspash-coordinator dispatches split pipeline graphs to a pool of worker
processes, listens for completion notices and invoking-shell commands, and
reschedules placements when a worker's liveness poller reports it gone.

Settings not exposed as flags are read from the environment; see
DSPASH_SOCKET, DSPASH_COMPLETION_ADDR, DSPASH_ADMIN_ADDR, DSPASH_FT_MODE,
DSPASH_DISCOVERY_URL, DSPASH_REDIS_URL, DSPASH_NATS_URL, and DSPASH_PG_*.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(context.Background(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.clusterConfig, "cluster-config", "cluster.json", "path to the worker cluster config")
	cmd.Flags().StringVar(&flags.livenessSpec, "liveness-cron", "*/10 * * * * *", "cron schedule (robfig/cron seconds syntax) for the liveness poller")
	cmd.Flags().BoolVar(&flags.skipMigrate, "skip-migrate", false, "skip running database migrations on startup")

	return cmd
}

func run(ctx context.Context, flags runFlags) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgConfig := postgres.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Database: cfg.Postgres.Database,
		SSLMode:  cfg.Postgres.SSLMode,
	}
	if !flags.skipMigrate {
		if err := postgres.Migrate(pgConfig.URL()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	pool, err := postgres.NewPool(ctx, pgConfig)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer postgres.Close(pool)
	auditRepo := postgres.NewAuditRepository(pool)

	logger := watermill.NewStdLogger(false, false)
	publisher, err := nats.NewPublisher(cfg.NATSURL, logger)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	defer publisher.Close()

	redisCache, err := cache.NewRedisCache(cfg.RedisURL, "", 0)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisCache.Close()

	discoveryClient := discovery.NewHTTPClient(cfg.DiscoveryURL, nil, redisCache)

	clusterCfg, err := wire.LoadClusterConfig(flags.clusterConfig)
	if err != nil {
		return fmt.Errorf("loading cluster config: %w", err)
	}
	workerPool := wire.NewPool()
	for name, w := range clusterCfg.Workers {
		conn, err := wire.Dial(name, w.Host, w.Port, 5*time.Second)
		if err != nil {
			log.Printf("coordinator: dial worker %s at %s:%d failed, starting offline: %v", name, w.Host, w.Port, err)
		}
		workerPool.Add(conn)
	}
	clientWorker, err := wire.Dial("client_worker", "localhost", 0, 5*time.Second)
	if err != nil {
		log.Printf("coordinator: client worker unreachable, starting offline: %v", err)
	}

	events := eventbus.New()
	metrics := monitoring.NewMetrics("dspash")

	manager := coordinator.NewManager(workerPool, clientWorker, coordinator.Config{
		FTMode:          coordinator.FTMode(cfg.FTMode),
		KillTarget:      cfg.KillTarget,
		KillWitnessPath: cfg.KillWitnessPath,
		BasePort:        cfg.RemotePipeBasePort,
	}, discoveryClient, events, metrics).WithAudit(auditRepo)

	if cfg.HDFSDatanodeDir != "" && cfg.FTMode != "disabled" {
		poller := liveness.NewPoller(liveness.NewDirSource(cfg.HDFSDatanodeDir), manager.OnAddrAdded, manager.OnAddrRemoved)
		if err := poller.Start(flags.livenessSpec); err != nil {
			return fmt.Errorf("starting liveness poller: %w", err)
		}
		defer poller.Stop()
	}

	completionLn, err := net.Listen("tcp", cfg.CompletionAddr)
	if err != nil {
		return fmt.Errorf("listening for completions on %s: %w", cfg.CompletionAddr, err)
	}
	go func() {
		if err := manager.ServeCompletions(ctx, completionLn, publisher); err != nil {
			log.Printf("coordinator: completion listener stopped: %v", err)
		}
	}()

	_ = os.Remove(cfg.DspashSocket)
	cmdLn, err := net.Listen("unix", cfg.DspashSocket)
	if err != nil {
		return fmt.Errorf("listening on command socket %s: %w", cfg.DspashSocket, err)
	}
	go func() {
		if err := manager.ServeCommands(ctx, cmdLn); err != nil {
			log.Printf("coordinator: command socket stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler()
	e.Use(middleware.Logger())
	e.Use(middleware.Metrics(metrics))
	e.Use(middleware.SimpleRateLimit(20, 40))
	e.Use(echomiddleware.Recover())
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	manager.AdminRoutes(e)

	go func() {
		log.Printf("coordinator: admin server listening on %s", cfg.AdminAddr)
		if err := e.Start(cfg.AdminAddr); err != nil && err != http.ErrServerClosed {
			log.Printf("coordinator: admin server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("coordinator: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("coordinator: admin server shutdown error: %v", err)
	}

	return nil
}
