package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/cricketauction/auctiond/internal/auction"
	"github.com/cricketauction/auctiond/internal/config"
	"github.com/cricketauction/auctiond/internal/countdown"
	"github.com/cricketauction/auctiond/internal/event"
	"github.com/cricketauction/auctiond/internal/gateway"
	"github.com/cricketauction/auctiond/internal/health"
	"github.com/cricketauction/auctiond/internal/leader"
	"github.com/cricketauction/auctiond/internal/natsbus"
	"github.com/cricketauction/auctiond/internal/notify"
	"github.com/cricketauction/auctiond/internal/store"
	"github.com/cricketauction/auctiond/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/cricketauction/auctiond/internal/store/memstore"
	_ "github.com/cricketauction/auctiond/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", slog.Any("error", err))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clockwork.NewRealClock()

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to store", slog.String("driver", cfg.Database.Driver))

	hub := gateway.NewHub(logger)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	// The engine publishes through the bus when one is configured; the
	// bus relays every event back into the local hub, so both drivers
	// end with the same fan-out to connected clients.
	var publisher event.Publisher = hub
	if cfg.Broadcast.Driver == "nats" {
		bus, busErr := natsbus.Connect(cfg.Broadcast.NATSURL, cfg.Broadcast.SubjectPrefix, hub, logger)
		if busErr != nil {
			return fmt.Errorf("connecting broadcast bus: %w", busErr)
		}
		defer func() {
			if closeErr := bus.Close(); closeErr != nil {
				logger.Error("bus shutdown error", slog.Any("error", closeErr))
			}
		}()
		publisher = bus
		logger.InfoContext(ctx, "broadcasting via nats", slog.String("url", cfg.Broadcast.NATSURL))
	}

	if cfg.Discord.Token != "" {
		announcer, notifyErr := notify.New(cfg.Discord, repos, logger)
		if notifyErr != nil {
			return fmt.Errorf("creating discord announcer: %w", notifyErr)
		}
		if notifyErr = announcer.Start(ctx); notifyErr != nil {
			return fmt.Errorf("starting discord announcer: %w", notifyErr)
		}
		defer func() {
			if stopErr := announcer.Stop(); stopErr != nil {
				logger.Error("announcer shutdown error", slog.Any("error", stopErr))
			}
		}()
		publisher = event.Fanout{publisher, announcer}
	}

	eng := auction.NewEngine(repos, publisher, cfg.Auction, logger, tp.TracerProvider, clk)
	timers := countdown.NewManager(clk, publisher, eng.SettleExpired, logger)
	eng.SetCountdown(timers)

	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	gw := gateway.New(hub, eng, &gateway.HeaderVerifier{}, cfg.Server.AllowedOrigins, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())
	mux.Handle("/", gw.Handler())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "server error", slog.Any("error", listenErr))
		}
	}()

	// startArbitrator is the core work only the leader runs: countdowns
	// are process-local, so a single replica arms and settles them.
	// Readiness gates traffic to that replica.
	startArbitrator := func(ctx context.Context) {
		if resumeErr := eng.Resume(ctx); resumeErr != nil {
			logger.ErrorContext(ctx, "resuming active rooms failed", slog.Any("error", resumeErr))
		}

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "auctiond is running (leader)", slog.String("version", version))

		<-ctx.Done()

		healthHandler.SetReady(false)
		timers.StopAll()
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, startArbitrator, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		if resumeErr := eng.Resume(ctx); resumeErr != nil {
			logger.ErrorContext(ctx, "resuming active rooms failed", slog.Any("error", resumeErr))
		}

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "auctiond is running", slog.String("version", version))

		<-ctx.Done()
		logger.Info("shutting down...")

		healthHandler.SetReady(false)
		timers.StopAll()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
