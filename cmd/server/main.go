package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/DaDevFox/task-systems/demand-core/internal/config"
	"github.com/DaDevFox/task-systems/demand-core/internal/events"
	"github.com/DaDevFox/task-systems/demand-core/internal/grpcapi"
	"github.com/DaDevFox/task-systems/demand-core/internal/httpapi"
	"github.com/DaDevFox/task-systems/demand-core/internal/logging"
	"github.com/DaDevFox/task-systems/demand-core/internal/prediction"
	"github.com/DaDevFox/task-systems/demand-core/internal/repository"
	"github.com/DaDevFox/task-systems/demand-core/internal/scheduler"
	"github.com/DaDevFox/task-systems/demand-core/internal/service"
)

const (
	serviceName     = "demand-core"
	shutdownTimeout = 10 * time.Second
)

func main() {
	envFile := flag.String("env", "", "path to an env file (defaults to ./.env when present)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("demand-core stopped with error")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	// Initialize repository
	store, err := repository.NewStore(cfg.Database.Path, cfg.Database.Type, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer store.Close()

	var modelStore prediction.ModelStore
	if cfg.Prediction.PersistModels {
		modelStore = store
	}
	registry := prediction.NewRegistry(cfg.ModelConfig(), modelStore, logger)
	predictor := prediction.NewPredictionService(registry, store, cfg.Prediction.TrainTimeout, logger)

	// Initialize event bus
	eventBus := events.NewEventBus(serviceName, logger)
	eventBus.Subscribe(events.ItemStatusChanged, restockAlert(logger))
	defer eventBus.Wait()

	forecastService := service.NewForecastService(store, predictor, eventBus, cfg.Prediction.Horizon, logger)

	sched := scheduler.NewScheduler(cfg.Reconcile.Schedule, forecastService, scheduler.DefaultRunTimeout, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// HTTP
	engine := httpapi.NewRouter(httpapi.NewHandler(forecastService, logger), logger)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.HTTPPort,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// gRPC
	grpcServer := grpc.NewServer()
	grpcapi.RegisterForecastServiceServer(grpcServer, grpcapi.NewForecastServer(forecastService, logger))
	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("port", cfg.Server.HTTPPort).Info("starting demand-core HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("port", cfg.Server.GRPCPort).Info("starting demand-core gRPC server")
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.WithField("models", len(registry.Keys())).Info("shutting down demand-core server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func restockAlert(logger *logrus.Logger) events.EventHandler {
	return func(ctx context.Context, event *events.Event) error {
		data, err := event.Data()
		if err != nil {
			return err
		}
		fields := data.GetFields()
		if fields["status"].GetStringValue() == "normal" {
			return nil
		}

		logger.WithFields(logrus.Fields{
			"item_id":   fields["item_id"].GetStringValue(),
			"item_name": fields["item_name"].GetStringValue(),
			"status":    fields["status"].GetStringValue(),
			"quantity":  fields["quantity"].GetNumberValue(),
		}).Warn("item needs restocking")
		return nil
	}
}
