package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"student_achievements/backend/internal/blob"
	"student_achievements/backend/internal/gateway"
	"student_achievements/backend/internal/mailer"
	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load environment variables
	if err := shared.LoadEnv(".env"); err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Info().Msg(".env file not found, using system environment variables")
	}

	// 1. Load Configuration
	cfg, err := shared.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := shared.NewLogger(cfg.LogLevel, cfg.LogPretty).With().Str("service", cfg.ServiceName).Logger()

	// 2. Record store
	ctx := context.Background()
	var db *store.Store
	var photos blob.Store
	switch cfg.Storage.Driver {
	case "mongo":
		client, mdb, err := shared.ConnectMongoDB(&cfg.MongoDB, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to MongoDB")
		}
		defer func() {
			if err := shared.DisconnectMongoDB(client); err != nil {
				logger.Error().Err(err).Msg("error disconnecting from MongoDB")
			}
		}()

		indexCtx, cancel := context.WithTimeout(ctx, cfg.MongoDB.ConnectTimeout)
		err = store.EnsureIndexes(indexCtx, mdb)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create indexes")
		}
		db = store.NewMongoStore(mdb)
		photos = blob.NewGridFSStore(mdb, "profilePhotos")
	default:
		logger.Warn().Msg("using in-memory store, data is lost on exit")
		db = store.NewMemoryStore()
		photos = blob.NewMemoryStore()
	}

	// 3. Attachment bytes
	var objects blob.Store
	if cfg.Storage.Blob.Driver == "s3" {
		s3Store, err := blob.NewS3Store(ctx, cfg.Storage.Blob)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure object storage")
		}
		objects = s3Store
		photos = s3Store
		logger.Info().Str("bucket", cfg.Storage.Blob.Bucket).Msg("attachments and photos stored in S3")
	}

	// 4. Services and routes
	mail := mailer.New(cfg.SMTP, logger.With().Str("component", "mailer").Logger())
	services := gateway.NewServices(cfg, db, objects, photos, mail, logger)
	router := gateway.SetupRoutes(services)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// 5. Health endpoint
	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
	)
	if cfg.HealthPort != "" {
		listener, err := net.Listen("tcp", ":"+cfg.HealthPort)
		if err != nil {
			logger.Fatal().Err(err).Str("port", cfg.HealthPort).Msg("failed to listen for health checks")
		}
		grpcServer = grpc.NewServer()
		healthServer = health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		reflection.Register(grpcServer)
		healthServer.SetServingStatus(cfg.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

		go func() {
			logger.Info().Str("port", cfg.HealthPort).Msg("health server listening")
			if err := grpcServer.Serve(listener); err != nil {
				logger.Error().Err(err).Msg("health server stopped")
			}
		}()
	}

	// 6. Start Server in a Goroutine
	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Str("store", cfg.Storage.Driver).Msg("API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// 7. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	if healthServer != nil {
		healthServer.SetServingStatus(cfg.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown did not complete")
	}
	services.Close()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	logger.Info().Msg("stopped")
}
