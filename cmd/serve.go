package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/oralexam/adapters"
	"github.com/satriahrh/oralexam/adapters/badger"
	"github.com/satriahrh/oralexam/adapters/gemini"
	"github.com/satriahrh/oralexam/adapters/mongo"
	"github.com/satriahrh/oralexam/adapters/portaudio"
	"github.com/satriahrh/oralexam/domain/repositories"
	"github.com/satriahrh/oralexam/internal/api"
	"github.com/satriahrh/oralexam/internal/auth"
	"github.com/satriahrh/oralexam/internal/config"
	"github.com/satriahrh/oralexam/internal/websocket"
	"github.com/satriahrh/oralexam/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve hosts over websocket and the results API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()
		return serve(cfg, logger)
	},
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	results, closeResults, err := openResults(cfg, logger)
	if err != nil {
		return err
	}
	defer closeResults()

	dialer, err := gemini.NewDialer(cfg.Gemini(), logger)
	if err != nil {
		return err
	}

	var signer *auth.Signer
	if cfg.HostJWTSecret != "" {
		if signer, err = auth.NewSigner(cfg.HostJWTSecret); err != nil {
			return err
		}
	} else {
		logger.Warn("HOST_JWT_SECRET not set, host websocket is unauthenticated")
	}

	engineConfig := cfg.Engine()
	factory := func(input repositories.InputDevice, output repositories.OutputDevice) (websocket.Controller, error) {
		if cfg.AudioBackend == config.BackendPortAudio {
			input = portaudio.NewInputDevice(cfg.CaptureRate, 0, logger)
			output = portaudio.NewOutputDevice(0, logger)
		}
		engine, err := usecase.NewEngine(usecase.EngineDeps{
			Dialer:  dialer,
			Input:   input,
			Output:  output,
			Results: results,
		}, engineConfig, logger)
		if err != nil {
			return nil, err
		}
		return engine, nil
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub(factory, websocket.HubConfig{CaptureRate: cfg.CaptureRate}, logger)
	go hub.Run(hubCtx)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, hub, signer, results, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("audioBackend", cfg.AudioBackend),
		zap.Duration("hardLimit", cfg.HardLimit))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")
	stopHub()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server exited")
	return nil
}

// openResults picks MongoDB, then the embedded store, then process memory
func openResults(cfg *config.Config, logger *zap.Logger) (repositories.ResultRepository, func(), error) {
	if cfg.MongoURI == "" && cfg.ResultsDir != "" {
		repo, err := badger.NewResultRepository(badger.Options{Dir: cfg.ResultsDir}, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				logger.Error("Failed to close result store", zap.Error(err))
			}
		}, nil
	}
	if cfg.MongoURI == "" {
		logger.Info("MONGODB_URI and RESULTS_DIR not set, keeping results in memory")
		return adapters.NewMemoryResultRepository(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.NewClient(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
	if err != nil {
		return nil, nil, err
	}
	repo := mongo.NewResultRepository(client.Database)
	if err := repo.EnsureIndexes(ctx); err != nil {
		client.Close(ctx)
		return nil, nil, err
	}

	return repo, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Close(ctx)
	}, nil
}
