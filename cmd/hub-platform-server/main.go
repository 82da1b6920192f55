package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dinodialabs/hub-platform/internal/agentsync"
	internalhttp "github.com/dinodialabs/hub-platform/internal/api/http"
	"github.com/dinodialabs/hub-platform/internal/db"
	"github.com/dinodialabs/hub-platform/internal/hubcrypto"
	"github.com/dinodialabs/hub-platform/internal/hubs"
	"github.com/dinodialabs/hub-platform/internal/issuance"
	"github.com/dinodialabs/hub-platform/internal/provisioning"
	"github.com/dinodialabs/hub-platform/internal/replay"
	"github.com/dinodialabs/hub-platform/internal/rotation"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Hub Platform Server", "version", AppVersion)

	cipher, err := hubcrypto.NewCipher(config.Crypto.AtRestKey)
	if err != nil {
		slog.Error("Invalid at-rest key", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.RunMigrations(config.Database.Url); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	pool, err := db.InitDB(ctx, config.Database.Url)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := hubs.NewPGStore(pool)

	// TTL strictly exceeds the width of the timestamp window, so even a
	// maximally future-stamped nonce outlives every instant at which its
	// signature would still verify.
	nonces := replay.NewNonceCache(2*agentsync.DefaultMaxSkew + time.Minute)
	go nonces.StartCleanup(ctx, time.Minute)

	services := &internalhttp.Services{
		AgentSync:    agentsync.NewService(store, cipher, nonces),
		Rotation:     rotation.NewService(store, cipher),
		Issuance:     issuance.NewService(store, cipher),
		Provisioning: provisioning.NewService(store, cipher),
		Auth:         config.Auth,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, config.Http, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}
