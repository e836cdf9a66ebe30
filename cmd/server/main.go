package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/autolog/autoanalysis/internal/analyzer"
	"github.com/autolog/autoanalysis/internal/config"
	"github.com/autolog/autoanalysis/internal/db"
	"github.com/autolog/autoanalysis/internal/events"
	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/middleware"
	"github.com/autolog/autoanalysis/internal/routes"
	"github.com/autolog/autoanalysis/internal/store"
	"github.com/autolog/autoanalysis/internal/store/gormstore"
	"github.com/autolog/autoanalysis/internal/store/memstore"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv("AUTOANALYSIS_CONFIG"))
	if err != nil {
		logger.Fatal("Failed to load configuration", map[string]interface{}{"error": err.Error()})
	}
	logger.Initialize(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})

	st, publisher, err := openStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open store", map[string]interface{}{"error": err.Error()})
	}

	codec, err := analyzer.NewCodec(cfg.Analyzer.WireFormat)
	if err != nil {
		logger.Fatal("Failed to create analyzer codec", map[string]interface{}{"error": err.Error()})
	}
	transport := analyzer.NewHTTPTransport(&http.Client{}, codec, cfg.Analyzer.CompressionThreshold)

	svc, err := routes.NewServices(cfg, st, publisher, transport)
	if err != nil {
		logger.Fatal("Failed to wire services", map[string]interface{}{"error": err.Error()})
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go svc.Registry.RunSweeper(ctx, cfg.Analyzer.SweepInterval)

	gin.SetMode(cfg.Server.GinMode)
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.RequestLogger())
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, svc, cfg.Server.JWTSecret)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: r,
	}

	logger.Info("Starting auto-analysis server", map[string]interface{}{
		"port":     cfg.Server.Port,
		"gin_mode": gin.Mode(),
		"store":    cfg.Database.Driver,
		"wire":     codec.ContentType(),
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", map[string]interface{}{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	logger.Warn("Received shutdown signal, stopping server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}
	svc.Stop()
	logger.Info("Server exited gracefully", nil)
}

// openStore returns the configured store together with the event publisher
// that fits it.
func openStore(cfg config.DatabaseConfig) (store.Store, events.Publisher, error) {
	if cfg.Driver == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart", nil)
		return memstore.New(), &events.Recorder{}, nil
	}

	conn, err := db.Connect(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(conn); err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := db.AutoMigrate(conn); err != nil {
			return nil, nil, err
		}
	}
	return gormstore.New(conn), gormstore.NewActivityPublisher(conn), nil
}
