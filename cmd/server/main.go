package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/Kaviyasree25/FinClear-Engine/internal/auth"
	"github.com/Kaviyasree25/FinClear-Engine/internal/config"
	"github.com/Kaviyasree25/FinClear-Engine/internal/database"
	"github.com/Kaviyasree25/FinClear-Engine/internal/metrics"
	"github.com/Kaviyasree25/FinClear-Engine/internal/pipeline"
	"github.com/Kaviyasree25/FinClear-Engine/internal/screening"
	"github.com/Kaviyasree25/FinClear-Engine/internal/settlement"
	"github.com/Kaviyasree25/FinClear-Engine/pkg/middleware"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main runs the settlement pipeline API with graceful shutdown support.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	router := gin.Default()

	authService := auth.NewService(cfg.Auth.JWTSecret)
	authService.RegisterAPICredentials(cfg.Auth.APIKey, cfg.Auth.APISecret)
	authHandlers := auth.NewGinHandlers(authService)

	// The scoring function and funding signal are external collaborators;
	// the built-in statistical scorer and a simulated funding desk stand in
	// for them here.
	pipelineMetrics := metrics.New()
	pipelineService := pipeline.NewService(
		cfg.Pipeline,
		screening.DeviationScorer{},
		simulatedFunding(),
		db,
		pipelineMetrics,
	)
	pipelineHandlers := pipeline.NewGinHandlers(pipelineService)
	settlementHandlers := settlement.NewGinHandlers(pipelineService.Tracker())

	router.Use(middleware.RateLimit())
	setupRoutes(router, cfg, authHandlers, pipelineHandlers, settlementHandlers, pipelineMetrics)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// simulatedFunding is a stand-in funding-confirmation signal that confirms
// most obligations, the way a funding desk with occasional shortfalls would.
func simulatedFunding() settlement.FundingSource {
	return settlement.FundingFunc(func(_ context.Context, _ string) (bool, error) {
		return rand.Intn(100) < 95, nil
	})
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Batch and settlement routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	cfg config.Config,
	authHandlers *auth.GinHandlers,
	pipelineHandlers *pipeline.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
	m *metrics.Metrics,
) {
	secret := []byte(cfg.Auth.JWTSecret)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		batches := v1.Group("/batches")
		batches.Use(middleware.JWTAuth(secret))
		{
			batches.POST("", pipelineHandlers.SubmitBatchHandler())
			batches.GET("/:batch_id", pipelineHandlers.GetBatchHandler())
			batches.GET("/:batch_id/settlements", settlementHandlers.GetBatchRecordsHandler())
		}

		settlements := v1.Group("/settlements")
		settlements.Use(middleware.JWTAuth(secret))
		{
			settlements.GET("", settlementHandlers.GetCounterpartyRecordsHandler())
			settlements.GET("/:record_id", settlementHandlers.GetRecordHandler())
			settlements.GET("/:record_id/history", settlementHandlers.GetHistoryHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(secret))
		{
			internal.POST("/settlements/:record_id/funding", settlementHandlers.FundingResultHandler())
		}
	}
}
