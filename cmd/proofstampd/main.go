package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ProofStamp/internal/api"
	"github.com/jmerrifield20/ProofStamp/internal/app"
	"github.com/jmerrifield20/ProofStamp/internal/auth"
	"github.com/jmerrifield20/ProofStamp/internal/config"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	bootLogger, _ := zap.NewProduction()

	cfg, err := config.Load(viper.New(), os.Getenv("PROOFSTAMP_CONFIG"), bootLogger)
	if err != nil {
		bootLogger.Fatal("load config", zap.Error(err))
	}

	logger, err := config.NewLogger(cfg.Log.Development)
	if err != nil {
		bootLogger.Fatal("build logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("proofstampd exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Components ───────────────────────────────────────────────────────────
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	go a.Health.Start(ctx)

	// ── Admin tokens ─────────────────────────────────────────────────────────
	issuerURL := cfg.Server.IssuerURL
	if issuerURL == "" {
		issuerURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	var admin *auth.Issuer
	if cfg.Server.AdminSecret != "" {
		admin, err = auth.NewIssuer(cfg.Server.AdminSecret, issuerURL, 0)
		if err != nil {
			return fmt.Errorf("admin tokens: %w", err)
		}
	}

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(ctx, api.RouterConfig{
		CORSOrigins:        cfg.Server.CORSOrigins,
		RateLimitRPS:       cfg.Server.RateLimitRPS,
		VerifyRateLimitRPS: cfg.Server.VerifyRPS,
		Admin:              admin,
		Readiness:          a.Health,
	}, api.NewHandler(a.Verifier, a.Recorder, logger), logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("proofstampd HTTP listening",
			zap.Int("port", cfg.Server.Port),
			zap.Bool("ledger", a.Recorder.LedgerConfigured()),
			zap.Bool("admin", admin != nil),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP listen: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down proofstampd...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	return nil
}
