// Package server initializes and runs the filesoldier API server.
// It wires the database, object storage presigning, rate limiting, and
// verification into the HTTP API and handles graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/speakingcat21/filesoldier/internal/logging"
	"github.com/speakingcat21/filesoldier/internal/server/config"
	"github.com/speakingcat21/filesoldier/internal/server/httpapi"
	"github.com/speakingcat21/filesoldier/internal/server/ratelimit"
	"github.com/speakingcat21/filesoldier/internal/server/repositories/repomanager"
	"github.com/speakingcat21/filesoldier/internal/server/services"
	"github.com/speakingcat21/filesoldier/internal/server/verification"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	handler http.Handler
	limiter *ratelimit.Limiter
}

func NewApp(c *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	rm, err := repomanager.NewPostgresRepositoryManager(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	var verifier verification.Verifier = verification.NopVerifier{}
	if c.VerificationEndpoint != "" {
		verifier = verification.NewHTTPVerifier(c.VerificationEndpoint, c.VerificationSecret)
	}

	limiter := ratelimit.New(c.RateLimitMax, c.RateLimitWindow)

	fileService := services.NewFileService(rm.Conn(), rm, c)
	accessService := services.NewAccessService(rm.Conn(), rm, c, fileService, limiter, verifier, logger)

	handler := httpapi.New(fileService, accessService, logger)

	return &App{config: c, logger: logger, handler: handler, limiter: limiter}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddrHTTP)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// startLimiterJanitor prunes stale rate-limit windows until ctx is done.
func (app *App) startLimiterJanitor(ctx context.Context) {
	ticker := time.NewTicker(app.config.RateLimitWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.limiter.Prune()
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startLimiterJanitor(ctx)
	}()

	wg.Wait()

}
