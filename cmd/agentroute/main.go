// Command agentroute serves the agents described by a YAML configuration
// file over HTTP.
//
//	agentroute -config agents.yaml -addr :8080
//
// Variables from a .env file in the working directory are loaded before the
// configuration is read, so ${OPENAI_API_KEY} style references resolve.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/hupe1980/agentroute/config"
	"github.com/hupe1980/agentroute/engine"
	"github.com/hupe1980/agentroute/logging"
	"github.com/hupe1980/agentroute/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "agentroute:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "agentroute.yaml", "path to the configuration file")
	addr := flag.String("addr", "", "listen address (overrides server.addr)")
	flag.Parse()

	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := logging.NewLogger(cfg.LoggerConfig())

	graph, err := config.Build(cfg, func(o *config.BuildOptions) { o.Logger = logger })
	if err != nil {
		return err
	}

	eng := engine.New(func(o *engine.Options) {
		o.Config.MaxConcurrentInvocations = cfg.Engine.MaxConcurrentInvocations
		o.Logger = logger
		o.Callbacks = engine.NewCallbackManager()
		o.Callbacks.RegisterCallback(engine.NewLoggingCallback(engine.CallbackOnError, logger))
	})
	if err := graph.Register(eng); err != nil {
		return err
	}

	srv := server.New(eng, func(o *server.Options) {
		o.RateLimit = rate.Limit(cfg.Server.RateLimit.RequestsPerSecond)
		o.Burst = cfg.Server.RateLimit.Burst
		o.Logger = logger
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.start", "addr", cfg.Server.Addr, "agents", len(graph.Exposed))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server.shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}
