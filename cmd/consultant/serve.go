package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/siegzhong-maker/knowledge/internal/adapter/llm"
	"github.com/siegzhong-maker/knowledge/internal/cache"
	"github.com/siegzhong-maker/knowledge/internal/config"
	"github.com/siegzhong-maker/knowledge/internal/matcher"
	"github.com/siegzhong-maker/knowledge/internal/observability"
	"github.com/siegzhong-maker/knowledge/internal/policy"
	"github.com/siegzhong-maker/knowledge/internal/service"
	handler "github.com/siegzhong-maker/knowledge/internal/transport/http"
	"github.com/siegzhong-maker/knowledge/internal/transport/ws"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			return run(cmd.Context(), cfg)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return serve
}

func run(ctx context.Context, cfg *config.Config) error {
	observability.Configure(os.Stdout, cfg.Log.Level)
	logger := observability.Logger()

	logger.Info("starting consultant",
		"address", cfg.Server.Address,
		"storage", cfg.Storage.Driver,
		"llm_base_url", cfg.LLM.BaseURL,
		"llm_mode", cfg.LLM.Mode,
	)

	// Initialize store
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	cipher, err := openCipher(cfg)
	if err != nil {
		return err
	}

	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	// Initialize LLM client
	llmClient := llm.NewChatClient(cfg.LLM.Mode, cfg.LLM.BaseURL, cfg.LLM.Timeout)

	// Initialize policy engine
	policyEngine, err := policy.LoadEngine(ctx, cfg.Policy.File)
	if err != nil {
		return err
	}

	// The match cache is optional; without redis every match asks the model.
	var matchCache matcher.Cache
	if cfg.Cache.RedisAddr != "" {
		rdb, err := cache.Conn(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, 5*time.Second)
		if err != nil {
			return err
		}
		defer rdb.Close()
		matchCache = cache.NewMatchCache(rdb, cfg.Cache.TTL)
		logger.Info("match cache enabled", "redis_addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
	}

	svc := service.New(st, cipher, llmClient, policyEngine, matchCache, metrics)

	hub := ws.NewHub()
	e := handler.NewServer(svc, reg, ws.NewServer(cfg.Server, hub, svc))

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("api started", "address", cfg.Server.Address)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down consultant")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.CloseAll()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown server gracefully", "error", err)
	}

	logger.Info("consultant stopped")
	return nil
}
