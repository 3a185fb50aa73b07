// Package server assembles the chat turn service and serves it over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hrygo/chatturn/internal/profile"
	"github.com/hrygo/chatturn/internal/settings"
	"github.com/hrygo/chatturn/plugin/ai"
	"github.com/hrygo/chatturn/plugin/ai/agent"
	"github.com/hrygo/chatturn/plugin/ai/provider"
	"github.com/hrygo/chatturn/plugin/ai/safety"
	"github.com/hrygo/chatturn/plugin/ai/search"
	"github.com/hrygo/chatturn/server/chat"
	"github.com/hrygo/chatturn/server/internal/observability"
	apiv1 "github.com/hrygo/chatturn/server/router/api/v1"
	"github.com/hrygo/chatturn/store"
	"github.com/hrygo/chatturn/store/cache"
	"github.com/hrygo/chatturn/store/db"
)

type Server struct {
	Profile  *profile.Profile
	Store    *store.Store
	Settings *settings.Handle
	Chat     *chat.Service

	echoServer *echo.Echo
	registry   *prometheus.Registry
}

// NewServer opens the store, runs migrations and wires the turn pipeline.
func NewServer(ctx context.Context, profile *profile.Profile) (*Server, error) {
	driver, err := db.NewDBDriver(profile)
	if err != nil {
		return nil, err
	}
	storeInstance := store.New(driver, profile, newSettingsCache(ctx, profile))
	if err := storeInstance.Migrate(ctx); err != nil {
		_ = storeInstance.Close()
		return nil, errors.Wrap(err, "failed to migrate")
	}

	handle, err := settings.NewHandle(ctx, settings.NewFileSource(profile.SettingsFile))
	if err != nil {
		_ = storeInstance.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	chatService, err := newChatService(profile, storeInstance, handle, observability.NewMetrics(registry))
	if err != nil {
		_ = storeInstance.Close()
		return nil, err
	}

	s := &Server{
		Profile:    profile,
		Store:      storeInstance,
		Settings:   handle,
		Chat:       chatService,
		echoServer: echo.New(),
		registry:   registry,
	}
	s.echoServer.HideBanner = true
	s.echoServer.HidePort = true
	s.echoServer.Use(middleware.Recover())

	apiV1Service := apiv1.NewAPIV1Service(profile, chatService, handle, registry)
	if err := apiV1Service.RegisterGateway(ctx, s.echoServer); err != nil {
		_ = storeInstance.Close()
		return nil, errors.Wrap(err, "failed to register api v1")
	}
	return s, nil
}

// newSettingsCache builds the user settings cache, with Redis as L2 when configured.
// An unreachable Redis degrades to the in-process tier.
func newSettingsCache(ctx context.Context, profile *profile.Profile) *cache.TieredCache {
	if profile.RedisAddr == "" {
		return cache.NewTieredCache(cache.DefaultTieredConfig(), nil)
	}
	redisConfig := cache.RedisConfigFromEnv()
	redisConfig.Addr = profile.RedisAddr
	redisCache, err := cache.NewRedisCache(ctx, redisConfig)
	if err != nil {
		slog.Warn("redis unavailable, using in-process cache only",
			slog.String("addr", profile.RedisAddr), slog.String("error", err.Error()))
		return cache.NewTieredCache(cache.DefaultTieredConfig(), nil)
	}
	return cache.NewTieredCache(cache.DefaultTieredConfig(), redisCache)
}

func newChatService(profile *profile.Profile, storeInstance *store.Store, handle *settings.Handle, metrics *observability.Metrics) (*chat.Service, error) {
	aiConfig := ai.NewConfigFromProfile(profile)
	if err := aiConfig.Validate(); err != nil {
		slog.Warn("model configuration incomplete, turns will fall back", slog.String("error", err.Error()))
	}

	deps := provider.Deps{
		Completion: ai.NewCompletionClient(&aiConfig.Completion),
		KernelFor: func(model string) (ai.LLMService, error) {
			cfg := aiConfig.Kernel
			cfg.Model = model
			return ai.NewLLMService(&cfg)
		},
	}
	if kernel, err := ai.NewLLMService(&aiConfig.Kernel); err != nil {
		slog.Warn("kernel unavailable", slog.String("provider", aiConfig.Kernel.Provider), slog.String("error", err.Error()))
	} else {
		deps.Kernel = kernel
	}

	registry := provider.NewRegistry()
	if err := agent.RegisterBuiltins(registry); err != nil {
		return nil, err
	}

	cfg := chat.Config{
		Store:    storeInstance,
		Settings: handle,
		Registry: registry,
		Deps:     deps,
		AgentServiceEnv: provider.Spec{
			Endpoint: profile.AgentServiceEndpoint,
			Project:  profile.AgentServiceProject,
			AgentID:  profile.AgentServiceAgentID,
			APIKey:   profile.AgentServiceKey,
		},
		Images:  ai.NewImageGenerator(&aiConfig.Completion),
		Names:   chat.StoreNames{Users: storeInstance},
		Metrics: metrics,
	}

	if embedder, err := ai.NewEmbeddingService(&aiConfig.Embedding); err != nil {
		slog.Warn("embedding unavailable, hybrid search disabled", slog.String("error", err.Error()))
	} else {
		cfg.Hybrid = search.NewHybridSearcher(embedder, storeInstance)
	}
	if profile.WebSearchEndpoint != "" {
		web, err := search.NewWebClient(search.WebConfig{
			Endpoint: profile.WebSearchEndpoint,
			Key:      profile.WebSearchKey,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create web search client")
		}
		cfg.Web = web
	}
	if profile.ContentSafetyEndpoint != "" {
		checker, err := safety.NewHTTPChecker(safety.Config{
			Endpoint: profile.ContentSafetyEndpoint,
			Key:      profile.ContentSafetyKey,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create content safety checker")
		}
		cfg.Safety = checker
	}

	return chat.NewService(cfg)
}

// Start serves HTTP until ctx is done or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.echoServer.Listener = listener
	slog.Info("chatturn started", slog.String("address", listener.Addr().String()), slog.String("mode", s.Profile.Mode))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops accepting requests, waits for in-flight turns and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", slog.String("error", err.Error()))
	}
	slog.Info("chatturn stopped properly")
}
