package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/chatturn/internal/profile"
	"github.com/hrygo/chatturn/internal/settings"
	"github.com/hrygo/chatturn/server/chat"
	servermiddleware "github.com/hrygo/chatturn/server/middleware"
)

// TurnService runs one chat turn. *chat.Service satisfies it.
type TurnService interface {
	SubmitTurn(ctx context.Context, req *chat.TurnRequest) (*chat.TurnResult, error)
}

// SettingsReloader swaps the settings snapshot. *settings.Handle satisfies it.
type SettingsReloader interface {
	Reload(ctx context.Context) (*settings.Snapshot, error)
}

type APIV1Service struct {
	Profile  *profile.Profile
	Chat     TurnService
	Settings SettingsReloader
	// Gatherer backs /metrics and the metrics overview.
	Gatherer prometheus.Gatherer

	limiter *servermiddleware.RateLimiter
}

func NewAPIV1Service(profile *profile.Profile, chatService TurnService, reloader SettingsReloader, gatherer prometheus.Gatherer) *APIV1Service {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &APIV1Service{
		Profile:  profile,
		Chat:     chatService,
		Settings: reloader,
		Gatherer: gatherer,
		limiter: servermiddleware.NewRateLimiter(servermiddleware.RateLimitConfig{
			RequestsPerSecond: profile.TurnRateLimit,
			Burst:             profile.TurnRateBurst,
		}),
	}
}

// RegisterGateway registers the chat API routes with the given Echo instance.
func (s *APIV1Service) RegisterGateway(_ context.Context, echoServer *echo.Echo) error {
	apiGroup := echoServer.Group("/api/v1", middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, servermiddleware.UserIDHeader},
	}))
	apiGroup.POST("/chat/turns", s.SubmitTurn, s.limiter.Middleware())
	apiGroup.POST("/settings/reload", s.ReloadSettings)
	apiGroup.GET("/system/metrics/overview", s.GetMetricsOverview)

	echoServer.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	return nil
}
