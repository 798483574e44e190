// Package http provides the HTTP server implementation for the router.
package http

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/gogo/ragrouter/config"
	"github.com/xiaot623/gogo/ragrouter/internal/observability"
	"github.com/xiaot623/gogo/ragrouter/internal/service"
	v1 "github.com/xiaot623/gogo/ragrouter/internal/transport/http/v1"
	"github.com/xiaot623/gogo/ragrouter/internal/transport/ws"
)

// NewServer creates and configures the public HTTP server: the /v1 API, the
// chat WebSocket, health and metrics.
func NewServer(svc *service.Service, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = v1.RequestValidator{}

	// Middleware
	e.Use(requestLogger(slog.Default().With("component", "http")))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowHeaders:  []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-API-Key"},
		ExposeHeaders: []string{v1.HeaderSessionID},
	}))

	// Handlers
	v1Handler := v1.NewHandler(svc)
	wsServer := ws.NewServer(svc, ws.Options{
		PingInterval:   cfg.WSPingInterval,
		WriteTimeout:   cfg.WSWriteTimeout,
		ReadTimeout:    cfg.WSReadTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
	})

	// Register Routes
	api := e.Group("/v1")
	if cfg.APIKey != "" {
		api.Use(apiKeyAuth(cfg.APIKey))
	}
	v1Handler.RegisterRoutes(api)
	api.GET("/chat/ws", wsServer.HandleWebSocket)

	e.GET("/health", v1Handler.Health)
	e.GET("/metrics", echo.WrapHandler(observability.Handler()))

	return e
}

// apiKeyAuth checks the X-API-Key header. Browsers cannot set headers on a
// WebSocket upgrade, so the api_key query parameter is accepted too.
func apiKeyAuth(key string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:X-API-Key,query:api_key",
		Validator: func(got string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(got), []byte(key)) == 1, nil
		},
	})
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(context.Background(), level, "request", attrs...)
			return nil
		},
	})
}
