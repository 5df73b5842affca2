// Package server assembles the HTTP API. Middleware, route groups, and
// timeouts all come from configuration.
package server

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/willow/config"
	fundingflowroutes "github.com/Ramsey-B/willow/pkg/routes/fundingflow"
	graphroutes "github.com/Ramsey-B/willow/pkg/routes/graph"
	"github.com/Ramsey-B/willow/pkg/routes/health"
	organizationroutes "github.com/Ramsey-B/willow/pkg/routes/organization"
	personroutes "github.com/Ramsey-B/willow/pkg/routes/person"
	pipelineroutes "github.com/Ramsey-B/willow/pkg/routes/pipeline"
)

// New assembles the echo application: request traces, CORS, health
// endpoints, and the versioned API groups.
func New(cfg *config.Config, checker *health.Checker, graphHandler *graphroutes.Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	personroutes.Register(api.Group("/persons"))
	organizationroutes.Register(api.Group("/organizations"))
	fundingflowroutes.Register(api.Group("/funding-flows"))
	pipelineroutes.Register(api.Group("/pipeline"))
	graphHandler.Register(api.Group("/graph"))

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

	return e
}

// Start serves the API on the configured port and blocks until the
// listener closes.
func Start(e *echo.Echo, cfg *config.Config) error {
	return e.Start(fmt.Sprintf(":%d", cfg.Port))
}
