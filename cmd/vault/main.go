package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pixelvault/vault/cmd/vault/container"
	"github.com/pixelvault/vault/cmd/vault/middleware"
	"github.com/pixelvault/vault/cmd/vault/routes"
	"github.com/pixelvault/vault/common/bootstrap"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, DB, Redis, cache, telemetry)
	components, err := bootstrap.Setup(ctx, "vault")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap vault: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// The always-on service refuses to start without storage credentials;
	// every endpoint it serves needs them.
	if err := components.Config.RequireStorage(); err != nil {
		components.Logger.Error("startup aborted", "error", err)
		os.Exit(1)
	}

	// Initialize service container (all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, components)
	registerRoutes(e, serviceContainer)

	startServer(e, components)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.ExtractOwner())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "vault",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterPipelineRoutes(e, serviceContainer)
	routes.RegisterUploadRoutes(e, serviceContainer)
	routes.RegisterImageRoutes(e, serviceContainer)
}

// startServer starts the Echo server on the configured port
func startServer(e *echo.Echo, components *bootstrap.Components) {
	addr := fmt.Sprintf(":%d", components.Config.Service.Port)
	components.Logger.Info("starting vault service", "addr", addr)

	if err := e.Start(addr); err != nil {
		components.Logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
