package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/flow/cmd/flow-server/container"
	"github.com/lyzr/flow/cmd/flow-server/handlers"
	"github.com/lyzr/flow/cmd/flow-server/repository"
	"github.com/lyzr/flow/cmd/flow-server/routes"
	"github.com/lyzr/flow/common/bootstrap"
	"github.com/lyzr/flow/common/server"
	"github.com/lyzr/flow/common/telemetry"
)

func main() {
	ctx := context.Background()

	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	components, err := bootstrap.Setup(ctx, "flow-server",
		bootstrap.WithDBInitHook(repository.InitSchema),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap flow-server: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	// Error hooks live in memory; rebuild the registry from the store so
	// registrations survive restarts.
	if err := serviceContainer.WorkflowService.RebuildHooks(ctx); err != nil {
		components.Logger.Warn("failed to rebuild error hooks", "error", err)
	}

	e := setupEcho()
	setupMiddleware(e)
	registerRoutes(e, serviceContainer)

	if port := components.Config.Telemetry.PprofPort; port > 0 {
		profiler := telemetry.New(port, components.Logger)
		profiler.Start()
		defer profiler.Stop(ctx)
	}

	if components.Config.Scheduler.Enabled {
		schedCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := serviceContainer.Scheduler.Start(schedCtx); err != nil {
			components.Logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
		defer serviceContainer.Scheduler.Stop()
	}

	srv := server.New("flow-server", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewRequestValidator()
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(echomw.RequestID())
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterWorkflowRoutes(e, serviceContainer)
	routes.RegisterExecutionRoutes(e, serviceContainer)
	routes.RegisterWebhookRoutes(e, serviceContainer)
	routes.RegisterSystemRoutes(e, serviceContainer)
}
