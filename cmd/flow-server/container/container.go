package container

import (
	"context"
	"fmt"

	"github.com/lyzr/flow/cmd/flow-server/repository"
	"github.com/lyzr/flow/cmd/flow-server/service"
	"github.com/lyzr/flow/common/bootstrap"
	"github.com/lyzr/flow/common/expr"
	"github.com/lyzr/flow/common/nodes"
	"github.com/lyzr/flow/common/ratelimit"
	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/runner"
)

// Container holds all initialized services and repositories (singleton
// pattern). Stores are selected by configuration: Postgres when a database
// is wired, in-memory otherwise.
type Container struct {
	Components *bootstrap.Components

	// Engine
	Registry *registry.Registry
	Engine   *expr.Engine
	Runner   *runner.Runner

	// Repositories
	WorkflowStore  repository.WorkflowStore
	ExecutionStore repository.ExecutionStore

	// Services
	Hooks           *service.ErrorHookRegistry
	Publisher       *service.EventPublisher
	WorkflowService *service.WorkflowService
	RunService      *service.RunService
	Scheduler       *service.Scheduler
}

// NewContainer initializes all services and repositories once, bottom-up.
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config

	reg := registry.New()
	if err := nodes.RegisterAll(reg, nodes.Options{
		MaxWait:            cfg.Engine.MaxWaitDuration,
		CodeTimeout:        cfg.Engine.CodeTimeout,
		CodePayloadLimitMB: cfg.Engine.CodePayloadLimitMB,
		HTTPTimeout:        cfg.Engine.HTTPTimeout,
		Guard:              nodes.NewGuard(cfg.Security.AllowPrivateHosts, cfg.Security.BlockedHosts),
		LLM: nodes.LLMOptions{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to register node types: %w", err)
	}

	engine, err := expr.New()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression engine: %w", err)
	}
	flowRunner := runner.New(reg, engine, components.Logger, cfg.Engine.MaxSteps)

	var workflowStore repository.WorkflowStore
	var executionStore repository.ExecutionStore
	if components.DB != nil {
		workflowStore = repository.NewPGWorkflowStore(components.DB)
		executionStore = repository.NewPGExecutionStore(components.DB)
	} else {
		workflowStore = repository.NewMemoryWorkflowStore()
		executionStore = repository.NewMemoryExecutionStore()
	}

	hooks := service.NewErrorHookRegistry()
	publisher := service.NewEventPublisher(components.Redis, components.Logger)

	// Run admission needs Redis for its counters; without it the limiter
	// stays nil and every run is admitted.
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled && components.Redis != nil {
		limiter = ratelimit.New(components.Redis.GetUnderlying(), cfg.RateLimit.GlobalPerMin, components.Logger)
		components.Logger.Info("run admission enabled", "global_per_min", cfg.RateLimit.GlobalPerMin)
	}

	workflowService := service.NewWorkflowService(workflowStore, components.Cache, hooks, components.Logger)
	runService := service.NewRunService(
		flowRunner,
		workflowService,
		executionStore,
		publisher,
		hooks,
		limiter,
		components.Logger,
	)
	scheduler := service.NewScheduler(
		components.Queue,
		workflowService,
		runService,
		components.Redis,
		cfg.Scheduler.PollInterval,
		components.Logger,
	)

	// Definition changes re-scan cron triggers without waiting for the
	// polling interval.
	if cfg.Scheduler.Enabled {
		workflowService.OnChange(func() {
			go scheduler.Refresh(context.Background())
		})
	}

	return &Container{
		Components:      components,
		Registry:        reg,
		Engine:          engine,
		Runner:          flowRunner,
		WorkflowStore:   workflowStore,
		ExecutionStore:  executionStore,
		Hooks:           hooks,
		Publisher:       publisher,
		WorkflowService: workflowService,
		RunService:      runService,
		Scheduler:       scheduler,
	}, nil
}
