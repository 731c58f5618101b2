package service

import (
	"context"
	"time"

	"github.com/lyzr/flow/cmd/flow-server/models"
	"github.com/lyzr/flow/cmd/flow-server/repository"
	"github.com/lyzr/flow/common/logger"
	"github.com/lyzr/flow/common/nodes"
	"github.com/lyzr/flow/common/ratelimit"
	"github.com/lyzr/flow/common/runner"
	"github.com/lyzr/flow/common/workflow"
)

// detachedRunTimeout bounds runs the queue consumer executes outside any
// HTTP request lifetime.
const detachedRunTimeout = 10 * time.Minute

// RunService executes workflows through the engine, persists the outcome and
// fires error-handler workflows for failed runs.
type RunService struct {
	runner     *runner.Runner
	workflows  *WorkflowService
	executions repository.ExecutionStore
	publisher  *EventPublisher
	hooks      *ErrorHookRegistry
	limiter    *ratelimit.Limiter
	log        *logger.Logger
}

// NewRunService wires the run path. limiter may be nil, which admits every
// run.
func NewRunService(
	engine *runner.Runner,
	workflows *WorkflowService,
	executions repository.ExecutionStore,
	publisher *EventPublisher,
	hooks *ErrorHookRegistry,
	limiter *ratelimit.Limiter,
	log *logger.Logger,
) *RunService {
	return &RunService{
		runner:     engine,
		workflows:  workflows,
		executions: executions,
		publisher:  publisher,
		hooks:      hooks,
		limiter:    limiter,
		log:        log,
	}
}

// StartNodeFor resolves the entry node for a run: an explicit request wins,
// otherwise the first trigger node in priority order.
func StartNodeFor(def *workflow.Workflow, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, t := range []string{nodes.TypeStart, nodes.TypeWebhook, nodes.TypeCron, nodes.TypeErrorTrigger} {
		if list := def.NodesOfType(t); len(list) > 0 {
			return list[0].Name, nil
		}
	}
	return "", &workflow.ValidationError{Field: "startNode", Reason: "workflow has no trigger node"}
}

// RunSaved executes a stored workflow synchronously. The extra observer, if
// any, receives events alongside the Redis publisher; streaming handlers pass
// their per-request callback here.
func (s *RunService) RunSaved(ctx context.Context, workflowID string, req *models.RunWorkflowRequest, extra runner.Observer) (*models.ExecutionRecord, error) {
	record, err := s.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	def := record.Definition()
	startNode, err := StartNodeFor(def, req.StartNode)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.AllowRun(ctx, def); err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = workflow.ModeManual
	}
	return s.execute(ctx, def, workflowID, startNode, req.Items, mode, extra, true)
}

// RunAdhoc executes an unsaved definition. Nothing is registered for error
// hooks, but the execution record is still persisted.
func (s *RunService) RunAdhoc(ctx context.Context, req *models.AdhocRunRequest, extra runner.Observer) (*models.ExecutionRecord, error) {
	def := &req.Workflow
	if err := def.Validate(); err != nil {
		return nil, err
	}

	startNode, err := StartNodeFor(def, req.StartNode)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.AllowRun(ctx, def); err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = workflow.ModeManual
	}
	return s.execute(ctx, def, def.ID, startNode, req.Items, mode, extra, true)
}

// RunForWebhook delivers an HTTP payload into the workflow's webhook node
// and waits for the run to finish. lastNode response mode needs the full
// outcome, so this path is synchronous.
func (s *RunService) RunForWebhook(ctx context.Context, workflowID string, items []workflow.Item) (*models.ExecutionRecord, error) {
	record, err := s.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	def := record.Definition()
	webhooks := def.NodesOfType(nodes.TypeWebhook)
	if len(webhooks) == 0 {
		return nil, &workflow.ValidationError{Field: "workflow", Reason: "workflow has no webhook node"}
	}
	if err := s.limiter.AllowRun(ctx, def); err != nil {
		return nil, err
	}
	return s.execute(ctx, def, workflowID, webhooks[0].Name, items, workflow.ModeWebhook, nil, true)
}

// GetExecution returns one persisted run record.
func (s *RunService) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	return s.executions.GetByID(ctx, id)
}

// ListExecutions returns a workflow's persisted runs, newest first.
func (s *RunService) ListExecutions(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error) {
	return s.executions.ListByWorkflow(ctx, workflowID, limit)
}

// execute drives one run end to end: compose observers, run the engine,
// persist the record, then fire the error hook when the run failed. The
// engine error return is reserved for runs that never started; the record is
// persisted either way so the failure leaves a trail.
func (s *RunService) execute(ctx context.Context, def *workflow.Workflow, workflowID, startNode string, items []workflow.Item, mode string, extra runner.Observer, fireHooks bool) (*models.ExecutionRecord, error) {
	observer := s.composeObserver(ctx, extra)

	ec, runErr := s.runner.Run(ctx, def, startNode, items, mode, observer)

	record := models.RecordFromContext(ec, workflowID)
	if err := s.executions.Create(ctx, record); err != nil {
		s.log.Error("failed to persist execution record",
			"execution_id", record.ID,
			"workflow_id", workflowID,
			"error", err)
	}

	if fireHooks && ec.Failed() {
		s.fireErrorHook(ctx, workflowID, ec)
	}

	return record, runErr
}

func (s *RunService) composeObserver(ctx context.Context, extra runner.Observer) runner.Observer {
	publish := s.publisher.Observer(ctx)
	if extra == nil {
		return publish
	}
	return func(event runner.Event) {
		publish(event)
		extra(event)
	}
}

// fireErrorHook runs the error-handler workflow registered for workflowID,
// entering at its errorTrigger node with a summary of the failed run.
// Handler failures are logged, never propagated; the handler's own hooks are
// not fired, so a failing handler cannot cascade. Hook runs also bypass the
// admission limiter; a throttled notification would hide the failure it
// reports.
func (s *RunService) fireErrorHook(ctx context.Context, workflowID string, ec *runner.ExecutionContext) {
	if workflowID == "" {
		return
	}
	handlerID, ok := s.hooks.Lookup(workflowID)
	if !ok {
		return
	}

	handler, err := s.workflows.Get(ctx, handlerID)
	if err != nil {
		s.log.Error("error workflow not found",
			"workflow_id", workflowID,
			"error_workflow_id", handlerID,
			"error", err)
		return
	}

	def := handler.Definition()
	triggers := def.NodesOfType(nodes.TypeErrorTrigger)
	if len(triggers) == 0 {
		s.log.Error("error workflow has no errorTrigger node",
			"error_workflow_id", handlerID)
		return
	}

	errs := make([]interface{}, 0, len(ec.Errors))
	for _, e := range ec.Errors {
		errs = append(errs, map[string]interface{}{
			"nodeName":  e.NodeName,
			"message":   e.Message,
			"timestamp": e.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	payload := []workflow.Item{{JSON: map[string]interface{}{
		"workflowId":   workflowID,
		"workflowName": ec.WorkflowName,
		"executionId":  ec.ExecutionID,
		"errors":       errs,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}}}

	s.log.Info("firing error workflow",
		"workflow_id", workflowID,
		"error_workflow_id", handlerID,
		"failed_execution_id", ec.ExecutionID)

	if _, err := s.execute(ctx, def, handlerID, triggers[0].Name, payload, workflow.ModeWebhook, nil, false); err != nil {
		s.log.Error("error workflow failed to start",
			"error_workflow_id", handlerID,
			"error", err)
	}
}
