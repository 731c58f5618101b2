package service_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flow/cmd/flow-server/models"
	"github.com/lyzr/flow/cmd/flow-server/repository"
	"github.com/lyzr/flow/cmd/flow-server/service"
	"github.com/lyzr/flow/common/cache"
	"github.com/lyzr/flow/common/expr"
	"github.com/lyzr/flow/common/nodes"
	"github.com/lyzr/flow/common/ratelimit"
	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/runner"
	"github.com/lyzr/flow/common/workflow"
)

type runFixture struct {
	workflows  *service.WorkflowService
	runs       *service.RunService
	executions *repository.MemoryExecutionStore
	hooks      *service.ErrorHookRegistry
}

func newRunFixture(t *testing.T, limiter *ratelimit.Limiter) *runFixture {
	t.Helper()

	reg := registry.New()
	require.NoError(t, nodes.RegisterAll(reg, nodes.Options{}))
	engine, err := expr.New()
	require.NoError(t, err)
	log := testLogger()

	hooks := service.NewErrorHookRegistry()
	executions := repository.NewMemoryExecutionStore()
	workflows := service.NewWorkflowService(
		repository.NewMemoryWorkflowStore(),
		cache.NewMemoryCache(log),
		hooks,
		log,
	)
	runs := service.NewRunService(
		runner.New(reg, engine, log, 0),
		workflows,
		executions,
		service.NewEventPublisher(nil, log),
		hooks,
		limiter,
		log,
	)
	return &runFixture{workflows: workflows, runs: runs, executions: executions, hooks: hooks}
}

func TestStartNodeFor(t *testing.T) {
	def := &workflow.Workflow{
		Nodes: []workflow.Node{
			{Name: "Hook", Type: nodes.TypeWebhook},
			{Name: "Begin", Type: nodes.TypeStart},
			{Name: "Worker", Type: nodes.TypeSet},
		},
	}

	name, err := service.StartNodeFor(def, "Worker")
	require.NoError(t, err)
	assert.Equal(t, "Worker", name, "an explicit start node wins")

	name, err = service.StartNodeFor(def, "")
	require.NoError(t, err)
	assert.Equal(t, "Begin", name, "start outranks webhook")

	webhookOnly := &workflow.Workflow{
		Nodes: []workflow.Node{{Name: "Hook", Type: nodes.TypeWebhook}},
	}
	name, err = service.StartNodeFor(webhookOnly, "")
	require.NoError(t, err)
	assert.Equal(t, "Hook", name)

	noTrigger := &workflow.Workflow{
		Nodes: []workflow.Node{{Name: "Worker", Type: nodes.TypeSet}},
	}
	_, err = service.StartNodeFor(noTrigger, "")
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestRunSavedPersistsExecution(t *testing.T) {
	f := newRunFixture(t, nil)
	record := createWorkflow(t, f.workflows, "orders")

	exec, err := f.runs.RunSaved(context.Background(), record.ID, &models.RunWorkflowRequest{}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, exec.Status)
	assert.Equal(t, record.ID, exec.WorkflowID)
	assert.Equal(t, workflow.ModeManual, exec.Mode)
	assert.Equal(t, "Prepare", exec.LastNode)
	require.Len(t, exec.NodeData["Prepare"], 1)
	assert.Equal(t, "hello", exec.NodeData["Prepare"][0].JSON["greeting"])

	stored, err := f.runs.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.Status, stored.Status)

	listed, err := f.runs.ListExecutions(context.Background(), record.ID, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, exec.ID, listed[0].ID)
}

func TestRunSavedUnknownWorkflow(t *testing.T) {
	f := newRunFixture(t, nil)

	_, err := f.runs.RunSaved(context.Background(), "nope", &models.RunWorkflowRequest{}, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRunAdhocValidatesDefinition(t *testing.T) {
	f := newRunFixture(t, nil)

	_, err := f.runs.RunAdhoc(context.Background(), &models.AdhocRunRequest{
		Workflow: workflow.Workflow{
			Name:  "broken",
			Nodes: []workflow.Node{{Name: "Dup", Type: nodes.TypeStart}, {Name: "Dup", Type: nodes.TypeSet}},
		},
	}, nil)
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)

	ns, cs := twoNodeDefinition()
	exec, err := f.runs.RunAdhoc(context.Background(), &models.AdhocRunRequest{
		Workflow: workflow.Workflow{Name: "scratch", Nodes: ns, Connections: cs},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, exec.Status)
	assert.Equal(t, "scratch", exec.WorkflowName)
}

func TestRunForWebhookDeliversItems(t *testing.T) {
	f := newRunFixture(t, nil)

	record, err := f.workflows.Create(context.Background(), &models.CreateWorkflowRequest{
		Name: "inbound",
		Nodes: []workflow.Node{
			{Name: "Hook", Type: nodes.TypeWebhook},
			{Name: "Tag", Type: nodes.TypeSet, Parameters: map[string]interface{}{
				"values": []interface{}{
					map[string]interface{}{"name": "handled", "value": true},
				},
			}},
		},
		Connections: []workflow.Connection{
			{SourceNode: "Hook", SourceOutput: workflow.PortMain, TargetNode: "Tag", TargetInput: workflow.PortMain},
		},
	})
	require.NoError(t, err)

	payload := []workflow.Item{workflow.ItemOf(map[string]interface{}{"order": "A-1"})}
	exec, err := f.runs.RunForWebhook(context.Background(), record.ID, payload)
	require.NoError(t, err)

	assert.Equal(t, workflow.ModeWebhook, exec.Mode)
	require.Len(t, exec.NodeData["Tag"], 1)
	assert.Equal(t, "A-1", exec.NodeData["Tag"][0].JSON["order"])
	assert.Equal(t, true, exec.NodeData["Tag"][0].JSON["handled"])
}

func TestRunForWebhookRequiresWebhookNode(t *testing.T) {
	f := newRunFixture(t, nil)
	record := createWorkflow(t, f.workflows, "no-hook")

	_, err := f.runs.RunForWebhook(context.Background(), record.ID, nil)
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "no webhook node")
}

// TestErrorHookRunsHandlerWorkflow fails a run and expects the registered
// handler workflow to execute with the failure summary as its input.
func TestErrorHookRunsHandlerWorkflow(t *testing.T) {
	f := newRunFixture(t, nil)
	ctx := context.Background()

	handler, err := f.workflows.Create(ctx, &models.CreateWorkflowRequest{
		Name: "notify",
		Nodes: []workflow.Node{
			{Name: "On Error", Type: nodes.TypeErrorTrigger},
			{Name: "Record", Type: nodes.TypeSet, Parameters: map[string]interface{}{
				"values": []interface{}{
					map[string]interface{}{"name": "notified", "value": true},
				},
			}},
		},
		Connections: []workflow.Connection{
			{SourceNode: "On Error", SourceOutput: workflow.PortMain, TargetNode: "Record", TargetInput: workflow.PortMain},
		},
	})
	require.NoError(t, err)

	guarded, err := f.workflows.Create(ctx, &models.CreateWorkflowRequest{
		Name: "fragile",
		Nodes: []workflow.Node{
			{Name: "Start", Type: nodes.TypeStart},
			{Name: "Boom", Type: nodes.TypeCode, Parameters: map[string]interface{}{
				"code": `throw new Error("boom");`,
			}},
		},
		Connections: []workflow.Connection{
			{SourceNode: "Start", SourceOutput: workflow.PortMain, TargetNode: "Boom", TargetInput: workflow.PortMain},
		},
		ErrorWorkflowID: handler.ID,
	})
	require.NoError(t, err)

	exec, err := f.runs.RunSaved(ctx, guarded.ID, &models.RunWorkflowRequest{}, nil)
	require.NoError(t, err, "a failed run still returns its record")
	assert.Equal(t, models.StatusError, exec.Status)
	require.NotEmpty(t, exec.Errors)
	assert.Equal(t, "Boom", exec.Errors[0].NodeName)

	handlerRuns, err := f.runs.ListExecutions(ctx, handler.ID, 10)
	require.NoError(t, err)
	require.Len(t, handlerRuns, 1, "the error workflow must have run once")

	handlerRun := handlerRuns[0]
	assert.Equal(t, models.StatusSuccess, handlerRun.Status)
	assert.Equal(t, workflow.ModeWebhook, handlerRun.Mode)

	// The errorTrigger node received the failure summary.
	trigger := handlerRun.NodeData["On Error"]
	require.Len(t, trigger, 1)
	assert.Equal(t, guarded.ID, trigger[0].JSON["workflowId"])
	assert.Equal(t, exec.ID, trigger[0].JSON["executionId"])
	assert.NotEmpty(t, trigger[0].JSON["errors"])
}

// TestErrorHookDoesNotCascade registers a handler whose own run fails and
// whose errorWorkflowId points at itself. The failing handler must not
// retrigger hooks.
func TestErrorHookDoesNotCascade(t *testing.T) {
	f := newRunFixture(t, nil)
	ctx := context.Background()

	handler, err := f.workflows.Create(ctx, &models.CreateWorkflowRequest{
		Name: "broken-notify",
		Nodes: []workflow.Node{
			{Name: "On Error", Type: nodes.TypeErrorTrigger},
			{Name: "Also Boom", Type: nodes.TypeCode, Parameters: map[string]interface{}{
				"code": `throw new Error("handler broke too");`,
			}},
		},
		Connections: []workflow.Connection{
			{SourceNode: "On Error", SourceOutput: workflow.PortMain, TargetNode: "Also Boom", TargetInput: workflow.PortMain},
		},
	})
	require.NoError(t, err)
	f.hooks.Set(handler.ID, handler.ID)

	guarded, err := f.workflows.Create(ctx, &models.CreateWorkflowRequest{
		Name: "fragile",
		Nodes: []workflow.Node{
			{Name: "Start", Type: nodes.TypeStart},
			{Name: "Boom", Type: nodes.TypeCode, Parameters: map[string]interface{}{
				"code": `throw new Error("boom");`,
			}},
		},
		Connections: []workflow.Connection{
			{SourceNode: "Start", SourceOutput: workflow.PortMain, TargetNode: "Boom", TargetInput: workflow.PortMain},
		},
		ErrorWorkflowID: handler.ID,
	})
	require.NoError(t, err)

	_, err = f.runs.RunSaved(ctx, guarded.ID, &models.RunWorkflowRequest{}, nil)
	require.NoError(t, err)

	handlerRuns, err := f.runs.ListExecutions(ctx, handler.ID, 10)
	require.NoError(t, err)
	require.Len(t, handlerRuns, 1, "the failing handler must run once and never re-enter")
	assert.Equal(t, models.StatusError, handlerRuns[0].Status)
}

func TestRunSavedRejectedByLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	// Global window of 1 run per minute: the second run must bounce.
	limiter := ratelimit.New(client, 1, testLogger())
	f := newRunFixture(t, limiter)
	record := createWorkflow(t, f.workflows, "throttled")

	_, err := f.runs.RunSaved(context.Background(), record.ID, &models.RunWorkflowRequest{}, nil)
	require.NoError(t, err)

	_, err = f.runs.RunSaved(context.Background(), record.ID, &models.RunWorkflowRequest{}, nil)
	var lerr *ratelimit.LimitError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "global", lerr.Scope)

	// Rejected runs never reach the engine, so only one record exists.
	listed, err := f.runs.ListExecutions(context.Background(), record.ID, 10)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}
