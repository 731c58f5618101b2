package ratelimit

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/flow/common/nodes"
	"github.com/lyzr/flow/common/workflow"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

func newTestLimiter(t *testing.T, globalLimit int64) (*Limiter, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, globalLimit, nopLogger{}), client
}

func workflowWithLLMNodes(id string, llmCount int, disabled int) *workflow.Workflow {
	wf := &workflow.Workflow{
		ID:    id,
		Name:  "tiered",
		Nodes: []workflow.Node{{Name: "Start", Type: nodes.TypeStart}},
	}
	for i := 0; i < llmCount; i++ {
		wf.Nodes = append(wf.Nodes, workflow.Node{
			Name: fmt.Sprintf("Ask %d", i), Type: nodes.TypeLLMChat,
		})
	}
	for i := 0; i < disabled; i++ {
		wf.Nodes = append(wf.Nodes, workflow.Node{
			Name: fmt.Sprintf("Off %d", i), Type: nodes.TypeAIAgent, Disabled: true,
		})
	}
	return wf
}

func TestInspectTiers(t *testing.T) {
	tests := []struct {
		name     string
		llm      int
		disabled int
		want     Tier
	}{
		{"no llm nodes", 0, 0, TierSimple},
		{"one llm node", 1, 0, TierStandard},
		{"two llm nodes", 2, 0, TierStandard},
		{"three llm nodes", 3, 0, TierHeavy},
		{"disabled llm nodes cost nothing", 0, 4, TierSimple},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := Inspect(workflowWithLLMNodes("wf", tt.llm, tt.disabled))
			assert.Equal(t, tt.want, profile.Tier)
			assert.Equal(t, tt.llm, profile.LLMNodes)
		})
	}
}

func TestAllowRunWorkflowWindow(t *testing.T) {
	limiter, _ := newTestLimiter(t, 0)
	wf := workflowWithLLMNodes("wf-heavy", 3, 0)
	ctx := context.Background()

	for i := 0; i < int(LimitForTier(TierHeavy)); i++ {
		require.NoError(t, limiter.AllowRun(ctx, wf), "run %d should be admitted", i)
	}

	err := limiter.AllowRun(ctx, wf)
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "workflow", limitErr.Scope)
	assert.Equal(t, LimitForTier(TierHeavy), limitErr.Limit)
	assert.Equal(t, int64(60), limitErr.RetryAfterSeconds)
}

func TestAllowRunGlobalWindow(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	ctx := context.Background()

	// Two different workflows so the per-workflow windows stay clear.
	require.NoError(t, limiter.AllowRun(ctx, workflowWithLLMNodes("wf-a", 0, 0)))
	require.NoError(t, limiter.AllowRun(ctx, workflowWithLLMNodes("wf-b", 0, 0)))

	err := limiter.AllowRun(ctx, workflowWithLLMNodes("wf-c", 0, 0))
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "global", limitErr.Scope)
}

func TestAllowRunIsolatesWorkflows(t *testing.T) {
	limiter, _ := newTestLimiter(t, 0)
	ctx := context.Background()

	exhausted := workflowWithLLMNodes("wf-busy", 3, 0)
	for i := 0; i < int(LimitForTier(TierHeavy)); i++ {
		require.NoError(t, limiter.AllowRun(ctx, exhausted))
	}
	require.Error(t, limiter.AllowRun(ctx, exhausted))

	// A different workflow keeps its own budget.
	assert.NoError(t, limiter.AllowRun(ctx, workflowWithLLMNodes("wf-idle", 3, 0)))
}

func TestAllowRunFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := New(client, 10, nopLogger{})

	mr.Close()

	assert.NoError(t, limiter.AllowRun(context.Background(), workflowWithLLMNodes("wf", 0, 0)))
}

func TestNilLimiterAdmitsEverything(t *testing.T) {
	var limiter *Limiter
	assert.NoError(t, limiter.AllowRun(context.Background(), workflowWithLLMNodes("wf", 3, 0)))
}

func TestCurrentCountAndReset(t *testing.T) {
	limiter, _ := newTestLimiter(t, 0)
	ctx := context.Background()
	wf := workflowWithLLMNodes("wf-count", 0, 0)

	require.NoError(t, limiter.AllowRun(ctx, wf))
	require.NoError(t, limiter.AllowRun(ctx, wf))

	key := fmt.Sprintf("rate_limit:workflow:%s:tier:%s", wf.ID, TierSimple)
	count, err := limiter.CurrentCount(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, limiter.Reset(ctx, key))
	count, err = limiter.CurrentCount(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, count)
}
