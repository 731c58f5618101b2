package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lyzr/flow/cmd/flow-server/models"
	"github.com/lyzr/flow/common/logger"
	"github.com/lyzr/flow/common/nodes"
	"github.com/lyzr/flow/common/queue"
	"github.com/lyzr/flow/common/redis"
	"github.com/lyzr/flow/common/workflow"
)

const runRequestTopic = "wf.run.requests"

// RunRequest is the queue message between cron ticks and the run consumer.
type RunRequest struct {
	WorkflowID string `json:"workflowId"`
	StartNode  string `json:"startNode,omitempty"`
	Mode       string `json:"mode"`
}

// Scheduler fires active workflows' cron trigger nodes on schedule. Ticks
// publish run requests onto the queue and a consumer goroutine executes them
// through the run service, so a slow workflow never delays the cron manager.
type Scheduler struct {
	cron      *cron.Cron
	queue     queue.Queue
	workflows *WorkflowService
	runs      *RunService
	redis     *redis.Client
	interval  time.Duration
	log       *logger.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	specs   map[string]string
}

// NewScheduler builds a stopped scheduler. redisClient may be nil; without it
// ticks are not deduplicated across replicas.
func NewScheduler(
	q queue.Queue,
	workflows *WorkflowService,
	runs *RunService,
	redisClient *redis.Client,
	interval time.Duration,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		queue:     q,
		workflows: workflows,
		runs:      runs,
		redis:     redisClient,
		interval:  interval,
		log:       log,
		entries:   make(map[string]cron.EntryID),
		specs:     make(map[string]string),
	}
}

// Start wires the consumer, loads the initial schedule and starts the cron
// manager. A background ticker re-scans every interval so definitions changed
// by other replicas get picked up without a local mutation.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.queue.Subscribe(ctx, runRequestTopic, s.consume); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", runRequestTopic, err)
	}

	s.Refresh(ctx)
	s.cron.Start()

	if s.interval > 0 {
		go func() {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.Refresh(ctx)
				}
			}
		}()
	}

	s.log.Info("scheduler started", "refresh_interval", s.interval)
	return nil
}

// Stop halts scheduling and waits for in-flight tick callbacks.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Refresh reconciles cron entries against the active workflows: new triggers
// are added, changed expressions recreated, stale entries removed. The
// workflow service calls this after every mutation.
func (s *Scheduler) Refresh(ctx context.Context) {
	records, err := s.workflows.ListActive(ctx)
	if err != nil {
		s.log.Error("scheduler failed to list active workflows", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expected := map[string]bool{}
	for _, record := range records {
		for _, node := range record.Definition().NodesOfType(nodes.TypeCron) {
			expression := cronExpression(node)
			if expression == "" {
				continue
			}
			key := record.ID + ":" + node.Name
			expected[key] = true

			if old, ok := s.specs[key]; ok && old != expression {
				s.cron.Remove(s.entries[key])
				delete(s.entries, key)
				delete(s.specs, key)
			}
			if _, ok := s.entries[key]; ok {
				continue
			}

			workflowID, startNode := record.ID, node.Name
			id, err := s.cron.AddFunc(expression, func() {
				s.fire(workflowID, startNode)
			})
			if err != nil {
				s.log.Warn("invalid cron expression",
					"workflow_id", workflowID,
					"node", startNode,
					"expression", expression,
					"error", err)
				continue
			}
			s.entries[key] = id
			s.specs[key] = expression
			s.log.Info("cron trigger scheduled",
				"workflow_id", workflowID,
				"node", startNode,
				"expression", expression)
		}
	}

	for key, id := range s.entries {
		if expected[key] {
			continue
		}
		s.cron.Remove(id)
		delete(s.entries, key)
		delete(s.specs, key)
		s.log.Info("cron trigger removed", "entry", key)
	}
}

// EntryCount reports how many cron triggers are currently scheduled.
func (s *Scheduler) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// cronExpression reads the schedule off a cron trigger node.
func cronExpression(node *workflow.Node) string {
	raw, ok := node.Parameters["expression"]
	if !ok {
		return ""
	}
	expression, _ := raw.(string)
	return strings.TrimSpace(expression)
}

// fire publishes one run request for a tick. With Redis available a short
// lock dedupes the tick across replicas.
func (s *Scheduler) fire(workflowID, startNode string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.redis != nil {
		tick := time.Now().UTC().Truncate(time.Minute).Unix()
		lockKey := fmt.Sprintf("cron:lock:%s:%s:%d", workflowID, startNode, tick)
		acquired, err := s.redis.SetNX(ctx, lockKey, "1", 90*time.Second)
		if err == nil && !acquired {
			return
		}
	}

	request, err := json.Marshal(RunRequest{
		WorkflowID: workflowID,
		StartNode:  startNode,
		Mode:       workflow.ModeCron,
	})
	if err != nil {
		s.log.Error("failed to marshal run request", "workflow_id", workflowID, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, runRequestTopic, workflowID, request); err != nil {
		s.log.Error("failed to publish run request", "workflow_id", workflowID, "error", err)
	}
}

// consume executes one queued run request through the run service.
func (s *Scheduler) consume(ctx context.Context, key string, value []byte) error {
	var request RunRequest
	if err := json.Unmarshal(value, &request); err != nil {
		return fmt.Errorf("failed to decode run request: %w", err)
	}

	s.log.Info("executing scheduled run",
		"workflow_id", request.WorkflowID,
		"start_node", request.StartNode)

	runCtx, cancel := context.WithTimeout(ctx, detachedRunTimeout)
	defer cancel()

	record, err := s.runs.RunSaved(runCtx, request.WorkflowID, &models.RunWorkflowRequest{
		StartNode: request.StartNode,
		Mode:      request.Mode,
	}, nil)
	if err != nil {
		return fmt.Errorf("scheduled run of %s failed to start: %w", request.WorkflowID, err)
	}

	s.log.Info("scheduled run finished",
		"workflow_id", request.WorkflowID,
		"execution_id", record.ID,
		"status", record.Status)
	return nil
}
