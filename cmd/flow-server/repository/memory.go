package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/lyzr/flow/cmd/flow-server/models"
)

// MemoryWorkflowStore is the default store when no database is configured.
type MemoryWorkflowStore struct {
	mu      sync.RWMutex
	records map[string]*models.WorkflowRecord
}

// NewMemoryWorkflowStore creates an empty in-memory workflow store
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{records: make(map[string]*models.WorkflowRecord)}
}

func (s *MemoryWorkflowStore) Create(ctx context.Context, record *models.WorkflowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *MemoryWorkflowStore) GetByID(ctx context.Context, id string) (*models.WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryWorkflowStore) List(ctx context.Context) ([]*models.WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.WorkflowRecord, 0, len(s.records))
	for _, record := range s.records {
		clone := *record
		out = append(out, &clone)
	}
	// Newest first, matching the Postgres ordering
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryWorkflowStore) ListActive(ctx context.Context) ([]*models.WorkflowRecord, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, record := range all {
		if record.Active {
			active = append(active, record)
		}
	}
	return active, nil
}

func (s *MemoryWorkflowStore) Update(ctx context.Context, record *models.WorkflowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; !ok {
		return ErrNotFound
	}
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *MemoryWorkflowStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// MemoryExecutionStore keeps finished runs in memory, newest first.
type MemoryExecutionStore struct {
	mu      sync.RWMutex
	records map[string]*models.ExecutionRecord
	order   []string
}

// NewMemoryExecutionStore creates an empty in-memory execution store
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{records: make(map[string]*models.ExecutionRecord)}
}

func (s *MemoryExecutionStore) Create(ctx context.Context, record *models.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	s.records[record.ID] = &clone
	s.order = append(s.order, record.ID)
	return nil
}

func (s *MemoryExecutionStore) GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryExecutionStore) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ExecutionRecord
	for i := len(s.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		record := s.records[s.order[i]]
		if record == nil || record.WorkflowID != workflowID {
			continue
		}
		clone := *record
		out = append(out, &clone)
	}
	return out, nil
}
