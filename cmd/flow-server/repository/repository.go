package repository

import (
	"context"
	"errors"

	"github.com/lyzr/flow/cmd/flow-server/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// WorkflowStore persists workflow definitions.
type WorkflowStore interface {
	Create(ctx context.Context, record *models.WorkflowRecord) error
	GetByID(ctx context.Context, id string) (*models.WorkflowRecord, error)
	List(ctx context.Context) ([]*models.WorkflowRecord, error)
	ListActive(ctx context.Context) ([]*models.WorkflowRecord, error)
	Update(ctx context.Context, record *models.WorkflowRecord) error
	Delete(ctx context.Context, id string) error
}

// ExecutionStore persists finished run records.
type ExecutionStore interface {
	Create(ctx context.Context, record *models.ExecutionRecord) error
	GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error)
}
