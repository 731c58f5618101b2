package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lyzr/flow/cmd/flow-server/models"
	"github.com/lyzr/flow/common/db"
	"github.com/lyzr/flow/common/workflow"
)

// PGWorkflowStore persists workflows in Postgres with JSONB graph columns.
type PGWorkflowStore struct {
	db *db.DB
}

// NewPGWorkflowStore creates a Postgres-backed workflow store
func NewPGWorkflowStore(db *db.DB) *PGWorkflowStore {
	return &PGWorkflowStore{db: db}
}

func (s *PGWorkflowStore) Create(ctx context.Context, record *models.WorkflowRecord) error {
	nodes, connections, err := marshalGraph(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflows (
			id, name, active, nodes, connections, error_workflow_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.Exec(ctx, query,
		record.ID,
		record.Name,
		record.Active,
		nodes,
		connections,
		record.ErrorWorkflowID,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

const workflowColumns = `
	id, name, active, nodes, connections, error_workflow_id,
	created_at, updated_at
`

func (s *PGWorkflowStore) GetByID(ctx context.Context, id string) (*models.WorkflowRecord, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	record, err := scanWorkflow(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return record, nil
}

func (s *PGWorkflowStore) List(ctx context.Context) ([]*models.WorkflowRecord, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY created_at DESC`
	return s.list(ctx, query)
}

func (s *PGWorkflowStore) ListActive(ctx context.Context) ([]*models.WorkflowRecord, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE active ORDER BY created_at DESC`
	return s.list(ctx, query)
}

func (s *PGWorkflowStore) list(ctx context.Context, query string, args ...interface{}) ([]*models.WorkflowRecord, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var records []*models.WorkflowRecord
	for rows.Next() {
		record, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}
	return records, nil
}

func (s *PGWorkflowStore) Update(ctx context.Context, record *models.WorkflowRecord) error {
	nodes, connections, err := marshalGraph(record)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflows SET
			name = $2, active = $3, nodes = $4, connections = $5,
			error_workflow_id = $6, updated_at = $7
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query,
		record.ID,
		record.Name,
		record.Active,
		nodes,
		connections,
		record.ErrorWorkflowID,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGWorkflowStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalGraph(record *models.WorkflowRecord) ([]byte, []byte, error) {
	nodes, err := json.Marshal(record.Nodes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal nodes: %w", err)
	}
	connections, err := json.Marshal(record.Connections)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal connections: %w", err)
	}
	return nodes, connections, nil
}

func scanWorkflow(row pgx.Row) (*models.WorkflowRecord, error) {
	record := &models.WorkflowRecord{}
	var nodes, connections []byte

	err := row.Scan(
		&record.ID,
		&record.Name,
		&record.Active,
		&nodes,
		&connections,
		&record.ErrorWorkflowID,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodes, &record.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}
	record.Connections = []workflow.Connection{}
	if len(connections) > 0 {
		if err := json.Unmarshal(connections, &record.Connections); err != nil {
			return nil, fmt.Errorf("failed to unmarshal connections: %w", err)
		}
	}
	return record, nil
}
