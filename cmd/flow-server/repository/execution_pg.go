package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lyzr/flow/cmd/flow-server/models"
	"github.com/lyzr/flow/common/db"
)

// PGExecutionStore persists finished run records in Postgres.
type PGExecutionStore struct {
	db *db.DB
}

// NewPGExecutionStore creates a Postgres-backed execution store
func NewPGExecutionStore(db *db.DB) *PGExecutionStore {
	return &PGExecutionStore{db: db}
}

func (s *PGExecutionStore) Create(ctx context.Context, record *models.ExecutionRecord) error {
	errs, err := json.Marshal(record.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}
	nodeData, err := json.Marshal(record.NodeData)
	if err != nil {
		return fmt.Errorf("failed to marshal node data: %w", err)
	}

	query := `
		INSERT INTO executions (
			id, workflow_id, workflow_name, status, mode,
			start_time, end_time, last_node, errors, node_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.Exec(ctx, query,
		record.ID,
		record.WorkflowID,
		record.WorkflowName,
		record.Status,
		record.Mode,
		record.StartTime,
		record.EndTime,
		record.LastNode,
		errs,
		nodeData,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution record: %w", err)
	}
	return nil
}

const executionColumns = `
	id, workflow_id, workflow_name, status, mode,
	start_time, end_time, last_node, errors, node_data
`

func (s *PGExecutionStore) GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	record, err := scanExecution(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return record, nil
}

func (s *PGExecutionStore) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE workflow_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var records []*models.ExecutionRecord
	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}
	return records, nil
}

func scanExecution(row pgx.Row) (*models.ExecutionRecord, error) {
	record := &models.ExecutionRecord{}
	var errs, nodeData []byte

	err := row.Scan(
		&record.ID,
		&record.WorkflowID,
		&record.WorkflowName,
		&record.Status,
		&record.Mode,
		&record.StartTime,
		&record.EndTime,
		&record.LastNode,
		&errs,
		&nodeData,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(errs, &record.Errors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal errors: %w", err)
	}
	if err := json.Unmarshal(nodeData, &record.NodeData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node data: %w", err)
	}
	return record, nil
}
