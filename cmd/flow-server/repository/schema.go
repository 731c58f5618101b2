package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lyzr/flow/common/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	active            BOOLEAN NOT NULL DEFAULT FALSE,
	nodes             JSONB NOT NULL,
	connections       JSONB NOT NULL DEFAULT '[]',
	error_workflow_id TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS executions (
	id            TEXT PRIMARY KEY,
	workflow_id   TEXT NOT NULL DEFAULT '',
	workflow_name TEXT NOT NULL,
	status        TEXT NOT NULL,
	mode          TEXT NOT NULL,
	start_time    TIMESTAMPTZ NOT NULL,
	end_time      TIMESTAMPTZ NOT NULL,
	last_node     TEXT NOT NULL DEFAULT '',
	errors        JSONB NOT NULL DEFAULT '[]',
	node_data     JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_executions_workflow
	ON executions (workflow_id, start_time DESC);
`

// InitSchema creates the tables on startup. Safe to run repeatedly.
func InitSchema(database *db.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := database.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
