package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS procflow_workflows (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    graph      JSONB NOT NULL DEFAULT '{}',
    xml        TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_procflow_workflows_name ON procflow_workflows(name);
`

// CreateSchema creates the procflow_workflows table if it doesn't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the procflow_workflows table.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS procflow_workflows CASCADE;`)
	return err
}
