package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/meikuraledutech/procflow"
)

// CreateWorkflow inserts a workflow document.
// If doc.ID is empty, a UUID is auto-generated.
// Returns the stored document with ID and CreatedAt filled in.
func (s *PGStore) CreateWorkflow(ctx context.Context, doc *procflow.Document) (*procflow.Document, error) {
	d := *doc
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if len(d.JSON) == 0 {
		d.JSON = json.RawMessage(`{}`)
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO procflow_workflows (id, name, graph, xml) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		d.ID, d.Name, d.JSON, d.XML,
	).Scan(&d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("procflow: insert workflow: %w", err)
	}

	return &d, nil
}

// GetWorkflow fetches a single workflow by its ID.
// Returns nil, nil if not found.
func (s *PGStore) GetWorkflow(ctx context.Context, id string) (*procflow.Document, error) {
	var d procflow.Document
	err := s.db.QueryRow(ctx,
		`SELECT id, name, graph, xml, created_at FROM procflow_workflows WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.JSON, &d.XML, &d.CreatedAt)

	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("procflow: get workflow: %w", err)
	}

	return &d, nil
}

// ListWorkflows returns all workflows, ordered by created_at.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListWorkflows(ctx context.Context) ([]procflow.Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, graph, xml, created_at FROM procflow_workflows ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("procflow: list workflows: %w", err)
	}
	defer rows.Close()

	docs := []procflow.Document{}
	for rows.Next() {
		var d procflow.Document
		if err := rows.Scan(&d.ID, &d.Name, &d.JSON, &d.XML, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("procflow: scan workflow: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("procflow: rows workflows: %w", err)
	}

	return docs, nil
}

// DeleteWorkflow deletes a workflow by its ID.
// No error if the workflow doesn't exist.
func (s *PGStore) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM procflow_workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("procflow: delete workflow: %w", err)
	}
	return nil
}
