package procflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNodeNotFound     = errors.New("procflow: node not found")
	ErrEdgeNotFound     = errors.New("procflow: edge not found")
	ErrWorkflowNotFound = errors.New("procflow: workflow not found")
	ErrUnknownNodeType  = errors.New("procflow: unknown node type")
	ErrInvalidPlan      = errors.New("procflow: invalid action plan")
	ErrUnresolvedRef    = errors.New("procflow: unresolved node reference")
)

// Document is a persisted workflow: the graph snapshot plus the compiled
// process definition.
type Document struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	JSON      json.RawMessage `json:"json"`
	XML       string          `json:"xml"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Gateway defines the contract for persisting and retrieving workflow documents.
type Gateway interface {
	// CreateWorkflow stores a new document and returns it with ID and
	// CreatedAt filled in.
	CreateWorkflow(ctx context.Context, doc *Document) (*Document, error)
	// GetWorkflow returns nil, nil if the document does not exist.
	GetWorkflow(ctx context.Context, id string) (*Document, error)
	ListWorkflows(ctx context.Context) ([]Document, error)
	// DeleteWorkflow returns no error if the document does not exist.
	DeleteWorkflow(ctx context.Context, id string) error
}
