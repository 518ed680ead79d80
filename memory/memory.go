// Package memory implements procflow.Gateway in process memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meikuraledutech/procflow"
)

// Store keeps documents in a map. It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	docs map[string]procflow.Document
	now  func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{docs: make(map[string]procflow.Document), now: time.Now}
}

// CreateWorkflow stores doc. If doc.ID is empty, a UUID is generated.
func (s *Store) CreateWorkflow(ctx context.Context, doc *procflow.Document) (*procflow.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := *doc
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = s.now()

	s.mu.Lock()
	s.docs[d.ID] = d
	s.mu.Unlock()
	return &d, nil
}

// GetWorkflow returns nil, nil if not found.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*procflow.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// ListWorkflows returns all documents, oldest first.
func (s *Store) ListWorkflows(ctx context.Context) ([]procflow.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	docs := make([]procflow.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

// DeleteWorkflow removes a document. No error if it doesn't exist.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.docs, id)
	s.mu.Unlock()
	return nil
}
