package workspace

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/meikuraledutech/procflow"
	"github.com/meikuraledutech/procflow/bpmn"
	"github.com/meikuraledutech/procflow/snapshot"
	"github.com/meikuraledutech/procflow/version"
	"go.uber.org/zap"
)

// Mirror keeps a copy of each session's graph outside the process.
// snapshot.Store implements it.
type Mirror interface {
	Save(ctx context.Context, session string, snap procflow.Snapshot) error
	Load(ctx context.Context, session string) (procflow.Snapshot, error)
	Clear(ctx context.Context, session string) error
}

// Recorder receives plan and compile outcomes. metrics.Collector implements it.
type Recorder interface {
	PlanApplied(nodes, edges, dropped int)
	PlanRejected()
	Compiled(ok bool, omittedNodes, omittedFlows, droppedConditions int)
}

// Options configure every session of a registry.
type Options struct {
	Compile    bpmn.Options
	StrictPlan bool
}

type deps struct {
	gateway  procflow.Gateway
	versions *version.Controller
	mirror   Mirror
	recorder Recorder
	logger   *zap.Logger
	opts     Options
}

// Registry tracks the live sessions of the console.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	deps     *deps
}

// NewRegistry returns an empty registry. mirror may be nil.
func NewRegistry(gw procflow.Gateway, versions *version.Controller, mirror Mirror, logger *zap.Logger, opts Options) *Registry {
	if mirror == nil {
		mirror = nopMirror{}
	}
	return &Registry{
		sessions: make(map[string]*Session),
		deps: &deps{
			gateway:  gw,
			versions: versions,
			mirror:   mirror,
			recorder: nopRecorder{},
			logger:   logger.With(zap.String("component", "workspace")),
			opts:     opts,
		},
	}
}

// WithRecorder reports plan and compile outcomes to rec.
func (r *Registry) WithRecorder(rec Recorder) *Registry {
	r.deps.recorder = rec
	return r
}

// Create starts a session with an empty graph.
func (r *Registry) Create(ctx context.Context) *Session {
	s := newSession(uuid.NewString(), r.deps)
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	s.mirror(ctx)
	r.deps.logger.Info("session created", zap.String("session", s.id))
	return s
}

// Open returns a live session, or revives it from its mirrored snapshot.
func (r *Registry) Open(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}

	snap, err := r.deps.mirror.Load(ctx, id)
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	s := newSession(id, r.deps)
	s.graph.Restore(snap)
	r.sessions[id] = s
	r.deps.logger.Info("session restored", zap.String("session", id), zap.Int("nodes", len(snap.Nodes)))
	return s, nil
}

// Close forgets a session and clears its snapshot.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	_, live := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if err := r.deps.mirror.Clear(ctx, id); err != nil {
		return err
	}
	if !live {
		return ErrSessionNotFound
	}
	return nil
}

type nopMirror struct{}

func (nopMirror) Save(context.Context, string, procflow.Snapshot) error { return nil }
func (nopMirror) Load(context.Context, string) (procflow.Snapshot, error) {
	return procflow.Snapshot{}, snapshot.ErrNoSnapshot
}
func (nopMirror) Clear(context.Context, string) error { return nil }

type nopRecorder struct{}

func (nopRecorder) PlanApplied(int, int, int)    {}
func (nopRecorder) PlanRejected()                {}
func (nopRecorder) Compiled(bool, int, int, int) {}
