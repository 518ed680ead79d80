// Package version names saved workflows "{name} v{N}" and retires old
// versions of the same workflow.
package version

import (
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/meikuraledutech/procflow"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultKeep is the number of prior versions retention leaves in place
// next to the one just saved.
const DefaultKeep = 2

var suffix = regexp.MustCompile(`^(.*) v(\d+)$`)

// Next returns the version the next save of a workflow gets.
func Next(m procflow.Metadata) int {
	if !m.Saved() {
		return 1
	}
	return m.Version + 1
}

// FormatName returns the persisted name of version v of base.
func FormatName(base string, v int) string {
	return fmt.Sprintf("%s v%d", base, v)
}

// ParseName splits a persisted name into its base name and version.
// ok is false when the name carries no " vN" suffix.
func ParseName(name string) (base string, v int, ok bool) {
	m := suffix.FindStringSubmatch(name)
	if m == nil {
		return name, 0, false
	}
	v, err := strconv.Atoi(m[2])
	if err != nil {
		return name, 0, false
	}
	return m[1], v, true
}

// Recorder receives the outcome of saves and retention deletions.
type Recorder interface {
	Save(ok bool)
	Retired(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) Save(bool)    {}
func (nopRecorder) Retired(bool) {}

// Controller persists workflow documents under versioned names.
type Controller struct {
	gw       procflow.Gateway
	logger   *zap.Logger
	recorder Recorder

	// Retain enables deletion of old versions after a save.
	Retain bool
	// Keep is the number of prior versions retention keeps; defaults to DefaultKeep.
	Keep int
	// Parallel bounds concurrent deletions.
	Parallel int
}

// NewController returns a Controller saving through gw.
func NewController(gw procflow.Gateway, logger *zap.Logger) *Controller {
	return &Controller{
		gw:       gw,
		logger:   logger.With(zap.String("component", "version")),
		recorder: nopRecorder{},
		Keep:     DefaultKeep,
		Parallel: 4,
	}
}

// WithRecorder reports save and retention outcomes to r.
func (c *Controller) WithRecorder(r Recorder) *Controller {
	c.recorder = r
	return c
}

// Save persists doc as the next version of base. doc.Name is overwritten.
// On success it returns the stored document and the metadata the graph should
// adopt; on failure meta is returned unchanged with the error.
func (c *Controller) Save(ctx context.Context, meta procflow.Metadata, base string, doc procflow.Document) (*procflow.Document, procflow.Metadata, error) {
	v := Next(meta)
	doc.Name = FormatName(base, v)

	saved, err := c.gw.CreateWorkflow(ctx, &doc)
	if err != nil {
		c.recorder.Save(false)
		c.logger.Error("save workflow failed", zap.String("name", doc.Name), zap.Error(err))
		return nil, meta, fmt.Errorf("version: save %q: %w", doc.Name, err)
	}
	c.recorder.Save(true)

	name, id := base, saved.ID
	next := procflow.Metadata{Name: &name, Version: v, ID: &id}
	c.logger.Info("workflow saved", zap.String("name", saved.Name), zap.String("id", saved.ID), zap.Int("version", v))

	if c.Retain && v > c.keep() {
		c.Retire(ctx, base, saved.ID)
	}
	return saved, next, nil
}

func (c *Controller) keep() int {
	if c.Keep <= 0 {
		return DefaultKeep
	}
	return c.Keep
}

// Retire deletes every version of base except current and the newest Keep
// prior versions. Failures are logged and never returned; one failed delete
// does not stop the others. It returns the ids it deleted.
func (c *Controller) Retire(ctx context.Context, base, current string) []string {
	docs, err := c.gw.ListWorkflows(ctx)
	if err != nil {
		c.logger.Warn("list workflows for retention failed", zap.String("name", base), zap.Error(err))
		return nil
	}

	type versioned struct {
		id string
		v  int
	}
	var prior []versioned
	for _, d := range docs {
		if d.ID == current {
			continue
		}
		b, v, ok := ParseName(d.Name)
		if !ok || b != base {
			continue
		}
		prior = append(prior, versioned{id: d.ID, v: v})
	}
	if len(prior) <= c.keep() {
		return nil
	}
	slices.SortFunc(prior, func(a, b versioned) int { return cmp.Compare(b.v, a.v) })
	stale := prior[c.keep():]

	deleted := make([]bool, len(stale))
	g := new(errgroup.Group)
	if c.Parallel > 0 {
		g.SetLimit(c.Parallel)
	}
	for i, s := range stale {
		g.Go(func() error {
			if err := c.gw.DeleteWorkflow(ctx, s.id); err != nil {
				c.recorder.Retired(false)
				c.logger.Warn("delete old version failed",
					zap.String("name", FormatName(base, s.v)), zap.String("id", s.id), zap.Error(err))
				return nil
			}
			c.recorder.Retired(true)
			deleted[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var ids []string
	for i, ok := range deleted {
		if ok {
			ids = append(ids, stale[i].id)
		}
	}
	c.logger.Info("retired old versions", zap.String("name", base), zap.Int("deleted", len(ids)), zap.Int("stale", len(stale)))
	return ids
}
