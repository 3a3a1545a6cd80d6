package msgxref

import (
	"cmp"
	"context"
	"slices"

	"github.com/jward/msgxref/internal/entry"
	"github.com/jward/msgxref/internal/typesys"
)

// FindHandlersFor returns every valid handler whose handled type accepts
// published. The first query on an uninitialised Coordinator runs the
// initial scan; queries during a scan wait for it.
func (c *Coordinator) FindHandlersFor(ctx context.Context, published Descriptor) ([]Handler, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.handlers.FindHandlersFor(published), nil
}

// FindEventHandlers is FindHandlersFor restricted to event handler kinds.
func (c *Coordinator) FindEventHandlers(ctx context.Context, published Descriptor) ([]Handler, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.handlers.FindEventHandlers(published), nil
}

// FindCommandHandlers is FindHandlersFor restricted to command handlers.
func (c *Coordinator) FindCommandHandlers(ctx context.Context, published Descriptor) ([]Handler, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.handlers.FindCommandHandlers(published), nil
}

// FindQueryHandlers is FindHandlersFor restricted to query handlers.
func (c *Coordinator) FindQueryHandlers(ctx context.Context, published Descriptor) ([]Handler, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.handlers.FindQueryHandlers(published), nil
}

// FindPublishersFor returns every valid publisher whose published type a
// handler of type handled accepts.
func (c *Coordinator) FindPublishersFor(ctx context.Context, handled Descriptor) ([]Publisher, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.publishers.FindPublishersFor(handled), nil
}

// Query returns a QueryBuilder over this Coordinator.
func (c *Coordinator) Query() *QueryBuilder {
	return &QueryBuilder{c: c}
}

// QueryBuilder provides a name-based, deterministically ordered view of
// the indexes for display. Results are sorted by file, line, column and
// kind.
type QueryBuilder struct {
	c *Coordinator
}

// TypeSummary is one message type known to either index.
type TypeSummary struct {
	Name       string `json:"name"`
	Handlers   int    `json:"handlers"`
	Publishers int    `json:"publishers"`
	Declared   bool   `json:"declared"`
}

// TypesNamed returns the indexed types whose canonical or simple name is
// name.
func (q *QueryBuilder) TypesNamed(ctx context.Context, name string) ([]Descriptor, error) {
	all, err := q.types(ctx)
	if err != nil {
		return nil, err
	}
	var out []Descriptor
	for _, d := range all {
		if d.Name() == name || d.SimpleName() == name {
			out = append(out, d)
		}
	}
	return out, nil
}

// HandlersFor returns the handlers accepting any indexed type named name.
func (q *QueryBuilder) HandlersFor(ctx context.Context, name string) ([]Handler, error) {
	types, err := q.TypesNamed(ctx, name)
	if err != nil {
		return nil, err
	}
	var out []Handler
	for _, t := range types {
		out = append(out, q.c.handlers.FindHandlersFor(t)...)
	}
	return sortHandlers(dedupe(out)), nil
}

// PublishersFor returns the publishers of any indexed type named name.
func (q *QueryBuilder) PublishersFor(ctx context.Context, name string) ([]Publisher, error) {
	types, err := q.TypesNamed(ctx, name)
	if err != nil {
		return nil, err
	}
	var out []Publisher
	for _, t := range types {
		out = append(out, q.c.publishers.FindPublishersFor(t)...)
	}
	return sortPublishers(dedupe(out)), nil
}

// Handlers returns every valid handler.
func (q *QueryBuilder) Handlers(ctx context.Context) ([]Handler, error) {
	if err := q.c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return sortHandlers(q.c.handlers.All()), nil
}

// Publishers returns every valid publisher.
func (q *QueryBuilder) Publishers(ctx context.Context) ([]Publisher, error) {
	if err := q.c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return sortPublishers(q.c.publishers.All()), nil
}

// Types lists every message type with the number of valid entries on each
// side, ordered by name.
func (q *QueryBuilder) Types(ctx context.Context) ([]TypeSummary, error) {
	all, err := q.types(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TypeSummary, 0, len(all))
	for _, d := range all {
		out = append(out, TypeSummary{
			Name:       d.String(),
			Handlers:   countExact(q.c.handlers.All(), d),
			Publishers: countExact(q.c.publishers.All(), d),
			Declared:   d.SourceDeclared(),
		})
	}
	return out, nil
}

// types is the union of both indexes' type keys, valid types only.
func (q *QueryBuilder) types(ctx context.Context) ([]Descriptor, error) {
	if err := q.c.ensureReady(ctx); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []Descriptor
	for _, d := range slices.Concat(q.c.handlers.Types(), q.c.publishers.Types()) {
		if seen[d.Key()] || !d.IsValid() {
			continue
		}
		seen[d.Key()] = true
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b typesys.Descriptor) int { return cmp.Compare(a.Key(), b.Key()) })
	return out, nil
}

func countExact[E entry.Entry](entries []E, d Descriptor) int {
	n := 0
	for _, e := range entries {
		if e.Type().Equal(d) {
			n++
		}
	}
	return n
}

func dedupe[E entry.Entry](entries []E) []E {
	seen := make(map[string]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if !seen[e.Identity()] {
			seen[e.Identity()] = true
			out = append(out, e)
		}
	}
	return out
}

func compareLocations(a, b entry.Location) int {
	return cmp.Or(
		cmp.Compare(a.File, b.File),
		cmp.Compare(a.Line, b.Line),
		cmp.Compare(a.Column, b.Column),
	)
}

func sortHandlers(hs []Handler) []Handler {
	slices.SortFunc(hs, func(a, b Handler) int {
		return cmp.Or(compareLocations(a.Location(), b.Location()), cmp.Compare(a.Kind, b.Kind))
	})
	return hs
}

func sortPublishers(ps []Publisher) []Publisher {
	slices.SortFunc(ps, func(a, b Publisher) int {
		return cmp.Or(compareLocations(a.Location(), b.Location()), cmp.Compare(a.Kind, b.Kind))
	})
	return ps
}
