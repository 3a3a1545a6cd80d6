package javasrc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/jward/msgxref/internal/entry"
	"github.com/jward/msgxref/internal/extract"
	"github.com/jward/msgxref/internal/store"
	"github.com/jward/msgxref/internal/typesys"
)

// candidateSet is everything one file offers to the extractors.
type candidateSet struct {
	methods []extract.Method
	// headers[i] is the first line of methods[i] including its annotations.
	headers []int
	sites   []extract.Site
}

// Methods returns the method declarations of an indexed file as handler
// candidates. A file that is not indexed yields nothing.
func (m *Model) Methods(ctx context.Context, path string) ([]extract.Method, error) {
	cs, err := m.candidates(ctx, path)
	if err != nil || cs == nil {
		return nil, err
	}
	return cs.methods, nil
}

// Sites returns the calls and constructor invocations of an indexed file
// as publisher candidates, ordered by position.
func (m *Model) Sites(ctx context.Context, path string) ([]extract.Site, error) {
	cs, err := m.candidates(ctx, path)
	if err != nil || cs == nil {
		return nil, err
	}
	return cs.sites, nil
}

// Element is the candidate found at a source position: a method or a site.
type Element struct {
	Method *extract.Method
	Site   extract.Site
}

// ElementAt finds the candidate at a 1-based position. A line inside a
// method header (annotations through the name) selects the method;
// otherwise the rightmost site on that line starting at or before col is
// chosen. col 0, or a col left of every site, selects the first site on
// the line.
func (m *Model) ElementAt(ctx context.Context, path string, line, col int) (Element, bool, error) {
	cs, err := m.candidates(ctx, path)
	if err != nil || cs == nil {
		return Element{}, false, err
	}
	for i := range cs.methods {
		if line >= cs.headers[i] && line <= cs.methods[i].Ref.Location().Line {
			return Element{Method: &cs.methods[i]}, true, nil
		}
	}
	var best, first extract.Site
	for _, s := range cs.sites {
		loc := s.SiteRef().Location()
		if loc.Line != line {
			continue
		}
		if first == nil || loc.Column < first.SiteRef().Location().Column {
			first = s
		}
		if col > 0 && loc.Column <= col && (best == nil || loc.Column > best.SiteRef().Location().Column) {
			best = s
		}
	}
	if best == nil {
		best = first
	}
	if best == nil {
		return Element{}, false, nil
	}
	return Element{Site: best}, true, nil
}

func (m *Model) candidates(ctx context.Context, path string) (*candidateSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	f := m.files[path]
	m.mu.RUnlock()
	if f == nil {
		return nil, nil
	}

	facts, err := m.store.LoadFacts(f.id)
	if errors.Is(err, sql.ErrNoRows) {
		// Re-indexed since the lookup above.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("javasrc: candidates %s: %w", path, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	b := &builder{m: m, facts: facts, path: path, gen: facts.File.Generation, scope: f.scope}
	return b.build(), nil
}

// builder turns stored facts into candidates. It runs with m.mu held.
type builder struct {
	m     *Model
	facts *store.FileFacts
	path  string
	gen   int64
	scope *fileScope

	typeNames   map[int64]string
	methodNames map[int64]string
}

func (b *builder) ref(key string, line, col int) elementRef {
	return elementRef{
		model: b.m,
		path:  b.path,
		gen:   b.gen,
		key:   key,
		loc:   entry.Location{File: b.path, Line: line, Column: col},
	}
}

func (b *builder) build() *candidateSet {
	b.typeNames = make(map[int64]string, len(b.facts.Types))
	for _, t := range b.facts.Types {
		b.typeNames[t.ID] = t.Qualified
	}
	b.methodNames = make(map[int64]string, len(b.facts.Methods))
	for _, mt := range b.facts.Methods {
		b.methodNames[mt.ID] = mt.Name
	}
	cs := &candidateSet{}
	b.methods(cs)
	b.sites(cs)
	return cs
}

func (b *builder) methods(cs *candidateSet) {
	params := make(map[int64][]store.MethodParam)
	for _, p := range b.facts.Params {
		params[p.MethodID] = append(params[p.MethodID], p)
	}
	anns := make(map[int64][]store.Annotation)
	for _, a := range b.facts.Annotations {
		anns[a.MethodID] = append(anns[a.MethodID], a)
	}
	args := make(map[int64][]store.AnnotationArg)
	for _, a := range b.facts.AnnotationArgs {
		args[a.AnnotationID] = append(args[a.AnnotationID], a)
	}
	view := lockedView{b.m}

	for _, mt := range b.facts.Methods {
		owner := b.typeNames[mt.TypeID]
		ps := params[mt.ID]
		sort.Slice(ps, func(i, j int) bool { return ps[i].Ordinal < ps[j].Ordinal })

		texts := make([]string, len(ps))
		for i, p := range ps {
			texts[i] = p.TypeExpr
		}
		key := "method:" + b.path + "#" + owner + "." + mt.Name + "(" + strings.Join(texts, ",") + ")"
		cand := extract.Method{
			Ref:              b.ref(key, mt.Line, mt.Col),
			Name:             mt.Name,
			Constructor:      mt.Constructor,
			Ancestors:        typesys.Ancestors(view, owner),
			OwnerAnnotations: b.ownerAnnotations(owner),
		}
		for _, p := range ps {
			cand.Params = append(cand.Params, b.m.descriptorLocked(b.scope, owner, p.TypeExpr))
		}

		header := mt.Line
		for _, a := range anns[mt.ID] {
			header = min(header, a.Line)
			ann := extract.Annotation{Name: b.m.resolveLocked(b.scope, owner, a.Name)}
			for _, arg := range args[a.ID] {
				if ann.Attrs == nil {
					ann.Attrs = make(map[string]extract.AttrValue)
				}
				ann.Attrs[arg.Key] = b.attr(owner, arg)
			}
			cand.Annotations = append(cand.Annotations, ann)
		}
		cs.methods = append(cs.methods, cand)
		cs.headers = append(cs.headers, header)
	}
}

func (b *builder) attr(owner string, arg store.AnnotationArg) extract.AttrValue {
	switch arg.ValueKind {
	case store.ValueClass:
		inner := b.m.descriptorLocked(b.scope, owner, arg.ValueExpr)
		return extract.AttrValue{Type: typesys.New(b.m, typesys.ClassType, inner), HasChildren: true}
	case store.ValueEmpty:
		return extract.AttrValue{Type: typesys.Unknown()}
	default:
		return extract.AttrValue{Type: typesys.Unknown(), HasChildren: true}
	}
}

// ownerAnnotations resolves the annotations on a type and its enclosing
// types.
func (b *builder) ownerAnnotations(owner string) []string {
	var out []string
	for q := owner; q != ""; {
		t := b.m.types[q]
		if t == nil {
			break
		}
		sc := b.scope
		if f := b.m.files[t.path]; f != nil {
			sc = f.scope
		}
		for _, a := range t.annotations {
			out = append(out, b.m.resolveLocked(sc, t.parent, a))
		}
		q = t.parent
	}
	return out
}

func (b *builder) enclosing(typeID int64, methodID *int64) string {
	owner := b.typeNames[typeID]
	if methodID == nil {
		return owner
	}
	return owner + "." + b.methodNames[*methodID]
}

func (b *builder) sites(cs *candidateSet) {
	view := lockedView{b.m}
	for _, c := range b.facts.Calls {
		owner := b.typeNames[c.TypeID]
		site := extract.CallSite{
			Ref:       b.ref(fmt.Sprintf("call:%s:%d:%d:%s", b.path, c.Line, c.Col, c.Name), c.Line, c.Col),
			Method:    c.Name,
			Enclosing: b.enclosing(c.TypeID, c.MethodID),
		}
		switch c.ReceiverKind {
		case store.ReceiverImplicit:
			for q := owner; q != ""; {
				site.Receivers = appendNew(site.Receivers, typesys.Ancestors(view, q)...)
				t := b.m.types[q]
				if t == nil {
					break
				}
				q = t.parent
			}
			for _, o := range b.scope.staticOwners(c.Name) {
				site.Receivers = appendNew(site.Receivers, b.m.resolveLocked(b.scope, owner, o))
			}
		case store.ReceiverType, store.ReceiverTyped:
			if d := b.m.descriptorLocked(b.scope, owner, c.ReceiverExpr); d.IsKnown() {
				site.Receivers = typesys.Ancestors(view, d.Name())
			}
		}
		if c.ArgCount > 0 {
			site.Args = make([]typesys.Descriptor, c.ArgCount)
			site.Args[0] = b.m.descriptorLocked(b.scope, owner, c.FirstArgExpr)
		}
		cs.sites = append(cs.sites, site)
	}
	for _, cr := range b.facts.Creations {
		owner := b.typeNames[cr.TypeID]
		cs.sites = append(cs.sites, extract.Construction{
			Ref:       b.ref(fmt.Sprintf("new:%s:%d:%d:%s", b.path, cr.Line, cr.Col, cr.TypeExpr), cr.Line, cr.Col),
			Type:      b.m.descriptorLocked(b.scope, owner, cr.TypeExpr),
			Enclosing: b.enclosing(cr.TypeID, cr.MethodID),
		})
	}
	sort.SliceStable(cs.sites, func(i, j int) bool {
		a, c := cs.sites[i].SiteRef().Location(), cs.sites[j].SiteRef().Location()
		if a.Line != c.Line {
			return a.Line < c.Line
		}
		return a.Column < c.Column
	})
}

func appendNew(dst []string, names ...string) []string {
	for _, n := range names {
		if !slices.Contains(dst, n) {
			dst = append(dst, n)
		}
	}
	return dst
}
