package javasrc

import (
	"strings"

	"github.com/jward/msgxref/internal/store"
	"github.com/jward/msgxref/internal/typesys"
)

// fileScope holds the names a compilation unit can see without
// qualification.
type fileScope struct {
	pkg        string
	single     map[string]string // simple name -> imported type
	wildcards  []string          // on-demand imported packages or types
	statics    map[string][]string
	staticWild []string
}

func newFileScope(pkg string, imports []store.Import) *fileScope {
	sc := &fileScope{pkg: pkg, single: make(map[string]string), statics: make(map[string][]string)}
	for _, imp := range imports {
		switch {
		case imp.Static && imp.Wildcard:
			sc.staticWild = append(sc.staticWild, imp.Name)
		case imp.Static:
			if i := strings.LastIndexByte(imp.Name, '.'); i > 0 {
				member := imp.Name[i+1:]
				sc.statics[member] = append(sc.statics[member], imp.Name[:i])
			}
		case imp.Wildcard:
			sc.wildcards = append(sc.wildcards, imp.Name)
		default:
			sc.single[simpleName(imp.Name)] = imp.Name
		}
	}
	return sc
}

// staticOwners returns the types whose static member name is imported.
func (sc *fileScope) staticOwners(member string) []string {
	out := append([]string(nil), sc.statics[member]...)
	return append(out, sc.staticWild...)
}

func simpleName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// resolveLocked maps a type name as written inside enclosing to its
// canonical name. Lookup order follows Java scoping: member types of the
// enclosing classes, single-type imports, the current package, on-demand
// imports, then java.lang. Unresolvable names are returned unchanged.
// Callers hold m.mu.
func (m *Model) resolveLocked(sc *fileScope, enclosing, name string) string {
	if name == "" || primitives[name] {
		return name
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		head, rest := name[:i], name[i:]
		if !isTypeName(head) {
			return name
		}
		if r := m.resolveLocked(sc, enclosing, head); r != head || m.types[r] != nil {
			return r + rest
		}
		return name
	}

	for e := enclosing; e != ""; {
		if simpleName(e) == name {
			return e
		}
		if cand := e + "." + name; m.types[cand] != nil {
			return cand
		}
		t := m.types[e]
		if t == nil {
			break
		}
		e = t.parent
	}
	if sc != nil {
		if fq, ok := sc.single[name]; ok {
			return fq
		}
		cand := name
		if sc.pkg != "" {
			cand = sc.pkg + "." + name
		}
		if m.types[cand] != nil {
			return cand
		}
		for _, w := range sc.wildcards {
			if cand := w + "." + name; m.types[cand] != nil {
				return cand
			}
		}
	}
	if javaLang[name] {
		return "java.lang." + name
	}
	return name
}

// descriptorLocked resolves a type expression as written into a descriptor.
// Callers hold m.mu.
func (m *Model) descriptorLocked(sc *fileScope, enclosing, text string) typesys.Descriptor {
	if strings.TrimSpace(text) == "" {
		return typesys.Unknown()
	}
	expr, err := typesys.ParseExpr(text)
	if err != nil {
		return typesys.Unknown()
	}
	return m.exprDescriptorLocked(sc, enclosing, expr)
}

func (m *Model) exprDescriptorLocked(sc *fileScope, enclosing string, e typesys.Expr) typesys.Descriptor {
	name := m.resolveLocked(sc, enclosing, e.Name)
	args := make([]typesys.Descriptor, 0, len(e.Args))
	for _, a := range e.Args {
		args = append(args, m.exprDescriptorLocked(sc, enclosing, a))
	}
	if e.Dims > 0 {
		return typesys.New(m, name+strings.Repeat("[]", e.Dims), args...)
	}
	if m.types[name] != nil {
		return typesys.Declared(m, name, args...)
	}
	return typesys.New(m, name, args...)
}

// lockedView exposes the hierarchy to typesys while m.mu is already held.
type lockedView struct{ m *Model }

func (v lockedView) Supertypes(name string) []string { return v.m.supertypesLocked(name) }
func (v lockedView) Resolvable(name string) bool { return v.m.types[name] != nil }

// Supertypes implements typesys.Universe. Source supertypes are resolved
// against the current declaration set on every call, so a hierarchy
// completes as soon as the missing file is indexed.
func (m *Model) Supertypes(name string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.supertypesLocked(name)
}

func (m *Model) supertypesLocked(name string) []string {
	t := m.types[name]
	if t == nil {
		return m.library[name]
	}
	var sc *fileScope
	if f := m.files[t.path]; f != nil {
		sc = f.scope
	}
	out := make([]string, 0, len(t.supers))
	for _, s := range t.supers {
		// Supertype names are looked up from the declaring scope, not the
		// type's own members.
		d := m.descriptorLocked(sc, t.parent, s)
		if d.IsKnown() {
			out = append(out, d.Name())
		}
	}
	return out
}

// Resolvable implements typesys.Universe.
func (m *Model) Resolvable(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[name] != nil
}

var _ typesys.Universe = (*Model)(nil)
