package typesys

import "strings"

// Well-known canonical names.
const (
	ObjectType = "java.lang.Object"
	VoidType   = "java.lang.Void"
	ClassType  = "java.lang.Class"
)

// Universe answers hierarchy and liveness questions about canonical type
// names. Implementations must be safe for concurrent use.
type Universe interface {
	// Supertypes returns the direct supertypes (superclass and interfaces)
	// of the named type, erased to canonical names.
	Supertypes(name string) []string
	// Resolvable reports whether a source declaration of name is live.
	Resolvable(name string) bool
}

// Descriptor is a handle to a declared type. The zero value is the unknown
// type: it matches nothing and is never valid.
type Descriptor struct {
	name     string
	args     []Descriptor
	declared bool
	universe Universe
}

// Unknown returns the descriptor for a type that could not be determined.
func Unknown() Descriptor { return Descriptor{} }

// New returns a descriptor for a type that is not declared in source, such
// as a library or primitive type. It stays valid for as long as it is known.
func New(u Universe, name string, args ...Descriptor) Descriptor {
	return Descriptor{name: name, args: args, universe: u}
}

// Declared returns a descriptor for a source-declared type. Its validity
// follows the liveness of the declaration as reported by u.
func Declared(u Universe, name string, args ...Descriptor) Descriptor {
	return Descriptor{name: name, args: args, declared: true, universe: u}
}

// Name returns the canonical erased name, or "" when unknown.
func (d Descriptor) Name() string { return d.name }

// Args returns the generic type arguments.
func (d Descriptor) Args() []Descriptor { return d.args }

// SourceDeclared reports whether the type was declared in indexed source.
func (d Descriptor) SourceDeclared() bool { return d.declared }

// IsKnown reports whether the type was resolved at all. A Void type counts
// as unknown because it never carries a message.
func (d Descriptor) IsKnown() bool {
	return d.name != "" && d.name != VoidType && d.name != "void"
}

// IsValid reports whether the type is known and its declaration (and that
// of every type argument) is still live. It consults the universe on every
// call.
func (d Descriptor) IsValid() bool {
	if !d.IsKnown() {
		return false
	}
	if d.declared && (d.universe == nil || !d.universe.Resolvable(d.name)) {
		return false
	}
	for _, a := range d.args {
		if !a.IsValid() {
			return false
		}
	}
	return true
}

// Key returns the canonical identity, e.g. "com.acme.Result<com.acme.Order>".
// Two descriptors with the same key denote the same type.
func (d Descriptor) Key() string {
	if len(d.args) == 0 {
		return d.name
	}
	var b strings.Builder
	d.writeKey(&b)
	return b.String()
}

func (d Descriptor) writeKey(b *strings.Builder) {
	b.WriteString(d.name)
	if len(d.args) == 0 {
		return
	}
	b.WriteByte('<')
	for i, a := range d.args {
		if i > 0 {
			b.WriteByte(',')
		}
		a.writeKey(b)
	}
	b.WriteByte('>')
}

// Equal compares canonical identity.
func (d Descriptor) Equal(o Descriptor) bool { return d.Key() == o.Key() }

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	if d.name == "" {
		return "<unknown>"
	}
	return d.Key()
}

// SimpleName returns the last dotted segment of the canonical name.
func (d Descriptor) SimpleName() string {
	if i := strings.LastIndexByte(d.name, '.'); i >= 0 {
		return d.name[i+1:]
	}
	return d.name
}

// IsAssignableFrom reports whether a value of type other may be passed where
// d is expected. When other is a single-argument generic wrapper, d is also
// tested against the wrapped argument. Only one level is unwrapped.
func (d Descriptor) IsAssignableFrom(other Descriptor) bool {
	if !d.IsKnown() || !other.IsKnown() {
		return false
	}
	if d.assignable(other) {
		return true
	}
	if len(other.args) == 1 {
		inner := other.args[0]
		return inner.IsKnown() && d.assignable(inner)
	}
	return false
}

// assignable is the plain subtype test without unwrapping.
func (d Descriptor) assignable(other Descriptor) bool {
	if len(d.args) > 0 && !argsEqual(d.args, other.args) {
		return false
	}
	if d.name == other.name || d.name == ObjectType {
		return true
	}
	u := other.universe
	if u == nil {
		u = d.universe
	}
	if u == nil {
		return false
	}
	return IsSubtype(u, other.name, d.name)
}

func argsEqual(a, b []Descriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// IsSubtype reports whether sub transitively extends or implements super
// according to u. Cycles in malformed hierarchies are tolerated.
func IsSubtype(u Universe, sub, super string) bool {
	if sub == super || super == ObjectType {
		return true
	}
	seen := map[string]bool{sub: true}
	queue := []string{sub}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, s := range u.Supertypes(cur) {
			if s == super {
				return true
			}
			if !seen[s] {
				seen[s] = true
				queue = append(queue, s)
			}
		}
	}
	return false
}

// Ancestors returns name followed by all of its transitive supertypes in
// breadth-first order.
func Ancestors(u Universe, name string) []string {
	out := []string{name}
	if u == nil {
		return out
	}
	seen := map[string]bool{name: true}
	for i := 0; i < len(out); i++ {
		for _, s := range u.Supertypes(out[i]) {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
