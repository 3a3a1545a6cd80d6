package typesys

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUniverse is a mutable in-memory hierarchy.
type fakeUniverse struct {
	mu     sync.RWMutex
	supers map[string][]string
	live   map[string]bool
}

func newFakeUniverse() *fakeUniverse {
	return &fakeUniverse{supers: map[string][]string{}, live: map[string]bool{}}
}

func (u *fakeUniverse) declare(name string, supers ...string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.live[name] = true
	u.supers[name] = supers
}

func (u *fakeUniverse) remove(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.live, name)
	delete(u.supers, name)
}

func (u *fakeUniverse) Supertypes(name string) []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.supers[name]
}

func (u *fakeUniverse) Resolvable(name string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.live[name]
}

func TestDescriptor_UnknownMatchesNothing(t *testing.T) {
	t.Parallel()
	u := newFakeUniverse()
	a := New(u, "com.acme.A")

	assert.False(t, Unknown().IsKnown())
	assert.False(t, Unknown().IsValid())
	assert.False(t, Unknown().IsAssignableFrom(a))
	assert.False(t, a.IsAssignableFrom(Unknown()))
	assert.False(t, New(u, ObjectType).IsAssignableFrom(Unknown()))
}

func TestDescriptor_VoidIsUnknown(t *testing.T) {
	t.Parallel()
	assert.False(t, New(nil, VoidType).IsKnown())
	assert.False(t, New(nil, "void").IsKnown())
}

func TestDescriptor_EqualityIsCanonical(t *testing.T) {
	t.Parallel()
	u := newFakeUniverse()
	a1 := Declared(u, "com.acme.OrderCreated")
	a2 := Declared(u, "com.acme.OrderCreated")
	w := New(u, "com.acme.Result", a1)

	assert.True(t, a1.Equal(a2))
	assert.Equal(t, "com.acme.Result<com.acme.OrderCreated>", w.Key())
	assert.False(t, w.Equal(a1))
	assert.Equal(t, "OrderCreated", a1.SimpleName())
}

func TestDescriptor_ValidityIsNotCached(t *testing.T) {
	t.Parallel()
	u := newFakeUniverse()
	u.declare("com.acme.A")
	a := Declared(u, "com.acme.A")
	require.True(t, a.IsValid())

	u.remove("com.acme.A")
	assert.False(t, a.IsValid())

	u.declare("com.acme.A")
	assert.True(t, a.IsValid())
}

func TestDescriptor_ValidityFollowsTypeArgs(t *testing.T) {
	t.Parallel()
	u := newFakeUniverse()
	u.declare("com.acme.A")
	w := New(u, "java.util.Optional", Declared(u, "com.acme.A"))
	require.True(t, w.IsValid())

	u.remove("com.acme.A")
	assert.False(t, w.IsValid())
}

func TestDescriptor_AssignableViaHierarchy(t *testing.T) {
	t.Parallel()
	u := newFakeUniverse()
	u.declare("com.acme.Event")
	u.declare("com.acme.OrderEvent", "com.acme.Event")
	u.declare("com.acme.OrderCreated", "com.acme.OrderEvent")

	base := Declared(u, "com.acme.Event")
	mid := Declared(u, "com.acme.OrderEvent")
	leaf := Declared(u, "com.acme.OrderCreated")

	assert.True(t, base.IsAssignableFrom(leaf))
	assert.True(t, mid.IsAssignableFrom(leaf))
	assert.True(t, leaf.IsAssignableFrom(leaf))
	assert.False(t, leaf.IsAssignableFrom(base))
	assert.True(t, New(u, ObjectType).IsAssignableFrom(leaf))
}

func TestDescriptor_HierarchyCycleTerminates(t *testing.T) {
	t.Parallel()
	u := newFakeUniverse()
	u.declare("a.A", "a.B")
	u.declare("a.B", "a.A")
	assert.False(t, Declared(u, "a.C").IsAssignableFrom(Declared(u, "a.A")))
}

func TestDescriptor_SingleLevelUnwrap(t *testing.T) {
	t.Parallel()
	u := newFakeUniverse()
	u.declare("com.acme.A")
	a := Declared(u, "com.acme.A")
	wa := New(u, "com.acme.W", a)
	wwa := New(u, "com.acme.W", wa)

	assert.True(t, a.IsAssignableFrom(wa), "one level unwraps")
	assert.False(t, a.IsAssignableFrom(wwa), "two levels never unwrap")
	assert.False(t, a.IsAssignableFrom(New(u, "com.acme.W")), "raw wrapper carries nothing")
}

func TestDescriptor_UnwrapRequiresSingleArgument(t *testing.T) {
	t.Parallel()
	u := newFakeUniverse()
	a := Declared(u, "com.acme.A")
	pair := New(u, "com.acme.Pair", a, a)
	assert.False(t, a.IsAssignableFrom(pair))
}

func TestDescriptor_UnwrapUsesHierarchy(t *testing.T) {
	t.Parallel()
	u := newFakeUniverse()
	u.declare("com.acme.Event")
	u.declare("com.acme.OrderCreated", "com.acme.Event")
	wrapped := New(u, "com.acme.Result", Declared(u, "com.acme.OrderCreated"))
	assert.True(t, Declared(u, "com.acme.Event").IsAssignableFrom(wrapped))
}

func TestDescriptor_GenericTargetNeedsMatchingArgs(t *testing.T) {
	t.Parallel()
	u := newFakeUniverse()
	a := Declared(u, "com.acme.A")
	b := Declared(u, "com.acme.B")
	wa := New(u, "com.acme.W", a)

	assert.True(t, wa.IsAssignableFrom(New(u, "com.acme.W", a)))
	assert.False(t, wa.IsAssignableFrom(New(u, "com.acme.W", b)))
	assert.True(t, New(u, "com.acme.W").IsAssignableFrom(wa), "raw target accepts any parameterization")
}

func TestAncestors(t *testing.T) {
	t.Parallel()
	u := newFakeUniverse()
	u.declare("a.C", "a.B", "a.I")
	u.declare("a.B", "a.A")
	assert.Equal(t, []string{"a.C", "a.B", "a.I", "a.A"}, Ancestors(u, "a.C"))
	assert.Equal(t, []string{"x.Y"}, Ancestors(nil, "x.Y"))
}
