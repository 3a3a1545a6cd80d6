// Package index implements the type-keyed multimaps that hold handler and
// publisher entries.
//
// Every registration prunes entries whose validity predicate has turned
// false. Validity is evaluated with no lock held, so predicates may call
// back into the host source model (or into another index) freely.
package index

import (
	"sync"

	"github.com/jward/msgxref/internal/entry"
	"github.com/jward/msgxref/internal/typesys"
)

// Observer receives index activity counts. *metrics.Metrics implements it.
type Observer interface {
	Registered(index string, n int)
	Pruned(index string, n int)
	Size(index string, n int)
}

// Option configures an Index.
type Option func(*options)

type options struct {
	name     string
	observer Observer
}

// WithName sets the label reported to the observer.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithObserver attaches an activity observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// slot is a stored entry stamped with the registration that wrote it. The
// stamp lets a prune skip entries that were rewritten after its snapshot.
type slot[E entry.Entry] struct {
	entry E
	seq   uint64
}

type bucket[E entry.Entry] struct {
	typ   typesys.Descriptor
	items map[string]slot[E]
}

// Index is a concurrent multimap from canonical type key to entries with
// set semantics on entry identity.
type Index[E entry.Entry] struct {
	mu      sync.RWMutex
	buckets map[string]*bucket[E]
	owner   map[string]string // identity -> type key
	seq     uint64

	name     string
	observer Observer
}

// New creates an empty Index.
func New[E entry.Entry](opts ...Option) *Index[E] {
	o := options{name: "index"}
	for _, opt := range opts {
		opt(&o)
	}
	return &Index[E]{
		buckets:  make(map[string]*bucket[E]),
		owner:    make(map[string]string),
		name:     o.name,
		observer: o.observer,
	}
}

// Register inserts e, replacing any entry with the same identity, then
// prunes every entry that is no longer valid. Entries of unknown type are
// dropped.
func (ix *Index[E]) Register(e E) {
	ix.RegisterAll([]E{e})
}

// RegisterAll registers a batch under one lock acquisition and runs a
// single prune afterwards. It returns the number of entries pruned.
func (ix *Index[E]) RegisterAll(entries []E) int {
	ix.mu.Lock()
	inserted := 0
	for _, e := range entries {
		typ := e.Type()
		if !typ.IsKnown() {
			continue
		}
		ix.putLocked(e, typ)
		inserted++
	}
	snap := ix.snapshotLocked()
	ix.mu.Unlock()

	if inserted > 0 && ix.observer != nil {
		ix.observer.Registered(ix.name, inserted)
	}
	return ix.prune(snap)
}

func (ix *Index[E]) putLocked(e E, typ typesys.Descriptor) {
	id := e.Identity()
	key := typ.Key()
	if prev, ok := ix.owner[id]; ok && prev != key {
		if b := ix.buckets[prev]; b != nil {
			delete(b.items, id)
			if len(b.items) == 0 {
				delete(ix.buckets, prev)
			}
		}
	}
	b := ix.buckets[key]
	if b == nil {
		b = &bucket[E]{typ: typ, items: make(map[string]slot[E])}
		ix.buckets[key] = b
	}
	ix.seq++
	b.items[id] = slot[E]{entry: e, seq: ix.seq}
	ix.owner[id] = key
}

type stamped[E entry.Entry] struct {
	key   string
	id    string
	seq   uint64
	entry E
}

func (ix *Index[E]) snapshotLocked() []stamped[E] {
	out := make([]stamped[E], 0, len(ix.owner))
	for key, b := range ix.buckets {
		for id, s := range b.items {
			out = append(out, stamped[E]{key: key, id: id, seq: s.seq, entry: s.entry})
		}
	}
	return out
}

// prune evaluates validity outside the lock, then removes the stale entries
// whose stamp is unchanged.
func (ix *Index[E]) prune(snap []stamped[E]) int {
	var stale []stamped[E]
	for _, s := range snap {
		if !s.entry.Valid() {
			stale = append(stale, s)
		}
	}

	removed := 0
	ix.mu.Lock()
	for _, s := range stale {
		b := ix.buckets[s.key]
		if b == nil {
			continue
		}
		cur, ok := b.items[s.id]
		if !ok || cur.seq != s.seq {
			continue
		}
		delete(b.items, s.id)
		if ix.owner[s.id] == s.key {
			delete(ix.owner, s.id)
		}
		if len(b.items) == 0 {
			delete(ix.buckets, s.key)
		}
		removed++
	}
	size := len(ix.owner)
	ix.mu.Unlock()

	if ix.observer != nil {
		if removed > 0 {
			ix.observer.Pruned(ix.name, removed)
		}
		ix.observer.Size(ix.name, size)
	}
	return removed
}

type view[E entry.Entry] struct {
	typ     typesys.Descriptor
	entries []E
}

// snapshot copies the bucket contents so callers never see a torn state.
func (ix *Index[E]) snapshot() []view[E] {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]view[E], 0, len(ix.buckets))
	for _, b := range ix.buckets {
		v := view[E]{typ: b.typ, entries: make([]E, 0, len(b.items))}
		for _, s := range b.items {
			v.entries = append(v.entries, s.entry)
		}
		out = append(out, v)
	}
	return out
}

// Find returns every valid entry whose bucket type satisfies match and that
// passes keep (nil keeps all). The result order is unspecified.
func (ix *Index[E]) Find(match func(typesys.Descriptor) bool, keep func(E) bool) []E {
	var out []E
	for _, v := range ix.snapshot() {
		if !match(v.typ) {
			continue
		}
		for _, e := range v.entries {
			if !e.Valid() {
				continue
			}
			if keep != nil && !keep(e) {
				continue
			}
			out = append(out, e)
		}
	}
	return out
}

// All returns every valid entry.
func (ix *Index[E]) All() []E {
	return ix.Find(func(typesys.Descriptor) bool { return true }, nil)
}

// Types returns the descriptor of every non-empty bucket.
func (ix *Index[E]) Types() []typesys.Descriptor {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]typesys.Descriptor, 0, len(ix.buckets))
	for _, b := range ix.buckets {
		out = append(out, b.typ)
	}
	return out
}

// Len returns the number of stored entries, valid or not.
func (ix *Index[E]) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.owner)
}

// Evict removes every entry drop reports true for, valid or not, and
// returns how many went. drop runs under the index lock and must not call
// back into the index.
func (ix *Index[E]) Evict(drop func(E) bool) int {
	ix.mu.Lock()
	removed := 0
	for key, b := range ix.buckets {
		for id, s := range b.items {
			if !drop(s.entry) {
				continue
			}
			delete(b.items, id)
			delete(ix.owner, id)
			removed++
		}
		if len(b.items) == 0 {
			delete(ix.buckets, key)
		}
	}
	size := len(ix.owner)
	ix.mu.Unlock()

	if ix.observer != nil {
		if removed > 0 {
			ix.observer.Pruned(ix.name, removed)
		}
		ix.observer.Size(ix.name, size)
	}
	return removed
}

// Lookup returns the stored entry for an identity.
func (ix *Index[E]) Lookup(identity string) (E, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var zero E
	key, ok := ix.owner[identity]
	if !ok {
		return zero, false
	}
	s, ok := ix.buckets[key].items[identity]
	if !ok {
		return zero, false
	}
	return s.entry, true
}
