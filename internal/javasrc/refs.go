package javasrc

import (
	"github.com/jward/msgxref/internal/entry"
)

// elementRef points at a method, call or constructor invocation in one
// generation of a file. It goes stale as soon as the file is re-indexed
// with different content or removed.
type elementRef struct {
	model *Model
	path  string
	gen   int64
	key   string
	loc   entry.Location
}

// Key identifies the element across generations, so a re-extracted entry
// replaces its predecessor in an index.
func (r elementRef) Key() string { return r.key }

func (r elementRef) Valid() bool { return r.model.live(r.path, r.gen) }

func (r elementRef) Location() entry.Location { return r.loc }

var _ entry.Ref = elementRef{}
