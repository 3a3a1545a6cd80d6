package index

import (
	"github.com/jward/msgxref/internal/entry"
	"github.com/jward/msgxref/internal/typesys"
)

// HandlerIndex maps handled types to handler entries.
type HandlerIndex struct {
	*Index[entry.Handler]
}

// NewHandlerIndex creates an empty HandlerIndex.
func NewHandlerIndex(opts ...Option) *HandlerIndex {
	return &HandlerIndex{Index: New[entry.Handler](append([]Option{WithName("handlers")}, opts...)...)}
}

// FindHandlersFor returns the valid handlers whose handled type is
// assignable from published. An unknown type matches nothing.
func (h *HandlerIndex) FindHandlersFor(published typesys.Descriptor) []entry.Handler {
	return h.find(published, nil)
}

// FindEventHandlers is FindHandlersFor restricted to event, event-sourcing
// and saga handlers.
func (h *HandlerIndex) FindEventHandlers(published typesys.Descriptor) []entry.Handler {
	return h.find(published, func(e entry.Handler) bool { return e.Kind.IsEvent() })
}

// FindCommandHandlers is FindHandlersFor restricted to command handlers.
func (h *HandlerIndex) FindCommandHandlers(published typesys.Descriptor) []entry.Handler {
	return h.find(published, func(e entry.Handler) bool { return e.Kind == entry.Command })
}

// FindQueryHandlers is FindHandlersFor restricted to query handlers.
func (h *HandlerIndex) FindQueryHandlers(published typesys.Descriptor) []entry.Handler {
	return h.find(published, func(e entry.Handler) bool { return e.Kind == entry.Query })
}

func (h *HandlerIndex) find(published typesys.Descriptor, keep func(entry.Handler) bool) []entry.Handler {
	if !published.IsKnown() {
		return nil
	}
	return h.Find(func(handled typesys.Descriptor) bool {
		return handled.IsAssignableFrom(published)
	}, keep)
}

// PublisherIndex maps published types to publisher entries.
type PublisherIndex struct {
	*Index[entry.Publisher]
}

// NewPublisherIndex creates an empty PublisherIndex.
func NewPublisherIndex(opts ...Option) *PublisherIndex {
	return &PublisherIndex{Index: New[entry.Publisher](append([]Option{WithName("publishers")}, opts...)...)}
}

// FindPublishersFor returns the valid publishers whose published type a
// handler of type handled would accept.
func (p *PublisherIndex) FindPublishersFor(handled typesys.Descriptor) []entry.Publisher {
	return p.FindPublishersOfKind(handled, nil)
}

// FindPublishersOfKind is FindPublishersFor filtered by kind; nil keeps all.
func (p *PublisherIndex) FindPublishersOfKind(handled typesys.Descriptor, kind *entry.PublisherKind) []entry.Publisher {
	if !handled.IsKnown() {
		return nil
	}
	var keep func(entry.Publisher) bool
	if kind != nil {
		k := *kind
		keep = func(e entry.Publisher) bool { return e.Kind == k }
	}
	return p.Find(func(published typesys.Descriptor) bool {
		return handled.IsAssignableFrom(published)
	}, keep)
}
