// Package entry defines the immutable handler and publisher records stored
// in the message indexes.
package entry

import (
	"fmt"

	"github.com/jward/msgxref/internal/typesys"
)

// Location is a 1-based source position.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Ref is an opaque reference to a source element owned by the host source
// model. Valid is evaluated on demand and may flip to false at any time
// after the element is edited or removed.
type Ref interface {
	Key() string
	Valid() bool
	Location() Location
}

// HandlerKind classifies a handler by the annotation that declared it.
// The order of the constants is the recognition priority.
type HandlerKind int

const (
	Event HandlerKind = iota
	EventSourcing
	SagaEvent
	Command
	Query
)

var handlerKindNames = [...]string{"event", "event-sourcing", "saga-event", "command", "query"}

func (k HandlerKind) String() string {
	if int(k) < len(handlerKindNames) {
		return handlerKindNames[k]
	}
	return fmt.Sprintf("HandlerKind(%d)", int(k))
}

// ParseHandlerKind is the inverse of HandlerKind.String.
func ParseHandlerKind(s string) (HandlerKind, error) {
	for i, n := range handlerKindNames {
		if n == s {
			return HandlerKind(i), nil
		}
	}
	return 0, fmt.Errorf("entry: unknown handler kind %q", s)
}

// IsEvent reports whether the kind consumes events.
func (k HandlerKind) IsEvent() bool {
	switch k {
	case Event, EventSourcing, SagaEvent:
		return true
	}
	return false
}

// PublisherKind classifies how a message is emitted.
type PublisherKind int

const (
	EventPublish PublisherKind = iota
	CommandDispatch
)

var publisherKindNames = [...]string{"event-publish", "command-dispatch"}

func (k PublisherKind) String() string {
	if int(k) < len(publisherKindNames) {
		return publisherKindNames[k]
	}
	return fmt.Sprintf("PublisherKind(%d)", int(k))
}

// ParsePublisherKind is the inverse of PublisherKind.String.
func ParsePublisherKind(s string) (PublisherKind, error) {
	for i, n := range publisherKindNames {
		if n == s {
			return PublisherKind(i), nil
		}
	}
	return 0, fmt.Errorf("entry: unknown publisher kind %q", s)
}

// Entry is what an index stores. Identity is the backing element key, so
// re-registering the same element overwrites.
type Entry interface {
	Identity() string
	Type() typesys.Descriptor
	Valid() bool
}

// Handler is one resolved message handler.
type Handler struct {
	HandledType typesys.Descriptor
	Decl        Ref
	Kind        HandlerKind
	Internal    bool
	Method      string
}

func (h Handler) Identity() string { return h.Decl.Key() }
func (h Handler) Type() typesys.Descriptor { return h.HandledType }
func (h Handler) Location() Location { return h.Decl.Location() }
func (h Handler) Valid() bool { return h.Decl.Valid() && h.HandledType.IsValid() }

// Publisher is one resolved publish site.
type Publisher struct {
	PublishedType typesys.Descriptor
	Site          Ref
	Kind          PublisherKind
	// Enclosing names the method containing the site, if any.
	Enclosing string
}

func (p Publisher) Identity() string { return p.Site.Key() }
func (p Publisher) Type() typesys.Descriptor { return p.PublishedType }
func (p Publisher) Location() Location { return p.Site.Location() }
func (p Publisher) Valid() bool { return p.Site.Valid() && p.PublishedType.IsValid() }

var (
	_ Entry = Handler{}
	_ Entry = Publisher{}
)
