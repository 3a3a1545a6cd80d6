package extract

import (
	"maps"
	"slices"
	"sort"

	"github.com/jward/msgxref/internal/entry"
)

// HandlerAnnotation maps an annotation name to the handler kind it declares.
type HandlerAnnotation struct {
	Name string
	Kind entry.HandlerKind
}

// PublishMethod is a recognised publish call: Method invoked on Owner or a
// subtype of Owner.
type PublishMethod struct {
	Owner  string
	Method string
	Kind   entry.PublisherKind
}

// Rules is the recognition table shared by the extractors. Build one with
// DefaultRules and extend it before handing it to extractors; it must not
// be mutated afterwards.
type Rules struct {
	// Handlers is kept sorted by kind, which is the recognition priority.
	Handlers      []HandlerAnnotation
	Publishers    []PublishMethod
	InternalBases []string
	// InternalMarkers are class annotations that make the class's handlers
	// aggregate-internal.
	InternalMarkers []string
	// AttributeNames are the annotation attributes that may carry an
	// explicit handled type, checked in order.
	AttributeNames []string
	// LibrarySupertypes records the hierarchy of framework types that are
	// referenced by source but never declared in it.
	LibrarySupertypes map[string][]string
}

// DefaultRules returns the tables for the Axon 2 through 5 annotation names.
func DefaultRules() *Rules {
	r := &Rules{
		InternalBases: []string{
			"org.axonframework.eventsourcing.annotation.AbstractAnnotatedAggregateRoot",
			"org.axonframework.eventsourcing.annotation.AbstractAnnotatedEntity",
		},
		InternalMarkers: []string{
			"org.axonframework.modelling.command.AggregateRoot",
			"org.axonframework.spring.stereotype.Aggregate",
			"org.axonframework.eventsourcing.annotation.EventSourced",
			"org.axonframework.eventsourcing.annotation.EventSourcedEntity",
		},
		AttributeNames: []string{"eventType", "payloadType"},
		LibrarySupertypes: map[string][]string{
			"org.axonframework.eventsourcing.annotation.AbstractAnnotatedAggregateRoot": {"org.axonframework.eventsourcing.AbstractEventSourcedAggregateRoot"},
			"org.axonframework.eventsourcing.annotation.AbstractAnnotatedEntity":        {"org.axonframework.eventsourcing.AbstractEventSourcedEntity"},
			"org.axonframework.eventsourcing.AbstractEventSourcedAggregateRoot":         {"org.axonframework.domain.AbstractAggregateRoot"},
		},
		Publishers: []PublishMethod{
			{Owner: "org.axonframework.eventsourcing.AbstractEventSourcedAggregateRoot", Method: "apply", Kind: entry.EventPublish},
			{Owner: "org.axonframework.eventsourcing.AbstractEventSourcedEntity", Method: "apply", Kind: entry.EventPublish},
			{Owner: "org.axonframework.domain.AbstractAggregateRoot", Method: "registerEvent", Kind: entry.EventPublish},
			{Owner: "org.axonframework.modelling.command.AggregateLifecycle", Method: "apply", Kind: entry.EventPublish},
		},
	}
	for _, h := range []HandlerAnnotation{
		{"org.axonframework.eventhandling.EventHandler", entry.Event},
		{"org.axonframework.eventhandling.annotation.EventHandler", entry.Event},
		{"org.axonframework.messaging.eventhandling.annotation.EventHandler", entry.Event},
		{"org.axonframework.eventsourcing.EventSourcingHandler", entry.EventSourcing},
		{"org.axonframework.eventsourcing.annotation.EventSourcingHandler", entry.EventSourcing},
		{"org.axonframework.modelling.saga.SagaEventHandler", entry.SagaEvent},
		{"org.axonframework.saga.annotation.SagaEventHandler", entry.SagaEvent},
		{"org.axonframework.commandhandling.CommandHandler", entry.Command},
		{"org.axonframework.commandhandling.annotation.CommandHandler", entry.Command},
		{"org.axonframework.messaging.commandhandling.annotation.CommandHandler", entry.Command},
		{"org.axonframework.queryhandling.QueryHandler", entry.Query},
		{"org.axonframework.messaging.queryhandling.annotation.QueryHandler", entry.Query},
	} {
		r.AddHandlerAnnotation(h.Name, h.Kind)
	}
	return r
}

// Clone returns a deep copy.
func (r *Rules) Clone() *Rules {
	return &Rules{
		Handlers:          slices.Clone(r.Handlers),
		Publishers:        slices.Clone(r.Publishers),
		InternalBases:     slices.Clone(r.InternalBases),
		InternalMarkers:   slices.Clone(r.InternalMarkers),
		AttributeNames:    slices.Clone(r.AttributeNames),
		LibrarySupertypes: maps.Clone(r.LibrarySupertypes),
	}
}

// AddHandlerAnnotation registers name under kind, keeping priority order.
// Re-adding a known name changes its kind.
func (r *Rules) AddHandlerAnnotation(name string, kind entry.HandlerKind) {
	r.Handlers = slices.DeleteFunc(r.Handlers, func(h HandlerAnnotation) bool { return h.Name == name })
	r.Handlers = append(r.Handlers, HandlerAnnotation{Name: name, Kind: kind})
	sort.SliceStable(r.Handlers, func(i, j int) bool { return r.Handlers[i].Kind < r.Handlers[j].Kind })
}

// AddPublishMethod registers a publish call shape.
func (r *Rules) AddPublishMethod(owner, method string, kind entry.PublisherKind) {
	pm := PublishMethod{Owner: owner, Method: method, Kind: kind}
	if !slices.Contains(r.Publishers, pm) {
		r.Publishers = append(r.Publishers, pm)
	}
}

// AddInternalBase registers an aggregate-internal base type.
func (r *Rules) AddInternalBase(name string) {
	if !slices.Contains(r.InternalBases, name) {
		r.InternalBases = append(r.InternalBases, name)
	}
}

// AddInternalMarker registers an aggregate class annotation.
func (r *Rules) AddInternalMarker(name string) {
	if !slices.Contains(r.InternalMarkers, name) {
		r.InternalMarkers = append(r.InternalMarkers, name)
	}
}

// AddAttributeName appends an explicit-type attribute name.
func (r *Rules) AddAttributeName(name string) {
	if !slices.Contains(r.AttributeNames, name) {
		r.AttributeNames = append(r.AttributeNames, name)
	}
}

// AddLibrarySupertype records that the library type sub extends super.
func (r *Rules) AddLibrarySupertype(sub, super string) {
	if r.LibrarySupertypes == nil {
		r.LibrarySupertypes = make(map[string][]string)
	}
	if !slices.Contains(r.LibrarySupertypes[sub], super) {
		r.LibrarySupertypes[sub] = append(slices.Clone(r.LibrarySupertypes[sub]), super)
	}
}

// KnownAnnotation reports whether name is any recognised handler
// annotation. Source models use it to skip methods early.
func (r *Rules) KnownAnnotation(name string) bool {
	for _, h := range r.Handlers {
		if h.Name == name {
			return true
		}
	}
	return false
}

// match returns the highest priority handler annotation present.
func (r *Rules) match(anns []Annotation) (HandlerAnnotation, Annotation, bool) {
	for _, h := range r.Handlers {
		for _, a := range anns {
			if a.Name == h.Name {
				return h, a, true
			}
		}
	}
	return HandlerAnnotation{}, Annotation{}, false
}

func (r *Rules) internal(m Method) bool {
	for _, a := range m.Ancestors {
		if slices.Contains(r.InternalBases, a) {
			return true
		}
	}
	for _, a := range m.OwnerAnnotations {
		if slices.Contains(r.InternalMarkers, a) {
			return true
		}
	}
	return false
}
