package extract

import (
	"slices"

	"github.com/jward/msgxref/internal/entry"
	"github.com/jward/msgxref/internal/typesys"
)

// HandlerExtractor derives at most one handler from a method.
type HandlerExtractor interface {
	ExtractHandler(m Method) (entry.Handler, bool)
}

// PublisherExtractor derives at most one publisher from a site. commands
// holds the canonical names of types dispatched as commands.
type PublisherExtractor interface {
	ExtractPublisher(s Site, commands CommandSet) (entry.Publisher, bool)
}

// AnnotatedHandlers recognises methods carrying a handler annotation.
type AnnotatedHandlers struct {
	Rules *Rules
}

// ExtractHandler implements HandlerExtractor.
func (x AnnotatedHandlers) ExtractHandler(m Method) (entry.Handler, bool) {
	ha, ann, ok := x.Rules.match(m.Annotations)
	if !ok {
		return entry.Handler{}, false
	}
	handled := x.handledType(ann, m)
	if !handled.IsKnown() {
		return entry.Handler{}, false
	}
	return entry.Handler{
		HandledType: handled,
		Decl:        m.Ref,
		Kind:        ha.Kind,
		Internal:    x.Rules.internal(m),
		Method:      m.Name,
	}, true
}

// handledType prefers an explicit type attribute over the first parameter.
func (x AnnotatedHandlers) handledType(ann Annotation, m Method) typesys.Descriptor {
	for _, name := range x.Rules.AttributeNames {
		v, ok := ann.Attrs[name]
		if !ok || !v.HasChildren {
			continue
		}
		t := v.Type
		// Foo.class has the static type Class<Foo>.
		if args := t.Args(); len(args) == 1 {
			t = args[0]
		}
		if t.IsKnown() {
			return t
		}
	}
	if len(m.Params) == 0 {
		return typesys.Unknown()
	}
	return m.Params[0]
}

// CommandParameter returns the dispatched command type declared by a
// command handler: its first parameter. ok is false for other methods.
func (x AnnotatedHandlers) CommandParameter(m Method) (typesys.Descriptor, bool) {
	ha, _, ok := x.Rules.match(m.Annotations)
	if !ok || ha.Kind != entry.Command || len(m.Params) == 0 || !m.Params[0].IsKnown() {
		return typesys.Descriptor{}, false
	}
	return m.Params[0], true
}

// LifecyclePublishers recognises apply/registerEvent style calls on the
// aggregate lifecycle types.
type LifecyclePublishers struct {
	Rules *Rules
}

// ExtractPublisher implements PublisherExtractor.
func (x LifecyclePublishers) ExtractPublisher(s Site, _ CommandSet) (entry.Publisher, bool) {
	call, ok := s.(CallSite)
	if !ok || len(call.Args) == 0 {
		return entry.Publisher{}, false
	}
	for _, pm := range x.Rules.Publishers {
		if pm.Method != call.Method || !slices.Contains(call.Receivers, pm.Owner) {
			continue
		}
		published := call.Args[0]
		if !published.IsKnown() {
			return entry.Publisher{}, false
		}
		return entry.Publisher{
			PublishedType: published,
			Site:          call.Ref,
			Kind:          pm.Kind,
			Enclosing:     call.Enclosing,
		}, true
	}
	return entry.Publisher{}, false
}

// CommandConstructions recognises constructor invocations of command types.
type CommandConstructions struct{}

// ExtractPublisher implements PublisherExtractor.
func (CommandConstructions) ExtractPublisher(s Site, commands CommandSet) (entry.Publisher, bool) {
	c, ok := s.(Construction)
	if !ok || commands == nil || !c.Type.IsKnown() || !commands.Contains(c.Type.Name()) {
		return entry.Publisher{}, false
	}
	return entry.Publisher{
		PublishedType: c.Type,
		Site:          c.Ref,
		Kind:          entry.CommandDispatch,
		Enclosing:     c.Enclosing,
	}, true
}

// DefaultHandlerExtractors returns the built-in handler extractors.
func DefaultHandlerExtractors(r *Rules) []HandlerExtractor {
	return []HandlerExtractor{AnnotatedHandlers{Rules: r}}
}

// DefaultPublisherExtractors returns the built-in publisher extractors.
func DefaultPublisherExtractors(r *Rules) []PublisherExtractor {
	return []PublisherExtractor{LifecyclePublishers{Rules: r}, CommandConstructions{}}
}
