package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/msgxref/internal/entry"
	"github.com/jward/msgxref/internal/typesys"
)

const (
	eventHandler    = "org.axonframework.eventhandling.EventHandler"
	legacyEvent     = "org.axonframework.eventhandling.annotation.EventHandler"
	commandHandler  = "org.axonframework.commandhandling.CommandHandler"
	sourcingHandler = "org.axonframework.eventsourcing.EventSourcingHandler"
)

type ref string

func (r ref) Key() string { return string(r) }
func (r ref) Valid() bool { return true }
func (r ref) Location() entry.Location { return entry.Location{File: string(r)} }

func named(name string, args ...typesys.Descriptor) typesys.Descriptor {
	return typesys.New(nil, name, args...)
}

func classOf(name string) AttrValue {
	return AttrValue{Type: named(typesys.ClassType, named(name)), HasChildren: true}
}

func method(anns []Annotation, params ...typesys.Descriptor) Method {
	return Method{Ref: ref("Orders#on"), Name: "on", Annotations: anns, Params: params}
}

func TestExtractHandler_FirstParameter(t *testing.T) {
	t.Parallel()
	x := AnnotatedHandlers{Rules: DefaultRules()}

	h, ok := x.ExtractHandler(method([]Annotation{{Name: eventHandler}}, named("com.acme.OrderCreated")))
	require.True(t, ok)
	assert.Equal(t, "com.acme.OrderCreated", h.HandledType.Key())
	assert.Equal(t, entry.Event, h.Kind)
	assert.Equal(t, "on", h.Method)
	assert.False(t, h.Internal)
}

func TestExtractHandler_NotAnnotated(t *testing.T) {
	t.Parallel()
	x := AnnotatedHandlers{Rules: DefaultRules()}
	_, ok := x.ExtractHandler(method([]Annotation{{Name: "java.lang.Override"}}, named("com.acme.A")))
	assert.False(t, ok)
}

func TestExtractHandler_ZeroArityFailsClosed(t *testing.T) {
	t.Parallel()
	x := AnnotatedHandlers{Rules: DefaultRules()}
	_, ok := x.ExtractHandler(method([]Annotation{{Name: eventHandler}}))
	assert.False(t, ok)
}

func TestExtractHandler_ExplicitAttribute(t *testing.T) {
	t.Parallel()
	x := AnnotatedHandlers{Rules: DefaultRules()}
	ann := Annotation{Name: eventHandler, Attrs: map[string]AttrValue{"eventType": classOf("com.acme.OrderCreated")}}

	h, ok := x.ExtractHandler(method([]Annotation{ann}, named("org.axonframework.eventhandling.EventMessage")))
	require.True(t, ok)
	assert.Equal(t, "com.acme.OrderCreated", h.HandledType.Key())

	h, ok = x.ExtractHandler(method([]Annotation{ann}))
	require.True(t, ok, "explicit attribute works without parameters")
	assert.Equal(t, "com.acme.OrderCreated", h.HandledType.Key())
}

func TestExtractHandler_PayloadTypeAttribute(t *testing.T) {
	t.Parallel()
	x := AnnotatedHandlers{Rules: DefaultRules()}
	ann := Annotation{Name: commandHandler, Attrs: map[string]AttrValue{"payloadType": classOf("com.acme.CreateOrder")}}

	h, ok := x.ExtractHandler(method([]Annotation{ann}))
	require.True(t, ok)
	assert.Equal(t, "com.acme.CreateOrder", h.HandledType.Key())
	assert.Equal(t, entry.Command, h.Kind)
}

func TestExtractHandler_EventTypeCheckedFirst(t *testing.T) {
	t.Parallel()
	x := AnnotatedHandlers{Rules: DefaultRules()}
	ann := Annotation{Name: eventHandler, Attrs: map[string]AttrValue{
		"payloadType": classOf("com.acme.B"),
		"eventType":   classOf("com.acme.A"),
	}}
	h, ok := x.ExtractHandler(method([]Annotation{ann}))
	require.True(t, ok)
	assert.Equal(t, "com.acme.A", h.HandledType.Key())
}

func TestExtractHandler_VoidFallsBackToParameter(t *testing.T) {
	t.Parallel()
	x := AnnotatedHandlers{Rules: DefaultRules()}
	ann := Annotation{Name: eventHandler, Attrs: map[string]AttrValue{"eventType": classOf(typesys.VoidType)}}

	h, ok := x.ExtractHandler(method([]Annotation{ann}, named("com.acme.OrderCreated")))
	require.True(t, ok)
	assert.Equal(t, "com.acme.OrderCreated", h.HandledType.Key())

	_, ok = x.ExtractHandler(method([]Annotation{ann}))
	assert.False(t, ok, "Void with no parameter yields nothing")
}

func TestExtractHandler_EmptyAttributeFallsBack(t *testing.T) {
	t.Parallel()
	x := AnnotatedHandlers{Rules: DefaultRules()}
	empty := AttrValue{Type: named(typesys.ClassType, named("com.acme.Ghost")), HasChildren: false}
	ann := Annotation{Name: eventHandler, Attrs: map[string]AttrValue{"eventType": empty}}

	h, ok := x.ExtractHandler(method([]Annotation{ann}, named("com.acme.OrderCreated")))
	require.True(t, ok)
	assert.Equal(t, "com.acme.OrderCreated", h.HandledType.Key())
}

func TestExtractHandler_NonTypeAttributeFallsBack(t *testing.T) {
	t.Parallel()
	x := AnnotatedHandlers{Rules: DefaultRules()}
	ann := Annotation{Name: eventHandler, Attrs: map[string]AttrValue{"eventType": {Type: typesys.Unknown(), HasChildren: true}}}

	h, ok := x.ExtractHandler(method([]Annotation{ann}, named("com.acme.OrderCreated")))
	require.True(t, ok)
	assert.Equal(t, "com.acme.OrderCreated", h.HandledType.Key())
}

func TestExtractHandler_PriorityOrder(t *testing.T) {
	t.Parallel()
	x := AnnotatedHandlers{Rules: DefaultRules()}
	h, ok := x.ExtractHandler(method(
		[]Annotation{{Name: commandHandler}, {Name: sourcingHandler}, {Name: legacyEvent}},
		named("com.acme.A"),
	))
	require.True(t, ok)
	assert.Equal(t, entry.Event, h.Kind)
}

func TestExtractHandler_Internal(t *testing.T) {
	t.Parallel()
	x := AnnotatedHandlers{Rules: DefaultRules()}

	m := method([]Annotation{{Name: sourcingHandler}}, named("com.acme.OrderCreated"))
	m.Ancestors = []string{"com.acme.Order", "org.axonframework.eventsourcing.annotation.AbstractAnnotatedAggregateRoot"}
	h, ok := x.ExtractHandler(m)
	require.True(t, ok)
	assert.True(t, h.Internal)
	assert.Equal(t, entry.EventSourcing, h.Kind)

	m = method([]Annotation{{Name: sourcingHandler}}, named("com.acme.OrderCreated"))
	m.OwnerAnnotations = []string{"org.axonframework.spring.stereotype.Aggregate"}
	h, ok = x.ExtractHandler(m)
	require.True(t, ok)
	assert.True(t, h.Internal)
}

func TestCommandParameter(t *testing.T) {
	t.Parallel()
	x := AnnotatedHandlers{Rules: DefaultRules()}

	got, ok := x.CommandParameter(method([]Annotation{{Name: commandHandler}}, named("com.acme.CreateOrder")))
	require.True(t, ok)
	assert.Equal(t, "com.acme.CreateOrder", got.Name())

	_, ok = x.CommandParameter(method([]Annotation{{Name: eventHandler}}, named("com.acme.OrderCreated")))
	assert.False(t, ok)
	_, ok = x.CommandParameter(method([]Annotation{{Name: commandHandler}}))
	assert.False(t, ok)
}

func TestLifecyclePublishers(t *testing.T) {
	t.Parallel()
	x := LifecyclePublishers{Rules: DefaultRules()}
	base := "org.axonframework.eventsourcing.AbstractEventSourcedAggregateRoot"

	p, ok := x.ExtractPublisher(CallSite{
		Ref: ref("Order#12"), Method: "apply", Receivers: []string{"com.acme.Order", base},
		Args: []typesys.Descriptor{named("com.acme.OrderCreated")}, Enclosing: "create",
	}, nil)
	require.True(t, ok)
	assert.Equal(t, "com.acme.OrderCreated", p.PublishedType.Key())
	assert.Equal(t, entry.EventPublish, p.Kind)
	assert.Equal(t, "create", p.Enclosing)

	_, ok = x.ExtractPublisher(CallSite{Ref: ref("x"), Method: "apply", Receivers: []string{base}}, nil)
	assert.False(t, ok, "no arguments")

	_, ok = x.ExtractPublisher(CallSite{
		Ref: ref("x"), Method: "apply", Receivers: []string{"java.util.function.Function"},
		Args: []typesys.Descriptor{named("com.acme.OrderCreated")},
	}, nil)
	assert.False(t, ok, "apply on an unrelated type")

	_, ok = x.ExtractPublisher(CallSite{
		Ref: ref("x"), Method: "apply", Receivers: []string{base}, Args: []typesys.Descriptor{typesys.Unknown()},
	}, nil)
	assert.False(t, ok, "untyped argument")

	_, ok = x.ExtractPublisher(Construction{Ref: ref("x"), Type: named("com.acme.OrderCreated")}, nil)
	assert.False(t, ok)
}

func TestLifecyclePublishers_StaticApply(t *testing.T) {
	t.Parallel()
	x := LifecyclePublishers{Rules: DefaultRules()}
	p, ok := x.ExtractPublisher(CallSite{
		Ref: ref("Order#20"), Method: "apply",
		Receivers: []string{"org.axonframework.modelling.command.AggregateLifecycle"},
		Args:      []typesys.Descriptor{named("com.acme.OrderCreated")},
	}, nil)
	require.True(t, ok)
	assert.Equal(t, "com.acme.OrderCreated", p.PublishedType.Key())
}

func TestCommandConstructions(t *testing.T) {
	t.Parallel()
	cmds := NewCommandTypes()
	cmds.Add(named("com.acme.CreateOrder"))

	x := CommandConstructions{}
	p, ok := x.ExtractPublisher(Construction{Ref: ref("Api#8"), Type: named("com.acme.CreateOrder")}, cmds)
	require.True(t, ok)
	assert.Equal(t, entry.CommandDispatch, p.Kind)
	assert.Equal(t, "Api#8", p.Identity())

	_, ok = x.ExtractPublisher(Construction{Ref: ref("Api#9"), Type: named("com.acme.Other")}, cmds)
	assert.False(t, ok)
	_, ok = x.ExtractPublisher(Construction{Ref: ref("Api#8"), Type: named("com.acme.CreateOrder")}, nil)
	assert.False(t, ok)
}

func TestRules_AddKeepsPriority(t *testing.T) {
	t.Parallel()
	r := DefaultRules()
	r.AddHandlerAnnotation("com.acme.OnEvent", entry.Event)
	r.AddHandlerAnnotation("com.acme.OnQuery", entry.Query)

	for i := 1; i < len(r.Handlers); i++ {
		assert.LessOrEqual(t, r.Handlers[i-1].Kind, r.Handlers[i].Kind)
	}
	assert.True(t, r.KnownAnnotation("com.acme.OnEvent"))

	r.AddHandlerAnnotation("com.acme.OnEvent", entry.Command)
	count := 0
	for _, h := range r.Handlers {
		if h.Name == "com.acme.OnEvent" {
			count++
			assert.Equal(t, entry.Command, h.Kind)
		}
	}
	assert.Equal(t, 1, count)
}

func TestRules_CloneIsIndependent(t *testing.T) {
	t.Parallel()
	base := DefaultRules()
	c := base.Clone()
	c.AddAttributeName("messageType")
	c.AddPublishMethod("com.acme.Bus", "publish", entry.EventPublish)
	c.AddPublishMethod("com.acme.Bus", "publish", entry.EventPublish)

	assert.NotContains(t, base.AttributeNames, "messageType")
	assert.Len(t, c.Publishers, len(base.Publishers)+1)

	root := "org.axonframework.eventsourcing.annotation.AbstractAnnotatedAggregateRoot"
	c.AddLibrarySupertype(root, "com.acme.Marker")
	c.AddLibrarySupertype(root, "com.acme.Marker")
	assert.Len(t, c.LibrarySupertypes[root], 2)
	assert.Len(t, base.LibrarySupertypes[root], 1)
}

func TestCommandTypes_Merge(t *testing.T) {
	t.Parallel()
	a := NewCommandTypes()
	a.Add(named("x.A"))
	a.Add(typesys.Unknown())
	b := NewCommandTypes()
	b.Add(named("x.B"))

	m := a.Merge(b)
	assert.Equal(t, []string{"x.A", "x.B"}, m.Names())
	assert.Equal(t, 1, a.Len())

	var none *CommandTypes
	assert.False(t, none.Contains("x.A"))
}

func TestCommandTypes_Missing(t *testing.T) {
	t.Parallel()
	prev := NewCommandTypes()
	prev.Add(named("x.C"))
	prev.Add(named("x.A"))
	prev.Add(named("x.B"))
	cur := NewCommandTypes()
	cur.Add(named("x.B"))
	cur.Add(named("x.D"))

	assert.Equal(t, []string{"x.A", "x.C"}, prev.Missing(cur))
	assert.Empty(t, cur.Missing(cur))
	assert.Equal(t, []string{"x.B", "x.D"}, cur.Missing(nil))
}
