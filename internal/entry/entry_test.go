package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/msgxref/internal/typesys"
)

type staticRef struct {
	key   string
	valid bool
}

func (r staticRef) Key() string { return r.key }
func (r staticRef) Valid() bool { return r.valid }
func (r staticRef) Location() Location { return Location{File: r.key, Line: 1, Column: 1} }

func TestHandler_ValidNeedsRefAndType(t *testing.T) {
	t.Parallel()
	typ := typesys.New(nil, "com.acme.A")

	assert.True(t, Handler{HandledType: typ, Decl: staticRef{"h", true}}.Valid())
	assert.False(t, Handler{HandledType: typ, Decl: staticRef{"h", false}}.Valid())
	assert.False(t, Handler{HandledType: typesys.Unknown(), Decl: staticRef{"h", true}}.Valid())
}

func TestPublisher_IdentityIsSiteKey(t *testing.T) {
	t.Parallel()
	p := Publisher{PublishedType: typesys.New(nil, "com.acme.A"), Site: staticRef{"Order.java#12:5", true}}
	assert.Equal(t, "Order.java#12:5", p.Identity())
	assert.Equal(t, "Order.java:1:1", p.Location().String())
}

func TestKindNamesRoundTrip(t *testing.T) {
	t.Parallel()
	for _, k := range []HandlerKind{Event, EventSourcing, SagaEvent, Command, Query} {
		got, err := ParseHandlerKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	for _, k := range []PublisherKind{EventPublish, CommandDispatch} {
		got, err := ParsePublisherKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseHandlerKind("deadline")
	assert.Error(t, err)
	assert.Equal(t, "HandlerKind(9)", HandlerKind(9).String())
}

func TestHandlerKind_IsEvent(t *testing.T) {
	t.Parallel()
	assert.True(t, Event.IsEvent())
	assert.True(t, EventSourcing.IsEvent())
	assert.True(t, SagaEvent.IsEvent())
	assert.False(t, Command.IsEvent())
	assert.False(t, Query.IsEvent())
}
