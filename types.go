package msgxref

import (
	"github.com/jward/msgxref/internal/entry"
	"github.com/jward/msgxref/internal/extract"
	"github.com/jward/msgxref/internal/typesys"
)

// Public type aliases for the internal types used by the Coordinator and
// QueryBuilder API. External consumers use these names; no conversion is
// needed.

type Handler = entry.Handler
type Publisher = entry.Publisher
type HandlerKind = entry.HandlerKind
type PublisherKind = entry.PublisherKind
type Location = entry.Location
type Ref = entry.Ref
type Descriptor = typesys.Descriptor
type Method = extract.Method
type Site = extract.Site
type Rules = extract.Rules

// Handler and publisher kinds.
const (
	Event           = entry.Event
	EventSourcing   = entry.EventSourcing
	SagaEvent       = entry.SagaEvent
	Command         = entry.Command
	Query           = entry.Query
	EventPublish    = entry.EventPublish
	CommandDispatch = entry.CommandDispatch
)
