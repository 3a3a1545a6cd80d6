package msgxref

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jward/msgxref/internal/extract"
	"github.com/jward/msgxref/internal/index"
	"github.com/jward/msgxref/internal/metrics"
)

// ErrClosed is returned by every operation on a closed Coordinator.
var ErrClosed = errors.New("msgxref: coordinator closed")

const tracerName = "github.com/jward/msgxref"

// Source is the host source model the Coordinator reads candidates from.
// *javasrc.Model implements it.
type Source interface {
	// Files lists every file the source knows, in a stable order.
	Files() []string
	// Methods returns the handler candidates declared in path.
	Methods(ctx context.Context, path string) ([]extract.Method, error)
	// Sites returns the publisher candidates in path.
	Sites(ctx context.Context, path string) ([]extract.Site, error)
}

// Scope selects the files a scan covers. A nil Scope covers every file the
// Source knows.
type Scope []string

// State is the initialisation state of a Coordinator.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Coordinator owns one handler index and one publisher index over a Source.
// It drives full scans, answers on-demand single element resolution and
// serves the bidirectional queries. It is safe for concurrent use.
type Coordinator struct {
	id      string
	source  Source
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics
	workers int

	handlerExtractors   []extract.HandlerExtractor
	publisherExtractors []extract.PublisherExtractor

	handlers   *index.HandlerIndex
	publishers *index.PublisherIndex
	commands   atomic.Pointer[extract.CommandTypes]
	resolving  singleflight.Group

	// fileCommands is each file's share of commands. Only the running scan
	// touches it.
	fileCommands map[string]*extract.CommandTypes

	mu       sync.Mutex
	state    State
	scanning bool
	done     chan struct{} // closed when the running scan ends
	closed   bool
}

// Option configures a Coordinator.
type Option func(*settings)

type settings struct {
	logger              *zap.Logger
	tracer              trace.Tracer
	registerer          prometheus.Registerer
	workers             int
	rules               *extract.Rules
	handlerExtractors   []extract.HandlerExtractor
	publisherExtractors []extract.PublisherExtractor
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithTracer sets the tracer for scan and resolution spans. The default is
// the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// WithRegisterer registers Prometheus collectors with reg. Without it no
// metrics are recorded.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) { s.registerer = reg }
}

// WithWorkers bounds the files processed concurrently during a scan.
func WithWorkers(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRules builds the default extractors from r instead of
// extract.DefaultRules. Explicit extractor options take precedence.
func WithRules(r *extract.Rules) Option {
	return func(s *settings) { s.rules = r }
}

// WithHandlerExtractors replaces the handler extractors.
func WithHandlerExtractors(xs ...extract.HandlerExtractor) Option {
	return func(s *settings) { s.handlerExtractors = xs }
}

// WithPublisherExtractors replaces the publisher extractors.
func WithPublisherExtractors(xs ...extract.PublisherExtractor) Option {
	return func(s *settings) { s.publisherExtractors = xs }
}

func newSettings(opts []Option) *settings {
	s := &settings{
		logger:  zap.NewNop(),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rules == nil {
		s.rules = extract.DefaultRules()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.handlerExtractors == nil {
		s.handlerExtractors = extract.DefaultHandlerExtractors(s.rules)
	}
	if s.publisherExtractors == nil {
		s.publisherExtractors = extract.DefaultPublisherExtractors(s.rules)
	}
	return s
}

// New creates an uninitialised Coordinator over src. Nothing is indexed
// until Scan runs, either explicitly or on the first query.
func New(src Source, opts ...Option) *Coordinator {
	s := newSettings(opts)
	c := &Coordinator{
		id:                  uuid.NewString(),
		source:              src,
		tracer:              s.tracer,
		workers:             s.workers,
		handlerExtractors:   s.handlerExtractors,
		publisherExtractors: s.publisherExtractors,
		fileCommands:        make(map[string]*extract.CommandTypes),
	}
	c.logger = s.logger.With(zap.String("coordinator", c.id))

	var ixOpts []index.Option
	if s.registerer != nil {
		c.metrics = metrics.New(s.registerer)
		ixOpts = append(ixOpts, index.WithObserver(c.metrics))
	}
	c.handlers = index.NewHandlerIndex(ixOpts...)
	c.publishers = index.NewPublisherIndex(ixOpts...)
	c.commands.Store(extract.NewCommandTypes())
	return c
}

// ID identifies this instance in logs and spans.
func (c *Coordinator) ID() string { return c.id }

// State reports the current initialisation state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Handlers exposes the handler index.
func (c *Coordinator) Handlers() *index.HandlerIndex { return c.handlers }

// Publishers exposes the publisher index.
func (c *Coordinator) Publishers() *index.PublisherIndex { return c.publishers }

// CommandTypes returns the names of the types dispatched as commands, as
// recorded by the last scan.
func (c *Coordinator) CommandTypes() []string { return c.commands.Load().Names() }

// Close marks the Coordinator closed. Queries blocked on initialisation
// return ErrClosed once the running scan ends.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// begin claims the scan slot, waiting while another scan runs. Only an
// Uninitialized Coordinator moves to Initializing; a Ready one stays Ready
// and keeps answering queries. It returns the state to fall back to.
func (c *Coordinator) begin(ctx context.Context) (State, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return 0, ErrClosed
		}
		if !c.scanning {
			prev := c.state
			c.scanning = true
			c.done = make(chan struct{})
			if prev == Uninitialized {
				c.state = Initializing
			}
			c.mu.Unlock()
			return prev, nil
		}
		done := c.done
		c.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// finish releases the scan slot. A cancelled first scan leaves the
// Coordinator Uninitialized so the next query retries; a Ready Coordinator
// never goes back.
func (c *Coordinator) finish(prev State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scanning = false
	switch {
	case prev == Ready:
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		c.state = Uninitialized
	default:
		c.state = Ready
	}
	close(c.done)
}

// ensureReady blocks until the Coordinator is Ready, running the initial
// scan itself when nobody has.
func (c *Coordinator) ensureReady(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		state, done := c.state, c.done
		c.mu.Unlock()

		switch state {
		case Ready:
			return nil
		case Initializing:
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			err := c.Scan(ctx, nil)
			if c.State() == Ready {
				if err != nil {
					c.logger.Warn("initial scan finished with errors", zap.Error(err))
				}
				return nil
			}
			if err != nil {
				return err
			}
		}
	}
}

func (c *Coordinator) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}
