package msgxref

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jward/msgxref/internal/entry"
	"github.com/jward/msgxref/internal/extract"
	"github.com/jward/msgxref/internal/typesys"
)

// commandParameterer is implemented by handler extractors that can name
// the command type a method dispatches on.
type commandParameterer interface {
	CommandParameter(m extract.Method) (typesys.Descriptor, bool)
}

// fileErrors collects per-file failures from concurrent workers.
type fileErrors struct {
	mu   sync.Mutex
	errs []error
}

func (f *fileErrors) add(err error) {
	f.mu.Lock()
	f.errs = append(f.errs, err)
	f.mu.Unlock()
}

func (f *fileErrors) err() error {
	if len(f.errs) == 0 {
		return nil
	}
	return fmt.Errorf("scan had %d error(s): %w", len(f.errs), f.errs[0])
}

// ScanResult summarises one scan.
type ScanResult struct {
	Files      int           `json:"files"`
	Handlers   int           `json:"handlers"`
	Publishers int           `json:"publishers"`
	Commands   int           `json:"commands"`
	Duration   time.Duration `json:"duration"`
}

// Scan extracts and registers every handler and publisher in scope.
//
//	Phase A (parallel): methods → handlers, command type registry.
//	Phase B (parallel): sites → publishers, using the registry from A.
//
// Registration deduplicates by element identity, so rescanning unchanged
// source leaves the indexes as they were. Files that fail to load are
// skipped and summarised in the returned error; the scan still completes.
// A cancelled scan leaves whatever it registered so far.
func (c *Coordinator) Scan(ctx context.Context, scope Scope) error {
	_, err := c.ScanReport(ctx, scope)
	return err
}

// ScanReport is Scan returning its summary.
func (c *Coordinator) ScanReport(ctx context.Context, scope Scope) (ScanResult, error) {
	prev, err := c.begin(ctx)
	if err != nil {
		return ScanResult{}, err
	}
	res, err := c.scan(ctx, scope)
	c.finish(prev, err)
	return res, err
}

func (c *Coordinator) scan(ctx context.Context, scope Scope) (ScanResult, error) {
	start := time.Now()
	files := []string(scope)
	if scope == nil {
		files = c.source.Files()
	}

	ctx, span := c.tracer.Start(ctx, "Coordinator.Scan")
	defer span.End()
	span.SetAttributes(
		attribute.String("coordinator.id", c.id),
		attribute.Int("files", len(files)),
		attribute.Bool("full", scope == nil),
	)
	c.logger.Info("scan started", zap.Int("files", len(files)), zap.Bool("full", scope == nil))

	var (
		errs       fileErrors
		handlers   atomic.Int64
		publishers atomic.Int64
	)

	// ---- Phase A ----
	var (
		scannedMu sync.Mutex
		scanned   = make(map[string]*extract.CommandTypes, len(files))
	)
	err := c.forEachFile(ctx, files, func(ctx context.Context, path string) {
		methods, err := c.source.Methods(ctx, path)
		if err != nil {
			c.fileFailed(&errs, path, err)
			return
		}
		own := extract.NewCommandTypes()
		found := c.extractHandlers(methods, own)
		scannedMu.Lock()
		scanned[path] = own
		scannedMu.Unlock()
		c.handlers.RegisterAll(found)
		handlers.Add(int64(len(found)))
	})
	if err != nil {
		return c.abort(span, start, err)
	}

	commands, lost := c.updateCommands(scanned)
	siteFiles := files
	if len(lost) > 0 {
		// Constructions of a type that lost its last command handler are no
		// longer dispatches; dispatch calls of it are found again below.
		gone := make(map[string]bool, len(lost))
		for _, n := range lost {
			gone[n] = true
		}
		n := c.publishers.Evict(func(p entry.Publisher) bool {
			return p.Kind == entry.CommandDispatch && gone[p.PublishedType.Name()]
		})
		c.logger.Debug("command types dropped", zap.Strings("types", lost), zap.Int("evicted", n))
		siteFiles = c.source.Files()
	}

	// ---- Phase B ----
	err = c.forEachFile(ctx, siteFiles, func(ctx context.Context, path string) {
		sites, err := c.source.Sites(ctx, path)
		if err != nil {
			c.fileFailed(&errs, path, err)
			return
		}
		found := c.extractPublishers(sites, commands)
		c.publishers.RegisterAll(found)
		publishers.Add(int64(len(found)))
	})
	if err != nil {
		return c.abort(span, start, err)
	}

	res := ScanResult{
		Files:      len(files),
		Handlers:   int(handlers.Load()),
		Publishers: int(publishers.Load()),
		Commands:   commands.Len(),
		Duration:   time.Since(start),
	}
	span.SetAttributes(
		attribute.Int("handlers", res.Handlers),
		attribute.Int("publishers", res.Publishers),
	)
	c.logger.Info("scan finished",
		zap.Int("files", res.Files),
		zap.Int("handlers", res.Handlers),
		zap.Int("publishers", res.Publishers),
		zap.Int("commands", res.Commands),
		zap.Duration("duration", res.Duration),
	)

	if err := errs.err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.metrics.ScanFinished("error", res.Duration)
		return res, err
	}
	c.metrics.ScanFinished("ok", res.Duration)
	return res, nil
}

// updateCommands replaces the command share of every scanned file, drops
// files the source no longer lists, and installs the union. It returns the
// new registry and the names the previous one had that it lacks.
func (c *Coordinator) updateCommands(scanned map[string]*extract.CommandTypes) (*extract.CommandTypes, []string) {
	for path, ct := range scanned {
		c.fileCommands[path] = ct
	}
	live := make(map[string]bool)
	for _, f := range c.source.Files() {
		live[f] = true
	}
	commands := extract.NewCommandTypes()
	for path, ct := range c.fileCommands {
		if !live[path] {
			delete(c.fileCommands, path)
			continue
		}
		commands = commands.Merge(ct)
	}
	lost := c.commands.Load().Missing(commands)
	c.commands.Store(commands)
	return commands, lost
}

// forEachFile runs fn over files with bounded concurrency. It only fails
// on cancellation; fn reports per-file problems itself.
func (c *Coordinator) forEachFile(ctx context.Context, files []string, fn func(context.Context, string)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.workers, 1))
	for _, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (c *Coordinator) fileFailed(errs *fileErrors, path string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	c.logger.Warn("skipping file", zap.String("path", path), zap.Error(err))
	c.metrics.FileError()
	errs.add(fmt.Errorf("%s: %w", path, err))
}

func (c *Coordinator) abort(span trace.Span, start time.Time, err error) (ScanResult, error) {
	span.SetStatus(codes.Error, err.Error())
	c.metrics.ScanFinished("canceled", time.Since(start))
	c.logger.Info("scan canceled", zap.Error(err))
	return ScanResult{}, fmt.Errorf("msgxref: scan: %w", err)
}

// extractHandlers runs every handler extractor over methods; the first
// extractor to produce an entry for a method wins.
func (c *Coordinator) extractHandlers(methods []extract.Method, commands *extract.CommandTypes) []entry.Handler {
	var out []entry.Handler
	for _, m := range methods {
		for _, x := range c.handlerExtractors {
			if cp, ok := x.(commandParameterer); ok {
				if t, ok := cp.CommandParameter(m); ok {
					commands.Add(t)
				}
			}
		}
		if h, ok := c.extractHandler(m); ok {
			out = append(out, h)
		}
	}
	return out
}

func (c *Coordinator) extractHandler(m extract.Method) (entry.Handler, bool) {
	for _, x := range c.handlerExtractors {
		if h, ok := x.ExtractHandler(m); ok {
			return h, true
		}
	}
	return entry.Handler{}, false
}

func (c *Coordinator) extractPublishers(sites []extract.Site, commands extract.CommandSet) []entry.Publisher {
	var out []entry.Publisher
	for _, s := range sites {
		if p, ok := c.extractPublisher(s, commands); ok {
			out = append(out, p)
		}
	}
	return out
}

func (c *Coordinator) extractPublisher(s extract.Site, commands extract.CommandSet) (entry.Publisher, bool) {
	for _, x := range c.publisherExtractors {
		if p, ok := x.ExtractPublisher(s, commands); ok {
			return p, true
		}
	}
	return entry.Publisher{}, false
}
