package msgxref

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jward/msgxref/internal/entry"
)

type resolvedHandler struct {
	h  entry.Handler
	ok bool
}

type resolvedPublisher struct {
	p  entry.Publisher
	ok bool
}

// ResolveHandler extracts a handler from one method without a scan and
// registers it on success. ok is false when m is not a handler. It never
// waits for initialisation, so extractors and validity checks may call it
// while a scan is running.
func (c *Coordinator) ResolveHandler(ctx context.Context, m Method) (Handler, bool, error) {
	if err := c.checkOpen(); err != nil {
		return Handler{}, false, err
	}
	_, span := c.tracer.Start(ctx, "Coordinator.ResolveHandler", trace.WithAttributes(
		attribute.String("coordinator.id", c.id),
		attribute.String("element", m.Ref.Key()),
	))
	defer span.End()

	v, _, _ := c.resolving.Do("handler\x00"+m.Ref.Key(), func() (any, error) {
		h, ok := c.extractHandler(m)
		if ok {
			c.handlers.Register(h)
		}
		return resolvedHandler{h: h, ok: ok}, nil
	})
	r := v.(resolvedHandler)

	span.SetAttributes(attribute.Bool("hit", r.ok))
	c.metrics.Resolved("handler", r.ok)
	c.logger.Debug("resolved handler", zap.String("element", m.Ref.Key()), zap.Bool("hit", r.ok))
	return r.h, r.ok, nil
}

// ResolvePublisher is ResolveHandler for a call or construction site.
// Command constructions are recognised against the command types of the
// last scan.
func (c *Coordinator) ResolvePublisher(ctx context.Context, s Site) (Publisher, bool, error) {
	if err := c.checkOpen(); err != nil {
		return Publisher{}, false, err
	}
	key := s.SiteRef().Key()
	_, span := c.tracer.Start(ctx, "Coordinator.ResolvePublisher", trace.WithAttributes(
		attribute.String("coordinator.id", c.id),
		attribute.String("element", key),
	))
	defer span.End()

	v, _, _ := c.resolving.Do("publisher\x00"+key, func() (any, error) {
		p, ok := c.extractPublisher(s, c.commands.Load())
		if ok {
			c.publishers.Register(p)
		}
		return resolvedPublisher{p: p, ok: ok}, nil
	})
	r := v.(resolvedPublisher)

	span.SetAttributes(attribute.Bool("hit", r.ok))
	c.metrics.Resolved("publisher", r.ok)
	c.logger.Debug("resolved publisher", zap.String("element", key), zap.Bool("hit", r.ok))
	return r.p, r.ok, nil
}
