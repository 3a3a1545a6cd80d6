package msgxref

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jward/msgxref/internal/extract"
	"github.com/jward/msgxref/internal/javasrc"
	"github.com/jward/msgxref/internal/runtime"
	"github.com/jward/msgxref/internal/store"
	"github.com/jward/msgxref/scripts"
)

// ProjectConfig configures OpenProject.
type ProjectConfig struct {
	// DB is the SQLite session store path. Empty means in-memory.
	DB string
	// Rules is the base recognition table. Nil means extract.DefaultRules.
	Rules *extract.Rules
	// Presets names bundled rules scripts applied in order before
	// RulesScript. See scripts.Names.
	Presets []string
	// RulesScript optionally extends Rules with a Risor script.
	RulesScript string
	// AttributeNames, when set, replaces the explicit-type attribute names.
	AttributeNames []string
	Workers        int
	Logger         *zap.Logger
	Registerer     prometheus.Registerer
}

// Project wires a session store, the Java source model and a Coordinator
// together for one source tree.
type Project struct {
	store  *store.Store
	model  *javasrc.Model
	coord  *Coordinator
	rules  *extract.Rules
	logger *zap.Logger
}

// OpenProject loads the rules, opens the store and builds the model and
// Coordinator. Close releases the store.
func OpenProject(ctx context.Context, cfg ProjectConfig) (*Project, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	base := cfg.Rules
	if base == nil {
		base = extract.DefaultRules()
	}
	if len(cfg.AttributeNames) > 0 {
		base = base.Clone()
		base.AttributeNames = append([]string(nil), cfg.AttributeNames...)
	}
	var err error
	for _, name := range cfg.Presets {
		if !scripts.Has(name) {
			return nil, fmt.Errorf("msgxref: unknown preset %q (available: %s)", name, strings.Join(scripts.Names(), ", "))
		}
		base, err = runtime.LoadRules(ctx, scripts.File(name), base,
			runtime.WithRuntimeFS(scripts.Presets()), runtime.WithRuntimeLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("msgxref: load preset %s: %w", name, err)
		}
	}
	rules, err := runtime.LoadRules(ctx, cfg.RulesScript, base, runtime.WithRuntimeLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("msgxref: load rules: %w", err)
	}

	s, err := store.NewStore(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("msgxref: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("msgxref: migrate: %w", err)
	}

	model := javasrc.New(s,
		javasrc.WithLogger(logger),
		javasrc.WithWorkers(cfg.Workers),
		javasrc.WithLibrarySupertypes(rules.LibrarySupertypes),
	)
	opts := []Option{WithLogger(logger), WithWorkers(cfg.Workers), WithRules(rules)}
	if cfg.Registerer != nil {
		opts = append(opts, WithRegisterer(cfg.Registerer))
	}
	return &Project{
		store:  s,
		model:  model,
		coord:  New(model, opts...),
		rules:  rules,
		logger: logger,
	}, nil
}

// Model returns the Java source model.
func (p *Project) Model() *javasrc.Model { return p.model }

// Coordinator returns the project's Coordinator.
func (p *Project) Coordinator() *Coordinator { return p.coord }

// Rules returns the effective recognition table.
func (p *Project) Rules() *extract.Rules { return p.rules }

// Close closes the Coordinator and the store.
func (p *Project) Close() error {
	p.coord.Close()
	return p.store.Close()
}

// Index brings every .java file below root up to date and rescans. Files
// that fail to index are reported but do not stop the scan.
func (p *Project) Index(ctx context.Context, root string) (ScanResult, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return ScanResult{}, fmt.Errorf("msgxref: index: %w", err)
	}
	changed, idxErr := p.model.IndexDirectory(ctx, abs)
	if err := ctx.Err(); err != nil {
		return ScanResult{}, fmt.Errorf("msgxref: index: %w", err)
	}
	p.logger.Debug("indexed source tree", zap.String("root", abs), zap.Int("changed", len(changed)))

	res, scanErr := p.coord.ScanReport(ctx, nil)
	return res, errors.Join(idxErr, scanErr)
}

// Refresh re-indexes the given files and rescans only those still present,
// or every file when the set of declared types changed. Entries of deleted
// or edited files go stale and are pruned as new ones register.
func (p *Project) Refresh(ctx context.Context, paths []string) (ScanResult, error) {
	var java []string
	for _, path := range paths {
		if javasrc.IsJavaFile(path) {
			java = append(java, filepath.Clean(path))
		}
	}
	if len(java) == 0 {
		return ScanResult{}, nil
	}
	before := p.declaredNames()
	changed, idxErr := p.model.IndexFiles(ctx, java)
	if len(changed) == 0 {
		return ScanResult{}, idxErr
	}

	// Names in untouched files may resolve differently once a type appears
	// or disappears, so those refreshes rescan everything.
	if !slices.Equal(before, p.declaredNames()) {
		p.logger.Debug("declared types changed, rescanning all files", zap.Int("changed", len(changed)))
		res, scanErr := p.coord.ScanReport(ctx, nil)
		return res, errors.Join(idxErr, scanErr)
	}

	live := make(map[string]bool)
	for _, f := range p.model.Files() {
		live[f] = true
	}
	var scope Scope
	for _, path := range changed {
		if live[path] {
			scope = append(scope, path)
		}
	}
	if len(scope) == 0 {
		return ScanResult{}, idxErr
	}
	res, scanErr := p.coord.ScanReport(ctx, scope)
	return res, errors.Join(idxErr, scanErr)
}

// declaredNames lists the source-declared type names in order.
func (p *Project) declaredNames() []string {
	decls := p.model.Declarations()
	out := make([]string, len(decls))
	for i, d := range decls {
		out[i] = d.Name
	}
	return out
}

// Resolution is the element at a source position and its counterparts.
type Resolution struct {
	Handler    *Handler
	Publisher  *Publisher
	Handlers   []Handler   // handlers of Publisher's type
	Publishers []Publisher // publishers of Handler's type
}

// ResolveAt indexes path if needed, resolves the handler or publisher at a
// 1-based position on demand, then looks up its counterparts. found is
// false when nothing recognisable is there.
func (p *Project) ResolveAt(ctx context.Context, path string, line, col int) (res Resolution, found bool, err error) {
	path, err = filepath.Abs(path)
	if err != nil {
		return res, false, fmt.Errorf("msgxref: resolve: %w", err)
	}
	if _, err := p.model.IndexFiles(ctx, []string{path}); err != nil {
		return res, false, fmt.Errorf("msgxref: resolve: %w", err)
	}
	el, ok, err := p.model.ElementAt(ctx, path, line, col)
	if err != nil || !ok {
		return res, false, err
	}

	if el.Method != nil {
		h, ok, err := p.coord.ResolveHandler(ctx, *el.Method)
		if err != nil || !ok {
			return res, false, err
		}
		res.Handler = &h
		res.Publishers, err = p.coord.FindPublishersFor(ctx, h.HandledType)
		res.Publishers = sortPublishers(res.Publishers)
		return res, true, err
	}

	pub, ok, err := p.coord.ResolvePublisher(ctx, el.Site)
	if err != nil || !ok {
		return res, false, err
	}
	res.Publisher = &pub
	res.Handlers, err = p.coord.FindHandlersFor(ctx, pub.PublishedType)
	res.Handlers = sortHandlers(res.Handlers)
	return res, true, err
}
