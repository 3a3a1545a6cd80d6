// Package javasrc is the source model for Java code: it parses files with
// tree-sitter, keeps their raw facts in the session store, resolves type
// names, and hands out candidate declarations whose references go stale
// when the underlying file changes.
package javasrc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jward/msgxref/internal/entry"
	"github.com/jward/msgxref/internal/store"
)

// ErrUnsupportedFile is returned for paths that are not Java sources.
var ErrUnsupportedFile = errors.New("javasrc: unsupported file")

// Model is an in-process Java source model backed by a store.Store. It is
// safe for concurrent use.
type Model struct {
	store   *store.Store
	logger  *zap.Logger
	workers int
	library map[string][]string

	mu    sync.RWMutex
	files map[string]*fileState
	types map[string]*typeInfo
}

type fileState struct {
	id    int64
	gen   int64
	hash  string
	scope *fileScope
	types []string
}

type typeInfo struct {
	path        string
	kind        string
	parent      string
	supers      []string
	annotations []string
	loc         entry.Location
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// WithWorkers bounds the number of files parsed concurrently.
func WithWorkers(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithLibrarySupertypes supplies the hierarchy of types that are
// referenced but not declared in indexed source.
func WithLibrarySupertypes(h map[string][]string) Option {
	return func(m *Model) { m.library = h }
}

// New creates an empty model over a migrated store.
func New(s *store.Store, opts ...Option) *Model {
	m := &Model{
		store:   s,
		logger:  zap.NewNop(),
		workers: runtime.NumCPU(),
		files:   make(map[string]*fileState),
		types:   make(map[string]*typeInfo),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Model) live(path string, gen int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f := m.files[path]
	return f != nil && f.gen == gen
}

// Files returns the indexed paths in lexical order.
func (m *Model) Files() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Declaration is a type declared in indexed source.
type Declaration struct {
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	Location   entry.Location `json:"location"`
	Supertypes []string       `json:"supertypes,omitempty"`
}

// Declarations lists every declared type ordered by name.
func (m *Model) Declarations() []Declaration {
	m.mu.RLock()
	out := make([]Declaration, 0, len(m.types))
	for name, t := range m.types {
		out = append(out, Declaration{Name: name, Kind: t.kind, Location: t.loc, Supertypes: m.supertypesLocked(name)})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AnnotationCount is how often a method annotation is written.
type AnnotationCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// AnnotationUsage counts method annotations across the stored files by
// name as written, most used first.
func (m *Model) AnnotationUsage() ([]AnnotationCount, error) {
	usage, err := m.store.AnnotationUsage()
	if err != nil {
		return nil, fmt.Errorf("javasrc: %w", err)
	}
	out := make([]AnnotationCount, 0, len(usage))
	for name, n := range usage {
		out = append(out, AnnotationCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// workItem is a file that needs parsing.
type workItem struct {
	path   string
	src    []byte
	hash   string
	gen    int64
	result *parsed
	err    error
}

// IndexFiles brings the given files up to date and returns the paths whose
// facts changed. Unchanged files are skipped by content hash; a missing
// file is removed.
//
//	Phase A (serial):   hash check against the model and the store.
//	Phase B (parallel): parse with a bounded worker pool.
//	Phase C (serial):   commit each batch and install the new generation.
//
// Per-file failures do not stop the others and are summarised in the
// returned error.
func (m *Model) IndexFiles(ctx context.Context, paths []string) ([]string, error) {
	var (
		items   []*workItem
		changed []string
		errs    []error
	)

	// ---- Phase A ----
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return changed, fmt.Errorf("javasrc: index: %w", err)
		}
		path = filepath.Clean(path)
		if !IsJavaFile(path) {
			errs = append(errs, fmt.Errorf("%s: %w", path, ErrUnsupportedFile))
			continue
		}
		item, touched, err := m.prepare(path)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
		case item != nil:
			items = append(items, item)
		case touched:
			changed = append(changed, path)
		}
	}

	// ---- Phase B ----
	if len(items) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(min(m.workers, len(items)))
		for _, item := range items {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				item.result, item.err = parseSource(gctx, item.src)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return changed, fmt.Errorf("javasrc: index: %w", err)
		}
	}

	// ---- Phase C ----
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return changed, fmt.Errorf("javasrc: index: %w", err)
		}
		if item.err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", item.path, item.err))
			continue
		}
		if item.result.hasError {
			m.logger.Debug("syntax errors in source", zap.String("path", item.path))
		}
		f := &store.File{
			Path:        item.path,
			Package:     item.result.pkg,
			Hash:        item.hash,
			Generation:  item.gen,
			LastIndexed: time.Now(),
		}
		if err := m.store.CommitFile(f, item.result.batch); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", item.path, err))
			continue
		}
		if err := m.load(f.ID); err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", item.path, err))
			continue
		}
		changed = append(changed, item.path)
	}

	m.logger.Debug("indexed files",
		zap.Int("requested", len(paths)),
		zap.Int("changed", len(changed)),
		zap.Int("errors", len(errs)),
	)
	if len(errs) > 0 {
		return changed, fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return changed, nil
}

// prepare reads a file and decides whether it needs parsing. It returns a
// nil item when no parse is needed; touched reports that the live state
// changed anyway, because the file vanished or was restored from the store
// without parsing.
func (m *Model) prepare(path string) (item *workItem, touched bool, err error) {
	src, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		had := m.has(path)
		if err := m.Remove(path); err != nil {
			return nil, false, err
		}
		return nil, had, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read file: %w", err)
	}
	hash := store.ContentHash(src)

	m.mu.RLock()
	var gen int64
	cur := m.files[path]
	if cur != nil {
		gen = cur.gen
	}
	m.mu.RUnlock()
	if cur != nil && cur.hash == hash {
		return nil, false, nil
	}

	existing, err := m.store.FileByPath(path)
	if err != nil {
		return nil, false, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil {
		if existing.Hash == hash && cur == nil {
			if err := m.load(existing.ID); err != nil {
				return nil, false, err
			}
			return nil, true, nil
		}
		gen = max(gen, existing.Generation)
	}
	return &workItem{path: path, src: src, hash: hash, gen: gen + 1}, false, nil
}

func (m *Model) has(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files[path] != nil
}

// load installs the stored facts of a file as its live generation.
func (m *Model) load(fileID int64) error {
	facts, err := m.store.LoadFacts(fileID)
	if err != nil {
		return err
	}
	path := facts.File.Path

	names := make(map[int64]string, len(facts.Types))
	for _, t := range facts.Types {
		names[t.ID] = t.Qualified
	}
	infos := make(map[int64]*typeInfo, len(facts.Types))
	state := &fileState{
		id:    facts.File.ID,
		gen:   facts.File.Generation,
		hash:  facts.File.Hash,
		scope: newFileScope(facts.File.Package, facts.Imports),
	}
	for _, t := range facts.Types {
		info := &typeInfo{
			path: path,
			kind: t.Kind,
			loc:  entry.Location{File: path, Line: t.Line, Column: t.Col},
		}
		if t.ParentTypeID != nil {
			info.parent = names[*t.ParentTypeID]
		}
		infos[t.ID] = info
		state.types = append(state.types, t.Qualified)
	}
	for _, s := range facts.Supertypes {
		if info := infos[s.TypeID]; info != nil {
			info.supers = append(info.supers, s.TypeExpr)
		}
	}
	for _, a := range facts.TypeAnnotations {
		if info := infos[a.TypeID]; info != nil {
			info.annotations = append(info.annotations, a.Name)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked(path)
	for id, info := range infos {
		m.types[names[id]] = info
	}
	m.files[path] = state
	return nil
}

func (m *Model) dropLocked(path string) {
	old := m.files[path]
	if old == nil {
		return
	}
	for _, q := range old.types {
		if t := m.types[q]; t != nil && t.path == path {
			delete(m.types, q)
		}
	}
	delete(m.files, path)
}

// Remove forgets files. Every reference into them becomes invalid.
func (m *Model) Remove(paths ...string) error {
	var errs []error
	for _, p := range paths {
		p = filepath.Clean(p)
		if err := m.store.DeleteFile(p); err != nil {
			errs = append(errs, err)
		}
		m.mu.Lock()
		m.dropLocked(p)
		m.mu.Unlock()
	}
	if len(errs) > 0 {
		return fmt.Errorf("remove had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// skipDirs are directory names never descended into.
var skipDirs = map[string]bool{"build": true, "target": true, "out": true, "node_modules": true}

// IndexDirectory indexes every .java file below root and removes indexed
// files below root that no longer exist.
func (m *Model) IndexDirectory(ctx context.Context, root string) ([]string, error) {
	root = filepath.Clean(root)
	var paths []string
	seen := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || skipDirs[d.Name()]) {
				return filepath.SkipDir
			}
			return nil
		}
		if IsJavaFile(path) {
			paths = append(paths, path)
			seen[path] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("javasrc: walk %s: %w", root, err)
	}

	var stale []string
	prefix := root + string(filepath.Separator)
	for _, p := range m.Files() {
		if strings.HasPrefix(p, prefix) && !seen[p] {
			stale = append(stale, p)
		}
	}
	if err := m.Remove(stale...); err != nil {
		return nil, fmt.Errorf("javasrc: %w", err)
	}

	changed, err := m.IndexFiles(ctx, paths)
	return append(stale, changed...), err
}
