// Package runtime hosts Risor rules scripts. A script extends the default
// recognition tables with project-specific annotation names, publish
// methods and framework hierarchy through a small set of host builtins.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"go.uber.org/zap"

	"github.com/jward/msgxref/internal/extract"
)

// ErrRulesScript wraps every failure to load or run a rules script.
var ErrRulesScript = errors.New("runtime: rules script failed")

// Runtime embeds a Risor VM whose builtins mutate one extract.Rules.
type Runtime struct {
	rules      *extract.Rules
	logger     *zap.Logger
	scriptsDir string
	fsys       fs.FS
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS loads scripts and their imports from fsys instead of disk.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeLogger routes the script's log global to l.
func WithRuntimeLogger(l *zap.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime that edits rules in place. Relative script
// paths and import statements resolve against scriptsDir.
func NewRuntime(rules *extract.Rules, scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		rules:      rules,
		logger:     zap.NewNop(),
		scriptsDir: scriptsDir,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rules returns the tables the scripts have been editing.
func (r *Runtime) Rules() *extract.Rules { return r.rules }

// RunScript loads and executes a Risor script with the host globals plus
// any extra globals provided by the caller.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source directly. Useful for testing without
// script files.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) error {
	globals := r.buildGlobals(extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter returns nil when neither an fs.FS nor a scripts directory
// is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file from the configured fs.FS, or from disk
// relative to scriptsDir.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the full set of globals exposed to scripts.
func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	globals := map[string]any{
		"handler_annotation": makeHandlerAnnotationFn(r.rules),
		"publish_method":     makePublishMethodFn(r.rules),
		"internal_base":      makeNameFn("internal_base", r.rules.AddInternalBase),
		"internal_marker":    makeNameFn("internal_marker", r.rules.AddInternalMarker),
		"attribute_name":     makeNameFn("attribute_name", r.rules.AddAttributeName),
		"library_supertype":  makeLibrarySupertypeFn(r.rules),
		"log":                mustProxy(&logObject{logger: r.logger}),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}

// LoadRules returns a copy of base (DefaultRules when nil) extended by the
// script at path. An empty path returns the copy unchanged. base itself is
// never modified.
func LoadRules(ctx context.Context, path string, base *extract.Rules, opts ...RuntimeOption) (*extract.Rules, error) {
	if base == nil {
		base = extract.DefaultRules()
	}
	rules := base.Clone()
	if path == "" {
		return rules, nil
	}

	rt := NewRuntime(rules, filepath.Dir(path), opts...)
	if err := rt.RunScript(ctx, filepath.Base(path), nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRulesScript, err)
	}
	rt.logger.Info("loaded rules script",
		zap.String("path", path),
		zap.Int("handler_annotations", len(rules.Handlers)),
		zap.Int("publish_methods", len(rules.Publishers)),
	)
	return rules, nil
}
