package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jward/msgxref/internal/entry"
	"github.com/jward/msgxref/internal/extract"
)

func newTestRuntime(t *testing.T, opts ...RuntimeOption) *Runtime {
	t.Helper()
	return NewRuntime(extract.DefaultRules(), t.TempDir(), opts...)
}

func hasHandler(r *extract.Rules, name string, kind entry.HandlerKind) bool {
	for _, h := range r.Handlers {
		if h.Name == name && h.Kind == kind {
			return true
		}
	}
	return false
}

// --- builtin tests ---

func TestRunSource_HandlerAnnotation(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)

	err := rt.RunSource(context.Background(), `
handler_annotation("com.acme.OnEvent", "event")
handler_annotation("com.acme.Handles", "command")
`, nil)
	require.NoError(t, err)

	rules := rt.Rules()
	assert.True(t, hasHandler(rules, "com.acme.OnEvent", entry.Event))
	assert.True(t, hasHandler(rules, "com.acme.Handles", entry.Command))
	for i := 1; i < len(rules.Handlers); i++ {
		assert.LessOrEqual(t, rules.Handlers[i-1].Kind, rules.Handlers[i].Kind)
	}
}

func TestRunSource_HandlerAnnotationUnknownKind(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)

	err := rt.RunSource(context.Background(), `handler_annotation("com.acme.X", "bogus")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown handler kind")
}

func TestRunSource_PublishMethod(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)

	err := rt.RunSource(context.Background(), `
publish_method("com.acme.Bus", "emit", "event-publish")
publish_method("com.acme.Bus", "emit", "event-publish")
publish_method("com.acme.Dispatcher", "dispatch", "command-dispatch")
`, nil)
	require.NoError(t, err)

	pubs := rt.Rules().Publishers
	assert.Contains(t, pubs, extract.PublishMethod{Owner: "com.acme.Bus", Method: "emit", Kind: entry.EventPublish})
	assert.Contains(t, pubs, extract.PublishMethod{Owner: "com.acme.Dispatcher", Method: "dispatch", Kind: entry.CommandDispatch})

	count := 0
	for _, p := range pubs {
		if p.Owner == "com.acme.Bus" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRunSource_NameBuiltins(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)

	err := rt.RunSource(context.Background(), `
internal_base("com.acme.BaseAggregate")
internal_marker("com.acme.Aggregate")
attribute_name("messageType")
library_supertype("com.acme.BaseAggregate", "org.axonframework.domain.AbstractAggregateRoot")
`, nil)
	require.NoError(t, err)

	rules := rt.Rules()
	assert.Contains(t, rules.InternalBases, "com.acme.BaseAggregate")
	assert.Contains(t, rules.InternalMarkers, "com.acme.Aggregate")
	assert.Equal(t, "messageType", rules.AttributeNames[len(rules.AttributeNames)-1])
	assert.Equal(t, []string{"org.axonframework.domain.AbstractAggregateRoot"}, rules.LibrarySupertypes["com.acme.BaseAggregate"])
}

func TestRunSource_BuiltinArgumentErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"wrong arity", `internal_base("a", "b")`, "internal_base"},
		{"not a string", `attribute_name(42)`, "must be a string"},
		{"empty", `internal_marker("")`, "must not be empty"},
		{"bad publisher kind", `publish_method("a", "b", "shout")`, "unknown publisher kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rt := newTestRuntime(t)
			err := rt.RunSource(context.Background(), tt.script, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunSource_LogUsesLogger(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.InfoLevel)
	rt := newTestRuntime(t, WithRuntimeLogger(zap.New(core)))

	err := rt.RunSource(context.Background(), `log.Info("hello from rules")`, nil)
	require.NoError(t, err)

	entries := logs.FilterMessage("hello from rules").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "rules", entries[0].ContextMap()["source"])
}

func TestRunSource_ExtraGlobals(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)

	err := rt.RunSource(context.Background(), `internal_marker(prefix + ".Aggregate")`,
		map[string]any{"prefix": "com.acme"})
	require.NoError(t, err)
	assert.Contains(t, rt.Rules().InternalMarkers, "com.acme.Aggregate")
}

// --- script loading tests ---

func TestRunScript_MissingFile(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)

	err := rt.RunScript(context.Background(), "nonexistent.risor", nil)
	require.Error(t, err)
}

func TestLoadScript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.risor")
	content := `x := 42`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rt := NewRuntime(extract.DefaultRules(), dir)
	got, err := rt.LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	got, err = rt.LoadScript("test.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLoadScript_FromFSFS(t *testing.T) {
	t.Parallel()

	content := `x := 42`
	mapFS := fstest.MapFS{
		"rules/acme.risor": &fstest.MapFile{Data: []byte(content)},
	}
	rt := NewRuntime(extract.DefaultRules(), "", WithRuntimeFS(mapFS))

	got, err := rt.LoadScript("/rules/acme.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = rt.LoadScript("nonexistent.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

func TestImport_FSImporter(t *testing.T) {
	t.Parallel()
	mapFS := fstest.MapFS{
		"acme.risor": &fstest.MapFile{Data: []byte(`
func register() {
    handler_annotation("com.acme.OnEvent", "event")
}
`)},
	}
	rt := NewRuntime(extract.DefaultRules(), "", WithRuntimeFS(mapFS))

	err := rt.RunSource(context.Background(), `
import acme
acme.register()
`, nil)
	require.NoError(t, err)
	assert.True(t, hasHandler(rt.Rules(), "com.acme.OnEvent", entry.Event))
}

func TestImport_LocalImporter(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bases.risor"), []byte(`
func add(name) {
    internal_base(name)
}
`), 0o644))
	rt := NewRuntime(extract.DefaultRules(), dir)

	err := rt.RunSource(context.Background(), `
import bases
bases.add("com.acme.Base")
`, nil)
	require.NoError(t, err)
	assert.Contains(t, rt.Rules().InternalBases, "com.acme.Base")
}

// --- LoadRules tests ---

func TestLoadRules_EmptyPathReturnsCopy(t *testing.T) {
	t.Parallel()
	base := extract.DefaultRules()

	rules, err := LoadRules(context.Background(), "", base)
	require.NoError(t, err)
	assert.Equal(t, base, rules)
	assert.NotSame(t, base, rules)
}

func TestLoadRules_NilBaseUsesDefaults(t *testing.T) {
	t.Parallel()
	rules, err := LoadRules(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, extract.DefaultRules(), rules)
}

func TestLoadRules_ExtendsWithoutTouchingBase(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.risor")
	require.NoError(t, os.WriteFile(path, []byte(`
handler_annotation("com.acme.OnEvent", "event")
internal_base("com.acme.Base")
`), 0o644))

	base := extract.DefaultRules()
	rules, err := LoadRules(context.Background(), path, base)
	require.NoError(t, err)
	assert.True(t, hasHandler(rules, "com.acme.OnEvent", entry.Event))
	assert.Contains(t, rules.InternalBases, "com.acme.Base")
	assert.False(t, hasHandler(base, "com.acme.OnEvent", entry.Event))
	assert.NotContains(t, base.InternalBases, "com.acme.Base")
}

func TestLoadRules_ScriptFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.risor")
	require.NoError(t, os.WriteFile(path, []byte(`handler_annotation("x")`), 0o644))

	_, err := LoadRules(context.Background(), path, nil)
	require.ErrorIs(t, err, ErrRulesScript)

	_, err = LoadRules(context.Background(), filepath.Join(dir, "missing.risor"), nil)
	require.ErrorIs(t, err, ErrRulesScript)
}
