package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jward/msgxref"
)

const (
	orderCreatedJava = `package com.acme.events;

public class OrderCreated {
    public OrderCreated(String id) {}
}
`
	createOrderJava = `package com.acme;

public class CreateOrder {
    public String getId() { return ""; }
}
`
	orderJava = `package com.acme;

import com.acme.events.OrderCreated;
import org.axonframework.commandhandling.CommandHandler;
import org.axonframework.eventsourcing.EventSourcingHandler;
import org.axonframework.eventsourcing.annotation.AbstractAnnotatedAggregateRoot;

public class Order extends AbstractAnnotatedAggregateRoot {
    @CommandHandler
    public Order(CreateOrder cmd) {
        apply(new OrderCreated(cmd.getId()));
    }

    @EventSourcingHandler
    void on(OrderCreated evt) {}
}
`
	projectionJava = `package com.acme;

import com.acme.events.OrderCreated;
import org.axonframework.eventhandling.EventHandler;

public class OrderProjection {
    @EventHandler
    void on(OrderCreated evt) {}
}
`
	apiJava = `package com.acme;

public class OrderApi {
    void create() {
        CreateOrder cmd = new CreateOrder();
    }
}
`
)

func writeJava(t *testing.T, dir, rel, src string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

// createJavaFixture writes a small aggregate project and returns its root.
func createJavaFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeJava(t, dir, "com/acme/events/OrderCreated.java", orderCreatedJava)
	writeJava(t, dir, "com/acme/CreateOrder.java", createOrderJava)
	writeJava(t, dir, "com/acme/Order.java", orderJava)
	writeJava(t, dir, "com/acme/OrderProjection.java", projectionJava)
	writeJava(t, dir, "com/acme/OrderApi.java", apiJava)
	return dir
}

// run executes the CLI in-process against root and returns stdout.
func run(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := newApp(&out, &errOut)
	cmd := a.rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--root", root, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

type result[T any] struct {
	Command string `json:"command" yaml:"command"`
	Results T      `json:"results" yaml:"results"`
	Error   string `json:"error" yaml:"error"`
}

func runJSON[T any](t *testing.T, root string, args ...string) result[T] {
	t.Helper()
	out, err := run(t, root, args...)
	require.NoError(t, err)
	var r result[T]
	require.NoError(t, json.Unmarshal([]byte(out), &r), "invalid JSON output: %s", out)
	return r
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	for _, f := range []string{"json", "text", "yaml"} {
		assert.NoError(t, validateFormat(f))
	}
	err := validateFormat("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestParseIntArg(t *testing.T) {
	t.Parallel()
	n, err := parseIntArg("12", "line")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = parseIntArg("x", "line")
	assert.ErrorContains(t, err, `invalid line "x"`)
	_, err = parseIntArg("-1", "col")
	assert.ErrorContains(t, err, "must be non-negative")
}

func TestResolveTargetDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	got, err := resolveTargetDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = resolveTargetDir(filepath.Join(dir, "missing"))
	assert.ErrorContains(t, err, "directory not found")

	file := writeJava(t, dir, "A.java", "class A {}")
	_, err = resolveTargetDir(file)
	assert.ErrorContains(t, err, "not a directory")
}

func TestScanCommand(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)

	r := runJSON[CLIScan](t, root, "scan")
	assert.Equal(t, "scan", r.Command)
	assert.Empty(t, r.Error)
	assert.Equal(t, root, r.Results.Root)
	assert.Equal(t, 5, r.Results.Files)
	assert.Equal(t, 3, r.Results.Handlers)
	assert.Equal(t, 2, r.Results.Publishers)
	assert.Equal(t, 1, r.Results.Commands)
}

func TestScanCommand_PersistentStore(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)

	runJSON[CLIScan](t, root, "scan", "--db", ".msgxref/index.db")
	require.FileExists(t, filepath.Join(root, ".msgxref", "index.db"))

	r := runJSON[CLIScan](t, root, "scan", "--db", ".msgxref/index.db")
	assert.Equal(t, 3, r.Results.Handlers)
}

func TestScanCommand_LogsToErrorStream(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)
	var out, errOut bytes.Buffer
	a := newApp(&out, &errOut)
	cmd := a.rootCmd()
	cmd.SetArgs([]string{"scan", "--root", root, "--log-level", "info"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, errOut.String(), "scan finished")
	assert.NotContains(t, out.String(), "scan finished")
}

func TestHandlersCommand(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)

	r := runJSON[[]CLIHandler](t, root, "handlers", "OrderCreated")
	require.Len(t, r.Results, 2)
	assert.Equal(t, "com.acme.events.OrderCreated", r.Results[0].Type)
	assert.Equal(t, filepath.Join(root, "com/acme/Order.java"), r.Results[0].Location.File)
	assert.Equal(t, "event-sourcing", r.Results[0].Kind)
	assert.True(t, r.Results[0].Internal)
	assert.Equal(t, "event", r.Results[1].Kind)
	assert.False(t, r.Results[1].Internal)
}

func TestHandlersCommand_KindFilter(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)

	r := runJSON[[]CLIHandler](t, root, "handlers", "OrderCreated", "--kind", "event")
	require.Len(t, r.Results, 1)
	assert.Equal(t, "on", r.Results[0].Method)

	out, err := run(t, root, "handlers", "OrderCreated", "--kind", "shout")
	require.Error(t, err)
	var bad result[any]
	require.NoError(t, json.Unmarshal([]byte(out), &bad))
	assert.Contains(t, bad.Error, "invalid --kind")
}

func TestHandlersCommand_Text(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)

	out, err := run(t, root, "handlers", "com.acme.CreateOrder", "--format", "text")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "KIND"))
	assert.Contains(t, lines[1], "command")
	assert.Contains(t, lines[1], "Order.java:")
}

func TestPublishersCommand_YAML(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)

	out, err := run(t, root, "publishers", "CreateOrder", "--format", "yaml")
	require.NoError(t, err)
	var r result[[]CLIPublisher]
	require.NoError(t, yaml.Unmarshal([]byte(out), &r), "invalid YAML output: %s", out)
	assert.Equal(t, "publishers", r.Command)
	require.Len(t, r.Results, 1)
	assert.Equal(t, "command-dispatch", r.Results[0].Kind)
	assert.Equal(t, "com.acme.OrderApi.create", r.Results[0].Enclosing)
}

func TestPublishersCommand_KindFilter(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)

	r := runJSON[[]CLIPublisher](t, root, "publishers", "OrderCreated", "--kind", "command-dispatch")
	assert.Empty(t, r.Results)
	r = runJSON[[]CLIPublisher](t, root, "publishers", "OrderCreated", "--kind", "event-publish")
	assert.Len(t, r.Results, 1)
}

func TestTypesCommand(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)

	r := runJSON[[]CLIType](t, root, "types")
	assert.Equal(t, []CLIType{
		{Name: "com.acme.CreateOrder", Handlers: 1, Publishers: 1, Declared: true},
		{Name: "com.acme.events.OrderCreated", Handlers: 2, Publishers: 1, Declared: true},
	}, r.Results)

	d := runJSON[[]CLIDeclaration](t, root, "types", "--declared")
	require.Len(t, d.Results, 5)
	assert.Equal(t, "com.acme.CreateOrder", d.Results[0].Name)
	assert.Equal(t, "class", d.Results[0].Kind)
}

func TestCommandsCommand(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)

	r := runJSON[[]string](t, root, "commands")
	assert.Equal(t, []string{"com.acme.CreateOrder"}, r.Results)
}

func TestAnnotationsCommand(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)
	writeJava(t, root, "com/acme/Audit.java", `package com.acme;

public class Audit {
    @Override
    public String toString() { return ""; }
}
`)

	r := runJSON[[]CLIAnnotation](t, root, "annotations")
	assert.Equal(t, []CLIAnnotation{
		{Name: "CommandHandler", Count: 1, Recognized: true},
		{Name: "EventHandler", Count: 1, Recognized: true},
		{Name: "EventSourcingHandler", Count: 1, Recognized: true},
		{Name: "Override", Count: 1, Recognized: false},
	}, r.Results)
}

func TestResolveCommand(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)
	file := filepath.Join(root, "com/acme/OrderProjection.java")

	r := runJSON[CLIResolution](t, root, "resolve", file, "8")
	require.NotNil(t, r.Results.Handler)
	assert.Equal(t, "on", r.Results.Handler.Method)
	require.Len(t, r.Results.Publishers, 1)
	assert.Equal(t, "event-publish", r.Results.Publishers[0].Kind)

	line, col := 11, strings.Index("        apply(new OrderCreated(cmd.getId()));", "apply")+1
	r = runJSON[CLIResolution](t, root, "resolve", filepath.Join(root, "com/acme/Order.java"), strconv.Itoa(line), strconv.Itoa(col))
	require.NotNil(t, r.Results.Publisher)
	assert.Len(t, r.Results.Handlers, 2)
}

func TestResolveCommand_NothingThere(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)

	r := runJSON[*CLIResolution](t, root, "resolve", filepath.Join(root, "com/acme/OrderApi.java"), "1")
	assert.Nil(t, r.Results)
	assert.Empty(t, r.Error)
}

func TestResolveCommand_BadLine(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)

	out, err := run(t, root, "resolve", "Order.java", "abc")
	require.Error(t, err)
	var r result[any]
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "resolve", r.Command)
	assert.Contains(t, r.Error, `invalid line "abc"`)
}

func TestInvalidFormat(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)

	_, err := run(t, root, "scan", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestConfigFile(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)
	writeJava(t, root, ".msgxref.yaml", "format: text\nlog:\n  level: error\n")

	out, err := run(t, root, "commands")
	require.NoError(t, err)
	assert.Equal(t, "com.acme.CreateOrder\n", out)
}

func TestRulesFlag(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)
	writeJava(t, root, "com/acme/Mailer.java", `package com.acme;

import com.acme.events.OrderCreated;
import com.acme.messaging.OnOrder;

public class Mailer {
    @OnOrder
    void send(OrderCreated evt) {}
}
`)
	script := writeJava(t, t.TempDir(), "rules.risor", `handler_annotation("com.acme.messaging.OnOrder", "event")`)

	r := runJSON[[]CLIHandler](t, root, "handlers", "OrderCreated", "--rules", script)
	methods := map[string]bool{}
	for _, h := range r.Results {
		methods[h.Method] = true
	}
	assert.True(t, methods["send"])
}

func TestPresetFlag(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)
	writeJava(t, root, "com/acme/Mailer.java", `package com.acme;

import com.acme.events.OrderCreated;
import org.springframework.context.event.EventListener;

public class Mailer {
    @EventListener
    void send(OrderCreated evt) {}
}
`)

	r := runJSON[[]CLIAnnotation](t, root, "annotations", "--preset", "spring")
	assert.Contains(t, r.Results, CLIAnnotation{Name: "EventListener", Count: 1, Recognized: true})

	out, err := run(t, root, "scan", "--preset", "guice")
	require.Error(t, err)
	assert.Contains(t, out, `unknown preset \"guice\"`)
}

// --- watcher tests ---

type refreshCall struct {
	paths []string
}

type fakeRefresher struct {
	calls chan refreshCall
}

func (f *fakeRefresher) Refresh(_ context.Context, paths []string) (msgxref.ScanResult, error) {
	f.calls <- refreshCall{paths: paths}
	return msgxref.ScanResult{Files: len(paths)}, nil
}

func TestWatcher_DebouncesJavaChanges(t *testing.T) {
	t.Parallel()
	fr := &fakeRefresher{calls: make(chan refreshCall, 4)}
	refreshed := make(chan msgxref.ScanResult, 4)
	w := &watcher{
		project:   fr,
		debounce:  20 * time.Millisecond,
		logger:    zap.NewNop(),
		onRefresh: func(res msgxref.ScanResult) { refreshed <- res },
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan fsnotify.Event)
	errs := make(chan error)
	done := make(chan error, 1)
	go func() { done <- w.run(ctx, events, errs) }()

	events <- fsnotify.Event{Name: "/src/B.java", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "/src/A.java", Op: fsnotify.Create}
	events <- fsnotify.Event{Name: "/src/B.java", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "/src/README.md", Op: fsnotify.Write}
	errs <- assert.AnError

	select {
	case call := <-fr.calls:
		assert.Equal(t, []string{"/src/A.java", "/src/B.java"}, call.paths)
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh")
	}
	assert.Equal(t, 2, (<-refreshed).Files)

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, fr.calls)
}

func TestWatcher_Queue(t *testing.T) {
	t.Parallel()
	w := &watcher{logger: zap.NewNop()}
	pending := map[string]bool{}

	assert.False(t, w.queue(fsnotify.Event{Name: "notes.txt", Op: fsnotify.Write}, pending))
	assert.False(t, w.queue(fsnotify.Event{Name: "A.java", Op: fsnotify.Chmod}, pending))
	assert.True(t, w.queue(fsnotify.Event{Name: "A.java", Op: fsnotify.Remove}, pending))
	assert.Equal(t, map[string]bool{"A.java": true}, pending)
}

func TestWatcher_NewDirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	file := writeJava(t, root, "pkg/A.java", "class A {}")

	var added []string
	w := &watcher{logger: zap.NewNop(), addDir: func(dir string) error {
		added = append(added, dir)
		return nil
	}}
	pending := map[string]bool{}
	assert.True(t, w.queue(fsnotify.Event{Name: filepath.Join(root, "pkg"), Op: fsnotify.Create}, pending))
	assert.Equal(t, []string{filepath.Join(root, "pkg")}, added)
	assert.True(t, pending[file])
}

func TestWatcher_RefreshesProject(t *testing.T) {
	t.Parallel()
	root := createJavaFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := msgxref.OpenProject(ctx, msgxref.ProjectConfig{Workers: 2})
	require.NoError(t, err)
	defer p.Close()
	_, err = p.Index(ctx, root)
	require.NoError(t, err)

	refreshed := make(chan msgxref.ScanResult, 1)
	w := &watcher{
		project:   p,
		debounce:  10 * time.Millisecond,
		logger:    zap.NewNop(),
		onRefresh: func(res msgxref.ScanResult) { refreshed <- res },
	}
	events := make(chan fsnotify.Event)
	done := make(chan error, 1)
	go func() { done <- w.run(ctx, events, nil) }()

	added := writeJava(t, root, "com/acme/Audit.java", `package com.acme;

import com.acme.events.OrderCreated;
import org.axonframework.eventhandling.EventHandler;

public class Audit {
    @EventHandler
    void record(OrderCreated evt) {}
}
`)
	events <- fsnotify.Event{Name: added, Op: fsnotify.Create}

	select {
	case res := <-refreshed:
		assert.Equal(t, 6, res.Files)
	case <-time.After(5 * time.Second):
		t.Fatal("no refresh")
	}

	hs, err := p.Coordinator().Query().HandlersFor(ctx, "OrderCreated")
	require.NoError(t, err)
	assert.Len(t, hs, 3)

	close(events)
	require.NoError(t, <-done)
}
