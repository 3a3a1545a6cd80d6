package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jward/msgxref"
	"github.com/jward/msgxref/internal/config"
	"github.com/jward/msgxref/internal/logging"
	"github.com/jward/msgxref/scripts"
)

func main() {
	a := newApp(os.Stdout, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		if !a.errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		stop()
		os.Exit(1)
	}
}

// app holds one invocation's flags, configuration and output streams.
type app struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer

	configFile string
	root       string

	cfg    *config.Config
	logger *zap.Logger

	// errorHandled is set by outputError so main doesn't double-print.
	errorHandled bool
}

func newApp(out, errOut io.Writer) *app {
	return &app{v: viper.New(), out: out, errOut: errOut, logger: zap.NewNop()}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "msgxref",
		Short: "Cross-reference message publishers and handlers",
		Long: "msgxref indexes Java sources with tree-sitter and links every event or command " +
			"publisher to the handlers that accept its type, and every handler to its publishers.",
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { _ = a.logger.Sync() },
		// No Run: prints help by default.
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: "+config.FileName+" in --root)")
	flags.StringVar(&a.root, "root", ".", "source tree to index")
	flags.String("db", "", "SQLite session store path, relative to --root (default: in-memory)")
	flags.String("format", "json", "output format: json|text|yaml")
	flags.Int("workers", 0, "files processed concurrently (default: number of CPUs)")
	flags.StringSlice("preset", nil, "bundled rules presets to apply: "+strings.Join(scripts.Names(), "|"))
	flags.String("rules", "", "Risor rules script extending the recognized annotations")
	flags.String("log-level", "info", "log level: debug|info|warn|error")
	flags.String("metrics-addr", "", "host:port serving Prometheus metrics in watch mode")
	for key, name := range map[string]string{
		"db":           "db",
		"format":       "format",
		"workers":      "workers",
		"presets":      "preset",
		"rules_script": "rules",
		"log.level":    "log-level",
		"metrics_addr": "metrics-addr",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	cmd.AddCommand(a.scanCmd())
	cmd.AddCommand(a.handlersCmd())
	cmd.AddCommand(a.publishersCmd())
	cmd.AddCommand(a.typesCmd())
	cmd.AddCommand(a.commandsCmd())
	cmd.AddCommand(a.annotationsCmd())
	cmd.AddCommand(a.resolveCmd())
	cmd.AddCommand(a.watchCmd())
	return cmd
}

// setup loads configuration and builds the logger before any command runs.
func (a *app) setup(*cobra.Command, []string) error {
	root, err := resolveTargetDir(a.root)
	if err != nil {
		return err
	}
	a.root = root

	cfg, err := config.Load(a.v, a.configFile, root)
	if err != nil {
		return err
	}
	if err := validateFormat(cfg.Format); err != nil {
		return err
	}
	if cfg.DB != "" && !filepath.IsAbs(cfg.DB) {
		cfg.DB = filepath.Join(root, cfg.DB)
	}
	a.cfg = cfg

	// "stderr" is the app's error stream.
	if out := cfg.Log.Output; out == "" || out == "stderr" {
		a.logger = logging.NewWriter(cfg.Logging(), a.errOut)
		return nil
	}
	logger, err := logging.New(cfg.Logging())
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	a.logger = logger
	return nil
}

// openProject opens the project and brings the index up to date. Files that
// fail to index are logged and skipped.
func (a *app) openProject(ctx context.Context, reg prometheus.Registerer) (*msgxref.Project, msgxref.ScanResult, error) {
	if a.cfg.DB != "" {
		if err := os.MkdirAll(filepath.Dir(a.cfg.DB), 0o755); err != nil {
			return nil, msgxref.ScanResult{}, fmt.Errorf("creating %s: %w", filepath.Dir(a.cfg.DB), err)
		}
	}
	p, err := msgxref.OpenProject(ctx, msgxref.ProjectConfig{
		DB:             a.cfg.DB,
		Presets:        a.cfg.Presets,
		RulesScript:    a.cfg.RulesScript,
		AttributeNames: a.cfg.AttributeNames,
		Workers:        a.cfg.Workers,
		Logger:         a.logger,
		Registerer:     reg,
	})
	if err != nil {
		return nil, msgxref.ScanResult{}, err
	}
	res, err := p.Index(ctx, a.root)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.Close()
			return nil, msgxref.ScanResult{}, err
		}
		a.logger.Warn("indexing finished with errors", zap.Error(err))
	}
	return p, res, nil
}

// output writes a successful result in the configured format.
func (a *app) output(command string, results any) error {
	return writeResult(a.out, a.cfg.Format, CLIResult{Command: command, Results: results})
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In json and yaml mode the error is written to
// stdout as a CLIResult envelope. In text mode it goes to stderr.
func (a *app) outputError(command string, err error) error {
	a.errorHandled = true
	if a.cfg == nil || a.cfg.Format == "text" {
		fmt.Fprintf(a.errOut, "Error: %s\n", err)
		return err
	}
	_ = writeResult(a.out, a.cfg.Format, CLIResult{Command: command, Error: err.Error()})
	return err
}

// resolveTargetDir returns the absolute path of the directory to index.
func resolveTargetDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// resolveFilePath converts a file argument to an absolute path, relative to
// the working directory.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// parseIntArg parses a positional argument as a non-negative integer.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}
