package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jward/msgxref"
	"github.com/jward/msgxref/internal/javasrc"
)

func (a *app) watchCmd() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index current while files change",
		Long: "Indexes --root, then re-indexes .java files as they are written, created or removed. " +
			"Each refresh is reported as one result. With --metrics-addr, Prometheus metrics are served at /metrics.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			reg := prometheus.NewRegistry()
			p, res, err := a.openProject(ctx, reg)
			if err != nil {
				return a.outputError("watch", err)
			}
			defer p.Close()
			if err := a.output("watch", scanToCLI(a.root, res)); err != nil {
				return err
			}

			if a.cfg.MetricsAddr != "" {
				srv := serveMetrics(a.cfg.MetricsAddr, reg, a.logger)
				defer srv.Shutdown(context.Background())
			}

			fw, err := fsnotify.NewWatcher()
			if err != nil {
				return a.outputError("watch", err)
			}
			defer fw.Close()
			if err := addTree(fw, a.root); err != nil {
				return a.outputError("watch", err)
			}

			w := &watcher{
				project:  p,
				debounce: debounce,
				logger:   a.logger,
				addDir:   func(dir string) error { return addTree(fw, dir) },
				onRefresh: func(res msgxref.ScanResult) {
					if err := a.output("refresh", scanToCLI(a.root, res)); err != nil {
						a.logger.Warn("writing refresh result", zap.Error(err))
					}
				},
			}
			a.logger.Info("watching", zap.String("root", a.root))
			return w.run(ctx, fw.Events, fw.Errors)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "quiet period before changed files are re-indexed")
	return cmd
}

// refresher re-indexes changed files. *msgxref.Project implements it.
type refresher interface {
	Refresh(ctx context.Context, paths []string) (msgxref.ScanResult, error)
}

// watcher batches file events and refreshes the project once the tree has
// been quiet for debounce.
type watcher struct {
	project   refresher
	debounce  time.Duration
	logger    *zap.Logger
	addDir    func(string) error // nil: new directories are not watched
	onRefresh func(msgxref.ScanResult)
}

// run consumes events until ctx is done or the event channel closes.
func (w *watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	pending := make(map[string]bool)
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !w.queue(ev, pending) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-fire:
			fire = nil
			w.flush(ctx, pending)
		}
	}
}

// queue records the files ev affects and reports whether any were added.
func (w *watcher) queue(ev fsnotify.Event, pending map[string]bool) bool {
	if ev.Has(fsnotify.Create) && w.addDir != nil {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addDir(ev.Name); err != nil {
				w.logger.Warn("watching new directory", zap.String("path", ev.Name), zap.Error(err))
			}
			added := false
			_ = filepath.WalkDir(ev.Name, func(path string, d fs.DirEntry, err error) error {
				if err == nil && !d.IsDir() && javasrc.IsJavaFile(path) {
					pending[path] = true
					added = true
				}
				return nil
			})
			return added
		}
	}
	if !javasrc.IsJavaFile(ev.Name) || ev.Op == fsnotify.Chmod {
		return false
	}
	pending[ev.Name] = true
	return true
}

func (w *watcher) flush(ctx context.Context, pending map[string]bool) {
	if len(pending) == 0 {
		return
	}
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
		delete(pending, p)
	}
	sort.Strings(paths)

	res, err := w.project.Refresh(ctx, paths)
	if err != nil {
		w.logger.Warn("refresh finished with errors", zap.Int("files", len(paths)), zap.Error(err))
	}
	w.logger.Info("refreshed",
		zap.Int("changed", len(paths)),
		zap.Int("handlers", res.Handlers),
		zap.Int("publishers", res.Publishers),
	)
	if w.onRefresh != nil {
		w.onRefresh(res)
	}
}

// addTree watches root and every directory below it, skipping hidden ones.
func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

// serveMetrics exposes reg at /metrics on addr until Shutdown.
func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}
