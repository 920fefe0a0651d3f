package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*CatalogOptions
	GoOutput string
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{CatalogOptions: &CatalogOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild a catalog whenever its definition or metamodel changes",
		Long: `Watch the metamodel and the catalog definition, and rebuild the catalog
(and optionally its Go source) on every change. Runs until interrupted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Definition, "definition", "f", "", "catalog definition file (YAML)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compiled catalog (msgpack) to this file")
	cmd.Flags().StringVar(&opts.GoOutput, "go", "", "write the catalog as Go source to this file")
	cmd.Flags().StringVarP(&opts.Package, "package", "p", "queries", "Go package name for --go")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 200*time.Millisecond, "quiet period before rebuilding")

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.Logger()

	if opts.Entities == "" || opts.Definition == "" {
		return f.Fail(NewExitError(ExitCommandError, "--entities and --definition are required"))
	}

	rebuild := func() {
		if err := rebuildCatalog(ctx, opts); err != nil {
			_ = f.Fail(err)
			return
		}
		_ = f.Success(map[string]any{"rebuilt": time.Now().UTC()}, "Catalog rebuilt")
	}

	w, err := newFileWatcher(logger, opts.Entities, opts.Definition)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "watching files", err))
	}
	defer w.Close()

	rebuild()
	w.Run(ctx, opts.Debounce, rebuild)
	return nil
}

func rebuildCatalog(ctx context.Context, opts *WatchOptions) error {
	cat, err := buildCatalog(ctx, opts.CatalogOptions)
	if err != nil {
		return err
	}
	if opts.Output != "" {
		if err := saveCatalog(cat, opts.Output); err != nil {
			return err
		}
	}
	if opts.GoOutput != "" {
		var src bytes.Buffer
		if err := cat.GenerateGo(&src, opts.Package); err != nil {
			return WrapExitError(ExitFailure, "generating Go source", err)
		}
		if err := os.WriteFile(opts.GoOutput, src.Bytes(), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "writing Go source", err)
		}
	}
	return nil
}

// fileWatcher reports changes to a fixed set of files. It watches their
// directories, since editors often replace a file instead of writing it.
type fileWatcher struct {
	watcher *fsnotify.Watcher
	targets map[string]struct{}
	logger  *zap.Logger
}

func newFileWatcher(logger *zap.Logger, paths ...string) (*fileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &fileWatcher{watcher: watcher, targets: map[string]struct{}{}, logger: logger}

	dirs := map[string]struct{}{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, err
		}
		w.targets[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if _, ok := dirs[dir]; ok {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = struct{}{}
	}
	return w, nil
}

// Run calls onChange once per burst of changes, after debounce has passed
// without further events. It returns when ctx is done or the watcher is
// closed.
func (w *fileWatcher) Run(ctx context.Context, debounce time.Duration, onChange func()) {
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
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if _, watched := w.targets[filepath.Clean(ev.Name)]; !watched {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("File changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			onChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}

func (w *fileWatcher) Close() error {
	return w.watcher.Close()
}
