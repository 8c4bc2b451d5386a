// Package watch rebuilds changed files until its context is cancelled.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tsblank/pkg/emit"
	"tsblank/pkg/fileset"
	"tsblank/pkg/frontend"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the coordinator waits for events to settle.
const DefaultDebounce = 100 * time.Millisecond

// Coordinator owns the program while watching. Only its Run goroutine
// touches the program.
type Coordinator struct {
	program  *frontend.Program
	emitter  *emit.Coordinator
	resolver *fileset.Resolver
	debounce time.Duration
	logger   *zap.Logger
}

// New returns a coordinator. A zero debounce uses DefaultDebounce.
func New(program *frontend.Program, emitter *emit.Coordinator, resolver *fileset.Resolver, debounce time.Duration, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Coordinator{
		program:  program,
		emitter:  emitter,
		resolver: resolver,
		debounce: debounce,
		logger:   logger,
	}
}

// Run emits everything once, then watches the resolver's directory and
// re-emits changed files. ready, if non-nil, is called once the watcher is
// in place. Run returns nil when ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, ready func()) error {
	summary, err := c.emitter.Run(ctx)
	if err != nil {
		c.logger.Warn("Initial build finished with errors", zap.Int("failed", summary.Failed), zap.Error(err))
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		c.logger.Error("Failed to create file watcher", zap.Error(err))
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer w.Close()

	root := c.resolver.Dir()
	if err := c.addRecursive(w, root, nil); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	c.logger.Info("Watching for changes", zap.String("directory", root))
	if ready != nil {
		ready()
	}

	pending := map[string]bool{}
	timer := time.NewTimer(c.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stopping watch")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			c.handle(w, ev, pending)
			if len(pending) > 0 {
				timer.Reset(c.debounce)
				fire = timer.C
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("File watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)
			c.rebuild(paths)
		}
	}
}

// handle records the source paths touched by ev. New directories are
// watched and any sources already inside them are queued.
func (c *Coordinator) handle(w *fsnotify.Watcher, ev fsnotify.Event, pending map[string]bool) {
	c.logger.Debug("File event", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
	name, err := filepath.Abs(ev.Name)
	if err != nil {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			if err := c.addRecursive(w, name, pending); err != nil {
				c.logger.Warn("Failed to watch new directory", zap.String("directory", name), zap.Error(err))
			}
			return
		}
	}
	if fileset.IsSourceFile(name) {
		pending[name] = true
	}
}

// addRecursive watches dir and every directory below it, skipping
// dependency and hidden directories. When pending is non-nil, source files
// found on the way are queued.
func (c *Coordinator) addRecursive(w *fsnotify.Watcher, dir string, pending map[string]bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			c.logger.Warn("Error accessing path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.IsDir() {
			if pending != nil && fileset.IsSourceFile(path) {
				pending[path] = true
			}
			return nil
		}
		if path != dir && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			c.logger.Error("Failed to watch directory", zap.String("directory", path), zap.Error(err))
			return err
		}
		c.logger.Debug("Watching directory", zap.String("directory", path))
		return nil
	})
}

func skipDir(name string) bool {
	return name == "node_modules" || strings.HasPrefix(name, ".")
}

// rebuild reparses the changed paths and drains the affected files through
// the same per-file emission as a batch run.
func (c *Coordinator) rebuild(paths []string) {
	var candidates []string
	for _, p := range paths {
		if c.resolver.Matches(p) {
			candidates = append(candidates, c.resolver.Display(p))
		}
	}
	if len(candidates) == 0 {
		return
	}

	affected := c.program.Rebuild(candidates)
	for _, removed := range affected.Removed() {
		c.logger.Info("File removed", zap.String("file", removed))
	}
	c.logger.Debug("Rebuilt program", zap.Int("affected", affected.Len()))

	co := c.emitter.Config().CompilerOptions
	for f, ok := affected.Next(); ok; f, ok = affected.Next() {
		if !fileset.IsSourceFile(f.Path) || !c.resolver.Matches(f.Path) {
			c.logger.Debug("Skipping affected file", zap.String("file", f.Path))
			continue
		}
		if co.NoEmit {
			continue
		}
		if !co.EmitDeclarationOnly {
			if err := c.emitter.Conflict(f); err != nil {
				c.logger.Debug("File not emitted", zap.String("file", f.Path), zap.Error(err))
			} else if _, err := c.emitter.EmitFile(f); err != nil {
				c.logger.Debug("File not emitted", zap.String("file", f.Path), zap.Error(err))
			}
		}
		if co.Declaration {
			if _, err := c.emitter.EmitDeclaration(f.Path); err != nil {
				c.logger.Debug("Declarations not emitted", zap.String("file", f.Path), zap.Error(err))
			}
		}
	}
}
