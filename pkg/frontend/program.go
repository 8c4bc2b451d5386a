package frontend

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"tsblank/pkg/dts"
	"tsblank/pkg/fileset"
	"tsblank/pkg/tsconfig"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// hashCacheSize bounds the number of content hashes kept for rebuilds.
const hashCacheSize = 8192

// ErrDeclaration is wrapped by errors for files whose declarations could
// not be produced without type information.
var ErrDeclaration = errors.New("declaration emit failed")

// Options configures a Program.
type Options struct {
	CompilerOptions tsconfig.CompilerOptions
	// RootDir anchors DeclarationDir when CompilerOptions.RootDir is unset.
	RootDir string
	// Jobs bounds concurrent parsing.
	Jobs int
}

// Program is the set of parsed input files. Lookups are safe for concurrent
// use; Rebuild and Close must not run concurrently with anything else.
type Program struct {
	opts   Options
	logger *zap.Logger

	files  map[string]*SourceFile
	order  []string
	hashes *lru.Cache[string, [sha256.Size]byte]
}

// NewProgram reads and parses paths. Files that cannot be read are logged
// and left out.
func NewProgram(ctx context.Context, paths []string, opts Options, logger *zap.Logger) (*Program, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	hashes, err := lru.New[string, [sha256.Size]byte](hashCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create hash cache: %w", err)
	}
	p := &Program{
		opts:   opts,
		logger: logger,
		files:  map[string]*SourceFile{},
		hashes: hashes,
	}

	parsed := make([]*SourceFile, len(paths))
	sums := make([][sha256.Size]byte, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Jobs > 0 {
		g.SetLimit(opts.Jobs)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := os.ReadFile(path)
			if err != nil {
				logger.Error("Failed to read source file", zap.String("file", path), zap.Error(err))
				return nil
			}
			f, err := Parse(path, text)
			if err != nil {
				logger.Error("Failed to parse source file", zap.String("file", path), zap.Error(err))
				return nil
			}
			parsed[i] = f
			sums[i] = sha256.Sum256(text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, f := range parsed {
			f.Close()
		}
		return nil, fmt.Errorf("failed to parse program: %w", err)
	}

	for i, f := range parsed {
		if f == nil {
			continue
		}
		key := filepath.Clean(f.Path)
		if _, dup := p.files[key]; dup {
			f.Close()
			continue
		}
		p.files[key] = f
		p.order = append(p.order, key)
		p.hashes.Add(key, sums[i])
	}
	logger.Debug("Parsed program", zap.Int("files", len(p.order)))
	return p, nil
}

// Files returns the parsed files in input order.
func (p *Program) Files() []*SourceFile {
	out := make([]*SourceFile, 0, len(p.order))
	for _, key := range p.order {
		out = append(out, p.files[key])
	}
	return out
}

// SourceFile returns the parsed file for path.
func (p *Program) SourceFile(path string) (*SourceFile, bool) {
	f, ok := p.files[filepath.Clean(path)]
	return f, ok
}

// EmitDeclarations writes a declaration file for every input. report is
// called for each file written. Failures are logged and combined; they do
// not stop the remaining files.
func (p *Program) EmitDeclarations(ctx context.Context, report func(src, dst string)) error {
	var errs error
	for _, key := range p.order {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		dst, err := p.EmitDeclaration(key)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if report != nil {
			report(key, dst)
		}
	}
	return errs
}

// EmitDeclaration writes the declaration file for one input and returns
// its path.
func (p *Program) EmitDeclaration(path string) (string, error) {
	f, ok := p.SourceFile(path)
	if !ok {
		return "", fmt.Errorf("failed to emit declarations: %s is not part of the program", path)
	}

	text, diags := dts.Emit(f.Root(), f.Text)
	if len(diags) > 0 {
		for _, d := range diags {
			pos := f.Position(d.Offset)
			p.logger.Error("Declaration emit error",
				zap.String("file", f.Path),
				zap.Int("line", pos.Line),
				zap.Int("column", pos.Column),
				zap.String("message", d.Message))
		}
		return "", fmt.Errorf("%s: %w (%d problems)", f.Path, ErrDeclaration, len(diags))
	}

	dst := p.DeclarationPath(f.Path)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		p.logger.Error("Failed to create declaration directory", zap.String("path", dst), zap.Error(err))
		return "", fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	if err := os.WriteFile(dst, []byte(text), 0o644); err != nil {
		p.logger.Error("Failed to write declaration file", zap.String("path", dst), zap.Error(err))
		return "", fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return dst, nil
}

// DeclarationPath returns where the declaration file for path is written.
func (p *Program) DeclarationPath(path string) string {
	return fileset.DeclarationPath(filepath.Clean(path), p.opts.CompilerOptions.DeclarationDir, p.rootDir())
}

func (p *Program) rootDir() string {
	if p.opts.CompilerOptions.RootDir != "" {
		return p.opts.CompilerOptions.RootDir
	}
	return p.opts.RootDir
}

// Rebuild rereads paths and returns the files whose content changed. Paths
// that no longer exist are dropped from the program.
func (p *Program) Rebuild(paths []string) *AffectedFiles {
	affected := &AffectedFiles{}
	for _, path := range paths {
		key := filepath.Clean(path)
		text, err := os.ReadFile(key)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				if p.remove(key) {
					affected.removed = append(affected.removed, key)
				}
				continue
			}
			p.logger.Error("Failed to read source file", zap.String("file", key), zap.Error(err))
			continue
		}

		sum := sha256.Sum256(text)
		if old, ok := p.hashes.Get(key); ok && old == sum {
			if _, known := p.files[key]; known {
				p.logger.Debug("Content unchanged", zap.String("file", key))
				continue
			}
		}

		f, err := Parse(key, text)
		if err != nil {
			p.logger.Error("Failed to parse source file", zap.String("file", key), zap.Error(err))
			continue
		}
		if old, ok := p.files[key]; ok {
			old.Close()
		} else {
			p.order = append(p.order, key)
		}
		p.files[key] = f
		p.hashes.Add(key, sum)
		affected.files = append(affected.files, f)
	}
	return affected
}

func (p *Program) remove(key string) bool {
	f, ok := p.files[key]
	if !ok {
		return false
	}
	f.Close()
	delete(p.files, key)
	p.hashes.Remove(key)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// Close releases every syntax tree.
func (p *Program) Close() {
	for _, f := range p.files {
		f.Close()
	}
	p.files = map[string]*SourceFile{}
	p.order = nil
	p.hashes.Purge()
}

// AffectedFiles is the result of a Rebuild, consumed with Next.
type AffectedFiles struct {
	files   []*SourceFile
	removed []string
	next    int
}

// Next returns the next changed file, or false when none are left.
func (a *AffectedFiles) Next() (*SourceFile, bool) {
	if a.next >= len(a.files) {
		return nil, false
	}
	f := a.files[a.next]
	a.next++
	return f, true
}

// Len returns the number of changed files.
func (a *AffectedFiles) Len() int {
	return len(a.files)
}

// Removed lists the paths dropped from the program.
func (a *AffectedFiles) Removed() []string {
	return a.removed
}
