// Package emit runs the batch emission: every input is erased, checked and
// written next to its source, with declaration files produced alongside.
package emit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"tsblank/pkg/blank"
	"tsblank/pkg/fileset"
	"tsblank/pkg/frontend"
	"tsblank/pkg/tsconfig"
	"tsblank/pkg/verify"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrOutputConflict means an output path is already written or read by
	// another file.
	ErrOutputConflict = errors.New("output path conflict")
	// ErrUnsupported means the input contains syntax that cannot be erased.
	ErrUnsupported = errors.New("unsupported syntax")
	// ErrInvalidOutput means the erased text did not parse as JavaScript.
	ErrInvalidOutput = errors.New("output failed verification")
)

// FileError is a failure confined to one input file.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Config selects what the coordinator emits.
type Config struct {
	CompilerOptions tsconfig.CompilerOptions
	Extension       string // Output extension for .ts sources.
	Jobs            int
	Verify          bool
	Quiet           bool
}

// Summary counts the outcome of a Run.
type Summary struct {
	Written int
	Failed  int
}

// Coordinator writes erased output and declarations for a Program.
type Coordinator struct {
	cfg     Config
	program *frontend.Program
	logger  *zap.Logger

	mu  sync.Mutex // guards out
	out io.Writer
}

// NewCoordinator returns a coordinator printing written files to out.
func NewCoordinator(program *frontend.Program, cfg Config, out io.Writer, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Coordinator{cfg: cfg, program: program, logger: logger, out: out}
}

// Config returns the configuration the coordinator was built with.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Run emits every file of the program. Per-file failures are logged and
// returned combined; they never stop the other files.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	var (
		mu      sync.Mutex
		summary Summary
		errs    error
	)
	record := func(written int, err error) {
		mu.Lock()
		defer mu.Unlock()
		summary.Written += written
		if err != nil {
			summary.Failed++
			errs = multierr.Append(errs, err)
		}
	}

	co := c.cfg.CompilerOptions
	if co.NoEmit {
		c.logger.Info("noEmit is set, nothing to emit")
		return summary, nil
	}

	var g errgroup.Group
	if c.cfg.Jobs > 0 {
		g.SetLimit(c.cfg.Jobs)
	}

	if co.Declaration {
		g.Go(func() error {
			var written int
			err := c.program.EmitDeclarations(ctx, func(src, dst string) {
				written++
				c.report(src, dst)
			})
			if err != nil {
				c.logger.Error("Failed to emit some declarations", zap.Error(err))
			}
			record(written, err)
			return nil
		})
	}

	if co.EmitDeclarationOnly {
		c.logger.Debug("emitDeclarationOnly is set, skipping JavaScript output")
	} else {
		files, conflicts := c.plan(c.program.Files())
		for _, err := range conflicts {
			record(0, err)
		}
		for _, f := range files {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					record(0, &FileError{Path: f.Path, Err: err})
					return nil
				}
				_, err := c.EmitFile(f)
				if err != nil {
					record(0, err)
					return nil
				}
				record(1, nil)
				return nil
			})
		}
	}

	_ = g.Wait()
	c.logger.Debug("Emit finished", zap.Int("written", summary.Written), zap.Int("failed", summary.Failed))
	return summary, errs
}

// claim records one file that reads or writes a path.
type claim struct {
	owner string
	kind  string
}

// claims indexes every path the program reads or writes, keyed without
// regard to case.
func (c *Coordinator) claims(files []*frontend.SourceFile) map[string][]claim {
	index := map[string][]claim{}
	add := func(path, owner, kind string) {
		key := strings.ToLower(filepath.Clean(path))
		index[key] = append(index[key], claim{owner: owner, kind: kind})
	}
	for _, f := range files {
		add(f.Path, f.Path, "source")
		add(fileset.OutputPath(f.Path, c.cfg.Extension), f.Path, "output")
		if c.cfg.CompilerOptions.Declaration {
			add(c.program.DeclarationPath(f.Path), f.Path, "declaration")
		}
	}
	return index
}

// conflict reports whether the output of f is claimed by anything other
// than f's own output.
func (c *Coordinator) conflict(f *frontend.SourceFile, index map[string][]claim) error {
	dst := fileset.OutputPath(f.Path, c.cfg.Extension)
	var others []string
	for _, cl := range index[strings.ToLower(filepath.Clean(dst))] {
		if cl.owner == f.Path && cl.kind == "output" {
			continue
		}
		switch cl.kind {
		case "output":
			others = append(others, cl.owner)
		default:
			others = append(others, fmt.Sprintf("%s (%s)", cl.owner, cl.kind))
		}
	}
	if len(others) == 0 {
		return nil
	}
	c.logger.Error("Output path conflict, skipping file",
		zap.String("file", f.Path),
		zap.String("output", dst),
		zap.Strings("conflictsWith", others))
	return &FileError{
		Path: f.Path,
		Err:  fmt.Errorf("%w: %s is also used by %s", ErrOutputConflict, dst, strings.Join(others, ", ")),
	}
}

// Conflict checks the output of f against every path the program reads or
// writes. Callers emitting single files use it before EmitFile.
func (c *Coordinator) Conflict(f *frontend.SourceFile) error {
	return c.conflict(f, c.claims(c.program.Files()))
}

// plan drops inputs whose output would overwrite another output, an input
// or a declaration file.
func (c *Coordinator) plan(files []*frontend.SourceFile) ([]*frontend.SourceFile, []error) {
	index := c.claims(files)
	var (
		keep      []*frontend.SourceFile
		conflicts []error
	)
	for _, f := range files {
		if err := c.conflict(f, index); err != nil {
			conflicts = append(conflicts, err)
			continue
		}
		keep = append(keep, f)
	}
	return keep, conflicts
}

// EmitFile erases one file and writes the result. Nothing is written when
// the file contains unsupported syntax or the output fails verification.
func (c *Coordinator) EmitFile(f *frontend.SourceFile) (string, error) {
	dst := fileset.OutputPath(f.Path, c.cfg.Extension)

	res := blank.File(f)
	if !res.OK() {
		for _, u := range res.Unsupported {
			c.logger.Error("Unsupported syntax",
				zap.String("file", f.Path),
				zap.Int("line", u.Position.Line),
				zap.Int("column", u.Position.Column),
				zap.String("kind", u.Kind),
				zap.String("text", u.Text))
		}
		return "", &FileError{Path: f.Path, Err: fmt.Errorf("%w: %d unsupported nodes", ErrUnsupported, len(res.Unsupported))}
	}

	if c.cfg.Verify {
		if problems := verify.Check(f.Path, res.Text); len(problems) > 0 {
			for _, p := range problems {
				c.logger.Error("Invalid output",
					zap.String("file", f.Path),
					zap.Int("line", p.Line),
					zap.Int("column", p.Column),
					zap.String("message", p.Message))
			}
			return "", &FileError{Path: f.Path, Err: fmt.Errorf("%w: %s", ErrInvalidOutput, problems[0])}
		}
	}

	if err := os.WriteFile(dst, []byte(res.Text), 0o644); err != nil {
		c.logger.Error("Failed to write output", zap.String("file", f.Path), zap.String("output", dst), zap.Error(err))
		return "", &FileError{Path: f.Path, Err: fmt.Errorf("failed to write %s: %w", dst, err)}
	}
	c.report(f.Path, dst)
	return dst, nil
}

// EmitDeclaration writes the declaration file for one input.
func (c *Coordinator) EmitDeclaration(path string) (string, error) {
	dst, err := c.program.EmitDeclaration(path)
	if err != nil {
		return "", &FileError{Path: path, Err: err}
	}
	c.report(path, dst)
	return dst, nil
}

func (c *Coordinator) report(src, dst string) {
	c.logger.Debug("Wrote output", zap.String("file", src), zap.String("output", dst))
	if c.cfg.Quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s -> %s\n", src, dst)
}
