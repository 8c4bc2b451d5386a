// Package fileset expands command-line paths, project file lists and the
// default pattern into the ordered list of sources to compile.
package fileset

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"tsblank/pkg/ignore"
	"tsblank/pkg/tsconfig"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// Arguments configures a Resolver.
type Arguments struct {
	// Dir is the directory relative paths resolve against. Empty means the
	// process working directory, and results are then reported relative to it.
	Dir string
	// Paths are the positional files or glob patterns.
	Paths []string
	// Project is the loaded configuration; it may be nil.
	Project *tsconfig.Config
}

// includeRule is a slash-separated doublestar pattern relative to base.
type includeRule struct {
	base    string
	pattern string
}

// Resolver turns Arguments into input files and answers whether a single
// path belongs to the set.
type Resolver struct {
	dir      string // absolute
	relative bool   // report paths relative to dir
	explicit bool   // positional paths were given
	rules    []includeRule
	literals []string
	isLit    map[string]bool

	defaults    *ignore.Matcher // relative to dir
	project     *ignore.Matcher // relative to excludeBase; nil without a config exclude
	excludeBase string

	logger *zap.Logger
}

// NewResolver prepares the include rules implied by args.
func NewResolver(args Arguments, logger *zap.Logger) (*Resolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Resolver{
		dir:      args.Dir,
		isLit:    map[string]bool{},
		defaults: ignore.NewDefault(logger),
		logger:   logger,
	}
	if r.dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		r.dir = wd
		r.relative = true
	}
	abs, err := filepath.Abs(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory %q: %w", r.dir, err)
	}
	r.dir = abs

	project := args.Project
	switch {
	case len(args.Paths) > 0:
		r.explicit = true
		for _, p := range args.Paths {
			r.rules = append(r.rules, r.ruleFor(r.dir, p))
		}
	case project != nil && project.HasFileSpec():
		if project.Files.Set() {
			for _, f := range project.Files.Patterns {
				lit := joinAbs(project.Files.Base, f)
				if !r.isLit[lit] {
					r.isLit[lit] = true
					r.literals = append(r.literals, lit)
				}
			}
		}
		if project.Include.Set() {
			for _, p := range project.Include.Patterns {
				r.rules = append(r.rules, r.ruleFor(project.Include.Base, p))
			}
		}
	default:
		r.rules = append(r.rules, includeRule{base: r.dir, pattern: DefaultPattern})
	}

	// Config excludes only narrow the project's own file set, never
	// explicitly named paths.
	if !r.explicit && project != nil && project.Exclude.Set() {
		r.project = ignore.New(logger)
		r.project.Add(project.Path, project.Exclude.Patterns...)
		r.excludeBase = project.Exclude.Base
	}

	logger.Debug("Prepared file set",
		zap.String("dir", r.dir),
		zap.Bool("explicit", r.explicit),
		zap.Int("rules", len(r.rules)),
		zap.Int("literals", len(r.literals)))
	return r, nil
}

// ruleFor converts a user pattern into a rule. A pattern naming an existing
// directory selects everything below it.
func (r *Resolver) ruleFor(base, pattern string) includeRule {
	p := filepath.ToSlash(pattern)
	if filepath.IsAbs(pattern) {
		base = ""
	}
	if !hasMeta(p) {
		if info, err := os.Stat(joinAbs(base, pattern)); err == nil && info.IsDir() {
			p = strings.TrimSuffix(p, "/") + "/**/*"
		}
	}
	p = strings.TrimPrefix(p, "./")
	return includeRule{base: base, pattern: p}
}

// Resolve expands the rules. Zero matches is not an error.
func (r *Resolver) Resolve() ([]string, error) {
	var files []string
	seen := map[string]bool{}
	add := func(abs string) {
		if seen[abs] || !r.accept(abs) {
			return
		}
		seen[abs] = true
		files = append(files, r.Display(abs))
	}

	for _, lit := range r.literals {
		if info, err := os.Stat(lit); err == nil && !info.IsDir() {
			add(lit)
		} else {
			r.logger.Warn("Project file not found", zap.String("path", lit))
		}
	}

	for _, rule := range r.rules {
		matches, err := r.expand(rule)
		if err != nil {
			r.logger.Error("Failed to expand pattern", zap.String("pattern", rule.pattern), zap.Error(err))
			return nil, fmt.Errorf("failed to expand pattern %q: %w", rule.pattern, err)
		}
		for _, m := range matches {
			add(m)
		}
	}

	r.logger.Debug("Resolved input files", zap.Int("count", len(files)))
	return files, nil
}

// expand walks the rule's static prefix, skipping excluded directories, and
// returns absolute matching file paths in lexical order.
func (r *Resolver) expand(rule includeRule) ([]string, error) {
	pattern := rule.pattern
	if rule.base != "" {
		pattern = filepath.ToSlash(filepath.Join(rule.base, filepath.FromSlash(pattern)))
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}

	root, rest := doublestar.SplitPattern(pattern)
	if !hasMeta(rest) {
		// A literal path.
		abs := filepath.FromSlash(pattern)
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			return []string{abs}, nil
		}
		return nil, nil
	}

	rootDir := filepath.FromSlash(root)
	if _, err := os.Stat(rootDir); err != nil {
		return nil, nil
	}

	var out []string
	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.logger.Warn("Error accessing path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if d.IsDir() {
			if path != rootDir && r.excludedDir(path) {
				r.logger.Debug("Skipping excluded directory", zap.String("directory", path))
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			return nil
		}
		if ok, _ := doublestar.Match(rest, filepath.ToSlash(rel)); ok {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// Dir returns the absolute directory paths are resolved against.
func (r *Resolver) Dir() string {
	return r.dir
}

// Matches reports whether path would be part of the resolved set.
func (r *Resolver) Matches(path string) bool {
	abs := joinAbs(r.dir, path)
	if !r.accept(abs) {
		return false
	}
	if r.isLit[abs] {
		return true
	}
	slashed := filepath.ToSlash(abs)
	for _, rule := range r.rules {
		pattern := rule.pattern
		if rule.base != "" {
			pattern = filepath.ToSlash(filepath.Join(rule.base, filepath.FromSlash(pattern)))
		}
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return true
		}
	}
	return false
}

// accept applies the source-extension filter and both exclusion layers.
func (r *Resolver) accept(abs string) bool {
	if !IsSourceFile(abs) {
		return false
	}
	if r.defaults.Match(relTo(r.dir, abs)) {
		r.logger.Debug("Excluded by default patterns", zap.String("path", abs))
		return false
	}
	if r.project != nil && r.project.Match(relTo(r.excludeBase, abs)) {
		r.logger.Debug("Excluded by project config", zap.String("path", abs))
		return false
	}
	return true
}

func (r *Resolver) excludedDir(abs string) bool {
	if r.defaults.Match(relTo(r.dir, abs)) {
		return true
	}
	return r.project != nil && r.project.Match(relTo(r.excludeBase, abs))
}

// Display converts an absolute path into the form Resolve reports.
func (r *Resolver) Display(abs string) string {
	if !r.relative {
		return abs
	}
	rel, err := filepath.Rel(r.dir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return rel
}

func relTo(base, abs string) string {
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func joinAbs(base, p string) string {
	if filepath.IsAbs(p) || base == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
