// Package tsconfig loads tsconfig.json files: JSON with comments and trailing
// commas, optionally chained through "extends".
package tsconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tailscale/hujson"
	"go.uber.org/zap"
)

// CompilerOptions is the subset of compilerOptions tsblank acts on.
// Path-valued options are absolute.
type CompilerOptions struct {
	Target                  string
	Module                  string
	Declaration             bool
	DeclarationDir          string
	RootDir                 string
	NoEmit                  bool
	EmitDeclarationOnly     bool
	VerbatimModuleSyntax    bool
	UseDefineForClassFields *bool
}

// FileSpec is a files/include/exclude list together with the directory its
// entries are relative to (the directory of the config that declared it).
type FileSpec struct {
	Patterns []string
	Base     string
}

// Set reports whether the list was declared anywhere in the extends chain.
func (s *FileSpec) Set() bool {
	return s != nil
}

// Config is a resolved project configuration. It is not modified after Load.
type Config struct {
	Path            string // Absolute path of the loaded file.
	Dir             string // Directory containing Path.
	CompilerOptions CompilerOptions
	Files           *FileSpec
	Include         *FileSpec
	Exclude         *FileSpec
}

// HasFileSpec reports whether the project names its own input files.
func (c *Config) HasFileSpec() bool {
	return c.Files.Set() || c.Include.Set()
}

// Diagnostic is a recoverable problem found while loading.
type Diagnostic struct {
	File    string
	Option  string
	Message string
}

func (d Diagnostic) String() string {
	if d.Option != "" {
		return fmt.Sprintf("%s: compilerOptions.%s: %s", d.File, d.Option, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.File, d.Message)
}

// FatalError means no usable configuration could be produced.
type FatalError struct {
	Path string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("config file error: %s: %v", e.Path, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// ErrExtendsCycle is wrapped by FatalError when extends chains loop.
var ErrExtendsCycle = errors.New("extends cycle")

var knownTargets = map[string]bool{
	"es3": true, "es5": true, "es6": true, "es2015": true, "es2016": true, "es2017": true,
	"es2018": true, "es2019": true, "es2020": true, "es2021": true, "es2022": true,
	"es2023": true, "es2024": true, "esnext": true,
}

type rawFile struct {
	Extends         json.RawMessage            `json:"extends"`
	CompilerOptions map[string]json.RawMessage `json:"compilerOptions"`
	Files           *[]string                  `json:"files"`
	Include         *[]string                  `json:"include"`
	Exclude         *[]string                  `json:"exclude"`
}

// rawOption remembers which config directory declared an option so relative
// paths resolve against it.
type rawOption struct {
	value json.RawMessage
	file  string
	dir   string
}

type merged struct {
	options map[string]rawOption
	files   *FileSpec
	include *FileSpec
	exclude *FileSpec
}

type loader struct {
	logger      *zap.Logger
	diagnostics []Diagnostic
	stack       map[string]bool
}

// Load reads the config at path and everything it extends. Fatal problems are
// returned as *FatalError; recoverable ones come back as diagnostics and have
// already been logged as warnings.
func Load(path string, logger *zap.Logger) (*Config, []Diagnostic, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, &FatalError{Path: path, Err: err}
	}

	l := &loader{logger: logger, stack: map[string]bool{}}
	m, err := l.load(abs)
	if err != nil {
		var fatal *FatalError
		if errors.As(err, &fatal) {
			return nil, l.diagnostics, err
		}
		return nil, l.diagnostics, &FatalError{Path: abs, Err: err}
	}

	cfg := &Config{
		Path:    abs,
		Dir:     filepath.Dir(abs),
		Files:   m.files,
		Include: m.include,
		Exclude: m.exclude,
	}
	l.applyOptions(&cfg.CompilerOptions, m.options)

	for _, d := range l.diagnostics {
		logger.Warn("Config diagnostic", zap.String("file", d.File), zap.String("option", d.Option), zap.String("message", d.Message))
	}
	logger.Debug("Loaded config",
		zap.String("path", cfg.Path),
		zap.String("target", cfg.CompilerOptions.Target),
		zap.Bool("declaration", cfg.CompilerOptions.Declaration),
		zap.Bool("noEmit", cfg.CompilerOptions.NoEmit),
		zap.Bool("emitDeclarationOnly", cfg.CompilerOptions.EmitDeclarationOnly))
	return cfg, l.diagnostics, nil
}

func (l *loader) load(abs string) (*merged, error) {
	if l.stack[abs] {
		return nil, &FatalError{Path: abs, Err: ErrExtendsCycle}
	}
	l.stack[abs] = true
	defer delete(l.stack, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		l.logger.Error("Failed to read config file", zap.String("path", abs), zap.Error(err))
		return nil, &FatalError{Path: abs, Err: err}
	}
	raw, err := parse(data)
	if err != nil {
		l.logger.Error("Failed to parse config file", zap.String("path", abs), zap.Error(err))
		return nil, &FatalError{Path: abs, Err: err}
	}

	dir := filepath.Dir(abs)
	m := &merged{options: map[string]rawOption{}}

	parents, err := l.extendsTargets(abs, raw.Extends)
	if err != nil {
		return nil, err
	}
	for _, parent := range parents {
		base, err := l.load(parent)
		if err != nil {
			return nil, err
		}
		for k, v := range base.options {
			m.options[k] = v
		}
		if base.files != nil {
			m.files = base.files
		}
		if base.include != nil {
			m.include = base.include
		}
		if base.exclude != nil {
			m.exclude = base.exclude
		}
	}

	for k, v := range raw.CompilerOptions {
		m.options[k] = rawOption{value: v, file: abs, dir: dir}
	}
	if raw.Files != nil {
		m.files = &FileSpec{Patterns: *raw.Files, Base: dir}
	}
	if raw.Include != nil {
		m.include = &FileSpec{Patterns: *raw.Include, Base: dir}
	}
	if raw.Exclude != nil {
		m.exclude = &FileSpec{Patterns: *raw.Exclude, Base: dir}
	}
	return m, nil
}

func parse(data []byte) (*rawFile, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, err
	}
	var raw rawFile
	if err := json.Unmarshal(std, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// extendsTargets resolves the "extends" value, a string or an array of strings.
func (l *loader) extendsTargets(from string, value json.RawMessage) ([]string, error) {
	if len(value) == 0 || string(value) == "null" {
		return nil, nil
	}
	var specs []string
	var single string
	if err := json.Unmarshal(value, &single); err == nil {
		specs = []string{single}
	} else if err := json.Unmarshal(value, &specs); err != nil {
		return nil, &FatalError{Path: from, Err: fmt.Errorf("extends must be a string or an array of strings")}
	}

	targets := make([]string, 0, len(specs))
	for _, spec := range specs {
		target, err := resolveExtends(filepath.Dir(from), spec)
		if err != nil {
			return nil, &FatalError{Path: from, Err: err}
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// resolveExtends finds the file named by an extends entry. Relative and
// absolute paths resolve against dir; anything else is looked up in
// node_modules directories from dir upwards.
func resolveExtends(dir, spec string) (string, error) {
	if spec == "" {
		return "", fmt.Errorf("extends entry is empty")
	}
	if filepath.IsAbs(spec) || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || spec == "." || spec == ".." {
		p := spec
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, spec)
		}
		if found, ok := existingConfig(p); ok {
			return found, nil
		}
		return "", fmt.Errorf("extended config %q not found", spec)
	}

	for cur := dir; ; cur = filepath.Dir(cur) {
		p := filepath.Join(cur, "node_modules", filepath.FromSlash(spec))
		if found, ok := existingConfig(p); ok {
			return found, nil
		}
		if parent := filepath.Dir(cur); parent == cur {
			break
		}
	}
	return "", fmt.Errorf("extended config %q not found in node_modules", spec)
}

func existingConfig(p string) (string, bool) {
	candidates := []string{p}
	if !strings.HasSuffix(p, ".json") {
		candidates = append(candidates, p+".json")
	}
	candidates = append(candidates, filepath.Join(p, "tsconfig.json"))
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

func (l *loader) applyOptions(co *CompilerOptions, options map[string]rawOption) {
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		opt := options[key]
		switch key {
		case "target":
			if s, ok := l.stringOption(key, opt); ok {
				if !knownTargets[strings.ToLower(s)] {
					l.diag(opt.file, key, fmt.Sprintf("unknown target %q, keeping it as given", s))
				}
				co.Target = s
			}
		case "module":
			if s, ok := l.stringOption(key, opt); ok {
				co.Module = s
			}
		case "declaration":
			co.Declaration, _ = l.boolOption(key, opt)
		case "noEmit":
			co.NoEmit, _ = l.boolOption(key, opt)
		case "emitDeclarationOnly":
			co.EmitDeclarationOnly, _ = l.boolOption(key, opt)
		case "verbatimModuleSyntax":
			co.VerbatimModuleSyntax, _ = l.boolOption(key, opt)
		case "useDefineForClassFields":
			if b, ok := l.boolOption(key, opt); ok {
				co.UseDefineForClassFields = &b
			}
		case "declarationDir":
			if s, ok := l.stringOption(key, opt); ok {
				co.DeclarationDir = resolvePath(opt.dir, s)
			}
		case "rootDir":
			if s, ok := l.stringOption(key, opt); ok {
				co.RootDir = resolvePath(opt.dir, s)
			}
		}
	}
}

func (l *loader) stringOption(key string, opt rawOption) (string, bool) {
	var s string
	if err := json.Unmarshal(opt.value, &s); err != nil {
		l.diag(opt.file, key, "expected a string, option ignored")
		return "", false
	}
	return s, true
}

func (l *loader) boolOption(key string, opt rawOption) (bool, bool) {
	var b bool
	if err := json.Unmarshal(opt.value, &b); err != nil {
		l.diag(opt.file, key, "expected a boolean, option ignored")
		return false, false
	}
	return b, true
}

func (l *loader) diag(file, option, message string) {
	l.diagnostics = append(l.diagnostics, Diagnostic{File: file, Option: option, Message: message})
}

func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}
