package emit

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tsblank/pkg/frontend"
	"tsblank/pkg/tsconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fixture struct {
	dir    string
	out    bytes.Buffer
	logs   *observer.ObservedLogs
	logger *zap.Logger
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	fx := &fixture{dir: t.TempDir()}
	for name, content := range files {
		path := filepath.Join(fx.dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	core, logs := observer.New(zapcore.DebugLevel)
	fx.logs = logs
	fx.logger = zap.New(core)
	return fx
}

func (fx *fixture) path(name string) string {
	return filepath.Join(fx.dir, name)
}

func (fx *fixture) run(t *testing.T, cfg Config, names ...string) (Summary, error) {
	t.Helper()
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = fx.path(n)
	}
	program, err := frontend.NewProgram(context.Background(), paths, frontend.Options{Jobs: 2, RootDir: fx.dir}, fx.logger)
	require.NoError(t, err)
	t.Cleanup(program.Close)
	if cfg.Extension == "" {
		cfg.Extension = "js"
	}
	return NewCoordinator(program, cfg, &fx.out, fx.logger).Run(context.Background())
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRunWritesErasedOutput(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"a.ts":  "export const x: number = 1;\n",
		"b.tsx": "export const el = <div>{1 as number}</div>;\n",
		"c.mts": "export type T = string;\nexport const c = 1;\n",
	})
	summary, err := fx.run(t, Config{Verify: true, Jobs: 2}, "a.ts", "b.tsx", "c.mts")
	require.NoError(t, err)
	assert.Equal(t, Summary{Written: 3}, summary)

	assert.Equal(t, "export const x         = 1;\n", readFile(t, fx.path("a.js")))
	assert.Equal(t, "export const el = <div>{1          }</div>;\n", readFile(t, fx.path("b.jsx")))
	assert.Equal(t, strings.Repeat(" ", len("export type T = string;"))+"\nexport const c = 1;\n", readFile(t, fx.path("c.mjs")))

	lines := strings.Split(strings.TrimSpace(fx.out.String()), "\n")
	assert.ElementsMatch(t, []string{
		fx.path("a.ts") + " -> " + fx.path("a.js"),
		fx.path("b.tsx") + " -> " + fx.path("b.jsx"),
		fx.path("c.mts") + " -> " + fx.path("c.mjs"),
	}, lines)
}

func TestRunCustomExtension(t *testing.T) {
	fx := newFixture(t, map[string]string{"a.ts": "let a = 1;\n"})
	_, err := fx.run(t, Config{Extension: "mjs"}, "a.ts")
	require.NoError(t, err)
	assert.FileExists(t, fx.path("a.mjs"))
	assert.NoFileExists(t, fx.path("a.js"))
}

func TestRunSkipsUnsupportedFiles(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"ok.ts":   "export const ok: boolean = true;\n",
		"enum.ts": "const a = 1;\nenum Color { Red }\n",
	})
	summary, err := fx.run(t, Config{}, "ok.ts", "enum.ts")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, Summary{Written: 1, Failed: 1}, summary)

	assert.FileExists(t, fx.path("ok.js"))
	assert.NoFileExists(t, fx.path("enum.js"))

	entries := fx.logs.FilterMessage("Unsupported syntax").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, fx.path("enum.ts"), fields["file"])
	assert.Equal(t, int64(2), fields["line"])
	assert.Equal(t, int64(1), fields["column"])
	assert.Equal(t, "enum Color { Red }", fields["text"])
}

func TestRunNoEmit(t *testing.T) {
	fx := newFixture(t, map[string]string{"a.ts": "let a = 1;\n"})
	summary, err := fx.run(t, Config{CompilerOptions: tsconfig.CompilerOptions{NoEmit: true, Declaration: true}}, "a.ts")
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.NoFileExists(t, fx.path("a.js"))
	assert.NoFileExists(t, fx.path("a.d.ts"))
	assert.Empty(t, fx.out.String())
}

func TestRunDeclarationOnly(t *testing.T) {
	fx := newFixture(t, map[string]string{"a.ts": "export const a: number = 1;\n"})
	co := tsconfig.CompilerOptions{Declaration: true, EmitDeclarationOnly: true}
	summary, err := fx.run(t, Config{CompilerOptions: co}, "a.ts")
	require.NoError(t, err)
	assert.Equal(t, Summary{Written: 1}, summary)
	assert.NoFileExists(t, fx.path("a.js"))
	assert.Equal(t, "export declare const a: number;\n", readFile(t, fx.path("a.d.ts")))
	assert.Equal(t, fx.path("a.ts")+" -> "+fx.path("a.d.ts")+"\n", fx.out.String())
}

func TestRunDeclarationsAlongsideOutput(t *testing.T) {
	fx := newFixture(t, map[string]string{"a.ts": "export function f(): void {}\n"})
	summary, err := fx.run(t, Config{CompilerOptions: tsconfig.CompilerOptions{Declaration: true}}, "a.ts")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Written)
	assert.FileExists(t, fx.path("a.js"))
	assert.FileExists(t, fx.path("a.d.ts"))
}

func TestRunOutputConflict(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"a.ts":  "let a = 1;\n",
		"a.mts": "let a = 2;\n",
		"b.ts":  "let b = 1;\n",
	})
	summary, err := fx.run(t, Config{Extension: "mjs"}, "a.ts", "a.mts", "b.ts")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutputConflict)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, Summary{Written: 1, Failed: 2}, summary)

	assert.NoFileExists(t, fx.path("a.mjs"))
	assert.FileExists(t, fx.path("b.mjs"))
	assert.Equal(t, 2, fx.logs.FilterMessage("Output path conflict, skipping file").Len())
}

func TestRunRefusesToOverwriteSources(t *testing.T) {
	fx := newFixture(t, map[string]string{"a.ts": "let a: number = 1;\n"})
	summary, err := fx.run(t, Config{Extension: "ts"}, "a.ts")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutputConflict)
	assert.Equal(t, Summary{Failed: 1}, summary)
	assert.Equal(t, "let a: number = 1;\n", readFile(t, fx.path("a.ts")))

	fx = newFixture(t, map[string]string{
		"a.ts":  "let a: number = 1;\n",
		"a.tsx": "let b: number = 2;\n",
	})
	summary, err = fx.run(t, Config{Extension: "tsx"}, "a.ts", "a.tsx")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutputConflict)
	assert.Equal(t, Summary{Written: 1, Failed: 1}, summary)
	assert.Equal(t, "let b: number = 2;\n", readFile(t, fx.path("a.tsx")))
	assert.FileExists(t, fx.path("a.jsx"))

	entries := fx.logs.FilterMessage("Output path conflict, skipping file").All()
	require.Len(t, entries, 1)
	assert.Equal(t, fx.path("a.ts"), entries[0].ContextMap()["file"])
}

func TestRunRefusesToOverwriteDeclarations(t *testing.T) {
	fx := newFixture(t, map[string]string{"a.ts": "export const a: number = 1;\n"})
	co := tsconfig.CompilerOptions{Declaration: true}
	summary, err := fx.run(t, Config{CompilerOptions: co, Extension: "d.ts"}, "a.ts")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutputConflict)
	assert.Equal(t, Summary{Written: 1, Failed: 1}, summary)
	assert.Equal(t, "export declare const a: number;\n", readFile(t, fx.path("a.d.ts")))
}

func TestConflict(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"a.ts":  "let a = 1;\n",
		"a.mts": "let a = 2;\n",
		"b.ts":  "let b = 1;\n",
	})
	program, err := frontend.NewProgram(context.Background(),
		[]string{fx.path("a.ts"), fx.path("a.mts"), fx.path("b.ts")},
		frontend.Options{RootDir: fx.dir}, fx.logger)
	require.NoError(t, err)
	t.Cleanup(program.Close)
	c := NewCoordinator(program, Config{Extension: "mjs"}, nil, fx.logger)

	a, ok := program.SourceFile(fx.path("a.ts"))
	require.True(t, ok)
	assert.ErrorIs(t, c.Conflict(a), ErrOutputConflict)

	b, ok := program.SourceFile(fx.path("b.ts"))
	require.True(t, ok)
	assert.NoError(t, c.Conflict(b))
}

func TestRunQuiet(t *testing.T) {
	fx := newFixture(t, map[string]string{"a.ts": "let a = 1;\n"})
	_, err := fx.run(t, Config{Quiet: true}, "a.ts")
	require.NoError(t, err)
	assert.FileExists(t, fx.path("a.js"))
	assert.Empty(t, fx.out.String())
}

func TestEmitFileWriteFailure(t *testing.T) {
	fx := newFixture(t, map[string]string{"a.ts": "let a = 1;\n"})
	require.NoError(t, os.Mkdir(fx.path("a.js"), 0o755))

	_, err := fx.run(t, Config{}, "a.ts")
	require.Error(t, err)
	var fileErr *FileError
	require.ErrorAs(t, err, &fileErr)
	assert.Equal(t, fx.path("a.ts"), fileErr.Path)
}
