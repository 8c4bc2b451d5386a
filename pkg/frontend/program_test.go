package frontend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"tsblank/pkg/tsconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewProgramSkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.ts")
	writeFile(t, a, "export const a = 1;\n")
	missing := filepath.Join(dir, "missing.ts")

	core, logs := observer.New(zapcore.ErrorLevel)
	p, err := NewProgram(context.Background(), []string{a, missing}, Options{Jobs: 2}, zap.New(core))
	require.NoError(t, err)
	defer p.Close()

	require.Len(t, p.Files(), 1)
	assert.Equal(t, a, p.Files()[0].Path)
	_, ok := p.SourceFile(missing)
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("Failed to read source file").Len())
}

func TestNewProgramCancelled(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.ts")
	writeFile(t, a, "1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewProgram(ctx, []string{a}, Options{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmitDeclarations(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "src", "a.ts")
	b := filepath.Join(dir, "src", "b.mts")
	bad := filepath.Join(dir, "src", "bad.ts")
	writeFile(t, a, "export function f(x: number): number { return x }\n")
	writeFile(t, b, "export const b = 'b';\n")
	writeFile(t, bad, "export function g(x) { return x }\n")

	opts := Options{
		CompilerOptions: tsconfig.CompilerOptions{
			Declaration:    true,
			DeclarationDir: filepath.Join(dir, "types"),
		},
		RootDir: filepath.Join(dir, "src"),
	}
	p, err := NewProgram(context.Background(), []string{a, b, bad}, opts, nil)
	require.NoError(t, err)
	defer p.Close()

	var written []string
	err = p.EmitDeclarations(context.Background(), func(src, dst string) {
		written = append(written, dst)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeclaration)

	assert.Equal(t, []string{
		filepath.Join(dir, "types", "a.d.ts"),
		filepath.Join(dir, "types", "b.d.mts"),
	}, written)
	got, err := os.ReadFile(filepath.Join(dir, "types", "a.d.ts"))
	require.NoError(t, err)
	assert.Equal(t, "export declare function f(x: number): number;\n", string(got))
	assert.NoFileExists(t, filepath.Join(dir, "types", "bad.d.ts"))
}

func TestRebuild(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.ts")
	b := filepath.Join(dir, "b.ts")
	writeFile(t, a, "export const a = 1;\n")
	writeFile(t, b, "export const b = 1;\n")

	p, err := NewProgram(context.Background(), []string{a, b}, Options{}, nil)
	require.NoError(t, err)
	defer p.Close()

	// Unchanged content is not affected.
	affected := p.Rebuild([]string{a, b})
	assert.Equal(t, 0, affected.Len())

	writeFile(t, a, "export const a = 2;\n")
	c := filepath.Join(dir, "c.ts")
	writeFile(t, c, "export const c = 3;\n")
	require.NoError(t, os.Remove(b))

	affected = p.Rebuild([]string{a, b, c})
	var paths []string
	for f, ok := affected.Next(); ok; f, ok = affected.Next() {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{a, c}, paths)
	assert.Equal(t, []string{b}, affected.Removed())

	f, ok := p.SourceFile(a)
	require.True(t, ok)
	assert.Equal(t, "export const a = 2;\n", string(f.Text))
	_, ok = p.SourceFile(b)
	assert.False(t, ok)
	assert.Len(t, p.Files(), 2)
}
