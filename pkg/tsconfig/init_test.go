package tsconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tailscale/hujson"
)

func readStandard(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	std, err := hujson.Standardize(data)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(std, &out))
	return out
}

func TestInitCreatesMissingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tsconfig.json")

	require.NoError(t, Init(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got), "fresh config must be plain JSON")
	assert.Equal(t, map[string]any{
		"compilerOptions": map[string]any{
			"target":                  "esnext",
			"useDefineForClassFields": true,
			"verbatimModuleSyntax":    true,
		},
	}, got)
}

func TestInitPreservesUnrelatedKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tsconfig.json", `{
	// keep this comment
	"compilerOptions": {
		"strict": true,
		"target": "es5",
	},
	"include": ["src/**/*"],
}`)

	require.NoError(t, Init(path, nil))

	got := readStandard(t, path)
	assert.Equal(t, []any{"src/**/*"}, got["include"])
	co := got["compilerOptions"].(map[string]any)
	assert.Equal(t, true, co["strict"])
	assert.Equal(t, "esnext", co["target"])
	assert.Equal(t, true, co["useDefineForClassFields"])
	assert.Equal(t, true, co["verbatimModuleSyntax"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "// keep this comment")
}

func TestInitReplacesNonObjectCompilerOptions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tsconfig.json", `{"compilerOptions": null, "files": ["a.ts"]}`)

	require.NoError(t, Init(path, nil))

	got := readStandard(t, path)
	assert.Equal(t, []any{"a.ts"}, got["files"])
	co := got["compilerOptions"].(map[string]any)
	assert.Len(t, co, len(InitOptions))
}

func TestInitRecoversFromUnparseableConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tsconfig.json", `{"compilerOptions": [`)

	require.NoError(t, Init(path, nil))

	got := readStandard(t, path)
	assert.Len(t, got, 1)
	assert.Len(t, got["compilerOptions"], len(InitOptions))
}
