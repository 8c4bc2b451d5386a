package ignore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPatternsExcludeDeclarationsAndDependencies(t *testing.T) {
	m := NewDefault(nil)

	cases := map[string]bool{
		"a.ts":                         false,
		"src/a.ts":                     false,
		"b.d.ts":                       true,
		"src/types/b.d.mts":            true,
		"lib/c.d.cts":                  true,
		"node_modules/pkg/index.ts":    true,
		"packages/x/node_modules/y.ts": true,
		"node_modules_backup/z.ts":     false,
		"./node_modules/pkg/a.ts":      true,
	}
	for path, want := range cases {
		assert.Equal(t, want, m.Match(path), path)
	}
}

func TestNegationAndAnchoring(t *testing.T) {
	m := New(nil)
	m.Add("test", "# comment", "", "dist/**", "!dist/keep.ts", "/root-only.ts", "**/gen/*.ts", "file?.ts")

	assert.Equal(t, 5, m.Len())
	assert.True(t, m.Match("dist/out.ts"))
	assert.False(t, m.Match("dist/keep.ts"))
	assert.False(t, m.Match("src/dist/out.ts"))
	assert.True(t, m.Match("root-only.ts"))
	assert.False(t, m.Match("src/root-only.ts"))
	assert.True(t, m.Match("a/b/gen/x.ts"))
	assert.True(t, m.Match("gen/x.ts"))
	assert.True(t, m.Match("file1.ts"))
	assert.False(t, m.Match("file12.ts"))

	matched, p := m.MatchWithPattern("dist/keep.ts")
	assert.False(t, matched)
	if assert.NotNil(t, p) {
		assert.True(t, p.Negate)
		assert.Equal(t, "test", p.Source)
	}
}

func TestSpecialCharactersAreLiteral(t *testing.T) {
	m := New(nil)
	m.Add("test", "a+b(1).ts")

	assert.True(t, m.Match("a+b(1).ts"))
	assert.False(t, m.Match("aab1.ts"))
}
