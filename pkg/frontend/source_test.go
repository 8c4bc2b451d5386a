package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	f, err := Parse("a.ts", []byte("const a: number = 1;\n"))
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, f.TSX)
	assert.Equal(t, "program", f.Root().Kind())
	assert.False(t, f.Root().HasError())
}

func TestParseTSX(t *testing.T) {
	f, err := Parse("a.tsx", []byte("const el = <div className=\"x\">{1}</div>;\n"))
	require.NoError(t, err)
	defer f.Close()

	assert.True(t, f.TSX)
	assert.False(t, f.Root().HasError())
}

func TestPosition(t *testing.T) {
	f, err := Parse("a.ts", []byte("let a = 1;\r\nlet é = 2;\nlet c = 3;"))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, Position{Line: 1, Column: 1}, f.Position(0))
	assert.Equal(t, Position{Line: 2, Column: 1}, f.Position(12))
	// "é" is two bytes but one column.
	assert.Equal(t, Position{Line: 2, Column: 7}, f.Position(19))
	assert.Equal(t, Position{Line: 3, Column: 5}, f.Position(28))
	assert.Equal(t, "3:5", f.Position(28).String())
}

func TestCloseIsIdempotent(t *testing.T) {
	f, err := Parse("a.ts", []byte("1"))
	require.NoError(t, err)
	f.Close()
	f.Close()
	var nilFile *SourceFile
	nilFile.Close()
}
