package syntax_test

import (
	"testing"

	"tsblank/pkg/frontend"
	"tsblank/pkg/syntax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sitter "github.com/tree-sitter/go-tree-sitter"
)

func statements(t *testing.T, src string) []*sitter.Node {
	t.Helper()
	f, err := frontend.Parse("a.ts", []byte(src))
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return syntax.NamedChildren(f.Root())
}

func TestIsTypeOnlyDeclaration(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"interface A {}", true},
		{"type A = string;", true},
		{"declare const a: number;", true},
		{"function f(): void;", true},
		{"export type { A } from './a';", true},
		{"import type { A } from './a';", true},
		{"export interface A {}", true},
		{"namespace N { export type A = 1; }", true},
		{"namespace N { export const a = 1; }", false},
		{"const a = 1;", false},
		{"import { A } from './a';", false},
		{"enum E { A }", false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			stmts := statements(t, tt.src)
			require.Len(t, stmts, 1)
			assert.Equal(t, tt.want, syntax.IsTypeOnlyDeclaration(stmts[0]))
		})
	}
}

func TestTokens(t *testing.T) {
	stmts := statements(t, "import type { A } from './a';")
	require.Len(t, stmts, 1)
	assert.True(t, syntax.HasToken(stmts[0], "type"))
	assert.False(t, syntax.HasToken(stmts[0], "typeof"))
	assert.NotNil(t, syntax.ChildOfKind(stmts[0], "import_clause"))
	assert.Len(t, syntax.Children(nil), 0)
}

func TestIsParameterProperty(t *testing.T) {
	stmts := statements(t, "class A { constructor(private a: number, b: string, readonly c = 1) {} }")
	require.Len(t, stmts, 1)

	var params []*sitter.Node
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Kind() == "required_parameter" || n.Kind() == "optional_parameter" {
			params = append(params, n)
			return
		}
		for _, c := range syntax.NamedChildren(n) {
			walk(c)
		}
	}
	walk(stmts[0])
	require.Len(t, params, 3)
	assert.True(t, syntax.IsParameterProperty(params[0]))
	assert.False(t, syntax.IsParameterProperty(params[1]))
	assert.True(t, syntax.IsParameterProperty(params[2]))
}
