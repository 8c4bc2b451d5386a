// Package syntax holds small helpers over tree-sitter TypeScript nodes shared
// by the eraser and the declaration emitter.
package syntax

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Children returns every direct child of n, named or not.
func Children(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := n.ChildCount()
	out := make([]*sitter.Node, 0, count)
	for i := uint(0); i < count; i++ {
		if c := n.Child(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// NamedChildren returns the named direct children of n.
func NamedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := n.NamedChildCount()
	out := make([]*sitter.Node, 0, count)
	for i := uint(0); i < count; i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Token returns the first anonymous direct child of n whose kind is tok.
func Token(n *sitter.Node, tok string) *sitter.Node {
	for _, c := range Children(n) {
		if !c.IsNamed() && c.Kind() == tok {
			return c
		}
	}
	return nil
}

// HasToken reports whether n has an anonymous direct child tok.
func HasToken(n *sitter.Node, tok string) bool {
	return Token(n, tok) != nil
}

// ChildOfKind returns the first direct child of n with the given kind.
func ChildOfKind(n *sitter.Node, kind string) *sitter.Node {
	for _, c := range Children(n) {
		if c.Kind() == kind {
			return c
		}
	}
	return nil
}

// NextToken returns the sibling directly after n if it is the anonymous token tok.
func NextToken(n *sitter.Node, tok string) *sitter.Node {
	next := n.NextSibling()
	if next != nil && !next.IsNamed() && next.Kind() == tok {
		return next
	}
	return nil
}

// Unwrap returns the namespace inside an expression statement, which is how
// the grammar sometimes represents `namespace X {}` at statement level.
func Unwrap(n *sitter.Node) *sitter.Node {
	if n != nil && n.Kind() == "expression_statement" && n.NamedChildCount() == 1 {
		if inner := n.NamedChild(0); inner != nil && IsNamespace(inner) {
			return inner
		}
	}
	return n
}

// IsNamespace reports whether n is a namespace or legacy module block.
func IsNamespace(n *sitter.Node) bool {
	switch n.Kind() {
	case "internal_module", "module":
		return true
	}
	return false
}

// IsFunction reports whether n is a function-like node carrying a call signature.
func IsFunction(n *sitter.Node) bool {
	switch n.Kind() {
	case "function_declaration", "generator_function_declaration", "function_expression",
		"function", "generator_function", "arrow_function", "method_definition":
		return true
	}
	return false
}

// IsTypeOnlyDeclaration reports whether the statement n has no runtime meaning.
func IsTypeOnlyDeclaration(n *sitter.Node) bool {
	n = Unwrap(n)
	switch n.Kind() {
	case "interface_declaration", "type_alias_declaration", "ambient_declaration", "function_signature", "comment", "empty_statement":
		return true
	case "internal_module", "module":
		return IsTypeOnlyNamespace(n)
	case "export_statement":
		if HasToken(n, "type") {
			return true
		}
		if decl := n.ChildByFieldName("declaration"); decl != nil {
			return IsTypeOnlyDeclaration(decl)
		}
		return false
	case "import_statement":
		return HasToken(n, "type")
	}
	return false
}

// IsTypeOnlyNamespace reports whether every statement in the namespace body
// is type-only. A namespace without a body is type-only.
func IsTypeOnlyNamespace(n *sitter.Node) bool {
	body := n.ChildByFieldName("body")
	if body == nil {
		return true
	}
	for _, stmt := range NamedChildren(body) {
		if !IsTypeOnlyDeclaration(stmt) {
			return false
		}
	}
	return true
}

// IsParameterProperty reports whether a constructor parameter also declares
// a class field through an accessibility, override or readonly modifier.
func IsParameterProperty(param *sitter.Node) bool {
	if ChildOfKind(param, "accessibility_modifier") != nil || ChildOfKind(param, "override_modifier") != nil {
		return true
	}
	return HasToken(param, "readonly")
}
