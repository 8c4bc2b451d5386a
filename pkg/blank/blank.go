// Package blank erases TypeScript type syntax by overwriting it with
// whitespace. Line breaks are kept and each erased character becomes one
// space, so every runtime token stays at its original line and column.
package blank

import (
	"sort"
	"strings"
	"unicode/utf8"

	"tsblank/pkg/frontend"
	"tsblank/pkg/syntax"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Unsupported describes a construct that has runtime semantics and cannot
// be erased, or a syntax error.
type Unsupported struct {
	Kind     string
	Start    uint
	End      uint
	Position frontend.Position
	Text     string
}

// Result is the erased text together with everything that was reported.
type Result struct {
	Text        string
	Unsupported []Unsupported
}

// OK reports whether the file was erased without problems.
func (r Result) OK() bool {
	return len(r.Unsupported) == 0
}

// Blank erases f. onUnsupported, if non-nil, is called for every construct
// that could not be erased; such constructs are left untouched in the output.
func Blank(f *frontend.SourceFile, onUnsupported func(Unsupported)) string {
	b := &blanker{
		file:      f,
		src:       f.Text,
		overrides: map[uint]byte{},
		onUnsupported: func(n *sitter.Node) {
			if onUnsupported == nil {
				return
			}
			onUnsupported(Unsupported{
				Kind:     kindOf(n),
				Start:    n.StartByte(),
				End:      n.EndByte(),
				Position: f.Position(n.StartByte()),
				Text:     f.NodeText(n),
			})
		},
	}
	b.visit(f.Root())
	return b.render()
}

// File erases f and collects the reports.
func File(f *frontend.SourceFile) Result {
	var res Result
	res.Text = Blank(f, func(u Unsupported) {
		res.Unsupported = append(res.Unsupported, u)
	})
	return res
}

func kindOf(n *sitter.Node) string {
	switch {
	case n.IsMissing():
		return "missing " + n.Kind()
	case n.IsError():
		return "syntax error"
	}
	return n.Kind()
}

type span struct {
	start uint
	end   uint
}

type blanker struct {
	file          *frontend.SourceFile
	src           []byte
	spans         []span
	overrides     map[uint]byte
	onUnsupported func(*sitter.Node)
}

func (b *blanker) blank(n *sitter.Node) {
	b.blankRange(n.StartByte(), n.EndByte())
}

func (b *blanker) blankRange(start, end uint) {
	if end > start {
		b.spans = append(b.spans, span{start: start, end: end})
	}
}

// blankStatement erases a whole statement. If the following code could
// otherwise continue the previous expression, the first erased character
// becomes a semicolon.
func (b *blanker) blankStatement(n *sitter.Node) {
	b.blank(n)
	if b.continuesExpression(n.EndByte()) {
		b.overrides[n.StartByte()] = ';'
	}
}

// blankMember erases a class member and a trailing comma separator.
func (b *blanker) blankMember(n *sitter.Node) {
	b.blankStatement(n)
	if comma := syntax.NextToken(n, ","); comma != nil {
		b.blank(comma)
	}
}

func (b *blanker) visit(n *sitter.Node) {
	if n == nil {
		return
	}
	if n.IsError() || n.IsMissing() {
		b.onUnsupported(n)
		return
	}

	switch n.Kind() {
	case "interface_declaration", "type_alias_declaration", "ambient_declaration", "function_signature":
		b.blankStatement(n)
		return
	case "method_signature", "abstract_method_signature", "index_signature":
		b.blankMember(n)
		return
	case "type_annotation", "type_arguments", "type_parameters", "asserts_annotation",
		"type_predicate_annotation", "implements_clause", "accessibility_modifier", "override_modifier":
		b.blank(n)
		return
	case "enum_declaration", "import_alias", "import_require_clause", "type_assertion":
		b.onUnsupported(n)
		return
	case "internal_module", "module":
		b.namespace(n)
		return
	case "import_statement":
		if b.importStatement(n) {
			return
		}
	case "export_statement":
		if b.exportStatement(n) {
			return
		}
	case "import_specifier", "export_specifier":
		if syntax.HasToken(n, "type") {
			b.blank(n)
			if comma := syntax.NextToken(n, ","); comma != nil {
				b.blank(comma)
			}
			return
		}
	case "as_expression", "satisfies_expression":
		if expr := n.NamedChild(0); expr != nil {
			b.visit(expr)
			b.blankRange(expr.EndByte(), n.EndByte())
			return
		}
	case "non_null_expression":
		if expr := n.NamedChild(0); expr != nil {
			b.visit(expr)
			b.blankRange(expr.EndByte(), n.EndByte())
			return
		}
	case "public_field_definition":
		if syntax.HasToken(n, "declare") || syntax.HasToken(n, "abstract") {
			b.blankMember(n)
			return
		}
	case "required_parameter", "optional_parameter":
		if b.parameter(n) {
			return
		}
	case "arrow_function":
		b.arrowReturnType(n)
	}

	for _, c := range syntax.Children(n) {
		if c.IsMissing() {
			b.onUnsupported(c)
			continue
		}
		if c.IsNamed() {
			b.visit(c)
			continue
		}
		if typeOnlyToken(n.Kind(), c.Kind()) {
			b.blank(c)
		}
	}
}

// typeOnlyToken lists anonymous tokens that only carry type information in
// the given parent.
func typeOnlyToken(parent, tok string) bool {
	switch parent {
	case "abstract_class_declaration":
		return tok == "abstract"
	case "method_definition", "optional_parameter":
		return tok == "?"
	case "public_field_definition":
		return tok == "?" || tok == "!" || tok == "readonly"
	case "variable_declarator":
		return tok == "!"
	}
	return false
}

func (b *blanker) namespace(n *sitter.Node) {
	if !syntax.IsTypeOnlyNamespace(n) {
		b.onUnsupported(n)
		return
	}
	stmt := n
	if p := n.Parent(); p != nil && p.Kind() == "expression_statement" {
		stmt = p
	}
	b.blankStatement(stmt)
}

func (b *blanker) importStatement(n *sitter.Node) bool {
	if syntax.HasToken(n, "type") {
		b.blankStatement(n)
		return true
	}
	if syntax.ChildOfKind(n, "import_require_clause") != nil {
		b.onUnsupported(n)
		return true
	}
	return false
}

func (b *blanker) exportStatement(n *sitter.Node) bool {
	decl := n.ChildByFieldName("declaration")
	switch {
	case decl == nil && syntax.HasToken(n, "type"):
		// export type { A } / export type * from "x"
		b.blankStatement(n)
		return true
	case syntax.HasToken(n, "="):
		// export = value
		b.onUnsupported(n)
		return true
	case decl == nil && syntax.HasToken(n, "namespace") && syntax.HasToken(n, "as") && syntax.ChildOfKind(n, "export_clause") == nil:
		// export as namespace Lib
		b.blankStatement(n)
		return true
	case decl != nil && syntax.IsTypeOnlyDeclaration(decl):
		b.blankStatement(n)
		return true
	}
	return false
}

// parameter handles `this` parameters, which disappear entirely, and
// parameter properties, which generate runtime code.
func (b *blanker) parameter(n *sitter.Node) bool {
	if pattern := n.ChildByFieldName("pattern"); pattern != nil && pattern.Kind() == "this" {
		b.blank(n)
		if comma := syntax.NextToken(n, ","); comma != nil {
			b.blank(comma)
		}
		return true
	}
	if syntax.IsParameterProperty(n) {
		b.onUnsupported(n)
		return true
	}
	return false
}

// arrowReturnType keeps `)` and `=>` on one line when an arrow function's
// return type spans lines: the closing parenthesis moves to the last
// character of the erased return type.
func (b *blanker) arrowReturnType(n *sitter.Node) {
	params := n.ChildByFieldName("parameters")
	ret := n.ChildByFieldName("return_type")
	if params == nil || ret == nil || params.EndByte() == 0 {
		return
	}
	if !strings.ContainsAny(string(b.src[params.EndByte():ret.EndByte()]), "\r\n") {
		return
	}
	closing := params.EndByte() - 1
	if b.src[closing] != ')' {
		return
	}
	b.blankRange(closing, params.EndByte())

	last := ret.EndByte() - 1
	for last > ret.StartByte() && !utf8.RuneStart(b.src[last]) {
		last--
	}
	b.overrides[last] = ')'
}

// continuesExpression reports whether the first significant character at or
// after offset could be parsed as a continuation of a preceding expression.
func (b *blanker) continuesExpression(offset uint) bool {
	src := b.src
	i := int(offset)
	for i < len(src) {
		switch c := src[i]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(string(src[i+2:]), "*/")
			if end < 0 {
				return false
			}
			i += end + 4
		default:
			return strings.IndexByte("([`+-/", c) >= 0
		}
	}
	return false
}

// render applies the collected spans to the source.
func (b *blanker) render() string {
	if len(b.spans) == 0 {
		return string(b.src)
	}
	sort.Slice(b.spans, func(i, j int) bool { return b.spans[i].start < b.spans[j].start })
	merged := b.spans[:1]
	for _, s := range b.spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	var out strings.Builder
	out.Grow(len(b.src))
	pos := uint(0)
	for _, s := range merged {
		out.Write(b.src[pos:s.start])
		for i := s.start; i < s.end; {
			r, size := utf8.DecodeRune(b.src[i:])
			switch {
			case b.overrides[i] != 0:
				out.WriteByte(b.overrides[i])
			case r == '\n' || r == '\r' || r == '\u2028' || r == '\u2029':
				out.WriteRune(r)
			default:
				out.WriteByte(' ')
			}
			i += uint(size)
		}
		pos = s.end
	}
	out.Write(b.src[pos:])
	return out.String()
}
