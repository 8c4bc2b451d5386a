// Package dts produces declaration files from TypeScript sources that carry
// enough annotations to be described without type inference. Exported
// functions need return types, exported variables need a type or a literal
// initialiser, and so on. Anything that would need the checker is reported
// as a Diagnostic and the file gets no declaration output.
package dts

import (
	"fmt"
	"strings"

	"tsblank/pkg/syntax"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Diagnostic is a declaration emit problem at a byte offset.
type Diagnostic struct {
	Offset  uint
	Message string
}

func (d Diagnostic) Error() string {
	return d.Message
}

const indent = "    "

// Emit returns the declaration text for the program rooted at root.
func Emit(root *sitter.Node, src []byte) (string, []Diagnostic) {
	e := &emitter{
		src:        src,
		exported:   map[string]bool{},
		signatures: map[string]bool{},
	}
	e.program(root)
	return e.out.String(), e.diags
}

type emitter struct {
	src   []byte
	out   strings.Builder
	diags []Diagnostic

	module     bool
	wroteLocal bool
	// exported holds local names re-exported through `export { x }`,
	// `export default x` or `export = x`.
	exported map[string]bool
	// signatures holds names of top-level functions that declare overloads.
	signatures map[string]bool
}

func (e *emitter) text(n *sitter.Node) string {
	return n.Utf8Text(e.src)
}

func (e *emitter) errorf(n *sitter.Node, format string, args ...any) {
	e.diags = append(e.diags, Diagnostic{Offset: n.StartByte(), Message: fmt.Sprintf(format, args...)})
}

func (e *emitter) line(depth int, format string, args ...any) {
	e.out.WriteString(strings.Repeat(indent, depth))
	fmt.Fprintf(&e.out, format, args...)
	e.out.WriteByte('\n')
}

func (e *emitter) program(root *sitter.Node) {
	if root.HasError() {
		e.errorf(root, "file has syntax errors")
		return
	}
	stmts := syntax.NamedChildren(root)
	e.scan(stmts)

	var doc *sitter.Node
	for _, stmt := range stmts {
		if stmt.Kind() == "comment" {
			doc = jsdoc(e.src, stmt)
			continue
		}
		mark := e.out.Len()
		e.statement(stmt)
		if doc != nil && e.out.Len() > mark {
			written := e.out.String()
			e.out.Reset()
			e.out.WriteString(written[:mark])
			e.out.WriteString(e.text(doc))
			e.out.WriteByte('\n')
			e.out.WriteString(written[mark:])
		}
		doc = nil
	}
	if e.module && e.wroteLocal {
		e.line(0, "export {};")
	}
}

// jsdoc returns c if it is a documentation comment.
func jsdoc(src []byte, c *sitter.Node) *sitter.Node {
	if strings.HasPrefix(c.Utf8Text(src), "/**") {
		return c
	}
	return nil
}

// scan classifies the file and collects names that are exported indirectly.
func (e *emitter) scan(stmts []*sitter.Node) {
	for _, stmt := range stmts {
		switch stmt.Kind() {
		case "import_statement":
			e.module = true
		case "export_statement":
			e.module = true
			if decl := stmt.ChildByFieldName("declaration"); decl != nil {
				if decl.Kind() == "function_signature" {
					e.signature(decl)
				}
				continue
			}
			if stmt.ChildByFieldName("source") != nil {
				continue
			}
			if value := stmt.ChildByFieldName("value"); value != nil && value.Kind() == "identifier" {
				e.exported[e.text(value)] = true
			}
			if clause := syntax.ChildOfKind(stmt, "export_clause"); clause != nil {
				for _, spec := range syntax.NamedChildren(clause) {
					if name := spec.ChildByFieldName("name"); name != nil {
						e.exported[e.text(name)] = true
					}
				}
			}
			if syntax.HasToken(stmt, "=") {
				// export = x
				for _, c := range syntax.NamedChildren(stmt) {
					if c.Kind() == "identifier" {
						e.exported[e.text(c)] = true
					}
				}
			}
		case "function_signature":
			e.signature(stmt)
		}
	}
}

func (e *emitter) signature(n *sitter.Node) {
	if name := n.ChildByFieldName("name"); name != nil {
		e.signatures[e.text(name)] = true
	}
}

func (e *emitter) statement(stmt *sitter.Node) {
	switch stmt.Kind() {
	case "import_statement":
		e.line(0, "%s", e.text(stmt))
	case "export_statement":
		e.exportStatement(stmt)
	default:
		if !e.module {
			e.declaration(stmt, "", true, true)
			return
		}
		if e.declaration(stmt, "", true, false) {
			e.wroteLocal = true
		}
	}
}

func (e *emitter) exportStatement(stmt *sitter.Node) {
	decl := stmt.ChildByFieldName("declaration")
	isDefault := syntax.HasToken(stmt, "default")
	switch {
	case decl != nil && isDefault:
		e.declaration(decl, "export default ", false, true)
	case decl != nil:
		e.declaration(decl, "export ", true, true)
	case isDefault:
		value := stmt.ChildByFieldName("value")
		if value == nil {
			e.errorf(stmt, "default exports must be an identifier or have an explicit type")
			return
		}
		switch value.Kind() {
		case "identifier":
			e.line(0, "export default %s;", e.text(value))
		case "function_expression", "function", "generator_function":
			e.function(value, "export default ")
		case "class":
			e.class(value, "export default ")
		case "arrow_function":
			typ, ok := e.functionType(value, "default")
			if !ok {
				return
			}
			e.line(0, "declare const _default: %s;", typ)
			e.line(0, "export default _default;")
		default:
			e.errorf(stmt, "default exports must be an identifier or have an explicit type")
		}
	default:
		e.line(0, "%s", withSemicolon(e.text(stmt)))
	}
}

// declaration writes the declaration form of stmt and reports whether
// anything was written. Values are only written when public is set or their
// name is exported elsewhere in the file.
func (e *emitter) declaration(stmt *sitter.Node, prefix string, declare, public bool) bool {
	stmt = syntax.Unwrap(stmt)
	ambient := ""
	if declare {
		ambient = "declare "
	}
	visible := func(name *sitter.Node) bool {
		return public || (name != nil && e.exported[e.text(name)])
	}

	switch stmt.Kind() {
	case "interface_declaration", "type_alias_declaration":
		e.line(0, "%s%s", prefix, e.text(stmt))
	case "ambient_declaration":
		e.line(0, "%s%s", prefix, e.text(stmt))
	case "enum_declaration":
		e.line(0, "%s%s%s", prefix, ambient, e.text(stmt))
	case "internal_module", "module":
		if !syntax.IsTypeOnlyNamespace(stmt) {
			if visible(stmt.ChildByFieldName("name")) {
				e.errorf(stmt, "namespaces containing values cannot be described without type information")
			}
			return false
		}
		e.line(0, "%s%s%s", prefix, ambient, e.text(stmt))
	case "function_signature":
		if !visible(stmt.ChildByFieldName("name")) {
			return false
		}
		e.line(0, "%s%s%s", prefix, ambient, withSemicolon(e.text(stmt)))
	case "function_declaration", "generator_function_declaration":
		name := stmt.ChildByFieldName("name")
		if !visible(name) || (name != nil && e.signatures[e.text(name)]) {
			return false
		}
		e.function(stmt, prefix+ambient)
	case "lexical_declaration", "variable_declaration":
		return e.variables(stmt, prefix+ambient, visible)
	case "class_declaration", "abstract_class_declaration":
		if !visible(stmt.ChildByFieldName("name")) {
			return false
		}
		e.class(stmt, prefix+ambient)
	default:
		return false
	}
	return true
}

func (e *emitter) function(n *sitter.Node, prefix string) {
	name := ""
	if id := n.ChildByFieldName("name"); id != nil {
		name = " " + e.text(id)
	}
	head, ret, ok := e.callSignature(n, "function"+name)
	if !ok {
		return
	}
	if name == "" {
		name = " "
	}
	e.line(0, "%sfunction%s%s: %s;", prefix, name, head, ret)
}

// callSignature renders the `<T>(params)` head and the return type of a
// function-like node.
func (e *emitter) callSignature(n *sitter.Node, what string) (head, ret string, ok bool) {
	var b strings.Builder
	if tp := n.ChildByFieldName("type_parameters"); tp != nil {
		b.WriteString(e.text(tp))
	}
	params := n.ChildByFieldName("parameters")
	if params == nil {
		e.errorf(n, "parameter of %s must have an explicit type annotation", what)
		return "", "", false
	}
	list, ok := e.parameters(params)
	if !ok {
		return "", "", false
	}
	b.WriteString(list)

	annotated := n.ChildByFieldName("return_type")
	if annotated == nil {
		e.errorf(n, "%s must have an explicit return type annotation", what)
		return "", "", false
	}
	return b.String(), annotation(e.text(annotated)), true
}

func (e *emitter) parameters(params *sitter.Node) (string, bool) {
	var parts []string
	ok := true
	for _, p := range syntax.NamedChildren(params) {
		if p.Kind() == "comment" {
			continue
		}
		s, good := e.parameter(p, len(parts))
		ok = ok && good
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, ", ") + ")", ok
}

func (e *emitter) parameter(p *sitter.Node, index int) (string, bool) {
	pattern := p.ChildByFieldName("pattern")
	if pattern == nil {
		e.errorf(p, "unsupported parameter")
		return "", false
	}
	name := e.text(pattern)
	switch pattern.Kind() {
	case "object_pattern", "array_pattern":
		if strings.Contains(name, "=") {
			name = fmt.Sprintf("param%d", index)
		}
	}

	value := p.ChildByFieldName("value")
	optional := p.Kind() == "optional_parameter" || value != nil
	if pattern.Kind() == "rest_pattern" {
		optional = false
	}

	typ := ""
	if ann := p.ChildByFieldName("type"); ann != nil {
		typ = annotation(e.text(ann))
	} else if value != nil {
		typ = widened(value)
	}
	if typ == "" {
		e.errorf(p, "parameter %s must have an explicit type annotation", name)
		return "", false
	}
	if optional {
		name += "?"
	}
	return name + ": " + typ, true
}

func (e *emitter) variables(stmt *sitter.Node, prefix string, visible func(*sitter.Node) bool) bool {
	kind := "var"
	for _, k := range []string{"const", "let"} {
		if syntax.HasToken(stmt, k) {
			kind = k
		}
	}

	wrote := false
	for _, d := range syntax.NamedChildren(stmt) {
		if d.Kind() != "variable_declarator" {
			continue
		}
		name := d.ChildByFieldName("name")
		if name == nil || !visible(name) {
			continue
		}
		if name.Kind() != "identifier" {
			e.errorf(d, "binding patterns cannot be described without type information")
			continue
		}
		if decl, ok := e.variable(d, kind, e.text(name)); ok {
			e.line(0, "%s%s %s;", prefix, kind, decl)
			wrote = true
		}
	}
	return wrote
}

func (e *emitter) variable(d *sitter.Node, kind, name string) (string, bool) {
	if ann := d.ChildByFieldName("type"); ann != nil {
		return name + ": " + annotation(e.text(ann)), true
	}
	value := d.ChildByFieldName("value")
	if value == nil {
		e.errorf(d, "variable %s must have an explicit type annotation", name)
		return "", false
	}
	if kind == "const" {
		if lit, ok := literal(e.src, value); ok {
			return name + " = " + lit, true
		}
	}
	if typ := widened(value); typ != "" {
		return name + ": " + typ, true
	}
	switch value.Kind() {
	case "arrow_function", "function_expression", "function":
		sig, ok := e.functionType(value, name)
		if !ok {
			return "", false
		}
		return name + ": " + sig, true
	case "as_expression", "satisfies_expression":
		if value.NamedChildCount() == 2 && value.Kind() == "as_expression" {
			if typ := value.NamedChild(1); typ != nil {
				return name + ": " + e.text(typ), true
			}
		}
	}
	e.errorf(d, "variable %s must have an explicit type annotation", name)
	return "", false
}

// functionType renders a function expression as `<T>(params) => R`.
func (e *emitter) functionType(fn *sitter.Node, name string) (string, bool) {
	head, ret, ok := e.callSignature(fn, "function "+name)
	if !ok {
		return "", false
	}
	return head + " => " + ret, true
}

type member struct {
	node      *sitter.Node
	name      *sitter.Node
	modifiers []string
	private   bool
	static    bool
	optional  bool
	readonly  bool
	accessor  string // "get" or "set"
}

func (e *emitter) class(n *sitter.Node, prefix string) {
	var head strings.Builder
	head.WriteString(prefix)
	if n.Kind() == "abstract_class_declaration" {
		head.WriteString("abstract ")
	}
	head.WriteString("class")
	if name := n.ChildByFieldName("name"); name != nil {
		head.WriteString(" ")
		head.WriteString(e.text(name))
	}
	if tp := n.ChildByFieldName("type_parameters"); tp != nil {
		head.WriteString(e.text(tp))
	}
	if heritage := syntax.ChildOfKind(n, "class_heritage"); heritage != nil {
		if ext := syntax.ChildOfKind(heritage, "extends_clause"); ext != nil {
			if value := ext.ChildByFieldName("value"); value != nil {
				switch value.Kind() {
				case "identifier", "member_expression":
				default:
					e.errorf(value, "extends clause must be an identifier or property access")
					return
				}
			}
		}
		head.WriteString(" ")
		head.WriteString(e.text(heritage))
	}
	e.line(0, "%s {", head.String())

	body := n.ChildByFieldName("body")
	members := syntax.NamedChildren(body)
	overloads := map[string]bool{}
	hasPrivate := false
	for _, m := range members {
		if m.Kind() == "method_signature" {
			if name := m.ChildByFieldName("name"); name != nil {
				overloads[e.text(name)] = true
			}
		}
		if name := m.ChildByFieldName("name"); name != nil && name.Kind() == "private_property_identifier" {
			hasPrivate = true
		}
	}
	if hasPrivate {
		e.line(1, "#private;")
	}

	var doc *sitter.Node
	for _, m := range members {
		if m.Kind() == "comment" {
			doc = jsdoc(e.src, m)
			continue
		}
		if doc != nil {
			e.line(1, "%s", e.text(doc))
			doc = nil
		}
		e.member(m, overloads)
	}
	e.line(0, "}")
}

func (e *emitter) readMember(m *sitter.Node) member {
	info := member{node: m, name: m.ChildByFieldName("name")}
	for _, c := range syntax.Children(m) {
		if info.name != nil && c.StartByte() >= info.name.StartByte() {
			if !c.IsNamed() && c.Kind() == "?" {
				info.optional = true
			}
			continue
		}
		switch c.Kind() {
		case "accessibility_modifier":
			if e.text(c) == "private" {
				info.private = true
			}
			info.modifiers = append(info.modifiers, e.text(c))
		case "static":
			info.static = true
			info.modifiers = append(info.modifiers, "static")
		case "readonly":
			info.readonly = true
			info.modifiers = append(info.modifiers, "readonly")
		case "abstract", "accessor":
			info.modifiers = append(info.modifiers, c.Kind())
		case "get", "set":
			info.accessor = c.Kind()
		}
	}
	return info
}

func (e *emitter) member(m *sitter.Node, overloads map[string]bool) {
	switch m.Kind() {
	case "method_signature", "abstract_method_signature", "index_signature":
		e.line(1, "%s", withSemicolon(e.text(m)))
		return
	case "method_definition", "public_field_definition":
	default:
		return
	}

	info := e.readMember(m)
	if info.name == nil {
		return
	}
	name := e.text(info.name)
	if info.name.Kind() == "private_property_identifier" {
		return
	}
	if info.private {
		mods := "private "
		if info.static {
			mods += "static "
		}
		if info.readonly {
			mods += "readonly "
		}
		if m.Kind() == "method_definition" && name == "constructor" {
			e.line(1, "private constructor();")
			return
		}
		e.line(1, "%s%s;", mods, name)
		return
	}
	if m.Kind() == "public_field_definition" {
		e.field(info, name)
		return
	}

	if name == "constructor" {
		e.constructor(m, joinModifiers(info.modifiers))
		return
	}
	if overloads[name] {
		return
	}
	mods := joinModifiers(info.modifiers)
	switch info.accessor {
	case "get":
		ret := m.ChildByFieldName("return_type")
		if ret == nil {
			e.errorf(m, "accessor %s must have an explicit return type annotation", name)
			return
		}
		e.line(1, "%sget %s(): %s;", mods, name, annotation(e.text(ret)))
		return
	case "set":
		params, ok := e.parameters(m.ChildByFieldName("parameters"))
		if !ok {
			return
		}
		e.line(1, "%sset %s%s;", mods, name, params)
		return
	}
	if info.optional {
		name += "?"
	}
	head, ret, ok := e.callSignature(m, "method "+e.text(info.name))
	if !ok {
		return
	}
	e.line(1, "%s%s%s: %s;", mods, name, head, ret)
}

func (e *emitter) field(info member, name string) {
	m := info.node
	mods := joinModifiers(info.modifiers)
	if info.optional {
		name += "?"
	}
	if ann := m.ChildByFieldName("type"); ann != nil {
		e.line(1, "%s%s: %s;", mods, name, annotation(e.text(ann)))
		return
	}
	value := m.ChildByFieldName("value")
	if value != nil && info.readonly {
		if lit, ok := literal(e.src, value); ok {
			e.line(1, "%s%s = %s;", mods, name, lit)
			return
		}
	}
	if value != nil {
		if typ := widened(value); typ != "" {
			e.line(1, "%s%s: %s;", mods, name, typ)
			return
		}
	}
	e.errorf(m, "property %s must have an explicit type annotation", name)
}

// constructor writes the constructor signature followed by the fields its
// parameter properties declare.
func (e *emitter) constructor(m *sitter.Node, mods string) {
	params := m.ChildByFieldName("parameters")
	list, ok := e.parameters(params)
	if !ok {
		return
	}
	e.line(1, "%sconstructor%s;", mods, list)
	for _, p := range syntax.NamedChildren(params) {
		if !syntax.IsParameterProperty(p) {
			continue
		}
		info := e.readMember(p)
		pattern := p.ChildByFieldName("pattern")
		if pattern == nil {
			continue
		}
		name := e.text(pattern)
		if info.private {
			mods := "private "
			if info.readonly {
				mods += "readonly "
			}
			e.line(1, "%s%s;", mods, name)
			continue
		}
		typ := ""
		if ann := p.ChildByFieldName("type"); ann != nil {
			typ = annotation(e.text(ann))
		} else if value := p.ChildByFieldName("value"); value != nil {
			typ = widened(value)
		}
		if p.Kind() == "optional_parameter" || p.ChildByFieldName("value") != nil {
			name += "?"
		}
		e.line(1, "%s%s: %s;", joinModifiers(info.modifiers), name, typ)
	}
}

func joinModifiers(mods []string) string {
	if len(mods) == 0 {
		return ""
	}
	return strings.Join(mods, " ") + " "
}

// annotation strips the leading colon of a type annotation.
func annotation(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), ":"))
}

func withSemicolon(s string) string {
	s = strings.TrimRight(s, " \t\r\n")
	if strings.HasSuffix(s, ";") || strings.HasSuffix(s, "}") {
		return s
	}
	return s + ";"
}

// literal returns the source of a primitive literal usable as a const
// initialiser in a declaration file.
func literal(src []byte, n *sitter.Node) (string, bool) {
	switch n.Kind() {
	case "number", "string", "true", "false":
		return n.Utf8Text(src), true
	case "unary_expression":
		arg := n.ChildByFieldName("argument")
		if op := n.ChildByFieldName("operator"); op != nil && op.Kind() == "-" && arg != nil && arg.Kind() == "number" {
			return n.Utf8Text(src), true
		}
	}
	return "", false
}

// widened returns the primitive type of a literal expression.
func widened(n *sitter.Node) string {
	switch n.Kind() {
	case "number":
		return "number"
	case "string":
		return "string"
	case "template_string":
		if syntax.ChildOfKind(n, "template_substitution") == nil {
			return "string"
		}
	case "true", "false":
		return "boolean"
	case "unary_expression":
		if arg := n.ChildByFieldName("argument"); arg != nil && arg.Kind() == "number" {
			return "number"
		}
	}
	return ""
}
