package frontend

import (
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"tsblank/pkg/fileset"

	sitter "github.com/tree-sitter/go-tree-sitter"
	typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

var (
	tsLanguage  = sync.OnceValue(func() *sitter.Language { return sitter.NewLanguage(typescript.LanguageTypescript()) })
	tsxLanguage = sync.OnceValue(func() *sitter.Language { return sitter.NewLanguage(typescript.LanguageTSX()) })
)

// Position is a 1-based line and column. Columns count characters.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// SourceFile is one parsed input. It is read-only after Parse and safe for
// concurrent readers until Close.
type SourceFile struct {
	Path string
	Text []byte
	TSX  bool

	tree       *sitter.Tree
	lineStarts []int
}

// Parse builds the syntax tree for text. Each call uses its own parser since
// tree-sitter parsers are not safe for concurrent use.
func Parse(path string, text []byte) (*SourceFile, error) {
	tsx := fileset.IsTSX(path)
	lang := tsLanguage()
	if tsx {
		lang = tsxLanguage()
	}

	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("frontend: %w", err)
	}

	tree := parser.Parse(text, nil)
	if tree == nil {
		return nil, fmt.Errorf("frontend: failed to parse %s", path)
	}
	return &SourceFile{
		Path:       path,
		Text:       text,
		TSX:        tsx,
		tree:       tree,
		lineStarts: lineStarts(text),
	}, nil
}

// Root returns the program node.
func (f *SourceFile) Root() *sitter.Node {
	return f.tree.RootNode()
}

// Position converts a byte offset into a line and column.
func (f *SourceFile) Position(offset uint) Position {
	off := int(offset)
	if off > len(f.Text) {
		off = len(f.Text)
	}
	line := sort.Search(len(f.lineStarts), func(i int) bool { return f.lineStarts[i] > off }) - 1
	if line < 0 {
		line = 0
	}
	col := utf8.RuneCount(f.Text[f.lineStarts[line]:off])
	return Position{Line: line + 1, Column: col + 1}
}

// NodeText returns the source text covered by n.
func (f *SourceFile) NodeText(n *sitter.Node) string {
	return n.Utf8Text(f.Text)
}

// Close releases the tree.
func (f *SourceFile) Close() {
	if f == nil || f.tree == nil {
		return
	}
	f.tree.Close()
	f.tree = nil
}

func lineStarts(text []byte) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			starts = append(starts, i+1)
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				continue
			}
			starts = append(starts, i+1)
		}
	}
	return starts
}
