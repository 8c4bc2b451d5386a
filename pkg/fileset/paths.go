package fileset

import (
	"path/filepath"
	"strings"
)

// sourceExtensions maps each compilable extension to the runtime extension
// it becomes. An empty value means "use the configured extension".
var sourceExtensions = map[string]string{
	".ts":  "",
	".tsx": ".jsx",
	".mts": ".mjs",
	".cts": ".cjs",
}

var declarationSuffixes = []string{".d.ts", ".d.mts", ".d.cts"}

// DefaultPattern selects every source file below the working directory.
const DefaultPattern = "**/*.{ts,tsx,mts,cts}"

// IsDeclarationFile reports whether path names a type declaration file.
func IsDeclarationFile(path string) bool {
	lower := strings.ToLower(path)
	for _, suffix := range declarationSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// IsSourceFile reports whether path is a TypeScript source tsblank compiles.
func IsSourceFile(path string) bool {
	_, ok := sourceExtensions[strings.ToLower(filepath.Ext(path))]
	return ok && !IsDeclarationFile(path)
}

// IsTSX reports whether path holds TSX (JSX-flavoured) source.
func IsTSX(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".tsx")
}

// OutputPath replaces the source extension of path. Plain .ts files take
// extension (given without its leading dot); .tsx, .mts and .cts keep their
// module flavour as .jsx, .mjs and .cjs.
func OutputPath(path, extension string) string {
	ext := filepath.Ext(path)
	out, ok := sourceExtensions[strings.ToLower(ext)]
	if !ok {
		return path
	}
	if out == "" {
		out = "." + strings.TrimPrefix(extension, ".")
	}
	return strings.TrimSuffix(path, ext) + out
}

// DeclarationPath returns where the declaration file for path goes. With an
// empty declarationDir it sits next to the source; otherwise path is placed
// under declarationDir relative to rootDir.
func DeclarationPath(path, declarationDir, rootDir string) string {
	ext := filepath.Ext(path)
	var out string
	switch strings.ToLower(ext) {
	case ".mts":
		out = ".d.mts"
	case ".cts":
		out = ".d.cts"
	default:
		out = ".d.ts"
	}
	target := strings.TrimSuffix(path, ext) + out
	if declarationDir == "" {
		return target
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		return target
	}
	rel, err := filepath.Rel(rootDir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(abs)
	}
	return filepath.Join(declarationDir, rel)
}
