// Package ignore matches slash-separated relative paths against
// gitignore-style exclusion patterns.
package ignore

import (
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// DefaultPatterns are always excluded from compilation input: declaration
// files and dependency directories.
var DefaultPatterns = []string{
	"node_modules/",
	"*.d.ts",
	"*.d.mts",
	"*.d.cts",
}

// Pattern is one compiled exclusion line.
type Pattern struct {
	re     *regexp.Regexp
	Negate bool   // Line started with '!'.
	Line   string // Original pattern line.
	Source string // Where the line came from, e.g. "default" or a tsconfig path.
}

// Matcher holds an ordered list of patterns. Later patterns win, so a
// negated line re-includes paths excluded before it.
type Matcher struct {
	patterns []*Pattern
	logger   *zap.Logger
}

// New returns an empty matcher.
func New(logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{logger: logger}
}

// NewDefault returns a matcher preloaded with DefaultPatterns.
func NewDefault(logger *zap.Logger) *Matcher {
	m := New(logger)
	m.Add("default", DefaultPatterns...)
	return m
}

// Add compiles lines and appends them. Empty lines and '#' comments are skipped;
// lines that fail to compile are logged and dropped.
func (m *Matcher) Add(source string, lines ...string) {
	for _, line := range lines {
		re, negate, ok := compileLine(line)
		if !ok {
			if strings.TrimSpace(line) != "" && !strings.HasPrefix(strings.TrimSpace(line), "#") {
				m.logger.Warn("Invalid exclude pattern", zap.String("source", source), zap.String("pattern", line))
			}
			continue
		}
		m.patterns = append(m.patterns, &Pattern{re: re, Negate: negate, Line: line, Source: source})
		m.logger.Debug("Compiled exclude pattern",
			zap.String("source", source),
			zap.String("pattern", line),
			zap.Bool("negate", negate))
	}
}

// Len reports the number of compiled patterns.
func (m *Matcher) Len() int {
	return len(m.patterns)
}

// Match reports whether path is excluded.
func (m *Matcher) Match(path string) bool {
	matched, _ := m.MatchWithPattern(path)
	return matched
}

// MatchWithPattern reports whether path is excluded and which pattern decided it.
func (m *Matcher) MatchWithPattern(path string) (bool, *Pattern) {
	normalized := strings.TrimPrefix(filepath.ToSlash(path), "./")

	matched := false
	var decided *Pattern
	for _, p := range m.patterns {
		if p.re.MatchString(normalized) {
			matched = !p.Negate
			decided = p
		}
	}
	return matched, decided
}

// compileLine turns a single pattern line into an anchored regular expression.
func compileLine(line string) (*regexp.Regexp, bool, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil, false, false
	}

	negate := false
	if strings.HasPrefix(trimmed, "!") {
		negate = true
		trimmed = strings.TrimPrefix(trimmed, "!")
	}
	if strings.HasPrefix(trimmed, `\#`) || strings.HasPrefix(trimmed, `\!`) {
		trimmed = trimmed[1:]
	}
	trimmed = strings.TrimPrefix(trimmed, "./")

	// A slash anywhere but the end anchors the pattern to the root.
	body := strings.TrimSuffix(trimmed, "/")
	anchored := strings.Contains(body, "/")
	body = strings.TrimPrefix(body, "/")
	if body == "" {
		return nil, false, false
	}

	expr := escapeSpecialChars(body)
	expr = doubleStarToRegex(expr)
	expr = wildcardToRegex(expr)
	expr = anchor(expr, anchored)

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, false, false
	}
	return re, negate, true
}

// escapeSpecialChars escapes regex metacharacters except '*', '?' and '/'.
func escapeSpecialChars(pattern string) string {
	specialChars := `\.+()|^$[]{}`
	var b strings.Builder
	for _, r := range pattern {
		if strings.ContainsRune(specialChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var (
	doubleStarMiddle   = regexp.MustCompile(`/\*\*/`)
	doubleStarTrailing = regexp.MustCompile(`/\*\*$`)
	doubleStarLeading  = regexp.MustCompile(`^\*\*/`)
	doubleStarAlone    = regexp.MustCompile(`^\*\*$`)
)

// doubleStarToRegex rewrites '**' segments into placeholders that survive
// the single-star conversion.
func doubleStarToRegex(pattern string) string {
	pattern = doubleStarMiddle.ReplaceAllString(pattern, "/\x00MID\x00/")
	pattern = doubleStarTrailing.ReplaceAllString(pattern, "/\x00ANY\x00")
	pattern = doubleStarLeading.ReplaceAllString(pattern, "\x00LEAD\x00/")
	pattern = doubleStarAlone.ReplaceAllString(pattern, "\x00ANY\x00")
	return pattern
}

// wildcardToRegex converts '*' and '?' and expands the '**' placeholders.
func wildcardToRegex(pattern string) string {
	pattern = strings.ReplaceAll(pattern, "*", `[^/]*`)
	pattern = strings.ReplaceAll(pattern, "?", `[^/]`)
	pattern = strings.ReplaceAll(pattern, "/\x00MID\x00/", `/(.*/)?`)
	pattern = strings.ReplaceAll(pattern, "/\x00ANY\x00", `(/.*)?`)
	pattern = strings.ReplaceAll(pattern, "\x00LEAD\x00/", `(.*/)?`)
	pattern = strings.ReplaceAll(pattern, "\x00ANY\x00", `.*`)
	return pattern
}

// anchor matches the pattern against a whole path or any path below it.
func anchor(pattern string, rooted bool) string {
	pattern += `(/.*)?$`
	if rooted {
		return "^" + pattern
	}
	return "^(|.*/)" + pattern
}
