package docrepos

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultIncludePatterns selects the documentation file types indexed when
// a repository does not configure its own include set. A leading "**/"
// requires at least one directory level, so root-level files need the
// bare form alongside it.
var DefaultIncludePatterns = []string{
	"*.md", "**/*.md",
	"*.mdx", "**/*.mdx",
	"*.txt", "**/*.txt",
}

// DefaultExcludePatterns removes dependency directories, build outputs and
// generated files that match the include extensions but should not be
// searched.
var DefaultExcludePatterns = []string{
	// Dependencies
	"node_modules/**", "**/node_modules/**",
	"vendor/**", "**/vendor/**",
	"venv/**", "**/venv/**",
	".venv/**", "**/.venv/**",

	// Build outputs
	"build/**", "**/build/**",
	"dist/**", "**/dist/**",
	"target/**", "**/target/**",
	"out/**", "**/out/**",

	// VCS and tool caches
	".git/**", "**/.git/**",
	"__pycache__/**", "**/__pycache__/**",

	// Generated documentation artifacts
	"CHANGELOG.md", "**/CHANGELOG.md",
	"*.min.md", "**/*.min.md",
}

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenAnyRun            // "**": any run of characters, including "/"
	tokenSegmentRun        // "*": any run of characters excluding "/"
	tokenAnyChar           // "?": exactly one character
)

type patternToken struct {
	kind tokenKind
	text string
}

// Matcher is one compiled path pattern. Matching is a full-string anchor
// match against a repository-relative, slash-separated path.
type Matcher struct {
	pattern string
	re      *regexp.Regexp
}

// Pattern returns the source pattern the matcher was compiled from.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// Match reports whether the given path matches the pattern.
func (m *Matcher) Match(path string) bool {
	return m.re.MatchString(normalizePath(path))
}

// Compile translates a glob-like pattern into a Matcher.
//
// Translation rules, applied per token so no expansion can be re-expanded:
// literal runs (including "." and "\"-escaped metacharacters) are quoted,
// "**" becomes any run of characters across path separators, a remaining
// "*" becomes any run excluding the separator, and "?" becomes exactly one
// character. Returns ErrBadPattern for a trailing escape or a run of three
// or more stars.
func Compile(pattern string) (*Matcher, error) {
	tokens, err := tokenize(pattern)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("^")
	for _, tok := range tokens {
		switch tok.kind {
		case tokenLiteral:
			sb.WriteString(regexp.QuoteMeta(tok.text))
		case tokenAnyRun:
			sb.WriteString(".*")
		case tokenSegmentRun:
			sb.WriteString("[^/]*")
		case tokenAnyChar:
			sb.WriteString(".")
		}
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadPattern, pattern, err)
	}

	return &Matcher{pattern: pattern, re: re}, nil
}

// tokenize splits a pattern into literal runs and wildcard tokens.
func tokenize(pattern string) ([]patternToken, error) {
	var tokens []patternToken
	var literal strings.Builder

	flushLiteral := func() {
		if literal.Len() > 0 {
			tokens = append(tokens, patternToken{kind: tokenLiteral, text: literal.String()})
			literal.Reset()
		}
	}

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '\\':
			if i+1 >= len(runes) {
				return nil, fmt.Errorf("%w: %q: trailing escape", ErrBadPattern, pattern)
			}
			i++
			literal.WriteRune(runes[i])
		case '*':
			stars := 1
			for i+1 < len(runes) && runes[i+1] == '*' {
				stars++
				i++
			}
			if stars > 2 {
				return nil, fmt.Errorf("%w: %q: more than two consecutive stars", ErrBadPattern, pattern)
			}
			flushLiteral()
			if stars == 2 {
				tokens = append(tokens, patternToken{kind: tokenAnyRun})
			} else {
				tokens = append(tokens, patternToken{kind: tokenSegmentRun})
			}
		case '?':
			flushLiteral()
			tokens = append(tokens, patternToken{kind: tokenAnyChar})
		default:
			literal.WriteRune(runes[i])
		}
	}
	flushLiteral()

	return tokens, nil
}

// RuleSet holds the compiled include and exclude matchers for one
// repository. Malformed patterns fail closed: an include that does not
// compile matches nothing, an exclude that does not compile matches
// everything. An empty include set matches nothing.
type RuleSet struct {
	includes   []*Matcher
	excludes   []*Matcher
	excludeAll bool
}

// NewRuleSet compiles the given pattern lists, logging and dropping
// malformed ones according to the fail-closed policy.
func NewRuleSet(includes, excludes []string) *RuleSet {
	rs := &RuleSet{}

	for _, p := range includes {
		m, err := Compile(p)
		if err != nil {
			slog.Warn("Dropping malformed include pattern", "pattern", p, "error", err)
			continue
		}
		rs.includes = append(rs.includes, m)
	}

	for _, p := range excludes {
		m, err := Compile(p)
		if err != nil {
			slog.Warn("Malformed exclude pattern excludes everything", "pattern", p, "error", err)
			rs.excludeAll = true
			continue
		}
		rs.excludes = append(rs.excludes, m)
	}

	return rs
}

// Eligible reports whether the path is selected by the rule set: it must
// match at least one include pattern and no exclude pattern.
func (rs *RuleSet) Eligible(path string) bool {
	if rs.excludeAll {
		return false
	}

	path = normalizePath(path)

	included := false
	for _, m := range rs.includes {
		if m.re.MatchString(path) {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, m := range rs.excludes {
		if m.re.MatchString(path) {
			return false
		}
	}
	return true
}

// normalizePath converts a path to the slash-separated, unanchored form
// patterns are matched against.
func normalizePath(path string) string {
	return strings.TrimPrefix(filepath.ToSlash(path), "/")
}

// IsBinary checks if the content appears to be binary by looking for null
// bytes in the first 512 bytes. This is the same heuristic git uses.
func IsBinary(content []byte) bool {
	checkLen := min(len(content), 512)

	for i := range checkLen {
		if content[i] == 0 {
			return true
		}
	}
	return false
}

// FileExtension returns the file extension without the leading dot.
// Returns empty string if the path has no extension.
func FileExtension(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimPrefix(ext, ".")
}
