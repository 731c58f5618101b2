package expr

import (
	"regexp"
	"strings"
)

// The template syntax exposes JS-flavored variables ($json, $node["Name"])
// that are not legal CEL identifiers. Before compilation every expression is
// rewritten onto the declared CEL variables; unknown $-references then fail
// at compile time and surface as expression errors.

var (
	nodeBracketPattern = regexp.MustCompile(`\$node\[\s*"((?:[^"\\]|\\.)*)"\s*\]|\$node\[\s*'((?:[^'\\]|\\.)*)'\s*\]`)
	nonAlphanumeric    = regexp.MustCompile(`[^a-zA-Z0-9]`)
	mathCallPattern    = regexp.MustCompile(`\bMath\.([a-zA-Z]+)`)

	varPatterns = []struct {
		pattern     *regexp.Regexp
		replacement string
	}{
		{regexp.MustCompile(`\$json\b`), "json"},
		{regexp.MustCompile(`\$input\b`), "input"},
		{regexp.MustCompile(`\$node\b`), "node"},
		{regexp.MustCompile(`\$env\b`), "env"},
		{regexp.MustCompile(`\$execution\b`), "execution"},
		{regexp.MustCompile(`\$itemIndex\b`), "itemIndex"},
	}
)

// SanitizeName maps an arbitrary node name onto the flat variable key used
// in expressions: every non-alphanumeric rune becomes an underscore.
func SanitizeName(name string) string {
	return nonAlphanumeric.ReplaceAllString(name, "_")
}

// rewrite translates one template expression body into CEL source
func rewrite(src string) string {
	// $node["X Y"] / $node['X Y'] first, so the quoted name is sanitized
	// before the bare $node fallback runs
	out := nodeBracketPattern.ReplaceAllStringFunc(src, func(match string) string {
		groups := nodeBracketPattern.FindStringSubmatch(match)
		name := groups[1]
		if name == "" {
			name = groups[2]
		}
		return `node["` + SanitizeName(name) + `"]`
	})

	for _, vp := range varPatterns {
		out = vp.pattern.ReplaceAllString(out, vp.replacement)
	}

	// Math.floor(x) → math_floor(x)
	out = mathCallPattern.ReplaceAllString(out, "math_$1")

	return strings.TrimSpace(out)
}
