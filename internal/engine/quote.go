package engine

import (
	"bytes"
	"fmt"
	"strconv"
)

// isSpecial reports whether b is escaped by quoteLiteral: every ASCII byte
// other than a letter, digit or underscore. This is a wider set than Go
// stdlib's regexp.QuoteMeta escapes; bytes >= 0x80 are left as they are.
func isSpecial(b byte) bool {
	switch {
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9', b == '_':
		return false
	case b < 0x80:
		return true
	default:
		return false
	}
}

// quoteLiteral escapes src so that compiling it as a pattern matches src's
// bytes literally. Grounded in the well-known stdlib regexp.QuoteMeta
// algorithm; coregex exposes no equivalent export, so this is hand-written
// escaping glue, not an engine reimplementation.
func quoteLiteral(src []byte) []byte {
	numSpecial := 0
	for _, b := range src {
		if isSpecial(b) {
			numSpecial++
		}
	}
	if numSpecial == 0 {
		out := make([]byte, len(src))
		copy(out, src)
		return out
	}
	out := make([]byte, 0, len(src)+numSpecial)
	for _, b := range src {
		if isSpecial(b) {
			out = append(out, '\\')
		}
		out = append(out, b)
	}
	return out
}

// injectFlags prepends an inline flag group derived from opts to source,
// since coregex's meta.Config carries no case/dotall/multiline switches —
// those are RE2 pattern-syntax concerns (`(?i)`, `(?s)`, `(?m)`), not
// engine-config concerns, in this backing library.
func injectFlags(source []byte, opts *Options) []byte {
	flags := make([]byte, 0, 4)
	if !opts.CaseSensitive {
		flags = append(flags, 'i')
	}
	if opts.DotMatchesNewline && !opts.NeverNewline {
		// NeverNewline already rewrote every unescaped "." to "[^\n]"
		// before this runs, so "s" would have nothing left to affect.
		flags = append(flags, 's')
	}
	if !opts.OneLine {
		flags = append(flags, 'm')
	}
	if len(flags) == 0 {
		return source
	}
	out := make([]byte, 0, len(source)+len(flags)+3)
	out = append(out, '(', '?')
	out = append(out, flags...)
	out = append(out, ')')
	out = append(out, source...)
	return out
}

// neverCaptureRewrite strips capturing parens down to non-capturing ones
// when opts.NeverCapture is set, matching the spec's "compile with all
// capture groups suppressed" option. It is a conservative single pass: it
// only rewrites "(" that is not already "(?" and not escaped, which covers
// the common case without needing a full parser.
func neverCaptureRewrite(source []byte) []byte {
	out := make([]byte, 0, len(source))
	for i := 0; i < len(source); i++ {
		b := source[i]
		if b == '\\' && i+1 < len(source) {
			out = append(out, b, source[i+1])
			i++
			continue
		}
		if b == '(' && (i+1 >= len(source) || source[i+1] != '?') {
			out = append(out, '(', '?', ':')
			continue
		}
		out = append(out, b)
	}
	return out
}

// neverNewlineRewrite implements the never_newline option (spec's "."  and
// negated classes never match a newline byte") the way neverCaptureRewrite
// implements never_capture: a single conservative textual pass rather than a
// full parser, since coregex's meta.Config has no such switch to delegate to.
// Every unescaped "." outside a character class becomes the literal class
// "[^\n]", and every negated class gets "\n" appended to its excluded set
// just before its closing "]", so "\n" is excluded even if the class didn't
// already say so. This deliberately overrides DotMatchesNewline's "s" flag:
// see injectFlags.
func neverNewlineRewrite(source []byte) []byte {
	var out bytes.Buffer
	inClass := false
	classNegated := false
	for i := 0; i < len(source); i++ {
		b := source[i]
		if b == '\\' && i+1 < len(source) {
			out.WriteByte(b)
			out.WriteByte(source[i+1])
			i++
			continue
		}
		if !inClass {
			if b == '[' {
				inClass = true
				classNegated = false
				out.WriteByte(b)
				if i+1 < len(source) && source[i+1] == '^' {
					classNegated = true
					out.WriteByte('^')
					i++
				}
				continue
			}
			if b == '.' {
				out.WriteString(`[^\n]`)
				continue
			}
			out.WriteByte(b)
			continue
		}
		if b == ']' {
			inClass = false
			if classNegated {
				out.WriteString(`\n`)
			}
			out.WriteByte(b)
			continue
		}
		out.WriteByte(b)
	}
	return out.Bytes()
}

// anchorWrap produces the `\A(?:source)\z` form used to precompile a
// strictly-anchored artifact, since coregex has no explicit full-match
// anchoring mode separate from its partial-match Find/Match methods.
func anchorWrap(source []byte) []byte {
	out := make([]byte, 0, len(source)+8)
	out = append(out, '\\', 'A', '(', '?', ':')
	out = append(out, source...)
	out = append(out, ')', '\\', 'z')
	return out
}

// translateRewriteTemplate converts the spec's RE2-native `\0`/`\N`
// backreference syntax into coregex's `${0}`/`${N}` ReplaceAll template
// syntax (confirmed by replace_test.go: "$1 at $2 dot $3", "$$" escapes a
// literal dollar). `\\` becomes a literal backslash, and a bare `$` is
// doubled to `$$` so it survives translation as a literal; any other escape
// (including `\$`) is rejected with a RewriteError.
func translateRewriteTemplate(rewrite []byte) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(rewrite); i++ {
		b := rewrite[i]
		if b == '$' {
			out.WriteString("$$")
			continue
		}
		if b != '\\' {
			out.WriteByte(b)
			continue
		}
		i++
		if i >= len(rewrite) {
			return nil, &RewriteError{Message: "trailing backslash"}
		}
		switch {
		case rewrite[i] == '\\':
			out.WriteByte('\\')
		case rewrite[i] >= '0' && rewrite[i] <= '9':
			j := i
			for j < len(rewrite) && rewrite[j] >= '0' && rewrite[j] <= '9' {
				j++
			}
			out.WriteByte('$')
			out.WriteByte('{')
			out.Write(rewrite[i:j])
			out.WriteByte('}')
			i = j - 1
		default:
			return nil, &RewriteError{Message: fmt.Sprintf("unsupported escape \\%c", rewrite[i])}
		}
	}
	return out.Bytes(), nil
}

// maxGroupRef scans a translated (already `\N`->`${N}`) rewrite template for
// the highest `${N}` group reference, used by ValidateRewrite to bounds-
// check against the artifact's actual group count without executing a
// match.
func maxGroupRef(translated []byte) (int, error) {
	max := -1
	for i := 0; i < len(translated); i++ {
		if translated[i] != '$' || i+1 >= len(translated) || translated[i+1] != '{' {
			continue
		}
		j := i + 2
		for j < len(translated) && translated[j] >= '0' && translated[j] <= '9' {
			j++
		}
		if j == i+2 || j >= len(translated) || translated[j] != '}' {
			continue
		}
		n, err := strconv.Atoi(string(translated[i+2 : j]))
		if err != nil {
			return 0, &RewriteError{Message: "malformed group reference"}
		}
		if n > max {
			max = n
		}
		i = j
	}
	return max, nil
}
