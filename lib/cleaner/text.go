package cleaner

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	escapedTagRegex     = regexp.MustCompile(`<\\?/?\w+>`)
	literalNewlineRegex = regexp.MustCompile(`\s*(?:\\r|\\n)+\s*`)
	whitespaceRegex     = regexp.MustCompile(`[\s\p{Z}\v]+`)
)

// decodeEscapes resolves backslash escapes the way a JSON or python string
// literal would. Unknown escapes and malformed \u or \x sequences are kept as is.
func decodeEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var out strings.Builder
	out.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out.WriteByte(c)
			continue
		}

		next := s[i+1]
		switch next {
		case 'n':
			out.WriteByte('\n')
			i++
		case 'r':
			out.WriteByte('\r')
			i++
		case 't':
			out.WriteByte('\t')
			i++
		case '\\', '"', '\'':
			out.WriteByte(next)
			i++
		case 'u', 'x':
			width := 4
			if next == 'x' {
				width = 2
			}
			if i+2+width > len(s) {
				out.WriteByte(c)
				continue
			}
			code, err := strconv.ParseUint(s[i+2:i+2+width], 16, 32)
			if err != nil || !utf8.ValidRune(rune(code)) {
				out.WriteByte(c)
				continue
			}
			out.WriteRune(rune(code))
			i += 1 + width
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

// CleanText turns text pulled out of html or a json encoded config value
// into a single line: escapes are decoded, wrapping quotes trimmed, entities
// unescaped, escaped tag remnants removed and whitespace collapsed.
func CleanText(text string) string {
	text = decodeEscapes(text)
	text = strings.Trim(text, `"'`)
	text = html.UnescapeString(text)
	text = escapedTagRegex.ReplaceAllString(text, "")
	text = literalNewlineRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// untilStable applies fn until it stops changing s. Each fn must only ever
// shrink its input.
func untilStable(s string, fn func(string) string) string {
	for {
		next := fn(s)
		if next == s {
			return s
		}
		s = next
	}
}

// CleanURL strips wrapping quotes and escaped quote remnants from a url and
// unescapes its slashes.
func CleanURL(url string) string {
	return untilStable(url, func(s string) string {
		s = strings.ReplaceAll(s, `\"`, "")
		s = strings.Trim(s, `"'`)
		return strings.ReplaceAll(s, `\/`, "/")
	})
}

// UnescapeSlashes replaces every `\/` with `/`.
func UnescapeSlashes(s string) string {
	return untilStable(s, func(s string) string {
		return strings.ReplaceAll(s, `\/`, "/")
	})
}

// StripEncodingArtifacts removes the "Â " left behind by non-breaking spaces
// that were decoded with the wrong charset.
func StripEncodingArtifacts(s string) string {
	return untilStable(s, func(s string) string {
		return strings.ReplaceAll(s, "Â ", "")
	})
}
