package cleaner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	testCases := []struct {
		name     string
		in       string
		expected string
	}{
		{name: "wrapping quotes", in: `"Welcome to the course"`, expected: "Welcome to the course"},
		{name: "entities", in: "Tom &amp; Jerry&nbsp;&lt;3", expected: "Tom & Jerry <3"},
		{name: "escaped tags", in: `<p>Hello<\/p> <b>world</b>`, expected: "Hello world"},
		{name: "literal crlf", in: `line one\r\nline two`, expected: "line one line two"},
		{name: "double escaped crlf", in: `line one\\r\\nline two`, expected: "line one line two"},
		{name: "unicode escape", in: `caf\u00e9 time`, expected: "café time"},
		{name: "non ascii kept", in: "naïve   résumé", expected: "naïve résumé"},
		{name: "whitespace runs", in: "  a \t\n b  c  ", expected: "a b c"},
		{name: "empty", in: "", expected: ""},
		{name: "malformed escape", in: `bad \u12 escape`, expected: `bad \u12 escape`},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, CleanText(test.in))
		})
	}
}

func TestCleanTextProperties(t *testing.T) {
	inputs := []string{
		"<p>one\r\n\r\ntwo</p>",
		`"\"quoted\" \\n text\n\n"`,
		"a\\r\\n\\r\\n   b\\n\\nc",
		"   \r\n   ",
		`\\\\r trailing`,
	}
	for _, in := range inputs {
		out := CleanText(in)
		require.NotContains(t, out, "\r")
		require.NotContains(t, out, "\n")
		require.NotContains(t, out, `\r`)
		require.NotContains(t, out, `\n`)
		require.NotContains(t, out, "  ")
	}
}

func TestCleanURL(t *testing.T) {
	testCases := []struct {
		in       string
		expected string
	}{
		{in: `"https:\/\/moodle.example\/pluginfile.php\/5\/a.pdf"`, expected: "https://moodle.example/pluginfile.php/5/a.pdf"},
		{in: `\"https://moodle.example/x\"`, expected: "https://moodle.example/x"},
		{in: `'https://moodle.example/y'`, expected: "https://moodle.example/y"},
		{in: `https:\\/\\/double`, expected: `https://double`},
		{in: "https://moodle.example/plain", expected: "https://moodle.example/plain"},
	}

	for _, test := range testCases {
		out := CleanURL(test.in)
		require.Equal(t, test.expected, out)
		require.False(t, strings.HasPrefix(out, `"`) || strings.HasPrefix(out, `'`))
		require.False(t, strings.HasSuffix(out, `"`) || strings.HasSuffix(out, `'`))
		require.NotContains(t, out, `\/`)
	}
}

func TestSingleValueIdempotence(t *testing.T) {
	inputs := []string{
		`a\/b`,
		`a\\/b`,
		"ÂÂ  x",
		"price:Â 5Â Â ",
		"plain",
	}
	for _, in := range inputs {
		once := UnescapeSlashes(in)
		require.Equal(t, once, UnescapeSlashes(once))
		require.NotContains(t, once, `\/`)

		once = StripEncodingArtifacts(in)
		require.Equal(t, once, StripEncodingArtifacts(once))
		require.NotContains(t, once, "Â ")

		once = CleanURL(in)
		require.Equal(t, once, CleanURL(once))
	}
}
