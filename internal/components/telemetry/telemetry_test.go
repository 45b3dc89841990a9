package telemetry

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tel := NewScopedAPI("moodle_client", SlogAPI{Logger: logger})
	tel.ReportWarning("client.call", "core_course_get_courses")

	out := buf.String()
	require.Contains(t, out, "level=WARN")
	require.Contains(t, out, `id="moodle_client: client.call"`)
	require.Contains(t, out, "params.0=core_course_get_courses")
}

func TestRecorderFind(t *testing.T) {
	rec := &Recorder{}
	tel := NewScopedAPI("extract", rec)
	tel.ReportWarning("helper.unknown-item-id", 1)
	tel.ReportBroken("helper.unknown-item-id", 2)
	tel.ReportCount("rows", 3)

	found := rec.Find(LevelWarning, "helper.unknown-item-id")
	require.Len(t, found, 1)
	require.Equal(t, "extract: helper.unknown-item-id", found[0].ID)
	require.Equal(t, []any{1}, found[0].Params)
}

func TestRedactURL(t *testing.T) {
	testCases := []struct {
		in       string
		expected string
	}{
		{
			in:       "https://moodle.example/webservice/rest/server.php?wsfunction=core_course_get_courses&wstoken=abc",
			expected: "https://moodle.example/webservice/rest/server.php?wsfunction=core_course_get_courses&wstoken=REDACTED",
		},
		{
			in:       "/login/index.php",
			expected: "/login/index.php",
		},
		{
			in:       "https://moodle.example/pluginfile.php/1/a.png?token=xyz",
			expected: "https://moodle.example/pluginfile.php/1/a.png?token=REDACTED",
		},
	}

	for _, test := range testCases {
		require.Equal(t, test.expected, RedactURL(test.in))
	}
}
