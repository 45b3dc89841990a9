package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"moodle-harvest/internal/components/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestClient(t testing.TB, handler http.Handler, opts ClientOptions) (*Client, *telemetry.Recorder) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts.BaseUrl = server.URL
	opts.RequestsPerSecond = 1000
	opts.RetryWait = time.Millisecond
	opts.RetryMaxWait = 2 * time.Millisecond

	rec := &telemetry.Recorder{}
	client, err := NewClient(opts, rec)
	require.NoError(t, err)
	return client, rec
}

// restHandler answers every web service call with the same body and counts hits.
func restHandler(t testing.TB, hits *int32, respond func(attempt int32, w http.ResponseWriter, r *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, restEndpoint, r.URL.Path)
		attempt := atomic.AddInt32(hits, 1)
		respond(attempt, w, r)
	})
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(ClientOptions{
		BaseUrl:           "https://moodle.example/",
		RequestsPerSecond: -2,
		MaxAttempts:       -1,
	}, &telemetry.Recorder{})
	require.NoError(t, err)
	require.Equal(t, 4.0, client.opts.RequestsPerSecond)
	require.Equal(t, 3, client.opts.MaxAttempts)
	require.Equal(t, "https://moodle.example", client.BaseUrl.String())
}

func TestFlattenParams(t *testing.T) {
	out := FlattenParams(map[string]any{
		"courseids": []int64{5, 6},
		"options": map[string]any{
			"ids":     []any{1, "two"},
			"visible": true,
		},
		"criteria": []any{
			map[string]any{"key": "idnumber", "value": "MATH-101"},
		},
		"page":  0,
		"ratio": 0.5,
	})

	expected := map[string]string{
		"courseids[0]":       "5",
		"courseids[1]":       "6",
		"options[ids][0]":    "1",
		"options[ids][1]":    "two",
		"options[visible]":   "1",
		"criteria[0][key]":   "idnumber",
		"criteria[0][value]": "MATH-101",
		"page":               "0",
		"ratio":              "0.5",
	}
	if diff := cmp.Diff(expected, out); diff != "" {
		t.Fatalf("unexpected params (-want +got):\n%s", diff)
	}
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		failure  Failure
		expected Class
	}{
		{
			name:     "record not found code",
			failure:  Failure{ErrorCode: "invalidrecord", Message: "Can't find data record in database table forum."},
			expected: ClassEmpty,
		},
		{
			name:     "record not found message",
			failure:  Failure{ErrorCode: "invalidrecordunknown", Message: "Can't find data record in database."},
			expected: ClassEmpty,
		},
		{
			name: "odbc argument",
			failure: Failure{
				ErrorCode: "dmlreadexception",
				Message:   "Error reading from database",
				DebugInfo: "[Microsoft][ODBC Driver 17 for SQL Server] Invalid argument #1",
			},
			expected: ClassEmpty,
		},
		{
			name:     "read exception",
			failure:  Failure{ErrorCode: "dmlreadexception", Message: "Error reading from database"},
			expected: ClassTransient,
		},
		{
			name:     "deadlock",
			failure:  Failure{ErrorCode: "unknown", DebugInfo: "Deadlock found when trying to get lock"},
			expected: ClassTransient,
		},
		{
			name:     "invalid parameter",
			failure:  Failure{ErrorCode: "invalidparameter", Message: "Invalid parameter value detected"},
			expected: ClassFatal,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, Classify(test.failure))
		})
	}
}

func TestCallSendsTokenAndDecodes(t *testing.T) {
	var hits int32
	client, _ := newTestClient(t, restHandler(t, &hits, func(_ int32, w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "secret", q.Get("wstoken"))
		require.Equal(t, FnGetContents, q.Get("wsfunction"))
		require.Equal(t, "json", q.Get("moodlewsrestformat"))
		require.Equal(t, "5", q.Get("courseid"))
		writeJSON(w, `[
			{"id": 10, "name": "General", "section": 0, "visible": 1, "modules": [
				{"id": 100, "instance": 7, "modname": "book", "name": "Reader", "visible": 1}
			]},
			{"id": 11, "name": "Week 1", "section": 1, "visible": 0, "modules": [
				{"id": 101, "instance": 8, "modname": "page", "name": "Notes", "visible": "0"}
			]}
		]`)
	}), ClientOptions{Token: "secret"})

	sections, err := client.CourseContents(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	require.Equal(t, int64(10), sections[0].Modules[0].SectionID)
	require.Equal(t, int64(11), sections[1].Modules[0].SectionID)
	require.True(t, bool(sections[0].Modules[0].Visible))
	require.False(t, bool(sections[1].Modules[0].Visible))
	require.Equal(t, int32(1), hits)
}

func TestCallRecordNotFoundIsEmpty(t *testing.T) {
	var hits int32
	client, rec := newTestClient(t, restHandler(t, &hits, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"exception": "dml_missing_record_exception", "errorcode": "invalidrecord", "message": "Can't find data record in database table course."}`)
	}), ClientOptions{Token: "secret"})

	res, err := client.Call(context.Background(), FnGetCourseBlocks, map[string]any{"courseid": 3})
	require.NoError(t, err)
	require.Equal(t, OutcomeEmpty, res.Outcome)
	require.Equal(t, int32(1), hits)

	blocks, err := client.CourseBlocks(context.Background(), 3)
	require.NoError(t, err)
	require.Empty(t, blocks)
	require.Empty(t, rec.Find(telemetry.LevelBroken, report_client_call))
}

func TestCallRetriesTransientErrors(t *testing.T) {
	var hits int32
	client, rec := newTestClient(t, restHandler(t, &hits, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"exception": "dml_read_exception", "errorcode": "dmlreadexception", "message": "Error reading from database"}`)
	}), ClientOptions{Token: "secret"})

	_, err := client.Call(context.Background(), FnGetCourses, nil)
	require.Error(t, err)

	var callErr *Error
	require.True(t, errors.As(err, &callErr))
	require.Equal(t, KindTransient, callErr.Kind)
	require.Equal(t, 3, callErr.Attempts)
	require.Equal(t, "dmlreadexception", callErr.ErrorCode)
	require.Equal(t, int32(3), hits)
	require.Len(t, rec.Find(telemetry.LevelBroken, report_client_call), 1)
}

func TestCallRecoversAfterTransientError(t *testing.T) {
	var hits int32
	client, rec := newTestClient(t, restHandler(t, &hits, func(attempt int32, w http.ResponseWriter, _ *http.Request) {
		if attempt < 3 {
			writeJSON(w, `{"exception": "dml_read_exception", "errorcode": "dmlreadexception", "message": "Error reading from database"}`)
			return
		}
		writeJSON(w, `[{"id": 1, "shortname": "site", "fullname": "Site", "idnumber": ""}]`)
	}), ClientOptions{Token: "secret"})

	courses, err := client.Courses(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 1)
	require.Equal(t, "site", courses[0].Raw["shortname"])
	require.Equal(t, int32(3), hits)
	require.Len(t, rec.Find(telemetry.LevelWarning, report_client_call_retried), 1)
}

func TestCallBackendErrorIsNotRetried(t *testing.T) {
	var hits int32
	client, _ := newTestClient(t, restHandler(t, &hits, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"exception": "invalid_parameter_exception", "errorcode": "invalidparameter", "message": "Invalid parameter value detected"}`)
	}), ClientOptions{Token: "secret"})

	_, err := client.Call(context.Background(), FnGetContents, map[string]any{"courseid": "x"})
	var callErr *Error
	require.True(t, errors.As(err, &callErr))
	require.Equal(t, KindBackend, callErr.Kind)
	require.Equal(t, "Invalid parameter value detected", callErr.Message)
	require.Equal(t, int32(1), hits)
}

func TestCallTransportErrors(t *testing.T) {
	testCases := []struct {
		name    string
		respond func(w http.ResponseWriter)
	}{
		{
			name: "server error",
			respond: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "malformed json",
			respond: func(w http.ResponseWriter) {
				writeJSON(w, `<html>maintenance</html>`)
			},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			var hits int32
			client, rec := newTestClient(t, restHandler(t, &hits, func(_ int32, w http.ResponseWriter, _ *http.Request) {
				test.respond(w)
			}), ClientOptions{Token: "secret"})

			_, err := client.Call(context.Background(), FnGetContents, map[string]any{"courseid": 9})
			var callErr *Error
			require.True(t, errors.As(err, &callErr))
			require.Equal(t, KindTransport, callErr.Kind)
			require.Equal(t, int32(1), hits)

			reports := rec.Find(telemetry.LevelBroken, report_client_call)
			require.Len(t, reports, 1)
			require.Contains(t, reports[0].Params, map[string]string{"courseid": "9"})
		})
	}
}

func TestCallRequiresAuthentication(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler(), ClientOptions{})
	_, err := client.Call(context.Background(), FnGetCourses, nil)
	require.ErrorIs(t, err, ErrNotAuthenticated)
}
