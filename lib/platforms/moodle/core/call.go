package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_client_call         = "client.call"
	report_client_call_retried = "client.call-retried"
	report_client_call_empty   = "client.call-empty"
)

// ErrAuthentication is returned when neither a token nor a browser session
// could be established.
var ErrAuthentication = errors.New("moodle: authentication failed")

// ErrNotAuthenticated is returned by Call before Authenticate succeeded.
var ErrNotAuthenticated = errors.New("moodle: client is not authenticated")

type ErrorKind int

const (
	// KindTransport covers non-2xx responses, connection failures and
	// payloads that are not json.
	KindTransport ErrorKind = iota
	// KindBackend is an error payload that is neither benign nor transient.
	KindBackend
	// KindTransient is a transient database error that outlasted every attempt.
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindBackend:
		return "backend"
	case KindTransient:
		return "transient"
	}
	return "unknown"
}

// Error is a failed web service call.
type Error struct {
	Kind      ErrorKind
	Function  string
	Message   string
	ErrorCode string
	Attempts  int
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("moodle %s error calling %s", e.Kind, e.Function)
	if e.ErrorCode != "" {
		msg += fmt.Sprintf(" [%s]", e.ErrorCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Failure is the error payload moodle answers with in place of a result.
type Failure struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
	DebugInfo string `json:"debuginfo"`
}

type Class int

const (
	ClassFatal Class = iota
	// ClassEmpty is a "nothing there" state that moodle reports as an exception.
	ClassEmpty
	ClassTransient
)

var (
	recordNotFoundRegex = regexp.MustCompile(`(?i)can't find data record in database`)
	odbcArgumentRegex   = regexp.MustCompile(`(?i)odbc.*argument #1`)
	transientRegex      = regexp.MustCompile(`(?i)error reading from database|error writing to database|database connection failed|deadlock|lock wait timeout`)
)

var recordNotFoundCodes = map[string]bool{
	"invalidrecord":        true,
	"invalidrecordunknown": true,
}

var transientCodes = map[string]bool{
	"dmlreadexception":        true,
	"dmlwriteexception":       true,
	"dbconnectionfailed":      true,
	"dmltransactionexception": true,
}

// Classify sorts an error payload into benign empty results, transient
// database errors and everything else. Benign signatures are checked first.
func Classify(f Failure) Class {
	text := f.Message + "\n" + f.DebugInfo
	if recordNotFoundCodes[f.ErrorCode] ||
		recordNotFoundRegex.MatchString(text) ||
		odbcArgumentRegex.MatchString(text) {
		return ClassEmpty
	}
	if transientCodes[f.ErrorCode] || transientRegex.MatchString(text) {
		return ClassTransient
	}
	return ClassFatal
}

// parseFailure finds an error payload in a rest response ({"exception": ...})
// or an ajax response ([{"error": true, "exception": {...}}] or a top level
// {"error": "...", "errorcode": "..."}).
func parseFailure(body []byte) (Failure, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Failure{}, false
	}

	switch body[0] {
	case '{':
		var probe struct {
			Failure
			Error json.RawMessage `json:"error"`
		}
		if json.Unmarshal(body, &probe) != nil {
			return Failure{}, false
		}
		if probe.Exception != "" || probe.ErrorCode != "" {
			if probe.Message == "" && len(probe.Error) > 0 {
				var msg string
				if json.Unmarshal(probe.Error, &msg) == nil {
					probe.Message = msg
				}
			}
			return probe.Failure, true
		}
	case '[':
		var probe []struct {
			Error     bool     `json:"error"`
			Exception *Failure `json:"exception"`
		}
		if json.Unmarshal(body, &probe) != nil || len(probe) == 0 {
			return Failure{}, false
		}
		if probe[0].Error {
			if probe[0].Exception == nil {
				return Failure{Message: "ajax call failed"}, true
			}
			return *probe[0].Exception, true
		}
	}
	return Failure{}, false
}

type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeEmpty means moodle reported a benign "nothing there" error.
	OutcomeEmpty
)

// Response is the decoded result of a successful call.
type Response struct {
	Outcome Outcome
	Body    json.RawMessage
}

// Decode unmarshals the body into v, empty responses leave v untouched.
func (r Response) Decode(function string, v any) error {
	if r.Outcome == OutcomeEmpty || len(r.Body) == 0 {
		return nil
	}
	return decodeStrict(function, r.Body, v)
}

// FlattenParams encodes nested parameters the way moodle's rest protocol
// expects them, maps become outer[inner] and slices outer[idx].
func FlattenParams(params map[string]any) map[string]string {
	out := map[string]string{}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		flattenInto(out, k, params[k])
	}
	return out
}

func flattenInto(out map[string]string, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenInto(out, fmt.Sprintf("%s[%s]", prefix, k), v[k])
		}
	case map[string]string:
		for k, inner := range v {
			out[fmt.Sprintf("%s[%s]", prefix, k)] = inner
		}
	case []any:
		for i, inner := range v {
			flattenInto(out, fmt.Sprintf("%s[%d]", prefix, i), inner)
		}
	case []string:
		for i, inner := range v {
			out[fmt.Sprintf("%s[%d]", prefix, i)] = inner
		}
	case []int64:
		for i, inner := range v {
			out[fmt.Sprintf("%s[%d]", prefix, i)] = strconv.FormatInt(inner, 10)
		}
	case []int:
		for i, inner := range v {
			out[fmt.Sprintf("%s[%d]", prefix, i)] = strconv.Itoa(inner)
		}
	default:
		out[prefix] = formatScalar(v)
	}
}

func formatScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// Call invokes a web service function. Benign "nothing there" errors come
// back as OutcomeEmpty, every other failure is an *Error.
func (c *Client) Call(ctx context.Context, function string, params map[string]any) (Response, error) {
	ctx, span := tracer.Start(ctx, "Call", trace.WithAttributes(
		attribute.String("moodle.function", function),
	))
	defer span.End()

	flat := FlattenParams(params)

	var (
		res *resty.Response
		err error
	)
	switch {
	case c.Token != "":
		query := map[string]string{
			"wstoken":            c.Token,
			"wsfunction":         function,
			"moodlewsrestformat": "json",
		}
		for k, v := range flat {
			query[k] = v
		}
		res, err = c.Api.R().
			SetContext(ctx).
			SetQueryParams(query).
			Get(restEndpoint)
	case c.Sesskey != "":
		// the ajax service rejects null args
		args := params
		if args == nil {
			args = map[string]any{}
		}
		res, err = c.Web.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"sesskey": c.Sesskey,
				"info":    function,
			}).
			SetHeader("Content-Type", "application/json").
			SetBody([]map[string]any{{
				"index":      0,
				"methodname": function,
				"args":       args,
			}}).
			Post(ajaxEndpoint)
	default:
		span.SetStatus(codes.Error, ErrNotAuthenticated.Error())
		return Response{}, ErrNotAuthenticated
	}

	fail := func(e *Error) (Response, error) {
		c.tel.ReportBroken(report_client_call, e, function, flat)
		span.RecordError(e)
		span.SetStatus(codes.Error, e.Error())
		return Response{}, e
	}

	if err != nil {
		return fail(&Error{Kind: KindTransport, Function: function, Err: err})
	}

	attempts := res.Request.Attempt
	span.SetAttributes(attribute.Int("moodle.attempts", attempts))
	if attempts > 1 {
		c.tel.ReportWarning(report_client_call_retried, function, attempts)
	}

	if res.IsError() {
		return fail(&Error{
			Kind:     KindTransport,
			Function: function,
			Attempts: attempts,
			Err:      fmt.Errorf("unexpected status %s", res.Status()),
		})
	}

	body := res.Body()
	if !json.Valid(body) {
		return fail(&Error{
			Kind:     KindTransport,
			Function: function,
			Attempts: attempts,
			Err:      fmt.Errorf("malformed json response: %s", truncateBody(body)),
		})
	}

	failure, failed := parseFailure(body)
	if failed {
		switch Classify(failure) {
		case ClassEmpty:
			c.tel.ReportDebug(report_client_call_empty, function, failure.ErrorCode, failure.Message)
			return Response{Outcome: OutcomeEmpty}, nil
		case ClassTransient:
			return fail(&Error{
				Kind:      KindTransient,
				Function:  function,
				Message:   failure.Message,
				ErrorCode: failure.ErrorCode,
				Attempts:  attempts,
			})
		default:
			return fail(&Error{
				Kind:      KindBackend,
				Function:  function,
				Message:   failure.Message,
				ErrorCode: failure.ErrorCode,
				Attempts:  attempts,
			})
		}
	}

	if c.Token == "" {
		var envelope []struct {
			Data json.RawMessage `json:"data"`
		}
		err = json.Unmarshal(body, &envelope)
		if err != nil || len(envelope) == 0 {
			return fail(&Error{
				Kind:     KindTransport,
				Function: function,
				Attempts: attempts,
				Err:      fmt.Errorf("unexpected ajax response: %s", truncateBody(body)),
			})
		}
		body = envelope[0].Data
	}

	return Response{Outcome: OutcomeOK, Body: body}, nil
}

func truncateBody(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
