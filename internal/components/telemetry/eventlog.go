package telemetry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"moodle-harvest/internal/assert"
)

const (
	// EventLogFilename is the name of the append-only event log inside the log directory.
	EventLogFilename = "log_events.csv"

	// FlushThreshold is the number of pending events that triggers a write.
	FlushThreshold = 50
	// MaxUnflushedEvents bounds the events held in memory when writes keep failing,
	// the oldest are dropped first. It is also the most that can be lost on a crash.
	MaxUnflushedEvents = 100

	report_event_log_flush = "event_log.flush"
)

var eventLogHeader = []string{"timestamp", "event_title", "event_details"}

// Event is a single row of the event log.
type Event struct {
	Timestamp time.Time
	Title     string
	Details   string
}

func (e Event) row() []string {
	return []string{
		e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000"),
		e.Title,
		e.Details,
	}
}

// EventLog is an API that records every broken and warning report as a row in
// a CSV file before forwarding it to the inner API. Rows are buffered and
// written in batches of FlushThreshold, Close writes whatever is left.
type EventLog struct {
	path  string
	inner API
	now   func() time.Time

	mu      sync.Mutex
	pending []Event
}

// OpenEventLog creates the log directory if needed and writes the CSV header
// when the log file does not exist yet. Existing logs are appended to.
func OpenEventLog(dir string, inner API) (*EventLog, error) {
	assert.NotNil(inner)
	assert.NotEmptyStr(dir)

	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(dir, EventLogFilename)
	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		err = appendRows(path, [][]string{eventLogHeader})
		if err != nil {
			return nil, fmt.Errorf("write event log header: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	return &EventLog{
		path:  path,
		inner: inner,
		now:   time.Now,
	}, nil
}

// Path returns the location of the CSV file.
func (l *EventLog) Path() string {
	return l.path
}

// Log buffers an event, writing the buffer once it reaches FlushThreshold.
func (l *EventLog) Log(title, details string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, Event{
		Timestamp: l.now(),
		Title:     title,
		Details:   details,
	})
	if len(l.pending) > MaxUnflushedEvents {
		l.pending = l.pending[len(l.pending)-MaxUnflushedEvents:]
	}
	if len(l.pending) >= FlushThreshold {
		l.flushLocked()
	}
}

// Pending returns the number of buffered events that have not been written yet.
func (l *EventLog) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Flush writes all buffered events.
func (l *EventLog) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

// Close flushes the buffer. Events logged after Close are still buffered and
// written by a later Flush.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

func (l *EventLog) flushLocked() error {
	if len(l.pending) == 0 {
		return nil
	}

	rows := make([][]string, len(l.pending))
	for i, e := range l.pending {
		rows[i] = e.row()
	}
	err := appendRows(l.path, rows)
	if err != nil {
		l.inner.ReportBroken(report_event_log_flush, err, l.path, len(rows))
		return err
	}
	l.pending = l.pending[:0]
	return nil
}

func appendRows(path string, rows [][]string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	err = w.WriteAll(rows)
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatDetails(params []any) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, " | ")
}

func (l *EventLog) ReportBroken(id string, params ...any) {
	l.Log(id, formatDetails(params))
	l.inner.ReportBroken(id, params...)
}

func (l *EventLog) ReportWarning(id string, params ...any) {
	l.Log(id, formatDetails(params))
	l.inner.ReportWarning(id, params...)
}

func (l *EventLog) ReportDebug(msg string, params ...any) {
	l.inner.ReportDebug(msg, params...)
}

func (l *EventLog) ReportCount(id string, count int64) {
	l.inner.ReportCount(id, count)
}
