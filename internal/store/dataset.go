// Package store persists the records harvested from a course.
package store

import (
	"context"

	"moodle-harvest/lib/platforms/moodle/core"
)

// Record is a row with a fixed header.
type Record interface {
	Columns() []string
	Values() []string
}

// Dataset is one table of a course, ex. the books or the blocks.
type Dataset struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// NewDataset renders records under the given header, columns is used as is
// so that empty datasets still carry a header.
func NewDataset[T Record](name string, columns []string, records []T) Dataset {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.Values())
	}
	return Dataset{Name: name, Columns: columns, Rows: rows}
}

// Column returns the values of a column, nil if the dataset has no such column.
func (d Dataset) Column(name string) []string {
	idx := -1
	for i, c := range d.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		if idx < len(row) {
			out = append(out, row[idx])
		} else {
			out = append(out, "")
		}
	}
	return out
}

// Sink is somewhere the datasets of a course are written to.
type Sink interface {
	Save(ctx context.Context, course core.Course, datasets []Dataset) error
}
