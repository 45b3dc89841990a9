package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"moodle-harvest/lib/cleaner"
	"moodle-harvest/lib/platforms/moodle/core"
)

// CSVSink writes <dir>/<idnumber>/<idnumber>_<dataset>.csv files and the raw
// course as <idnumber>_course.json.
type CSVSink struct {
	Dir string
}

// CourseDir is where the files of a course go, extracted images included.
func (s CSVSink) CourseDir(idnumber string) string {
	return filepath.Join(s.Dir, idnumber)
}

func (s CSVSink) path(idnumber, name, ext string) string {
	return filepath.Join(s.CourseDir(idnumber), fmt.Sprintf("%s_%s.%s", idnumber, name, ext))
}

func (s CSVSink) Save(ctx context.Context, course core.Course, datasets []Dataset) error {
	err := os.MkdirAll(s.CourseDir(course.IDNumber), 0777)
	if err != nil {
		return err
	}

	err = s.WriteCourse(course)
	if err != nil {
		return err
	}
	for _, ds := range datasets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = s.WriteDataset(course.IDNumber, ds)
		if err != nil {
			return fmt.Errorf("write %s: %w", ds.Name, err)
		}
	}
	return nil
}

// WriteCourse saves the course as the web service returned it, with its urls
// and slashes unescaped.
func (s CSVSink) WriteCourse(course core.Course) error {
	var raw any = course.Raw
	if course.Raw == nil {
		raw = map[string]any{
			"id":        course.ID,
			"shortname": course.ShortName,
			"fullname":  course.FullName,
			"idnumber":  course.IDNumber,
		}
	}
	raw = cleaner.CleanEscapedSlashes(cleaner.CleanURLs(raw))

	out, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode course: %w", err)
	}
	return os.WriteFile(s.path(course.IDNumber, "course", "json"), out, 0666)
}

func (s CSVSink) WriteDataset(idnumber string, ds Dataset) error {
	f, err := os.Create(s.path(idnumber, ds.Name, "csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	err = w.Write(ds.Columns)
	if err != nil {
		return err
	}
	err = w.WriteAll(ds.Rows)
	if err != nil {
		return err
	}
	return f.Close()
}
