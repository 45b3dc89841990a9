package extract

import (
	"encoding/json"
	"strconv"

	"moodle-harvest/lib/cleaner"
	"moodle-harvest/lib/platforms/moodle/core"
)

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

// formatJSON renders nested values (tags, links, tables of contents) as a
// single json cell, nil slices become [].
func formatJSON(v any) string {
	out, err := json.Marshal(v)
	if err != nil || string(out) == "null" {
		return "[]"
	}
	return string(out)
}

func mapSlice(values []string, fn func(string) string) {
	for i := range values {
		values[i] = fn(values[i])
	}
}

// ModuleFields are the columns every record of a module carries.
type ModuleFields struct {
	Kind Kind

	CourseID   int64
	CourseName string

	// ID is the instance id of the activity, CMID the course module id.
	ID          int64
	CMID        int64
	Name        string
	Description string
	ContextID   int64
	Visible     bool
	URL         string
	SectionID   int64

	TOC []TOCEntry
}

func newModuleFields(kind Kind, course core.Course, m core.Module) ModuleFields {
	return ModuleFields{
		Kind:        kind,
		CourseID:    course.ID,
		CourseName:  course.FullName,
		ID:          m.Instance,
		CMID:        m.ID,
		Name:        m.Name,
		Description: m.Description,
		ContextID:   m.ContextID,
		Visible:     bool(m.Visible),
		URL:         m.URL,
		SectionID:   m.SectionID,
	}
}

func moduleColumns(k Kind) []string {
	cols := []string{
		"course_id",
		"course_name",
		k.column("id"),
		k.column("cmid"),
		k.column("name"),
		k.column("description"),
		k.column("contextid"),
		k.column("visible"),
		k.column("url"),
		k.column("section_id"),
	}
	if k.HasTOC {
		cols = append(cols, "toc")
	}
	return cols
}

func (f ModuleFields) values() []string {
	values := []string{
		formatInt(f.CourseID),
		f.CourseName,
		formatInt(f.ID),
		formatInt(f.CMID),
		f.Name,
		f.Description,
		formatInt(f.ContextID),
		formatBool(f.Visible),
		f.URL,
		formatInt(f.SectionID),
	}
	if f.Kind.HasTOC {
		values = append(values, formatJSON(f.TOC))
	}
	return values
}

func (f *ModuleFields) mapStrings(fn func(string) string) {
	f.CourseName = fn(f.CourseName)
	f.Name = fn(f.Name)
	f.Description = fn(f.Description)
	f.URL = fn(f.URL)
	for i := range f.TOC {
		f.TOC[i].mapStrings(fn)
	}
}

var htmlColumns = []string{"clean_html", "cleanest_html", "text_content", "markdown"}

func htmlValues(r cleaner.Result) []string {
	return []string{r.CleanHTML, r.CleanestHTML, r.Text, r.Markdown}
}

type ItemType string

const (
	ItemHTML ItemType = "html"
	ItemFile ItemType = "file"
)

// Item is a sub-item of a module: a book chapter, a page body or a file.
type Item struct {
	ID       int64
	Filename string
	Type     ItemType
	// Files lists the names of the file items sharing an html item's id.
	Files        []string
	Title        string
	Filepath     string
	Filesize     int64
	FileURL      string
	TimeModified int64
	SortOrder    int
	Tags         []string

	IsUsed bool
}

// ItemRecord is one row of a multi-item activity.
type ItemRecord struct {
	Item   Item
	Module ModuleFields
	HTML   cleaner.Result
}

// ItemColumns is the header of the records Helper.Items produces for kind.
func ItemColumns(k Kind) []string {
	cols := []string{
		k.ItemColumn("id"),
		k.ItemColumn("filename"),
		k.ItemColumn("type"),
		k.ItemColumn("files"),
		k.ItemColumn("title"),
		k.ItemColumn("filepath"),
		k.ItemColumn("filesize"),
		k.ItemColumn("fileurl"),
		k.ItemColumn("time_modified"),
		k.ItemColumn("sortorder"),
		k.ItemColumn("tags"),
	}
	cols = append(cols, moduleColumns(k)...)
	cols = append(cols, htmlColumns...)
	return append(cols, "is_used")
}

func (r ItemRecord) Columns() []string {
	return ItemColumns(r.Module.Kind)
}

func (r ItemRecord) Values() []string {
	it := r.Item
	values := []string{
		formatInt(it.ID),
		it.Filename,
		string(it.Type),
		formatJSON(it.Files),
		it.Title,
		it.Filepath,
		formatInt(it.Filesize),
		it.FileURL,
		formatInt(it.TimeModified),
		strconv.Itoa(it.SortOrder),
		formatJSON(it.Tags),
	}
	values = append(values, r.Module.values()...)
	values = append(values, htmlValues(r.HTML)...)
	return append(values, formatBool(it.IsUsed))
}

// MapStrings implements cleaner.StringMapper.
func (r *ItemRecord) MapStrings(fn func(string) string) {
	r.Item.Filename = fn(r.Item.Filename)
	r.Item.Title = fn(r.Item.Title)
	r.Item.Filepath = fn(r.Item.Filepath)
	r.Item.FileURL = fn(r.Item.FileURL)
	mapSlice(r.Item.Files, fn)
	mapSlice(r.Item.Tags, fn)
	r.Module.mapStrings(fn)
	r.HTML.MapStrings(fn)
}

// ModuleRecord is the single row of a label, url or forum module.
type ModuleRecord struct {
	Module ModuleFields
	HTML   cleaner.Result
}

// ModuleColumns is the header of the records Helper.Modules produces for kind.
func ModuleColumns(k Kind) []string {
	return append(moduleColumns(k), htmlColumns...)
}

func (r ModuleRecord) Columns() []string {
	return ModuleColumns(r.Module.Kind)
}

func (r ModuleRecord) Values() []string {
	return append(r.Module.values(), htmlValues(r.HTML)...)
}

func (r *ModuleRecord) MapStrings(fn func(string) string) {
	r.Module.mapStrings(fn)
	r.HTML.MapStrings(fn)
}
