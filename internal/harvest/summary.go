package harvest

import (
	"strconv"

	"moodle-harvest/internal/extract"
	"moodle-harvest/internal/store"
	"moodle-harvest/lib/platforms/moodle/core"
)

// LargeFileSize is the size from which an unused file counts as large.
const LargeFileSize = 1 << 20

type DatasetSummary struct {
	Name string
	Rows int
	// UnusedFiles counts file items that no html item of the same group
	// references, UnusedBytes is their total size.
	UnusedFiles int
	UnusedBytes int64
	LargeUnused int
}

type CourseSummary struct {
	Course   core.Course
	Datasets []DatasetSummary
}

type Summary struct {
	Courses   []CourseSummary
	Failed    []core.Course
	Unmatched []Unmatched
}

// itemDatasets maps the datasets made of items to the kind naming their columns.
var itemDatasets = map[string]extract.Kind{
	"books":   extract.Book,
	"pages":   extract.Page,
	"files":   extract.Resource,
	"folders": extract.Folder,
}

func summarize(course core.Course, datasets []store.Dataset) CourseSummary {
	cs := CourseSummary{Course: course}
	for _, ds := range datasets {
		cs.Datasets = append(cs.Datasets, summarizeDataset(ds))
	}
	return cs
}

func summarizeDataset(ds store.Dataset) DatasetSummary {
	out := DatasetSummary{Name: ds.Name, Rows: len(ds.Rows)}

	kind, ok := itemDatasets[ds.Name]
	if !ok {
		return out
	}
	used := ds.Column("is_used")
	types := ds.Column(kind.ItemColumn("type"))
	sizes := ds.Column(kind.ItemColumn("filesize"))
	for i := range used {
		if used[i] != "false" || types[i] != string(extract.ItemFile) {
			continue
		}
		size, _ := strconv.ParseInt(sizes[i], 10, 64)
		out.UnusedFiles++
		out.UnusedBytes += size
		if size >= LargeFileSize {
			out.LargeUnused++
		}
	}
	return out
}
