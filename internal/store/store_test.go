package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"moodle-harvest/lib/platforms/moodle/core"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type chapter struct {
	id    string
	title string
}

func (c chapter) Columns() []string { return []string{"chapter_id", "chapter_title"} }
func (c chapter) Values() []string  { return []string{c.id, c.title} }

var testCourse = core.Course{
	ID:       5,
	FullName: "Physics",
	IDNumber: "PHY-1",
	Raw: map[string]any{
		"id":       float64(5),
		"fullname": "Physics",
		"idnumber": "PHY-1",
		"summary":  `<a href="https:\/\/moodle.example\/x">x<\/a>`,
		"courseformatoptions": []any{
			map[string]any{"name": "url", "url": `"https:\/\/moodle.example\/course"`},
		},
	},
}

func chapters() Dataset {
	records := []chapter{{id: "1", title: "Motion"}, {id: "2", title: "Forces, \"and\" more"}}
	return NewDataset("books", chapter{}.Columns(), records)
}

func TestDatasetColumn(t *testing.T) {
	ds := chapters()
	require.Equal(t, []string{"Motion", `Forces, "and" more`}, ds.Column("chapter_title"))
	require.Nil(t, ds.Column("missing"))

	empty := NewDataset[chapter]("pages", chapter{}.Columns(), nil)
	require.Equal(t, []string{"chapter_id", "chapter_title"}, empty.Columns)
	require.Empty(t, empty.Rows)
}

func TestCSVSink(t *testing.T) {
	dir := t.TempDir()
	sink := CSVSink{Dir: dir}

	empty := NewDataset[chapter]("pages", chapter{}.Columns(), nil)
	err := sink.Save(context.Background(), testCourse, []Dataset{chapters(), empty})
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, "PHY-1", "PHY-1_books.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	expected := [][]string{
		{"chapter_id", "chapter_title"},
		{"1", "Motion"},
		{"2", `Forces, "and" more`},
	}
	if diff := cmp.Diff(expected, rows); diff != "" {
		t.Fatalf("unexpected rows (-want +got):\n%s", diff)
	}

	pages, err := os.ReadFile(filepath.Join(dir, "PHY-1", "PHY-1_pages.csv"))
	require.NoError(t, err)
	require.Equal(t, "chapter_id,chapter_title\n", string(pages))

	raw, err := os.ReadFile(filepath.Join(dir, "PHY-1", "PHY-1_course.json"))
	require.NoError(t, err)
	var course map[string]any
	require.NoError(t, json.Unmarshal(raw, &course))
	require.Equal(t, `<a href="https://moodle.example/x">x</a>`, course["summary"])
	options := course["courseformatoptions"].([]any)
	require.Equal(t, "https://moodle.example/course", options[0].(map[string]any)["url"])
}

func TestSQLiteSink(t *testing.T) {
	sink, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer sink.Close()
	ctx := context.Background()

	other := core.Course{ID: 6, IDNumber: "CHEM-1"}
	require.NoError(t, sink.Save(ctx, testCourse, []Dataset{chapters()}))
	require.NoError(t, sink.Save(ctx, other, []Dataset{NewDataset("books", chapter{}.Columns(), []chapter{{id: "9", title: "Atoms"}})}))

	// saving again replaces the rows of that course only
	again := NewDataset("books", chapter{}.Columns(), []chapter{{id: "3", title: "Energy"}})
	require.NoError(t, sink.Save(ctx, testCourse, []Dataset{again}))

	rows, err := sink.DB().QueryContext(ctx, `select idnumber, chapter_id, chapter_title from books order by idnumber, chapter_id`)
	require.NoError(t, err)
	defer rows.Close()

	var got [][]string
	for rows.Next() {
		var idnumber, id, title string
		require.NoError(t, rows.Scan(&idnumber, &id, &title))
		got = append(got, []string{idnumber, id, title})
	}
	require.NoError(t, rows.Err())
	require.Equal(t, [][]string{
		{"CHEM-1", "9", "Atoms"},
		{"PHY-1", "3", "Energy"},
	}, got)
}
