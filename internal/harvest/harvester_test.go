package harvest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"moodle-harvest/internal/components/telemetry"
	"moodle-harvest/internal/store"
	"moodle-harvest/lib/platforms/moodle/core"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const site = "https://moodle.example"

type fakeAPI struct {
	courses     []core.Course
	coursesErr  error
	sections    map[int64][]core.Section
	contentsErr map[int64]error
	resources   map[int64][]core.Resource
	pages       map[string]string
}

func (f *fakeAPI) Courses(context.Context) ([]core.Course, error) {
	return f.courses, f.coursesErr
}

func (f *fakeAPI) CourseContents(_ context.Context, courseID int64) ([]core.Section, error) {
	if err := f.contentsErr[courseID]; err != nil {
		return nil, err
	}
	return f.sections[courseID], nil
}

func (f *fakeAPI) CourseBlocks(context.Context, int64) ([]core.Block, error) {
	return nil, nil
}

func (f *fakeAPI) Resources(_ context.Context, courseID int64) ([]core.Resource, error) {
	return f.resources[courseID], nil
}

func (f *fakeAPI) ForumDiscussions(context.Context, int64) ([]core.Discussion, error) {
	return nil, nil
}

func (f *fakeAPI) DiscussionPosts(context.Context, int64) ([]core.Post, error) {
	return nil, nil
}

func (f *fakeAPI) FetchRaw(_ context.Context, url string) (string, bool) {
	page, ok := f.pages[url]
	return page, ok
}

type recordingSink struct {
	saved map[string][]store.Dataset
}

func (s *recordingSink) Save(_ context.Context, course core.Course, datasets []store.Dataset) error {
	if s.saved == nil {
		s.saved = map[string][]store.Dataset{}
	}
	s.saved[course.IDNumber] = datasets
	return nil
}

func (s *recordingSink) dataset(idnumber, name string) store.Dataset {
	for _, ds := range s.saved[idnumber] {
		if ds.Name == name {
			return ds
		}
	}
	return store.Dataset{}
}

var (
	biology   = core.Course{ID: 2, ShortName: "BIO", FullName: "Biology", IDNumber: "BIO-101"}
	chemistry = core.Course{ID: 3, ShortName: "CHEM", FullName: "Chemistry", IDNumber: "CHEM-101"}
	physics   = core.Course{ID: 4, ShortName: "PHY", FullName: "Physics", IDNumber: "PHY-101"}
)

func chapterFile(name string, size int64) core.Content {
	return core.Content{
		Type:     "file",
		Filename: name,
		Filepath: "/1/",
		Filesize: size,
		FileURL:  site + "/webservice/pluginfile.php/31/mod_book/chapter/1/" + name,
	}
}

func biologySections() []core.Section {
	return []core.Section{{
		ID:      10,
		Section: 1,
		Name:    "Week 1",
		Visible: true,
		Modules: []core.Module{
			{
				ID:       100,
				Instance: 7,
				ModName:  "book",
				Name:     "Cells",
				Visible:  true,
				Contents: []core.Content{
					chapterFile("index.html", 0),
					chapterFile("cell.png", 2048),
					chapterFile("lecture.mp4", 3<<20),
				},
			},
			{
				ID:          101,
				Instance:    8,
				ModName:     "label",
				Name:        "Welcome",
				Visible:     true,
				Description: "<p>Welcome to biology</p>",
			},
		},
	}}
}

func newTestHarvester(t testing.TB, api *fakeAPI, opts Options) (Harvester, *recordingSink, *telemetry.Recorder) {
	rec := &telemetry.Recorder{}
	sink := &recordingSink{}
	if opts.DataDir == "" {
		opts.DataDir = t.TempDir()
	}
	return NewHarvester(api, opts, rec, sink), sink, rec
}

func TestHarvestExtractsEveryDataset(t *testing.T) {
	api := &fakeAPI{
		courses:  []core.Course{biology},
		sections: map[int64][]core.Section{biology.ID: biologySections()},
		resources: map[int64][]core.Resource{biology.ID: {{
			ID:           5,
			CourseModule: 102,
			Name:         "Syllabus",
			Visible:      true,
			ContentFiles: []core.ResourceFile{{Filename: "syllabus.pdf", Filesize: 10}},
		}}},
		pages: map[string]string{
			site + "/webservice/pluginfile.php/31/mod_book/chapter/1/index.html": `<p>Look <img src="cell.png"></p>`,
		},
	}
	h, sink, _ := newTestHarvester(t, api, Options{IDNumbers: []string{"BIO-101"}})

	summary, err := h.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, summary.Failed)
	require.Len(t, summary.Courses, 1)

	var names []string
	for _, ds := range sink.saved["BIO-101"] {
		names = append(names, ds.Name)
	}
	expected := []string{
		"books", "pages", "files", "folders", "labels", "urls",
		"forums", "blocks", "sections", "modules", "resources",
	}
	if diff := cmp.Diff(expected, names); diff != "" {
		t.Fatalf("unexpected datasets (-want +got):\n%s", diff)
	}

	books := sink.dataset("BIO-101", "books")
	require.Equal(t, []string{"index.html", "cell.png", "lecture.mp4"}, books.Column("chapter_filename"))
	require.Equal(t, []string{"true", "true", "false"}, books.Column("is_used"))

	require.Equal(t, []string{"Welcome"}, sink.dataset("BIO-101", "labels").Column("label_name"))
	require.Equal(t, []string{"10", "10"}, sink.dataset("BIO-101", "modules").Column("section_id"))
	require.Equal(t, []string{"syllabus.pdf"}, sink.dataset("BIO-101", "resources").Column("filename"))

	var bookSummary DatasetSummary
	for _, ds := range summary.Courses[0].Datasets {
		if ds.Name == "books" {
			bookSummary = ds
		}
	}
	require.Equal(t, DatasetSummary{
		Name:        "books",
		Rows:        3,
		UnusedFiles: 1,
		UnusedBytes: 3 << 20,
		LargeUnused: 1,
	}, bookSummary)
}

func TestRunIsolatesCourseFailures(t *testing.T) {
	api := &fakeAPI{
		courses: []core.Course{biology, chemistry, physics},
		sections: map[int64][]core.Section{
			biology.ID: biologySections(),
		},
		contentsErr: map[int64]error{
			chemistry.ID: &core.Error{Kind: core.KindBackend, Function: "core_course_get_contents"},
		},
	}
	h, sink, rec := newTestHarvester(t, api, Options{Search: "*-101"})

	summary, err := h.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Courses, 2)
	require.Equal(t, []core.Course{chemistry}, summary.Failed)

	require.Contains(t, sink.saved, "BIO-101")
	require.Contains(t, sink.saved, "PHY-101")
	require.NotContains(t, sink.saved, "CHEM-101")

	broken := rec.Find(telemetry.LevelBroken, report_harvest_course)
	require.Len(t, broken, 1)
	require.Equal(t, "CHEM-101", broken[0].Params[1])
}

func TestRunFailsWithoutCourses(t *testing.T) {
	api := &fakeAPI{coursesErr: core.ErrAuthentication}
	h, _, rec := newTestHarvester(t, api, Options{Search: "*"})

	_, err := h.Run(context.Background())
	require.ErrorIs(t, err, core.ErrAuthentication)
	require.Len(t, rec.Find(telemetry.LevelBroken, report_harvest_courses), 1)
}

func TestRunStopsWhenCanceled(t *testing.T) {
	api := &fakeAPI{courses: []core.Course{biology, chemistry}}
	h, sink, _ := newTestHarvester(t, api, Options{Search: "*"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Run(ctx)
	require.True(t, errors.Is(err, context.Canceled))
	require.Empty(t, sink.saved)
}

func TestRunReportsUnmatchedIDNumbers(t *testing.T) {
	api := &fakeAPI{courses: []core.Course{biology, chemistry}}
	h, _, rec := newTestHarvester(t, api, Options{IDNumbers: []string{"CHEM-110"}})

	summary, err := h.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Unmatched{{IDNumber: "CHEM-110", Suggestion: "CHEM-101"}}, summary.Unmatched)
	require.Len(t, rec.Find(telemetry.LevelWarning, report_harvest_unmatched), 1)
}

func TestHarvestWritesImagesUnderCourseDir(t *testing.T) {
	dir := t.TempDir()
	sections := biologySections()
	sections[0].Modules[1].Description = `<p><img src="data:image/png;base64,iVBORw0KGgo="></p>`

	api := &fakeAPI{sections: map[int64][]core.Section{biology.ID: sections}}
	h, _, _ := newTestHarvester(t, api, Options{DataDir: dir})

	_, err := h.Harvest(context.Background(), biology)
	require.NoError(t, err)

	images, err := os.ReadDir(filepath.Join(dir, "BIO-101", "images"))
	require.NoError(t, err)
	require.Len(t, images, 1)
}
