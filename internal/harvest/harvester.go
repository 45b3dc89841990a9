// Package harvest selects courses and runs every extractor over them, one
// course at a time.
package harvest

import (
	"context"
	"fmt"
	"path/filepath"

	"moodle-harvest/internal/assert"
	"moodle-harvest/internal/components/telemetry"
	"moodle-harvest/internal/extract"
	"moodle-harvest/internal/store"
	"moodle-harvest/lib/cleaner"
	"moodle-harvest/lib/platforms/moodle/core"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_harvest_courses   = "harvest.courses"
	report_harvest_course    = "harvest.course"
	report_harvest_unmatched = "harvest.unmatched-idnumber"
	report_harvest_progress  = "harvest.progress"
)

var tracer = otel.Tracer("moodle-harvest/internal/harvest")

// API is the part of the moodle client a harvest needs.
type API interface {
	extract.Fetcher
	extract.ForumAPI

	Courses(ctx context.Context) ([]core.Course, error)
	CourseContents(ctx context.Context, courseID int64) ([]core.Section, error)
	CourseBlocks(ctx context.Context, courseID int64) ([]core.Block, error)
	Resources(ctx context.Context, courseID int64) ([]core.Resource, error)
}

type Options struct {
	// DataDir holds a directory per course, extracted images go in there.
	DataDir   string
	IDNumbers []string
	Search    string
}

type Harvester struct {
	api   API
	opts  Options
	sinks []store.Sink
	tel   telemetry.API

	helpers map[string]extract.Helper
	forums  extract.ForumAdapter
	blocks  extract.BlockAdapter
}

func NewHarvester(api API, opts Options, tel telemetry.API, sinks ...store.Sink) Harvester {
	assert.NotNil(api)
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.DataDir)

	helpers := map[string]extract.Helper{}
	for _, kind := range extract.Kinds {
		helpers[kind.Name] = extract.NewHelper(kind, api, tel)
	}

	return Harvester{
		api:     api,
		opts:    opts,
		sinks:   sinks,
		tel:     tel,
		helpers: helpers,
		forums:  extract.NewForumAdapter(api, api, tel),
		blocks:  extract.NewBlockAdapter(tel),
	}
}

// Run harvests every selected course. Failing to list the courses fails the
// run, a failing course is reported and the run moves on to the next one.
// The run stops early only when ctx is done.
func (h Harvester) Run(ctx context.Context) (Summary, error) {
	courses, err := h.api.Courses(ctx)
	if err != nil {
		h.tel.ReportBroken(report_harvest_courses, err)
		return Summary{}, fmt.Errorf("list courses: %w", err)
	}

	selected, unmatched, err := SelectCourses(courses, h.opts.IDNumbers, h.opts.Search)
	if err != nil {
		return Summary{}, fmt.Errorf("select courses: %w", err)
	}
	for _, u := range unmatched {
		h.tel.ReportWarning(report_harvest_unmatched, u.IDNumber, u.Suggestion)
	}

	summary := Summary{Unmatched: unmatched}
	for i, course := range selected {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		cs, err := h.Harvest(ctx, course)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			h.tel.ReportBroken(report_harvest_course, err, course.IDNumber)
			summary.Failed = append(summary.Failed, course)
			continue
		}
		summary.Courses = append(summary.Courses, cs)
		h.tel.ReportCount(report_harvest_progress, int64(i+1))
	}
	return summary, nil
}

// Harvest extracts a single course and hands its datasets to every sink.
func (h Harvester) Harvest(ctx context.Context, course core.Course) (CourseSummary, error) {
	ctx, span := tracer.Start(ctx, "Harvest", trace.WithAttributes(
		attribute.Int64("moodle.course_id", course.ID),
		attribute.String("moodle.idnumber", course.IDNumber),
	))
	defer span.End()

	cc, err := h.LoadCourse(ctx, course)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return CourseSummary{}, err
	}

	datasets := h.Extract(ctx, cc)
	for _, sink := range h.sinks {
		err = sink.Save(ctx, course, datasets)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return CourseSummary{}, fmt.Errorf("save %s: %w", course.IDNumber, err)
		}
	}
	return summarize(course, datasets), nil
}

// LoadCourse fetches everything the extractors share. Any failure aborts the
// course.
func (h Harvester) LoadCourse(ctx context.Context, course core.Course) (extract.CourseContext, error) {
	sections, err := h.api.CourseContents(ctx, course.ID)
	if err != nil {
		return extract.CourseContext{}, fmt.Errorf("course contents: %w", err)
	}
	blocks, err := h.api.CourseBlocks(ctx, course.ID)
	if err != nil {
		return extract.CourseContext{}, fmt.Errorf("course blocks: %w", err)
	}
	resources, err := h.api.Resources(ctx, course.ID)
	if err != nil {
		return extract.CourseContext{}, fmt.Errorf("course resources: %w", err)
	}

	proc := cleaner.NewProcessor(filepath.Join(h.opts.DataDir, course.IDNumber), h.tel)
	return extract.NewCourseContext(course, sections, blocks, resources, proc), nil
}

// Extract runs every extractor over a loaded course, one dataset per kind
// followed by the blocks and the raw listings.
func (h Harvester) Extract(ctx context.Context, cc extract.CourseContext) []store.Dataset {
	items := func(name string, kind extract.Kind) store.Dataset {
		return store.NewDataset(name, extract.ItemColumns(kind), h.helpers[kind.Name].Items(ctx, cc))
	}
	modules := func(name string, kind extract.Kind) store.Dataset {
		return store.NewDataset(name, extract.ModuleColumns(kind), h.helpers[kind.Name].Modules(ctx, cc))
	}

	datasets := []store.Dataset{
		items("books", extract.Book),
		items("pages", extract.Page),
		items("files", extract.Resource),
		items("folders", extract.Folder),
		modules("labels", extract.Label),
		modules("urls", extract.URL),
		store.NewDataset("forums", extract.ForumColumns(), h.forums.Records(ctx, cc)),
		store.NewDataset("blocks", extract.BlockColumns(), h.blocks.Records(cc)),
	}

	var sections []sectionRow
	for _, s := range cc.Sections {
		sections = append(sections, sectionRow{course: cc.Course, section: s})
	}
	var listed []moduleRow
	for _, m := range cc.Modules {
		listed = append(listed, moduleRow{course: cc.Course, module: m})
	}
	return append(
		datasets,
		store.NewDataset("sections", sectionColumns, sections),
		store.NewDataset("modules", moduleColumns, listed),
		store.NewDataset("resources", resourceColumns, resourceRows(cc.Course, cc.Resources)),
	)
}
