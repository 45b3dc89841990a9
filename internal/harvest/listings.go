package harvest

import (
	"strconv"

	"moodle-harvest/lib/platforms/moodle/core"
)

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func btoa(b bool) string {
	return strconv.FormatBool(b)
}

// sectionRow is one row of the sections listing.
type sectionRow struct {
	course  core.Course
	section core.Section
}

var sectionColumns = []string{
	"course_id",
	"section_id",
	"section_number",
	"section_name",
	"section_visible",
	"section_summary",
	"section_module_count",
}

func (r sectionRow) Columns() []string { return sectionColumns }

func (r sectionRow) Values() []string {
	return []string{
		itoa(r.course.ID),
		itoa(r.section.ID),
		strconv.Itoa(r.section.Section),
		r.section.Name,
		btoa(bool(r.section.Visible)),
		r.section.Summary,
		strconv.Itoa(len(r.section.Modules)),
	}
}

// moduleRow is one row of the listing of every module of a course.
type moduleRow struct {
	course core.Course
	module core.Module
}

var moduleColumns = []string{
	"course_id",
	"section_id",
	"cmid",
	"instance",
	"modname",
	"name",
	"visible",
	"url",
	"content_count",
}

func (r moduleRow) Columns() []string { return moduleColumns }

func (r moduleRow) Values() []string {
	return []string{
		itoa(r.course.ID),
		itoa(r.module.SectionID),
		itoa(r.module.ID),
		itoa(r.module.Instance),
		r.module.ModName,
		r.module.Name,
		btoa(bool(r.module.Visible)),
		r.module.URL,
		strconv.Itoa(len(r.module.Contents)),
	}
}

// resourceRow is one file of the course resource listing.
type resourceRow struct {
	course   core.Course
	resource core.Resource
	file     core.ResourceFile
}

var resourceColumns = []string{
	"course_id",
	"resource_id",
	"resource_coursemodule",
	"resource_name",
	"resource_visible",
	"resource_revision",
	"filename",
	"filesize",
	"mimetype",
	"fileurl",
	"timemodified",
}

func (r resourceRow) Columns() []string { return resourceColumns }

func (r resourceRow) Values() []string {
	return []string{
		itoa(r.course.ID),
		itoa(r.resource.ID),
		itoa(r.resource.CourseModule),
		r.resource.Name,
		btoa(bool(r.resource.Visible)),
		itoa(r.resource.Revision),
		r.file.Filename,
		itoa(r.file.Filesize),
		r.file.Mimetype,
		r.file.FileURL,
		itoa(r.file.TimeModified),
	}
}

func resourceRows(course core.Course, resources []core.Resource) []resourceRow {
	var rows []resourceRow
	for _, r := range resources {
		if len(r.ContentFiles) == 0 {
			rows = append(rows, resourceRow{course: course, resource: r})
			continue
		}
		for _, f := range r.ContentFiles {
			rows = append(rows, resourceRow{course: course, resource: r, file: f})
		}
	}
	return rows
}
