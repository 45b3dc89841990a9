package extract

import (
	"strconv"

	"moodle-harvest/lib/cleaner"
	"moodle-harvest/lib/platforms/moodle/core"
)

// CourseContext is everything fetched up front for one course. It is built
// once per course and handed to every adapter.
type CourseContext struct {
	Course    core.Course
	Sections  []core.Section
	Modules   []core.Module
	Blocks    []core.Block
	Resources []core.Resource

	// Cleaner writes extracted images under the course's output directory.
	Cleaner cleaner.Processor
}

// NewCourseContext flattens the modules of every section, each module keeps
// the id of its section.
func NewCourseContext(course core.Course, sections []core.Section, blocks []core.Block, resources []core.Resource, proc cleaner.Processor) CourseContext {
	var modules []core.Module
	for _, s := range sections {
		for _, m := range s.Modules {
			m.SectionID = s.ID
			modules = append(modules, m)
		}
	}
	return CourseContext{
		Course:    course,
		Sections:  sections,
		Modules:   modules,
		Blocks:    blocks,
		Resources: resources,
		Cleaner:   proc,
	}
}

// ModulesOf returns the modules of the given kind in course order.
func (cc CourseContext) ModulesOf(kind Kind) []core.Module {
	var out []core.Module
	for _, m := range cc.Modules {
		if m.ModName == kind.Name {
			out = append(out, m)
		}
	}
	return out
}

func (cc CourseContext) ref(kind Kind, m core.Module, itemID string) cleaner.Ref {
	return cleaner.Ref{
		Kind:       kind.Name,
		CourseID:   cc.Course.ID,
		CMID:       m.ID,
		ModuleName: m.Name,
		ItemID:     itemID,
	}
}

func itemRef(id int64) string {
	return strconv.FormatInt(id, 10)
}
