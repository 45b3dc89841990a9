// Package extract flattens the activities of a moodle course into records.
// A Kind describes one activity type, Helper runs the extraction every kind
// shares and the book, forum and block adapters add what is particular to
// those activities.
package extract

// Source is where a single-item kind finds the html it cleans.
type Source int

const (
	FromContents Source = iota
	FromDescription
	FromURL
)

// Kind is the configuration of one activity type.
type Kind struct {
	// Name is the moodle modname, it prefixes module columns.
	Name string
	// ItemLabel prefixes the columns of sub-items (chapter, file, component).
	ItemLabel string
	Source    Source
	// HasItems is set for activities with ordered sub-items, every sub-item
	// becomes its own record.
	HasItems bool
	// HasTOC is set when the first content entry is a json table of contents.
	HasTOC bool
}

var (
	Book     = Kind{Name: "book", ItemLabel: "chapter", Source: FromContents, HasItems: true, HasTOC: true}
	Page     = Kind{Name: "page", ItemLabel: "component", Source: FromContents, HasItems: true}
	Resource = Kind{Name: "resource", ItemLabel: "file", Source: FromContents, HasItems: true}
	Folder   = Kind{Name: "folder", ItemLabel: "file", Source: FromContents, HasItems: true}
	Label    = Kind{Name: "label", ItemLabel: "component", Source: FromDescription}
	URL      = Kind{Name: "url", ItemLabel: "component", Source: FromURL}
	Forum    = Kind{Name: "forum", ItemLabel: "component", Source: FromDescription}
)

// Kinds lists every activity type handled by Helper, in extraction order.
var Kinds = []Kind{Book, Page, Label, Resource, Folder, URL, Forum}

func (k Kind) column(field string) string {
	return k.Name + "_" + field
}

// ItemColumn names a field of the items of k, ex. chapter_filename.
func (k Kind) ItemColumn(field string) string {
	return k.ItemLabel + "_" + field
}
