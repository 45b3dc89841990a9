package extract

import (
	"encoding/json"
	"fmt"

	"moodle-harvest/lib/platforms/moodle/core"
)

const report_book_toc = "book.toc"

// TOCEntry is one chapter of a book's table of contents.
type TOCEntry struct {
	Title    string     `json:"title"`
	Href     string     `json:"href"`
	Level    int        `json:"level"`
	Hidden   core.Flag  `json:"hidden"`
	SubItems []TOCEntry `json:"subitems"`
}

func (e *TOCEntry) mapStrings(fn func(string) string) {
	e.Title = fn(e.Title)
	e.Href = fn(e.Href)
	for i := range e.SubItems {
		e.SubItems[i].mapStrings(fn)
	}
}

// splitTOC separates the table of contents a book lists as its first content
// entry from its chapters. The entry is skipped even when it fails to decode.
func (h Helper) splitTOC(m core.Module) ([]TOCEntry, []core.Content) {
	contents := m.Contents
	if len(contents) == 0 || contents[0].Type != "content" {
		return nil, contents
	}

	var toc []TOCEntry
	err := json.Unmarshal([]byte(contents[0].Content), &toc)
	if err != nil {
		h.tel.ReportWarning(
			report_book_toc,
			fmt.Errorf("decode table of contents: %w", err),
			m.ID,
			m.Name,
		)
		return nil, contents[1:]
	}
	return toc, contents[1:]
}
