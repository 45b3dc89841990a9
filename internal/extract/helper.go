package extract

import (
	"context"
	"sort"
	"strings"

	"moodle-harvest/internal/assert"
	"moodle-harvest/internal/components/telemetry"
	"moodle-harvest/lib/cleaner"
	"moodle-harvest/lib/platforms/moodle/core"
	"moodle-harvest/lib/platforms/moodle/pluginfile"
)

const (
	report_helper_unknown_item_type = "helper.unknown-item-type"
	report_helper_unknown_item_id   = "helper.unknown-item-id"
	report_helper_fetch_item        = "helper.fetch-item"
)

// Fetcher downloads pages and files served by moodle, ok is false when the
// content is unavailable.
type Fetcher interface {
	FetchRaw(ctx context.Context, url string) (string, bool)
}

// Helper extracts the records of a single activity kind.
type Helper struct {
	Kind Kind

	fetcher Fetcher
	tel     telemetry.API
}

func NewHelper(kind Kind, fetcher Fetcher, tel telemetry.API) Helper {
	assert.NotNil(fetcher)
	assert.NotNil(tel)
	assert.NotEmptyStr(kind.Name)

	return Helper{
		Kind:    kind,
		fetcher: fetcher,
		tel:     telemetry.NewScopedAPI(kind.Name, tel),
	}
}

// Items extracts every sub-item of every module of the helper's kind. Items
// are sorted by sort order within their module and carry their usage flag.
func (h Helper) Items(ctx context.Context, cc CourseContext) []ItemRecord {
	var records []ItemRecord
	for _, m := range cc.ModulesOf(h.Kind) {
		if ctx.Err() != nil {
			break
		}
		records = append(records, h.moduleItems(ctx, cc, m)...)
	}
	return records
}

func (h Helper) moduleItems(ctx context.Context, cc CourseContext, m core.Module) []ItemRecord {
	fields := newModuleFields(h.Kind, cc.Course, m)
	contents := m.Contents
	if h.Kind.HasTOC {
		fields.TOC, contents = h.splitTOC(m)
	}

	var items []ItemRecord
	for _, content := range contents {
		if content.Type != "file" {
			h.tel.ReportWarning(
				report_helper_unknown_item_type,
				content.Type,
				content.FileURL,
				m.ID,
			)
			continue
		}
		rec, ok := h.item(ctx, cc, m, fields, content)
		if !ok {
			continue
		}
		items = append(items, rec)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Item.SortOrder < items[j].Item.SortOrder
	})
	Reconcile(items)

	for i := range items {
		cleaner.CleanEncodingArtifacts(cleaner.CleanEscapedSlashes(&items[i]))
	}
	return items
}

func (h Helper) item(ctx context.Context, cc CourseContext, m core.Module, fields ModuleFields, content core.Content) (ItemRecord, bool) {
	id, ok := pluginfile.ItemID(content.Filepath, content.FileURL)
	if !ok {
		h.tel.ReportWarning(
			report_helper_unknown_item_id,
			content.Filepath,
			content.FileURL,
			m.ID,
		)
		return ItemRecord{}, false
	}

	tags := make([]string, 0, len(content.Tags))
	for _, t := range content.Tags {
		tags = append(tags, t.RawName)
	}

	rec := ItemRecord{
		Item: Item{
			ID:           id,
			Filename:     pluginfile.Filename(content.FileURL),
			Type:         ItemFile,
			Title:        content.Content,
			Filepath:     content.Filepath,
			Filesize:     content.Filesize,
			FileURL:      content.FileURL,
			TimeModified: content.TimeModified,
			SortOrder:    content.SortOrder,
			Tags:         tags,
		},
		Module: fields,
	}

	if !strings.Contains(content.FileURL, "index.html") {
		return rec, true
	}

	rec.Item.Type = ItemHTML
	raw, ok := h.fetcher.FetchRaw(ctx, content.FileURL)
	if !ok {
		h.tel.ReportWarning(report_helper_fetch_item, "content unavailable", content.FileURL, m.ID)
		return rec, true
	}
	rec.HTML = cc.Cleaner.Process(raw, cc.ref(h.Kind, m, itemRef(id)))
	return rec, true
}

// Reconcile sets the usage flag of items of a single module. Items sharing an
// id form a group: the html item is used when the module is visible, a file
// item when the module is visible and its filename appears in the group's
// cleaned html. Files of a group without an html item are unused.
func Reconcile(items []ItemRecord) {
	html := map[int64]int{}
	for i, it := range items {
		if it.Item.Type != ItemHTML {
			continue
		}
		items[i].Item.Files = nil
		if _, seen := html[it.Item.ID]; !seen {
			html[it.Item.ID] = i
		}
	}

	for i := range items {
		it := &items[i].Item
		visible := items[i].Module.Visible
		switch it.Type {
		case ItemHTML:
			it.IsUsed = visible
		case ItemFile:
			idx, ok := html[it.ID]
			if !ok {
				it.IsUsed = false
				continue
			}
			sibling := &items[idx]
			sibling.Item.Files = append(sibling.Item.Files, it.Filename)
			it.IsUsed = visible && strings.Contains(sibling.HTML.CleanHTML, it.Filename)
		}
	}
}

// Modules extracts one record per module of a single-item kind from the
// module's description, url or first content entry.
func (h Helper) Modules(ctx context.Context, cc CourseContext) []ModuleRecord {
	var records []ModuleRecord
	for _, m := range cc.ModulesOf(h.Kind) {
		if ctx.Err() != nil {
			break
		}
		rec := ModuleRecord{
			Module: newModuleFields(h.Kind, cc.Course, m),
			HTML:   cc.Cleaner.Process(h.source(m), cc.ref(h.Kind, m, itemRef(m.Instance))),
		}
		cleaner.CleanEncodingArtifacts(cleaner.CleanEscapedSlashes(&rec))
		records = append(records, rec)
	}
	return records
}

func (h Helper) source(m core.Module) string {
	switch h.Kind.Source {
	case FromDescription:
		return m.Description
	case FromURL:
		for _, c := range m.Contents {
			if c.Type == "url" && c.FileURL != "" {
				return c.FileURL
			}
		}
		return m.URL
	default:
		if len(m.Contents) > 0 {
			return m.Contents[0].Content
		}
		return ""
	}
}
