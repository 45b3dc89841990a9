package extract

import (
	"encoding/json"
	"strings"

	"moodle-harvest/internal/components/telemetry"
	"moodle-harvest/lib/cleaner"
	"moodle-harvest/lib/htmlutil"
	"moodle-harvest/lib/platforms/moodle/core"
	"moodle-harvest/lib/platforms/moodle/pluginfile"

	"github.com/PuerkitoBio/goquery"
)

const report_block_parse = "block.parse"

// ResourceRef is the course resource a pluginfile url points into.
type ResourceRef struct {
	ResourceID   int64  `json:"resource_id"`
	CourseModule int64  `json:"resource_coursemodule"`
	Name         string `json:"resource_name"`
	Visible      bool   `json:"resource_visible"`
	Revision     int64  `json:"resource_revision"`
	Filename     string `json:"filename"`
	Filesize     int64  `json:"filesize"`
	Mimetype     string `json:"mimetype"`
	FileURL      string `json:"fileurl"`
	TimeModified int64  `json:"timemodified"`
}

// ResourceLookup indexes course resource files by the id following
// pluginfile.php in their url.
type ResourceLookup map[string]ResourceRef

func NewResourceLookup(resources []core.Resource) ResourceLookup {
	lookup := ResourceLookup{}
	for _, r := range resources {
		for _, f := range r.ContentFiles {
			id, ok := pluginfile.ResourceID(f.FileURL)
			if !ok {
				continue
			}
			lookup[id] = ResourceRef{
				ResourceID:   r.ID,
				CourseModule: r.CourseModule,
				Name:         r.Name,
				Visible:      bool(r.Visible),
				Revision:     r.Revision,
				Filename:     f.Filename,
				Filesize:     f.Filesize,
				Mimetype:     f.Mimetype,
				FileURL:      f.FileURL,
				TimeModified: f.TimeModified,
			}
		}
	}
	return lookup
}

// Find resolves a url, only pluginfile urls can match.
func (l ResourceLookup) Find(url string) *ResourceRef {
	if !strings.Contains(url, "pluginfile.php") {
		return nil
	}
	id, ok := pluginfile.ResourceID(url)
	if !ok {
		return nil
	}
	ref, ok := l[id]
	if !ok {
		return nil
	}
	return &ref
}

func (r *ResourceRef) mapStrings(fn func(string) string) {
	if r == nil {
		return
	}
	r.Name = fn(r.Name)
	r.Filename = fn(r.Filename)
	r.Mimetype = fn(r.Mimetype)
	r.FileURL = fn(r.FileURL)
}

type Link struct {
	Text     string       `json:"text"`
	URL      string       `json:"url"`
	Resource *ResourceRef `json:"resource,omitempty"`
}

type Media struct {
	Type     string       `json:"type"`
	URL      string       `json:"url"`
	Alt      string       `json:"alt"`
	Resource *ResourceRef `json:"resource,omitempty"`
}

// BlockRecord is one row of the block table.
type BlockRecord struct {
	CourseID       int64
	CourseName     string
	CourseFullName string

	ID      int64
	Title   string
	Type    string
	Visible bool
	Region  string
	Weight  int

	Text  string
	Links []Link
	Media []Media
}

func BlockColumns() []string {
	return []string{
		"course_id",
		"course_name",
		"course_fullname",
		"block_id",
		"block_name",
		"block_type",
		"visible",
		"region",
		"weight",
		"text_content",
		"url_content",
		"resources_content",
	}
}

func (r BlockRecord) Columns() []string {
	return BlockColumns()
}

func (r BlockRecord) Values() []string {
	return []string{
		formatInt(r.CourseID),
		r.CourseName,
		r.CourseFullName,
		formatInt(r.ID),
		r.Title,
		r.Type,
		formatBool(r.Visible),
		r.Region,
		formatInt(int64(r.Weight)),
		r.Text,
		formatJSON(r.Links),
		formatJSON(r.Media),
	}
}

func (r *BlockRecord) MapStrings(fn func(string) string) {
	r.CourseName = fn(r.CourseName)
	r.CourseFullName = fn(r.CourseFullName)
	r.Title = fn(r.Title)
	r.Region = fn(r.Region)
	r.Text = fn(r.Text)
	for i := range r.Links {
		r.Links[i].Text = fn(r.Links[i].Text)
		r.Links[i].URL = fn(r.Links[i].URL)
		r.Links[i].Resource.mapStrings(fn)
	}
	for i := range r.Media {
		r.Media[i].URL = fn(r.Media[i].URL)
		r.Media[i].Alt = fn(r.Media[i].Alt)
		r.Media[i].Resource.mapStrings(fn)
	}
}

// BlockAdapter parses the html of course blocks.
type BlockAdapter struct {
	tel telemetry.API
}

func NewBlockAdapter(tel telemetry.API) BlockAdapter {
	return BlockAdapter{tel: telemetry.NewScopedAPI("block", tel)}
}

// configString decodes a json encoded config value, anything else is
// returned as is and left to the cleaners.
func configString(value string) string {
	var decoded string
	if strings.HasPrefix(value, `"`) && json.Unmarshal([]byte(value), &decoded) == nil {
		return decoded
	}
	return value
}

// Records returns one row per block with the text, links and media of its
// html, pluginfile urls are joined with the course resources.
func (a BlockAdapter) Records(cc CourseContext) []BlockRecord {
	lookup := NewResourceLookup(cc.Resources)

	records := make([]BlockRecord, 0, len(cc.Blocks))
	for _, b := range cc.Blocks {
		rec := BlockRecord{
			CourseID:       cc.Course.ID,
			CourseName:     cc.Course.ShortName,
			CourseFullName: cc.Course.FullName,
			ID:             b.InstanceID,
			Type:           b.Name,
			Visible:        bool(b.Visible),
			Region:         b.Region,
			Weight:         b.Weight,
			Links:          []Link{},
			Media:          []Media{},
		}
		if title, ok := b.Config("title"); ok {
			rec.Title = cleaner.CleanText(configString(title))
		}
		if text, ok := b.Config("text"); ok && text != "" {
			a.parseText(&rec, configString(text), lookup)
		}

		cleaner.CleanEncodingArtifacts(cleaner.CleanEscapedSlashes(&rec))
		records = append(records, rec)
	}
	return records
}

func (a BlockAdapter) parseText(rec *BlockRecord, text string, lookup ResourceLookup) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		a.tel.ReportWarning(report_block_parse, err, rec.ID)
		return
	}

	rec.Text = cleaner.CleanText(htmlutil.SelectionText(doc.Selection, " "))

	for _, anchor := range htmlutil.GetAnchors(doc.Find("a")) {
		url := cleaner.CleanURL(anchor.Href)
		rec.Links = append(rec.Links, Link{
			Text:     cleaner.CleanText(anchor.Name),
			URL:      url,
			Resource: lookup.Find(url),
		})
	}

	doc.Find("img, video, audio, source").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", "")
		if src == "" {
			return
		}
		url := cleaner.CleanURL(src)
		rec.Media = append(rec.Media, Media{
			Type:     goquery.NodeName(s),
			URL:      url,
			Alt:      cleaner.CleanText(s.AttrOr("alt", "")),
			Resource: lookup.Find(url),
		})
	})
}
