package cleaner

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"moodle-harvest/internal/components/telemetry"
	"moodle-harvest/lib/htmlutil"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// MaxHTMLLength is the most characters kept of a cleaned html document.
const MaxHTMLLength = 32000

const (
	report_processor_process  = "processor.process"
	report_processor_truncate = "processor.truncate"
	report_processor_markdown = "processor.markdown"
)

// Result holds every rendering of one html document.
type Result struct {
	// CleanHTML is the document with images externalized and urls cleaned.
	CleanHTML string
	// CleanestHTML keeps only href, src and alt attributes and drops style
	// and script elements.
	CleanestHTML string
	Text         string
	Markdown     string

	Images    int
	Truncated bool
}

// MapStrings implements StringMapper.
func (r *Result) MapStrings(fn func(string) string) {
	r.CleanHTML = fn(r.CleanHTML)
	r.CleanestHTML = fn(r.CleanestHTML)
	r.Text = fn(r.Text)
	r.Markdown = fn(r.Markdown)
}

// Ref identifies the module and item a document belongs to, it names saved
// images and labels reports.
type Ref struct {
	Kind       string
	CourseID   int64
	CMID       int64
	ModuleName string
	ItemID     string
}

func (r Ref) String() string {
	return fmt.Sprintf("kind=%s course=%d cmid=%d item=%s", r.Kind, r.CourseID, r.CMID, r.ItemID)
}

// Processor cleans the html of a single course, images are written under Dir.
type Processor struct {
	Dir string

	tel      telemetry.API
	markdown *converter.Converter
}

func NewProcessor(dir string, tel telemetry.API) Processor {
	return Processor{
		Dir: dir,
		tel: telemetry.NewScopedAPI("cleaner", tel),
		markdown: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

var bareURLRegex = regexp.MustCompile(`^https?://\S+$`)

var asciiOnly = runes.Remove(runes.Predicate(func(r rune) bool {
	return r > unicode.MaxASCII
}))

// ToASCII drops every rune outside of 7-bit ascii.
func ToASCII(s string) string {
	out, _, err := transform.String(asciiOnly, s)
	if err != nil {
		return s
	}
	return out
}

// Process renders raw html into every Result variant. A document that is
// nothing but a single url is returned unchanged in every field.
func (p Processor) Process(raw string, ref Ref) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{}
	}
	if bareURLRegex.MatchString(trimmed) {
		return Result{
			CleanHTML:    raw,
			CleanestHTML: raw,
			Text:         raw,
			Markdown:     raw,
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(ToASCII(raw)))
	if err != nil {
		p.tel.ReportBroken(report_processor_process, fmt.Errorf("parse: %w", err), ref.String())
		return Result{}
	}

	images := p.ExtractImages(doc, ref)
	rewriteURLs(doc.Selection)

	body := doc.Find("body")
	clean, err := body.Html()
	if err != nil {
		p.tel.ReportBroken(report_processor_process, fmt.Errorf("render: %w", err), ref.String())
		return Result{}
	}

	res := Result{
		CleanHTML: clean,
		Text:      CleanText(htmlutil.SelectionText(body, " ")),
		Images:    images,
	}

	res.CleanestHTML, err = cleanest(clean)
	if err != nil {
		p.tel.ReportBroken(report_processor_process, fmt.Errorf("strip attributes: %w", err), ref.String())
	}

	res.Markdown, err = p.markdown.ConvertString(clean)
	if err != nil {
		p.tel.ReportWarning(report_processor_markdown, err, ref.String())
		res.Markdown = ""
	}

	originalLength := len(res.CleanHTML)
	res.CleanHTML, res.Truncated = truncate(res.CleanHTML, MaxHTMLLength)
	var cut bool
	res.CleanestHTML, cut = truncate(res.CleanestHTML, MaxHTMLLength)
	res.Truncated = res.Truncated || cut
	if res.Truncated {
		p.tel.ReportWarning(
			report_processor_truncate,
			fmt.Sprintf("html exceeds %d characters", MaxHTMLLength),
			originalLength,
			ref.String(),
		)
	}

	return res
}

func truncate(s string, limit int) (string, bool) {
	if len(s) <= limit {
		return s, false
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i], true
		}
		count++
	}
	return s, false
}

func rewriteURLs(sel *goquery.Selection) {
	sel.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		s.SetAttr("href", CleanURL(s.AttrOr("href", "")))
	})
	sel.Find("img[src], video[src], audio[src], source[src], iframe[src]").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", "")
		if strings.HasPrefix(src, "data:") {
			return
		}
		s.SetAttr("src", CleanURL(src))
	})
}

var keptAttributes = map[string]bool{
	"href": true,
	"src":  true,
	"alt":  true,
}

func cleanest(clean string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(clean))
	if err != nil {
		return "", err
	}
	doc.Find("style, script").Remove()
	for _, n := range doc.Find("*").Nodes {
		stripAttributes(n)
	}
	return doc.Find("body").Html()
}

func stripAttributes(n *html.Node) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if keptAttributes[a.Key] {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}
