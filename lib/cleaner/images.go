package cleaner

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ImagesDir is the directory, relative to a course directory, that embedded
// images are written to.
const ImagesDir = "images"

const (
	report_processor_unhandled_data_url = "processor.unhandled-data-url"
	report_processor_extract_image      = "processor.extract-image"
)

var unsafeNameRegex = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func sanitizeName(name string) string {
	name = unsafeNameRegex.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "untitled"
	}
	return name
}

// ImageFilename is the deterministic name an embedded image is saved under.
func ImageFilename(ref Ref, seq int, ext string) string {
	return fmt.Sprintf("%d_%s_%s_%d.%s", ref.CMID, sanitizeName(ref.ModuleName), ref.ItemID, seq, ext)
}

type dataURL struct {
	mediaType string
	base64    bool
	payload   string
}

func parseDataURL(src string) (dataURL, bool) {
	rest, ok := strings.CutPrefix(src, "data:")
	if !ok {
		return dataURL{}, false
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return dataURL{}, false
	}
	params := strings.Split(meta, ";")
	out := dataURL{
		mediaType: strings.ToLower(strings.TrimSpace(params[0])),
		payload:   payload,
	}
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			out.base64 = true
		}
	}
	return out, true
}

// image/png gives png, image/svg+xml gives svg
func imageExtension(mediaType string) (string, bool) {
	sub, ok := strings.CutPrefix(mediaType, "image/")
	if !ok || sub == "" {
		return "", false
	}
	sub, _, _ = strings.Cut(sub, "+")
	return sub, true
}

func decodePayload(d dataURL) ([]byte, error) {
	if !d.base64 {
		return nil, fmt.Errorf("data url is not base64 encoded")
	}
	payload := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, d.payload)
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	return decoded, err
}

// ExtractImages writes every base64 image embedded in an img element to
// Dir/images and points the element at the saved file. Elements that cannot
// be handled are reported and left untouched. It returns the number of
// images saved.
func (p Processor) ExtractImages(doc *goquery.Document, ref Ref) int {
	saved := 0
	seq := 0
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		d, ok := parseDataURL(src)
		if !ok {
			return
		}
		ext, ok := imageExtension(d.mediaType)
		if !ok {
			p.tel.ReportWarning(report_processor_unhandled_data_url, d.mediaType, ref.String())
			return
		}

		seq++
		name := ImageFilename(ref, seq, ext)

		contents, err := decodePayload(d)
		if err != nil {
			p.tel.ReportWarning(report_processor_extract_image, fmt.Errorf("decode %s: %w", name, err), ref.String())
			return
		}
		err = writeImage(filepath.Join(p.Dir, ImagesDir), name, contents)
		if err != nil {
			p.tel.ReportWarning(report_processor_extract_image, fmt.Errorf("write %s: %w", name, err), ref.String())
			return
		}

		s.SetAttr("src", ImagesDir+"/"+name)
		saved++
	})
	return saved
}

func writeImage(dir, name string, contents []byte) error {
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), contents, 0666)
}
