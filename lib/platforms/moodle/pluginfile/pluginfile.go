// Package pluginfile recovers identifiers from moodle's file serving urls, ex.
// https://host/webservice/pluginfile.php/<context id>/mod_book/chapter/<chapter id>/index.html
package pluginfile

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const script = "pluginfile.php"

func pathSegments(raw string) []string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.Split(raw, "/")
	}
	return strings.Split(u.EscapedPath(), "/")
}

// ResourceID returns the path segment that follows pluginfile.php.
func ResourceID(raw string) (string, bool) {
	segments := pathSegments(raw)
	for i, s := range segments {
		if s != script {
			continue
		}
		if i+1 >= len(segments) || segments[i+1] == "" {
			return "", false
		}
		return segments[i+1], true
	}
	return "", false
}

var webserviceItemRegex = regexp.MustCompile(`webservice/pluginfile\.php/(\d+)/`)

// ItemID derives the id of a module sub-item. The last segment of filepath
// that is an integer wins ("/12/images/" gives 12), otherwise the id that
// follows webservice/pluginfile.php in fileurl is used.
func ItemID(filepath, fileurl string) (int64, bool) {
	segments := strings.Split(strings.Trim(filepath, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if id, err := strconv.ParseInt(segments[i], 10, 64); err == nil {
			return id, true
		}
	}

	groups := webserviceItemRegex.FindStringSubmatch(fileurl)
	if len(groups) < 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(groups[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Filename is the last path segment of a url without its query, percent
// escapes are kept as they appear in the url.
func Filename(raw string) string {
	segments := pathSegments(raw)
	name := segments[len(segments)-1]
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	return name
}
