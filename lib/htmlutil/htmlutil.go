package htmlutil

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// GetText concatenates every text node under node.
func GetText(node *html.Node) string {
	var buffer strings.Builder
	getTextRecursive(node, &buffer, "")
	return buffer.String()
}

// GetTextSeparated is GetText with sep written between text nodes.
func GetTextSeparated(node *html.Node, sep string) string {
	var buffer strings.Builder
	getTextRecursive(node, &buffer, sep)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *strings.Builder, sep string) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		if sep != "" && buffer.Len() > 0 {
			buffer.WriteString(sep)
		}
		buffer.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		// script and style contents below the root are not text
		if child.Type == html.ElementNode && (child.Data == "script" || child.Data == "style") {
			continue
		}
		getTextRecursive(child, buffer, sep)
	}
}

// SelectionText is GetTextSeparated over every node of a selection.
func SelectionText(sel *goquery.Selection, sep string) string {
	parts := make([]string, 0, len(sel.Nodes))
	for _, n := range sel.Nodes {
		parts = append(parts, GetTextSeparated(n, sep))
	}
	return strings.Join(parts, sep)
}

type Anchor struct {
	Name string
	Href string
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// GetAnchors lists the anchors of a selection that carry a non-empty href,
// names are trimmed to a single line of printable text.
func GetAnchors(sel *goquery.Selection) []Anchor {
	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = a.Val
				break
			}
		}
		if href == "" {
			continue
		}

		name := GetText(n)
		name = removeNonPrintable(name)
		name = strings.TrimSpace(name)
		name = innerWhitespace.ReplaceAllString(name, " ")

		anchors = append(anchors, Anchor{
			Name: name,
			Href: href,
		})
	}
	return anchors
}
