package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// GetTextSpaced is GetText with a space between adjacent text nodes, so
// inline markup boundaries never glue words together.
func GetTextSpaced(node *html.Node) string {
	var parts []string
	collectTextNodes(node, &parts)
	return strings.Join(parts, " ")
}

func collectTextNodes(node *html.Node, parts *[]string) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		if t := strings.TrimSpace(node.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	child := node.FirstChild
	for child != nil {
		collectTextNodes(child, parts)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText collapses a selection into a single line of printable text.
// Block boundaries become single spaces, matching what the downstream
// record format expects for question text and explanations.
func CleanText(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		parts = append(parts, GetTextSpaced(n))
	}
	text := strings.Join(parts, " ")
	text = removeNonPrintable(text)
	text = strings.Trim(text, " \t\n")
	return innerWhitespace.ReplaceAllString(text, " ")
}
