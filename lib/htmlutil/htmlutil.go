package htmlutil

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	nethtml "golang.org/x/net/html"
)

// ParseDocument parses markup leniently, it returns nil only when the
// input is blank.
func ParseDocument(markup string) *goquery.Document {
	if strings.TrimSpace(markup) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	return doc
}

func GetText(node *nethtml.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *nethtml.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == nethtml.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// AttrValues returns the value of every attribute named `key` in document
// order. Keys are compared case-insensitively since the parser lowercases them.
func AttrValues(doc *goquery.Document, key string) []string {
	if doc == nil {
		return nil
	}
	key = strings.ToLower(key)

	var values []string
	var walk func(n *nethtml.Node)
	walk = func(n *nethtml.Node) {
		if n.Type == nethtml.ElementNode {
			for _, a := range n.Attr {
				if a.Key == key {
					values = append(values, a.Val)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return values
}

// DecodeEntities decodes html entities until the string stops changing, the
// backend sometimes double encodes json placed into attributes.
func DecodeEntities(s string) string {
	for i := 0; i < 3; i++ {
		decoded := html.UnescapeString(s)
		if decoded == s {
			return s
		}
		s = decoded
	}
	return s
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

// CleanText collapses whitespace and strips non-printable runes from a
// fragment of scraped text.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	s = innerWhitespace.ReplaceAllString(s, " ")
	return s
}
