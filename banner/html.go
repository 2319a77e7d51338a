package banner

import (
	"bytes"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// CleanText decodes HTML entities in s and collapses whitespace. Banner
// escapes stored text, so fragments need it after markup parsing too.
func CleanText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

// FragmentText strips every tag from an HTML fragment and decodes entities
// twice, since Banner escapes the stored text before embedding it in markup.
func FragmentText(fragment []byte) (string, error) {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(fragment))
	if err != nil {
		return "", err
	}
	return CleanText(document.Text()), nil
}

var errNoLabel = errors.New("label not found")

// LabeledValue returns the text that follows a bold label such as "Title:" in
// a catalog details fragment, up to the next element.
func LabeledValue(fragment []byte, label string) (string, error) {
	document, err := goquery.NewDocumentFromReader(bytes.NewReader(fragment))
	if err != nil {
		return "", err
	}

	var value string
	found := false
	document.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		if CleanText(span.Text()) != label {
			return true
		}
		found = true

		var b strings.Builder
		for node := span.Nodes[0].NextSibling; node != nil && node.Type == html.TextNode; node = node.NextSibling {
			b.WriteString(node.Data)
		}
		value = CleanText(b.String())
		return false
	})
	if !found {
		return "", errNoLabel
	}
	return value, nil
}
