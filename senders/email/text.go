package email

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

var (
	whitespace = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)

	blockElements = map[string]bool{
		"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "tr": true,
	}
)

// PlainText renders the body of an HTML document as plain text, one line
// per block element.
func PlainText(doc string) string {
	root, err := htmlquery.Parse(strings.NewReader(doc))
	if err != nil {
		return ""
	}
	body := htmlquery.FindOne(root, "//body")
	if body == nil {
		body = root
	}

	buf := new(bytes.Buffer)
	dig(body, buf)
	return compactWhitespace(buf.String())
}

func dig(n *html.Node, buf *bytes.Buffer) {
	if n == nil {
		return
	}
	switch n.Type {
	case html.TextNode:
		buf.WriteString(n.Data)
	case html.ElementNode:
		if n.Data == "li" {
			buf.WriteString("\n- ")
		} else if blockElements[n.Data] {
			buf.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		dig(c, buf)
	}
	if n.Type == html.ElementNode && n.Data == "a" {
		if href := htmlquery.SelectAttr(n, "href"); href != "" {
			buf.WriteString(" (" + href + ")")
		}
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		buf.WriteString("\n")
	}
}

func compactWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Trim(whitespace.ReplaceAllString(line, " "), " ")
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.Trim(s, "\n")
}
