package importer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ParseHTMLExport reads a journal HTML export and returns its dated
// entries. It expects one <article> per entry, with the date in a
// <time datetime="..."> element or a data-date attribute; this covers
// the common export shapes of Day One and journey-style apps.
func ParseHTMLExport(r io.Reader) ([]ParsedEntry, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html export: %w", err)
	}

	var entries []ParsedEntry
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "article" {
			if e, ok := parseArticle(n); ok {
				entries = append(entries, e)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	if len(entries) == 0 {
		return nil, fmt.Errorf("no journal entries found in html export")
	}
	return entries, nil
}

func parseArticle(article *html.Node) (ParsedEntry, bool) {
	date, ok := articleDate(article)
	if !ok {
		return ParsedEntry{}, false
	}

	var parts []string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "time", "h1", "h2", "h3":
				return
			case "p", "li":
				text := strings.TrimSpace(textContent(n))
				if text != "" {
					parts = append(parts, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(article)

	if len(parts) == 0 {
		return ParsedEntry{}, false
	}
	return ParsedEntry{Date: date, Content: strings.Join(parts, "\n\n")}, true
}

func articleDate(article *html.Node) (time.Time, bool) {
	if raw, ok := attrValue(article, "data-date"); ok {
		if d, err := parseDate(raw); err == nil {
			return d, true
		}
	}

	var found time.Time
	var ok bool
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if ok {
			return
		}
		if n.Type == html.ElementNode && n.Data == "time" {
			if raw, has := attrValue(n, "datetime"); has {
				if d, err := parseDate(raw); err == nil {
					found, ok = d, true
					return
				}
			}
			if d, err := parseDate(strings.TrimSpace(textContent(n))); err == nil {
				found, ok = d, true
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(article)
	return found, ok
}

func attrValue(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return sb.String()
}

// dateLayouts covers the formats journal exports put on entries.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
