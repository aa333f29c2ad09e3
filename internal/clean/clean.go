// Package clean turns raw article HTML into the cleaned text and metadata
// the extraction pipeline operates on.
package clean

import (
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// Result holds the cleaned text plus article metadata.
type Result struct {
	Text      string
	Title     string
	Byline    string
	Publisher string
	Published *time.Time
}

// HTML extracts readable text and metadata from raw article HTML.
// Readability output is preferred; when it yields nothing (paywalled shells,
// odd markup) the visible-text walk is used instead so the pipeline still
// gets a best-effort document rather than an error.
func HTML(rawHTML string, sourceURL string) (*Result, error) {
	parsedURL, err := url.Parse(sourceURL)
	if err != nil {
		return nil, err
	}

	res := &Result{}

	article, rerr := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if rerr == nil {
		res.Text = normalizeText(article.TextContent)
		res.Title = strings.TrimSpace(article.Title)
		res.Byline = strings.TrimSpace(article.Byline)
		res.Publisher = strings.TrimSpace(article.SiteName)
		if article.PublishedTime != nil {
			t := article.PublishedTime.UTC()
			res.Published = &t
		}
	}

	if res.Text == "" {
		res.Text = normalizeText(visibleText(rawHTML))
	}
	if res.Publisher == "" {
		res.Publisher = parsedURL.Hostname()
	}
	if res.Published == nil {
		if t, ok := metaPublished(rawHTML); ok {
			res.Published = &t
		}
	}
	return res, nil
}

// visibleText walks the HTML tree collecting text nodes, skipping
// script/style/nav chrome.
func visibleText(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "nav", "footer", "aside":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return buf.String()
}

// metaPublished looks for a publication timestamp in article meta tags.
func metaPublished(rawHTML string) (time.Time, bool) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return time.Time{}, false
	}

	var found time.Time
	ok := false
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if ok {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			var prop, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "property", "name", "itemprop":
					prop = strings.ToLower(attr.Val)
				case "content":
					content = strings.TrimSpace(attr.Val)
				}
			}
			switch prop {
			case "article:published_time", "og:published_time", "date", "datepublished", "article.published":
				if t, err := parseMetaTime(content); err == nil {
					found, ok = t, true
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found, ok
}

func parseMetaTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Parse(time.RFC3339, s)
}

// normalizeText collapses runs of whitespace so offsets into the cleaned
// text are stable across sources.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
