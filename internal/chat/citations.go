package chat

import (
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/abelbrown/skywatch/internal/api"
)

var (
	markdownOnce   sync.Once
	markdownParser goldmark.Markdown
)

func parser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownParser = goldmark.New(goldmark.WithExtensions(extension.Linkify))
	})
	return markdownParser
}

// inlineLinks returns the http(s) links in a markdown reply, in document
// order. Link text becomes the citation title.
func inlineLinks(content string) []api.Citation {
	if content == "" {
		return nil
	}
	source := []byte(content)
	doc := parser().Parser().Parse(text.NewReader(source))

	var out []api.Citation
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindLink:
			link := n.(*ast.Link)
			dest := string(link.Destination)
			if isWebURL(dest) {
				title := plainText(link, source)
				if title == "" {
					title = dest
				}
				out = append(out, api.Citation{Title: title, URL: dest})
			}
			return ast.WalkSkipChildren, nil
		case ast.KindAutoLink:
			u := string(n.(*ast.AutoLink).URL(source))
			if isWebURL(u) {
				out = append(out, api.Citation{Title: u, URL: u})
			}
		}
		return ast.WalkContinue, nil
	})
	return out
}

func plainText(n ast.Node, source []byte) string {
	var b strings.Builder
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && c.Kind() == ast.KindText {
			b.Write(c.(*ast.Text).Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func isWebURL(u string) bool {
	return strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://")
}

// Aggregate collects the citations of every fulfilled assistant turn plus
// the links inside their text. A citation with an ID is deduplicated by
// ID; one without is deduplicated by URL. First occurrence wins.
func Aggregate(turns []Turn) []api.Citation {
	seenID := make(map[string]bool)
	seenURL := make(map[string]bool)
	var out []api.Citation

	add := func(c api.Citation) {
		switch {
		case c.ID != "":
			if seenID[c.ID] {
				return
			}
			seenID[c.ID] = true
		case c.URL != "":
			if seenURL[c.URL] {
				return
			}
		default:
			return
		}
		if c.URL != "" {
			seenURL[c.URL] = true
		}
		out = append(out, c)
	}

	for _, t := range turns {
		if t.Role != Assistant || t.Status != Fulfilled {
			continue
		}
		for _, c := range t.Citations {
			add(c)
		}
		for _, c := range inlineLinks(t.Content) {
			add(c)
		}
	}
	return out
}
