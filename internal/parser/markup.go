package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// parseMarkup renders the title, every form with its fields and buttons, and
// the visible page text. Counts land in meta.
func parseMarkup(data []byte, meta map[string]any) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	var parts []string

	title := doc.Find("title").First()
	if title.Length() > 0 {
		t := strings.TrimSpace(title.Text())
		parts = append(parts, "Page Title: "+t)
		meta["title"] = t
	}

	inputs, buttons := 0, 0
	forms := doc.Find("form")
	forms.Each(func(_ int, form *goquery.Selection) {
		parts = append(parts, "\n--- Form ---")
		parts = append(parts, "Form ID: "+attrOr(form, "id", "unnamed"))

		form.Find("input, textarea, select").Each(func(_ int, in *goquery.Selection) {
			parts = append(parts, describeInput(in))
			inputs++
		})

		form.Find("button, input").Each(func(_ int, btn *goquery.Selection) {
			typ, _ := btn.Attr("type")
			if goquery.NodeName(btn) != "button" && typ != "submit" && typ != "button" {
				return
			}
			text := strings.TrimSpace(btn.Text())
			if text == "" {
				text, _ = btn.Attr("value")
			}
			id, _ := btn.Attr("id")
			parts = append(parts, fmt.Sprintf("Button: %s (id: %s)", text, id))
			buttons++
		})
	})

	doc.Find("script, style, noscript, template").Remove()
	parts = append(parts, "\n--- Page Content ---")
	parts = append(parts, VisibleText(doc.Selection))

	meta["forms"] = forms.Length()
	meta["inputs"] = inputs
	meta["buttons"] = buttons

	return Normalize(strings.Join(parts, "\n")), nil
}

func describeInput(in *goquery.Selection) string {
	var b strings.Builder
	b.WriteString("Input: ")
	b.WriteString(goquery.NodeName(in))
	if typ := attrOr(in, "type", "text"); typ != "text" {
		fmt.Fprintf(&b, " (type: %s)", typ)
	}
	for _, name := range []string{"id", "name", "placeholder"} {
		if v, _ := in.Attr(name); v != "" {
			fmt.Fprintf(&b, " %s='%s'", name, v)
		}
	}
	return b.String()
}

func attrOr(s *goquery.Selection, name, fallback string) string {
	if v, ok := s.Attr(name); ok {
		return v
	}
	return fallback
}

// VisibleText joins every non-blank text node under sel with single spaces.
func VisibleText(sel *goquery.Selection) string {
	var words []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				words = append(words, t)
			}
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template", "head":
				return
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(words, " ")
}
