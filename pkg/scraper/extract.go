package scraper

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	minParagraphChars = 40
	minStandardChars  = 200
	minRecallChars    = 20
)

const (
	noiseSelector   = "script, style, noscript, template, iframe, svg, form, nav, header, footer, aside, [role=navigation], [aria-hidden=true]"
	recallSelector  = "p, li, h1, h2, h3, h4, h5, h6, blockquote, pre, td"
	contentSelector = "article, [itemprop=articleBody], main, [role=main]"
)

// Extract returns the readable text of an HTML document. Standard mode keeps
// substantial paragraphs of the main content block; recall mode keeps every
// text block of the body. ok is false when nothing usable was found.
func Extract(raw []byte, recall bool) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", false
	}
	doc.Find(noiseSelector).Remove()

	var text string
	if recall {
		text = extractRecall(doc)
	} else {
		text = extractStandard(doc)
	}
	if text == "" {
		return "", false
	}
	return text, true
}

func extractStandard(doc *goquery.Document) string {
	root := doc.Find(contentSelector).First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var paragraphs []string
	root.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := normalizeSpace(p.Text())
		if len(text) >= minParagraphChars {
			paragraphs = append(paragraphs, text)
		}
	})

	text := strings.Join(paragraphs, "\n\n")
	if len(text) < minStandardChars {
		return ""
	}
	return text
}

func extractRecall(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	var blocks []string
	seen := map[string]struct{}{}
	body.Find(recallSelector).Each(func(_ int, s *goquery.Selection) {
		// nested blocks are covered by their outermost block
		if s.ParentsFiltered(recallSelector).Length() > 0 {
			return
		}
		text := normalizeSpace(s.Text())
		if text == "" {
			return
		}
		if _, dup := seen[text]; dup {
			return
		}
		seen[text] = struct{}{}
		blocks = append(blocks, text)
	})

	text := strings.Join(blocks, "\n\n")
	if text == "" {
		text = normalizeSpace(body.Text())
	}
	if len(text) < minRecallChars {
		return ""
	}
	return text
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Title returns the document title, preferring og:title
func Title(raw []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok && strings.TrimSpace(og) != "" {
		return normalizeSpace(og)
	}
	return normalizeSpace(doc.Find("title").First().Text())
}
