package extractor

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/quarry-ai/quarry/pkg/apperror"
)

// extractHTML strips markup and returns the visible text of the document.
// Script and style bodies are removed; block elements collapse to newlines.
func extractHTML(data []byte) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperror.ErrExtractionFailed.WithMessage("failed to parse HTML").WithInternal(err)
	}

	doc.Find("script, style, noscript").Remove()

	metadata := map[string]any{}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		metadata["title"] = title
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var blocks []string
	root.Find("p, h1, h2, h3, h4, h5, h6, li, td, th, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		if text := normalizeSpace(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})

	text := strings.Join(blocks, "\n\n")
	if text == "" {
		// Markup without block elements: fall back to the raw body text.
		text = normalizeSpace(root.Text())
	}

	return &Result{
		Text:      text,
		Metadata:  metadata,
		PageCount: 1,
		WordCount: countWords(text),
	}, nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
