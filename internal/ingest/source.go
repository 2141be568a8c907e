// Package ingest loads source documents into the built-in entity store so
// they can be audited: plain text, HTML, and PDF files.
package ingest

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document is extracted source content ready to store as a content item.
type Document struct {
	Title string
	Body  string // markup
}

// FromFile reads a document from disk, dispatching on extension: .pdf is
// text-extracted, .html/.htm passes through as markup, anything else is
// treated as plain text and escaped into paragraph markup.
func FromFile(path string) (Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return fromPDF(path)
	case ".html", ".htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return Document{}, fmt.Errorf("reading html file: %w", err)
		}
		return Document{Title: baseTitle(path), Body: string(data)}, nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return Document{}, fmt.Errorf("reading file: %w", err)
		}
		return FromText(baseTitle(path), string(data)), nil
	}
}

// FromText wraps plain text into paragraph markup, escaping HTML
// metacharacters so raw text never injects markup into the render path.
func FromText(title, text string) Document {
	var sb strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		sb.WriteString("<p>")
		sb.WriteString(html.EscapeString(para))
		sb.WriteString("</p>\n")
	}
	return Document{Title: title, Body: sb.String()}
}

func fromPDF(path string) (Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	reader, err := r.GetPlainText()
	if err != nil {
		return Document{}, fmt.Errorf("extracting pdf text: %w", err)
	}
	if _, err := buf.ReadFrom(reader); err != nil {
		return Document{}, fmt.Errorf("reading pdf text: %w", err)
	}

	return FromText(baseTitle(path), buf.String()), nil
}

func baseTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
