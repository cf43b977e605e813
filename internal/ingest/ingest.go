// Package ingest turns uploaded files into the paragraph stream consumed by
// the section splitter.
package ingest

import (
	"errors"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"strings"

	"github.com/paperdesk/paperdesk/internal/paper/splitter"
)

var (
	// ErrMalformed wraps any failure to parse uploaded bytes.
	ErrMalformed = errors.New("malformed upload")
	// ErrUnsupported is returned for file types without a reader.
	ErrUnsupported = errors.New("unsupported file type")
)

// Reader converts raw upload bytes into ordered paragraphs.
type Reader interface {
	Read(r io.Reader, filename string) ([]splitter.Paragraph, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".html": true,
	".htm":  true,
	".pdf":  true,
	".docx": true,
}

// ForFile returns the appropriate reader for a filename.
func ForFile(filename string) (Reader, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextReader{}, nil
	case ".md", ".markdown":
		return &MarkdownReader{}, nil
	case ".html", ".htm":
		return &HTMLReader{}, nil
	case ".pdf":
		return &PDFReader{}, nil
	case ".docx":
		return &DOCXReader{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ReadFile picks a reader by filename and reads r with it. Reader failures
// come back wrapped in ErrMalformed.
func ReadFile(r io.Reader, filename string) ([]splitter.Paragraph, error) {
	rd, err := ForFile(filename)
	if err != nil {
		return nil, err
	}
	paras, err := rd.Read(r, filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, filepath.Base(filename), err)
	}
	return paras, nil
}

// renderTable renders a grid of cell texts as an HTML table.
func renderTable(rows [][]string) string {
	var b strings.Builder
	b.WriteString("<table>")
	for _, row := range rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			b.WriteString("<td>")
			// braces escaped so cell text can never form a placeholder
			b.WriteString(strings.ReplaceAll(html.EscapeString(cell), "{", "&#123;"))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table>")
	return b.String()
}
