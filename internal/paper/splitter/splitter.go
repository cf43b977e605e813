// Package splitter partitions an imported document's paragraphs into the
// canonical paper sections.
package splitter

import (
	"bytes"
	"strings"

	"github.com/paperdesk/paperdesk/internal/paper"
	"github.com/paperdesk/paperdesk/internal/paper/attachments"
)

// Paragraph is one block of an uploaded document, as produced by a reader.
// Tables holds rendered tables that appeared at this position.
type Paragraph struct {
	Text   string
	Images [][]byte
	Tables []string
}

// Result is the proposed section mapping plus the distinct images and tables
// met during the run, in first-occurrence order. Placeholders in Sections
// use run-local 1-based indices into Images and Tables.
type Result struct {
	Sections map[string]string
	Images   [][]byte
	Tables   []string
}

// Split walks the paragraphs with a section cursor that starts at the title.
// Heading lines move the cursor; all other text, plus one placeholder per
// image or table, accumulates in the current section.
func Split(paragraphs []Paragraph) Result {
	res := Result{Sections: paper.EmptySections()}
	current := paper.SectionTitle
	var buf strings.Builder

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		res.Sections[current] += buf.String()
		buf.Reset()
	}

	for _, p := range paragraphs {
		text := strings.TrimSpace(p.Text)
		if text == "" && len(p.Images) == 0 && len(p.Tables) == 0 {
			continue
		}

		var tokens []string
		for _, img := range p.Images {
			tokens = append(tokens, attachments.Placeholder("image", res.imageIndex(img)))
		}
		for _, tbl := range p.Tables {
			tokens = append(tokens, attachments.Placeholder("table", res.tableIndex(tbl)))
		}

		if h, ok := paper.MatchHeader(text); ok {
			flush()
			current = h.Section
			text = h.Remainder
		}

		if text != "" {
			buf.WriteString(text)
			buf.WriteByte('\n')
		}
		for _, tok := range tokens {
			buf.WriteString(tok)
			buf.WriteByte('\n')
		}
	}
	flush()
	return res
}

func (r *Result) imageIndex(data []byte) int {
	for i, seen := range r.Images {
		if bytes.Equal(seen, data) {
			return i + 1
		}
	}
	r.Images = append(r.Images, data)
	return len(r.Images)
}

func (r *Result) tableIndex(rendered string) int {
	for i, seen := range r.Tables {
		if seen == rendered {
			return i + 1
		}
	}
	r.Tables = append(r.Tables, rendered)
	return len(r.Tables)
}
