package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/paperdesk/paperdesk/internal/paper/splitter"
)

// DOCXReader handles .docx files: paragraph text, inline and anchored
// pictures, and body-level tables.
type DOCXReader struct{}

func (p *DOCXReader) Read(r io.Reader, filename string) ([]splitter.Paragraph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read docx: %w", err)
	}
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	var out []splitter.Paragraph
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			out = append(out, splitter.Paragraph{
				Text:   docxParagraphText(it),
				Images: docxParagraphImages(doc, it),
			})
		case *docx.Table:
			if rows := docxTableCells(it); len(rows) > 0 {
				out = append(out, splitter.Paragraph{Tables: []string{renderTable(rows)}})
			}
		}
	}
	return out, nil
}

func docxRuns(para *docx.Paragraph) []*docx.Run {
	var runs []*docx.Run
	for _, child := range para.Children {
		switch c := child.(type) {
		case *docx.Run:
			runs = append(runs, c)
		case *docx.Hyperlink:
			runs = append(runs, &c.Run)
		}
	}
	return runs
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, run := range docxRuns(para) {
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

// docxParagraphImages resolves every picture in the paragraph to its media
// bytes. Pictures whose relationship or media part is missing are skipped.
func docxParagraphImages(doc *docx.Docx, para *docx.Paragraph) [][]byte {
	var out [][]byte
	for _, run := range docxRuns(para) {
		for _, rc := range run.Children {
			d, ok := rc.(*docx.Drawing)
			if !ok {
				continue
			}
			var g *docx.AGraphic
			switch {
			case d.Inline != nil:
				g = d.Inline.Graphic
			case d.Anchor != nil:
				g = d.Anchor.Graphic
			}
			if data := docxGraphicBytes(doc, g); data != nil {
				out = append(out, data)
			}
		}
	}
	return out
}

func docxGraphicBytes(doc *docx.Docx, g *docx.AGraphic) []byte {
	if g == nil || g.GraphicData == nil || g.GraphicData.Pic == nil || g.GraphicData.Pic.BlipFill == nil {
		return nil
	}
	target, err := doc.ReferTarget(g.GraphicData.Pic.BlipFill.Blip.Embed)
	if err != nil {
		return nil
	}
	m := doc.Media(strings.TrimPrefix(target, "media/"))
	if m == nil {
		return nil
	}
	return m.Data
}

func docxTableCells(t *docx.Table) [][]string {
	var rows [][]string
	for _, tr := range t.TableRows {
		var row []string
		for _, tc := range tr.TableCells {
			parts := make([]string, 0, len(tc.Paragraphs))
			for _, para := range tc.Paragraphs {
				if s := docxParagraphText(para); s != "" {
					parts = append(parts, s)
				}
			}
			row = append(row, strings.Join(parts, " "))
		}
		rows = append(rows, row)
	}
	return rows
}
