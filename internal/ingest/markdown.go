package ingest

import (
	"bytes"
	"io"
	"strings"

	"github.com/paperdesk/paperdesk/internal/paper/splitter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownReader handles Markdown files using goldmark. Each top-level block
// is one paragraph; images with data: destinations are decoded.
type MarkdownReader struct{}

func (p *MarkdownReader) Read(r io.Reader, filename string) ([]splitter.Paragraph, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	doc := md.Parser().Parse(text.NewReader(src))

	var out []splitter.Paragraph
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *east.Table:
			out = append(out, splitter.Paragraph{Tables: []string{renderTable(markdownTableCells(node, src))}})
		case *ast.List:
			for item := node.FirstChild(); item != nil; item = item.NextSibling() {
				out = append(out, markdownParagraph(item, src))
			}
		default:
			out = append(out, markdownParagraph(n, src))
		}
	}
	return out, nil
}

func markdownParagraph(n ast.Node, src []byte) splitter.Paragraph {
	var imgs [][]byte
	collectMarkdownImages(n, &imgs)
	return splitter.Paragraph{Text: extractText(n, src), Images: imgs}
}

func collectMarkdownImages(n ast.Node, out *[][]byte) {
	if img, ok := n.(*ast.Image); ok {
		if data, ok := decodeDataURI(string(img.Destination)); ok {
			*out = append(*out, data)
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		collectMarkdownImages(c, out)
	}
}

// extractText gets the text content of a goldmark AST node, leaving out
// image alt text.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && !n.HasChildren() {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.Image:
		default:
			if s := extractText(c, src); s != "" {
				if c.Type() == ast.TypeBlock && buf.Len() > 0 {
					buf.WriteByte('\n')
				}
				buf.WriteString(s)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

func markdownTableCells(t *east.Table, src []byte) [][]string {
	var rows [][]string
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		var row []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			row = append(row, extractText(c, src))
		}
		rows = append(rows, row)
	}
	return rows
}
