package ingest

import (
	"fmt"
	"io"
	"strings"

	"github.com/paperdesk/paperdesk/internal/paper/splitter"
	"golang.org/x/net/html"
)

// HTMLReader handles HTML files. Block elements become paragraphs, tables
// are re-rendered from their cell text and data: images are decoded. Text
// sitting directly inside containers such as div or section is gathered
// into a paragraph at the next block boundary.
type HTMLReader struct{}

var htmlLeafBlocks = map[string]bool{
	"p": true, "li": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "figure": true, "figcaption": true, "dt": true, "dd": true,
	"caption": true,
}

var htmlContainers = map[string]bool{
	"body": true, "div": true, "section": true, "article": true, "main": true, "header": true,
	"aside": true, "ul": true, "ol": true, "dl": true, "form": true, "address": true,
	"details": true, "summary": true, "td": true, "th": true, "tr": true, "center": true,
}

func (p *HTMLReader) Read(r io.Reader, filename string) ([]splitter.Paragraph, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var (
		out     []splitter.Paragraph
		pending strings.Builder
		imgs    [][]byte
	)
	flush := func() {
		text := strings.TrimSpace(pending.String())
		if text != "" || len(imgs) > 0 {
			out = append(out, splitter.Paragraph{Text: text, Images: imgs})
		}
		pending.Reset()
		imgs = nil
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			pending.WriteString(n.Data)
			return
		case html.ElementNode:
			switch {
			case n.Data == "script" || n.Data == "style" || n.Data == "nav" || n.Data == "footer" || n.Data == "head":
				return
			case n.Data == "br":
				pending.WriteByte('\n')
				return
			case n.Data == "img":
				if data, ok := decodeDataURI(attr(n, "src")); ok {
					imgs = append(imgs, data)
				}
				return
			case n.Data == "table":
				flush()
				out = append(out, splitter.Paragraph{Tables: []string{renderTable(htmlTableCells(n))}})
				return
			case htmlLeafBlocks[n.Data]:
				flush()
				var inner [][]byte
				collectHTMLImages(n, &inner)
				if text := textContent(n); text != "" || len(inner) > 0 {
					out = append(out, splitter.Paragraph{Text: text, Images: inner})
				}
				return
			case htmlContainers[n.Data]:
				flush()
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				flush()
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findBody(doc); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	flush()
	return out, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collectHTMLImages(n *html.Node, out *[][]byte) {
	if n.Type == html.ElementNode && n.Data == "img" {
		if data, ok := decodeDataURI(attr(n, "src")); ok {
			*out = append(*out, data)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectHTMLImages(c, out)
	}
}

func htmlTableCells(table *html.Node) [][]string {
	var rows [][]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var row []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					row = append(row, textContent(c))
				}
			}
			rows = append(rows, row)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	return rows
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
