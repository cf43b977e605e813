// Package attachments holds the per-paper images and tables referenced from
// section text by {image<N>} and {table<N>} placeholders.
package attachments

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var ErrInvalidDimensions = errors.New("table dimensions must be at least 1x1")

var placeholderRe = regexp.MustCompile(`\{(image|table)(\d+)\}`)

// Image is a stored image blob. ContentType is sniffed on registration.
type Image struct {
	Data        []byte `json:"-" bson:"data"`
	ContentType string `json:"contentType" bson:"contentType"`
}

// Table is a rendered table. Blank marks tables created empty by a user.
type Table struct {
	HTML  string `json:"html" bson:"html"`
	Blank bool   `json:"blank" bson:"blank"`
}

// Set is the attachment collection of one paper. Indices are 1-based and
// stable: entries are only ever appended.
type Set struct {
	Images []Image `json:"images" bson:"images"`
	Tables []Table `json:"tables" bson:"tables"`
}

// RegisterImage stores data unless byte-identical content is already present
// and returns its 1-based index.
func (s *Set) RegisterImage(data []byte) int {
	for i, img := range s.Images {
		if bytes.Equal(img.Data, data) {
			return i + 1
		}
	}
	cp := append([]byte(nil), data...)
	s.Images = append(s.Images, Image{Data: cp, ContentType: sniff(cp)})
	return len(s.Images)
}

// RegisterUploadedTable stores a table extracted from an upload, reusing the
// index of an identical previously uploaded table.
func (s *Set) RegisterUploadedTable(rendered string) int {
	for i, t := range s.Tables {
		if !t.Blank && t.HTML == rendered {
			return i + 1
		}
	}
	s.Tables = append(s.Tables, Table{HTML: rendered})
	return len(s.Tables)
}

// RegisterBlankTable always appends a new rows x cols table of empty cells.
func (s *Set) RegisterBlankTable(rows, cols int) (int, error) {
	if rows < 1 || cols < 1 {
		return 0, ErrInvalidDimensions
	}
	s.Tables = append(s.Tables, Table{HTML: blankTableHTML(rows, cols), Blank: true})
	return len(s.Tables), nil
}

// ImageBytes is the total size of the stored image data.
func (s *Set) ImageBytes() int {
	n := 0
	for _, img := range s.Images {
		n += len(img.Data)
	}
	return n
}

// Image returns image n (1-based).
func (s *Set) Image(n int) (Image, bool) {
	if n < 1 || n > len(s.Images) {
		return Image{}, false
	}
	return s.Images[n-1], true
}

// Table returns table n (1-based).
func (s *Set) Table(n int) (Table, bool) {
	if n < 1 || n > len(s.Tables) {
		return Table{}, false
	}
	return s.Tables[n-1], true
}

// Clone returns a deep copy of the set.
func (s Set) Clone() Set {
	out := Set{
		Images: make([]Image, len(s.Images)),
		Tables: append([]Table(nil), s.Tables...),
	}
	for i, img := range s.Images {
		out.Images[i] = Image{Data: append([]byte(nil), img.Data...), ContentType: img.ContentType}
	}
	return out
}

// Substitute replaces every {imageN} and {tableN} with its rendering.
// Tokens whose index is out of range are left as they are.
func (s *Set) Substitute(content string, r Renderer) string {
	if !strings.Contains(content, "{") {
		return content
	}
	return placeholderRe.ReplaceAllStringFunc(content, func(tok string) string {
		kind, n := parseToken(tok)
		switch kind {
		case "image":
			if img, ok := s.Image(n); ok {
				return r.RenderImage(n, img)
			}
		case "table":
			if t, ok := s.Table(n); ok {
				return r.RenderTable(n, t)
			}
		}
		return tok
	})
}

// Renumber rewrites placeholder indices in one pass using the given maps
// (old index -> new index). Tokens without a mapping are kept unchanged.
func Renumber(content string, images, tables map[int]int) string {
	return placeholderRe.ReplaceAllStringFunc(content, func(tok string) string {
		kind, n := parseToken(tok)
		m := images
		if kind == "table" {
			m = tables
		}
		if to, ok := m[n]; ok {
			return Placeholder(kind, to)
		}
		return tok
	})
}

// Placeholder formats a token such as {image3}.
func Placeholder(kind string, n int) string {
	return "{" + kind + strconv.Itoa(n) + "}"
}

func parseToken(tok string) (string, int) {
	m := placeholderRe.FindStringSubmatch(tok)
	n, err := strconv.Atoi(m[2])
	if err != nil {
		// digits too long for int: never a valid index
		return m[1], 0
	}
	return m[1], n
}

func blankTableHTML(rows, cols int) string {
	var b strings.Builder
	b.WriteString("<table>")
	for r := 0; r < rows; r++ {
		b.WriteString("<tr>")
		b.WriteString(strings.Repeat("<td></td>", cols))
		b.WriteString("</tr>")
	}
	b.WriteString("</table>")
	return b.String()
}
