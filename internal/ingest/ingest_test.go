package ingest

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/fumiama/go-docx"
	"github.com/paperdesk/paperdesk/internal/paper"
	"github.com/paperdesk/paperdesk/internal/paper/splitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func texts(paras []splitter.Paragraph) []string {
	var out []string
	for _, p := range paras {
		if p.Text != "" {
			out = append(out, p.Text)
		}
	}
	return out
}

func TestForFile(t *testing.T) {
	for _, name := range []string{"a.txt", "b.MD", "c.html", "d.htm", "e.pdf", "f.docx"} {
		_, err := ForFile(name)
		assert.NoError(t, err, name)
		assert.True(t, IsSupportedExtension(name), name)
	}

	_, err := ForFile("slides.pptx")
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, IsSupportedExtension("slides.pptx"))
}

func TestReadFile_Text(t *testing.T) {
	paras, err := ReadFile(strings.NewReader("My Paper\n\nAbstract\nWe study X.\n"), "paper.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"My Paper", "Abstract", "We study X."}, texts(paras))

	res := splitter.Split(paras)
	assert.Equal(t, "My Paper\n", res.Sections[paper.SectionTitle])
	assert.Equal(t, "We study X.\n", res.Sections[paper.SectionAbstract])
}

func TestReadFile_Markdown(t *testing.T) {
	pic := tinyPNG(t)
	src := "# A Study\n\n## Methods\n\nWe measured.\n\n" +
		"![fig](data:image/png;base64," + base64.StdEncoding.EncodeToString(pic) + ")\n\n" +
		"| a | b |\n|---|---|\n| 1 | {x} |\n\n" +
		"- first\n- second\n"

	paras, err := ReadFile(strings.NewReader(src), "paper.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"A Study", "Methods", "We measured.", "first", "second"}, texts(paras))

	var imgs [][]byte
	var tables []string
	for _, p := range paras {
		imgs = append(imgs, p.Images...)
		tables = append(tables, p.Tables...)
	}
	require.Len(t, imgs, 1)
	assert.Equal(t, pic, imgs[0])
	require.Len(t, tables, 1)
	assert.Contains(t, tables[0], "<td>1</td>")
	assert.Contains(t, tables[0], "&#123;x}")
	assert.NotContains(t, tables[0], "{x}")
}

func TestReadFile_HTML(t *testing.T) {
	pic := tinyPNG(t)
	src := `<html><head><title>ignored</title><style>p{}</style></head><body>
<h1>Deep Nets</h1>
<h2>1. Introduction</h2>
<p>Networks are <b>deep</b>.</p>
<p><img src="data:image/png;base64,` + base64.StdEncoding.EncodeToString(pic) + `"></p>
<script>alert(1)</script>
<table><tr><th>k</th><th>v</th></tr><tr><td>a</td><td>&lt;b&gt;</td></tr></table>
</body></html>`

	paras, err := ReadFile(strings.NewReader(src), "paper.html")
	require.NoError(t, err)
	assert.Equal(t, []string{"Deep Nets", "1. Introduction", "Networks are deep."}, texts(paras))

	res := splitter.Split(paras)
	assert.Equal(t, "Deep Nets\n", res.Sections[paper.SectionTitle])
	assert.Equal(t, "Networks are deep.\n{image1}\n{table1}\n", res.Sections[paper.SectionIntroduction])
	require.Len(t, res.Tables, 1)
	assert.Contains(t, res.Tables[0], "<td>&lt;b&gt;</td>")
}

func TestReadFile_HTMLDivMarkup(t *testing.T) {
	src := `<div>Abstract</div><div>We study things.</div>Loose body text<p>Introduction</p>` +
		`<section><div><span>Background</span> text.</div></section><article>Tail<br>line</article>`

	paras, err := ReadFile(strings.NewReader(src), "export.html")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Abstract",
		"We study things.",
		"Loose body text",
		"Introduction",
		"Background text.",
		"Tail\nline",
	}, texts(paras))

	res := splitter.Split(paras)
	assert.Equal(t, "We study things.\nLoose body text\n", res.Sections[paper.SectionAbstract])
	assert.Equal(t, "Background text.\nTail\nline\n", res.Sections[paper.SectionIntroduction])
}

func TestReadFile_DOCX(t *testing.T) {
	pic := tinyPNG(t)
	w := docx.New().WithDefaultTheme()
	w.AddParagraph().AddText("Graph Methods")
	w.AddParagraph().AddText("Abstract")
	w.AddParagraph().AddText("We propose a method.")
	_, err := w.AddParagraph().AddInlineDrawing(pic)
	require.NoError(t, err)
	w.AddParagraph().AddText("Conclusion: it works")

	var buf bytes.Buffer
	_, err = w.WriteTo(&buf)
	require.NoError(t, err)

	paras, err := ReadFile(bytes.NewReader(buf.Bytes()), "paper.docx")
	require.NoError(t, err)

	res := splitter.Split(paras)
	assert.Equal(t, "Graph Methods\n", res.Sections[paper.SectionTitle])
	assert.Equal(t, "We propose a method.\n{image1}\n", res.Sections[paper.SectionAbstract])
	assert.Equal(t, "it works\n", res.Sections[paper.SectionConclusion])
	require.Len(t, res.Images, 1)
	assert.Equal(t, pic, res.Images[0])
}

func TestReadFile_MalformedDOCX(t *testing.T) {
	_, err := ReadFile(strings.NewReader("not a zip"), "broken.docx")
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "broken.docx")
}

func TestReadFile_MalformedPDF(t *testing.T) {
	_, err := ReadFile(strings.NewReader("%PDF-garbage"), "broken.pdf")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeDataURI(t *testing.T) {
	data, ok := decodeDataURI("data:text/plain;base64,aGk=")
	assert.True(t, ok)
	assert.Equal(t, []byte("hi"), data)

	data, ok = decodeDataURI("data:,a%20b")
	assert.True(t, ok)
	assert.Equal(t, []byte("a b"), data)

	_, ok = decodeDataURI("https://example.com/x.png")
	assert.False(t, ok)
	_, ok = decodeDataURI("data:image/png;base64,!!!")
	assert.False(t, ok)
}

func TestRenderTable(t *testing.T) {
	got := renderTable([][]string{{"a", "b"}, {"<c>", "{image1}"}})
	assert.Equal(t, "<table><tr><td>a</td><td>b</td></tr><tr><td>&lt;c&gt;</td><td>&#123;image1}</td></tr></table>", got)
}
