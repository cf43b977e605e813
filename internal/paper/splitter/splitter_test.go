package splitter

import (
	"testing"

	"github.com/paperdesk/paperdesk/internal/paper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(lines ...string) []Paragraph {
	out := make([]Paragraph, 0, len(lines))
	for _, l := range lines {
		out = append(out, Paragraph{Text: l})
	}
	return out
}

func TestSplit_HeadingsPartitionSections(t *testing.T) {
	res := Split(texts("Title", "My Paper", "Abstract", "This is the abstract.", "Introduction", "Background text."))

	assert.Equal(t, "My Paper\n", res.Sections[paper.SectionTitle])
	assert.Equal(t, "This is the abstract.\n", res.Sections[paper.SectionAbstract])
	assert.Equal(t, "Background text.\n", res.Sections[paper.SectionIntroduction])
	for _, n := range []string{paper.SectionMethods, paper.SectionResults, paper.SectionConclusion, paper.SectionReferences} {
		v, ok := res.Sections[n]
		require.True(t, ok, "section %q must be present", n)
		assert.Empty(t, v)
	}
	assert.Empty(t, res.Images)
}

func TestSplit_NoHeadingsFoldIntoTitle(t *testing.T) {
	res := Split(texts("Just some text.", "More text."))
	assert.Equal(t, "Just some text.\nMore text.\n", res.Sections[paper.SectionTitle])
	assert.Len(t, res.Sections, len(paper.SectionNames()))
}

func TestSplit_SkipsBlankParagraphs(t *testing.T) {
	res := Split(texts("Abstract", "   ", "", "Body."))
	assert.Equal(t, "Body.\n", res.Sections[paper.SectionAbstract])
}

func TestSplit_InlineRemainderAfterHeading(t *testing.T) {
	res := Split(texts("Abstract: We study splitting.", "Second line."))
	assert.Equal(t, "We study splitting.\nSecond line.\n", res.Sections[paper.SectionAbstract])
	assert.Empty(t, res.Sections[paper.SectionTitle])
}

func TestSplit_RepeatedHeadingAppends(t *testing.T) {
	res := Split(texts("Methods", "one", "Results", "r", "Methods", "two"))
	assert.Equal(t, "one\ntwo\n", res.Sections[paper.SectionMethods])
	assert.Equal(t, "r\n", res.Sections[paper.SectionResults])
}

func TestSplit_ImagesDedupedAndPlaced(t *testing.T) {
	pngA := []byte("image-a")
	pngB := []byte("image-b")
	res := Split([]Paragraph{
		{Text: "Methods"},
		{Text: "Setup shown below.", Images: [][]byte{pngA}},
		{Images: [][]byte{pngB}},
		{Text: "Results"},
		{Text: "Same figure again.", Images: [][]byte{pngA}},
	})

	require.Len(t, res.Images, 2)
	assert.Equal(t, pngA, res.Images[0])
	assert.Equal(t, pngB, res.Images[1])
	assert.Equal(t, "Setup shown below.\n{image1}\n{image2}\n", res.Sections[paper.SectionMethods])
	assert.Equal(t, "Same figure again.\n{image1}\n", res.Sections[paper.SectionResults])
}

func TestSplit_ImageOnHeadingGoesToNewSection(t *testing.T) {
	res := Split([]Paragraph{
		{Text: "Intro text"},
		{Text: "2. Results", Images: [][]byte{[]byte("fig")}},
	})
	assert.Equal(t, "Intro text\n", res.Sections[paper.SectionTitle])
	assert.Equal(t, "{image1}\n", res.Sections[paper.SectionResults])
}

func TestSplit_Tables(t *testing.T) {
	tbl := "<table><tr><td>1</td></tr></table>"
	res := Split([]Paragraph{
		{Text: "Results"},
		{Tables: []string{tbl}},
		{Text: "again", Tables: []string{tbl}},
	})
	require.Len(t, res.Tables, 1)
	assert.Equal(t, "{table1}\nagain\n{table1}\n", res.Sections[paper.SectionResults])
}
