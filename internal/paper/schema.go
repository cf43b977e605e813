package paper

import (
	"regexp"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Canonical section names, in document order.
const (
	SectionTitle        = "title"
	SectionAbstract     = "abstract"
	SectionIntroduction = "introduction"
	SectionMethods      = "methods"
	SectionResults      = "results and discussion"
	SectionConclusion   = "conclusion"
	SectionReferences   = "references"
)

type sectionRule struct {
	name     string
	synonyms []string
}

// rules lists, per section, the heading texts recognised for it. Longer
// synonyms come first so the alternation prefers "results and discussion"
// over "results".
var rules = []sectionRule{
	{SectionTitle, []string{"paper title", "title"}},
	{SectionAbstract, []string{"abstract"}},
	{SectionIntroduction, []string{"introduction"}},
	{SectionMethods, []string{"materials and methods", "methodology", "methods", "method"}},
	{SectionResults, []string{"results and discussion", "results & discussion", "findings", "results", "discussion"}},
	{SectionConclusion, []string{"concluding remarks", "conclusions", "conclusion"}},
	{SectionReferences, []string{"references", "bibliography", "works cited"}},
}

// numbering: "1", "1.", "2.3", "2)", "IV.", "A)" followed by whitespace.
// Letters and roman numerals need the punctuation so "A discussion" stays body text.
const numberingPrefix = `(?:(?:\d+(?:\.\d+)*[.)]?|(?:[ivxlcdm]+|[a-z])[.)])\s+)?`

var (
	sectionOrder []string
	sectionSet   mapset.Set[string]
	headerRules  []headerRule
)

type headerRule struct {
	name string
	re   *regexp.Regexp
}

func init() {
	sectionSet = mapset.NewThreadUnsafeSet[string]()
	for _, r := range rules {
		sectionOrder = append(sectionOrder, r.name)
		sectionSet.Add(r.name)

		alts := make([]string, 0, len(r.synonyms))
		for _, s := range r.synonyms {
			alts = append(alts, strings.ReplaceAll(regexp.QuoteMeta(s), " ", `\s+`))
		}
		// Whole line: optional numbering, the heading word(s), then either
		// nothing but trailing punctuation or an explicit delimiter followed
		// by inline body text.
		pattern := `(?is)^` + numberingPrefix + `(?:` + strings.Join(alts, "|") + `)` +
			`(?:\s*[.:]?\s*$|\s*(?:[:\x{2013}\x{2014}]|\s-)\s*(.+)$)`
		headerRules = append(headerRules, headerRule{name: r.name, re: regexp.MustCompile(pattern)})
	}
}

// SectionNames returns the canonical ordered section list. The slice is a copy.
func SectionNames() []string {
	out := make([]string, len(sectionOrder))
	copy(out, sectionOrder)
	return out
}

// IsSection reports whether name is one of the canonical section names.
func IsSection(name string) bool {
	return sectionSet.Contains(name)
}

// Heading is a recognised section heading line.
type Heading struct {
	Section string
	// Remainder is body text that followed the heading on the same line.
	Remainder string
}

// MatchHeader recognises a section heading. The whole trimmed line must be a
// heading, so body text that merely contains a section word is not matched.
func MatchHeader(line string) (Heading, bool) {
	s := strings.TrimSpace(line)
	if s == "" {
		return Heading{}, false
	}
	for _, r := range headerRules {
		m := r.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		return Heading{Section: r.name, Remainder: strings.TrimSpace(m[1])}, true
	}
	return Heading{}, false
}

// EmptySections returns a mapping with every canonical section set to "".
func EmptySections() map[string]string {
	out := make(map[string]string, len(sectionOrder))
	for _, n := range sectionOrder {
		out[n] = ""
	}
	return out
}
