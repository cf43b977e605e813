// Package ledger detects section changes and records them as history.
package ledger

import (
	"strings"
	"time"

	"github.com/paperdesk/paperdesk/internal/paper"
)

// Change is a pending update of one section.
type Change struct {
	Section string `json:"section"`
	Old     string `json:"oldValue"`
	New     string `json:"newValue"`
}

// Diff compares current and proposed values for every canonical section.
// A missing proposed key means the empty string. Values are compared after
// trimming surrounding whitespace; nothing else is normalised.
func Diff(current, proposed map[string]string) []Change {
	var out []Change
	for _, name := range paper.SectionNames() {
		oldV := current[name]
		newV := proposed[name]
		if strings.TrimSpace(oldV) == strings.TrimSpace(newV) {
			continue
		}
		out = append(out, Change{Section: name, Old: oldV, New: newV})
	}
	return out
}

// Ledger applies proposed section mappings to papers.
type Ledger struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

// New returns a ledger using the wall clock.
func New() *Ledger { return &Ledger{Now: time.Now} }

// Apply records one history entry per changed section and installs the new
// values. All changes are computed before the paper is touched, so a paper is
// either fully updated or left as it was. It reports whether anything changed.
func (l *Ledger) Apply(p *paper.Paper, proposed map[string]string, actor, source string) bool {
	return len(l.ApplyChanges(p, proposed, actor, source)) > 0
}

// ApplyChanges is Apply but returns the recorded changes.
func (l *Ledger) ApplyChanges(p *paper.Paper, proposed map[string]string, actor, source string) []Change {
	changes := Diff(p.Sections, proposed)
	if len(changes) == 0 {
		return nil
	}

	ts := l.timestamp(p)
	if p.Sections == nil {
		p.Sections = paper.EmptySections()
	}
	for _, c := range changes {
		p.History = append(p.History, paper.HistoryRecord{
			Actor:     actor,
			Timestamp: ts,
			Section:   c.Section,
			OldValue:  c.Old,
			NewValue:  c.New,
			Source:    source,
		})
		p.Sections[c.Section] = c.New
	}
	p.UpdatedAt = ts
	return changes
}

// timestamp is the current time at second resolution, never earlier than the
// paper's last history record.
func (l *Ledger) timestamp(p *paper.Paper) time.Time {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	ts := now().UTC().Truncate(time.Second)
	if n := len(p.History); n > 0 && ts.Before(p.History[n-1].Timestamp) {
		ts = p.History[n-1].Timestamp
	}
	return ts
}
