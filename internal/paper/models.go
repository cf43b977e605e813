package paper

import (
	"time"

	"github.com/paperdesk/paperdesk/internal/paper/attachments"
)

// Change sources recorded on history entries.
const (
	SourceManualEdit     = "Manual edit"
	SourceDocumentUpload = "Document upload"
)

// Status is the lifecycle label of a paper. The accepted set comes from
// configuration; DefaultStatuses is used when none is configured.
type Status string

const (
	StatusDraft                 Status = "Draft"
	StatusSubmitted             Status = "Submitted"
	StatusUnderReview           Status = "Under Review"
	StatusReviewCompleted       Status = "Review Completed"
	StatusMinorRevisionRequired Status = "Minor Revision Required"
	StatusMajorRevisionRequired Status = "Major Revision Required"
	StatusAccepted              Status = "Accepted"
	StatusRejected              Status = "Rejected"
)

// DefaultStatuses returns the built-in status set in display order.
func DefaultStatuses() []Status {
	return []Status{
		StatusDraft, StatusSubmitted, StatusUnderReview, StatusReviewCompleted,
		StatusMinorRevisionRequired, StatusMajorRevisionRequired, StatusAccepted, StatusRejected,
	}
}

// HistoryRecord is one immutable change to one section.
type HistoryRecord struct {
	Actor     string    `json:"actor" bson:"actor"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Section   string    `json:"section" bson:"section"`
	OldValue  string    `json:"oldValue" bson:"oldValue"`
	NewValue  string    `json:"newValue" bson:"newValue"`
	Source    string    `json:"source" bson:"source"`
}

// Paper is a submitted document decomposed into the canonical sections.
// Sections always holds every canonical key; History is append-only.
type Paper struct {
	ID          int64             `json:"id" bson:"id"`
	Owner       string            `json:"owner" bson:"owner"`
	Sections    map[string]string `json:"sections" bson:"sections"`
	Status      Status            `json:"status" bson:"status"`
	History     []HistoryRecord   `json:"history" bson:"history"`
	Attachments attachments.Set   `json:"-" bson:"attachments"`
	CreatedAt   time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt" bson:"updatedAt"`
}

// New returns a draft paper with empty sections and no history.
func New(id int64, owner string, now time.Time) *Paper {
	return &Paper{
		ID:        id,
		Owner:     owner,
		Sections:  EmptySections(),
		Status:    StatusDraft,
		History:   []HistoryRecord{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (p *Paper) Clone() *Paper {
	c := *p
	c.Sections = make(map[string]string, len(p.Sections))
	for k, v := range p.Sections {
		c.Sections[k] = v
	}
	c.History = append([]HistoryRecord{}, p.History...)
	c.Attachments = p.Attachments.Clone()
	return &c
}

// Normalize fills in any missing canonical section keys, e.g. after decoding
// a record written before a section was added to the schema.
func (p *Paper) Normalize() {
	if p.Sections == nil {
		p.Sections = EmptySections()
	}
	for _, n := range sectionOrder {
		if _, ok := p.Sections[n]; !ok {
			p.Sections[n] = ""
		}
	}
	if p.History == nil {
		p.History = []HistoryRecord{}
	}
}
