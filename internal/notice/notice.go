package notice

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is an unvalidated row lifted from a portal listing
type RawRecord struct {
	NoticeNumber string
	Description  string
	Organization string
	OpeningDate  string
	Modality     string
	DetailURL    string
	Source       string
}

// NormalizedRecord is a typed candidate ready for reconciliation.
// Empty strings mean the value is absent.
type NormalizedRecord struct {
	NoticeNumber string     `json:"notice_number"`
	Description  string     `json:"description,omitempty"`
	Organization string     `json:"organization,omitempty"`
	OpeningDate  *time.Time `json:"opening_date,omitempty"`
	Modality     string     `json:"modality,omitempty"`
	DetailURL    string     `json:"detail_url,omitempty"`
	Source       string     `json:"source"`
}

// Notice is a stored procurement notice
type Notice struct {
	ID              int64
	NoticeNumber    string
	Description     string
	Modality        string
	EstimatedValue  *decimal.Decimal
	PublicationDate *time.Time
	OpeningDate     *time.Time
	OrganizationID  *int64
	CategoryID      *int64
	StatusID        int64
	ResponsibleID   *int64
	DetailURL       string
	Notes           string
	Source          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// FromRecord builds a new Notice from a normalized candidate.
func FromRecord(rec NormalizedRecord) *Notice {
	return &Notice{
		NoticeNumber: rec.NoticeNumber,
		Description:  rec.Description,
		Modality:     rec.Modality,
		OpeningDate:  rec.OpeningDate,
		DetailURL:    rec.DetailURL,
		Source:       rec.Source,
	}
}

// Outcome tags
type OutcomeTag string

const (
	Created   OutcomeTag = "created"
	Updated   OutcomeTag = "updated"
	Unchanged OutcomeTag = "unchanged"
	Failed    OutcomeTag = "failed"
)

// Outcome is the reconciliation result for one record
type Outcome struct {
	NoticeNumber string     `json:"notice_number"`
	Tag          OutcomeTag `json:"outcome"`
	Message      string     `json:"message"`
}

// DateRange bounds a collection run. Both ends are inclusive calendar days.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// LastDays returns the range covering the n days before now, through now.
func LastDays(now time.Time, n int) DateRange {
	return DateRange{From: now.AddDate(0, 0, -n), To: now}
}

// Counts aggregates outcome tags
type Counts struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Add tallies one outcome.
func (c *Counts) Add(tag OutcomeTag) {
	switch tag {
	case Created:
		c.Created++
	case Updated:
		c.Updated++
	case Unchanged:
		c.Unchanged++
	case Failed:
		c.Failed++
	}
}

// Run is the result of one collection invocation. It is never persisted.
type Run struct {
	Portal     string    `json:"portal"`
	Range      DateRange `json:"range"`
	Counts     Counts    `json:"counts"`
	Outcomes   []Outcome `json:"outcomes"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewRun starts a run for the given portal and range.
func NewRun(portal string, r DateRange) *Run {
	return &Run{
		Portal:    portal,
		Range:     r,
		Outcomes:  make([]Outcome, 0),
		StartedAt: time.Now().UTC(),
	}
}

// Append records an outcome and updates the counts.
func (r *Run) Append(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Counts.Add(o.Tag)
}

// Finish stamps the run's completion time.
func (r *Run) Finish() {
	r.FinishedAt = time.Now().UTC()
}

// Summary is the one-line message reported to the scheduler.
func (r *Run) Summary() string {
	return fmt.Sprintf("collection finished: %d created, %d updated, %d failed",
		r.Counts.Created, r.Counts.Updated, r.Counts.Failed)
}

// Event types recorded for system-originated changes
const (
	EventCreated = "notice_created"
	EventUpdated = "notice_updated"
)

// Event is an audit entry attached to a notice. A nil ActorID marks a
// system-originated event.
type Event struct {
	NoticeID    int64
	Type        string
	Title       string
	Description string
	At          time.Time
	ActorID     *int64
}

// DocumentRef points at a downloadable notice document
type DocumentRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Document is a stored attachment
type Document struct {
	ID        int64
	NoticeID  int64
	Name      string
	Kind      string
	Path      string
	MimeType  string
	Size      int64
	CreatedAt time.Time
}
