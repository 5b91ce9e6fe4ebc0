package notice

import (
	"strings"
	"time"
)

// Field names used in change records
const (
	FieldDescription = "description"
	FieldModality    = "modality"
	FieldOpeningDate = "opening_date"
	FieldDetailURL   = "detail_url"
)

// FieldChange represents a change detected in one mutable field
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// MutableField describes one scraping-sourced field of a Notice.
// Present reports whether the candidate carries a value; Differs compares it
// with the stored value; Apply copies it over; Format renders it for change
// records.
type MutableField struct {
	Name    string
	Present func(rec NormalizedRecord) bool
	Differs func(stored *Notice, rec NormalizedRecord) bool
	Apply   func(stored *Notice, rec NormalizedRecord)
	Old     func(stored *Notice) string
	New     func(rec NormalizedRecord) string
}

// MutableFields is the allow-list of fields the collector may overwrite.
// Every other column of a Notice belongs to manual edits.
var MutableFields = []MutableField{
	{
		Name:    FieldDescription,
		Present: func(rec NormalizedRecord) bool { return rec.Description != "" },
		Differs: func(n *Notice, rec NormalizedRecord) bool { return n.Description != rec.Description },
		Apply:   func(n *Notice, rec NormalizedRecord) { n.Description = rec.Description },
		Old:     func(n *Notice) string { return n.Description },
		New:     func(rec NormalizedRecord) string { return rec.Description },
	},
	{
		Name:    FieldModality,
		Present: func(rec NormalizedRecord) bool { return rec.Modality != "" },
		Differs: func(n *Notice, rec NormalizedRecord) bool { return n.Modality != rec.Modality },
		Apply:   func(n *Notice, rec NormalizedRecord) { n.Modality = rec.Modality },
		Old:     func(n *Notice) string { return n.Modality },
		New:     func(rec NormalizedRecord) string { return rec.Modality },
	},
	{
		Name:    FieldOpeningDate,
		Present: func(rec NormalizedRecord) bool { return rec.OpeningDate != nil },
		Differs: func(n *Notice, rec NormalizedRecord) bool { return !sameTime(n.OpeningDate, rec.OpeningDate) },
		Apply: func(n *Notice, rec NormalizedRecord) {
			t := *rec.OpeningDate
			n.OpeningDate = &t
		},
		Old: func(n *Notice) string { return formatTime(n.OpeningDate) },
		New: func(rec NormalizedRecord) string { return formatTime(rec.OpeningDate) },
	},
	{
		Name:    FieldDetailURL,
		Present: func(rec NormalizedRecord) bool { return rec.DetailURL != "" },
		Differs: func(n *Notice, rec NormalizedRecord) bool { return n.DetailURL != rec.DetailURL },
		Apply:   func(n *Notice, rec NormalizedRecord) { n.DetailURL = rec.DetailURL },
		Old:     func(n *Notice) string { return n.DetailURL },
		New:     func(rec NormalizedRecord) string { return rec.DetailURL },
	},
}

// DetectChanges compares a stored notice with a fresh candidate and returns
// the mutable fields whose candidate value is present and different.
// Absent candidate values never clear stored ones.
func DetectChanges(stored *Notice, rec NormalizedRecord) []FieldChange {
	var changes []FieldChange
	for _, f := range MutableFields {
		if !f.Present(rec) || !f.Differs(stored, rec) {
			continue
		}
		changes = append(changes, FieldChange{
			Field:    f.Name,
			OldValue: f.Old(stored),
			NewValue: f.New(rec),
		})
	}
	return changes
}

// ApplyChanges copies every present, differing mutable field onto stored and
// reports the changes made.
func ApplyChanges(stored *Notice, rec NormalizedRecord) []FieldChange {
	changes := DetectChanges(stored, rec)
	for _, c := range changes {
		for _, f := range MutableFields {
			if f.Name == c.Field {
				f.Apply(stored, rec)
			}
		}
	}
	return changes
}

// ChangedFields joins the field names of a change set.
func ChangedFields(changes []FieldChange) string {
	names := make([]string, 0, len(changes))
	for _, c := range changes {
		names = append(names, c.Field)
	}
	return strings.Join(names, ", ")
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
