// Package normalize turns raw portal text into typed notice fields.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pfrederiksen/bid-scout/internal/extract"
	"github.com/pfrederiksen/bid-scout/internal/logger"
	"github.com/pfrederiksen/bid-scout/internal/notice"
)

// Portal date layouts
const (
	DateTimeLayout = "02/01/2006 15:04"
	DateLayout     = "02/01/2006"
)

// DefaultLocation is Brasília time. Brazil has observed no daylight saving
// since 2019, so a fixed offset is exact and needs no tzdata.
var DefaultLocation = time.FixedZone("America/Sao_Paulo", -3*60*60)

// ErrMissingNoticeNumber marks rows that carry no natural key
var ErrMissingNoticeNumber = errors.New("missing notice number")

// FieldFormatError reports a field whose text could not be parsed
type FieldFormatError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldFormatError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldFormatError) Unwrap() error { return e.Err }

// Normalizer converts raw records using a fixed portal time zone
type Normalizer struct {
	Location *time.Location
}

// New creates a Normalizer. A nil location selects DefaultLocation.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = DefaultLocation
	}
	return &Normalizer{Location: loc}
}

// Normalize validates the notice number and types the remaining fields.
// Unparseable optional fields become absent and are logged at debug level.
func (n *Normalizer) Normalize(raw notice.RawRecord) (notice.NormalizedRecord, error) {
	rec := notice.NormalizedRecord{
		NoticeNumber: Text(raw.NoticeNumber),
		Description:  Text(raw.Description),
		Organization: Text(raw.Organization),
		Modality:     Text(raw.Modality),
		DetailURL:    Text(raw.DetailURL),
		Source:       Text(raw.Source),
	}
	if rec.NoticeNumber == "" {
		return notice.NormalizedRecord{}, ErrMissingNoticeNumber
	}

	opening, err := n.ParseDateTime(raw.OpeningDate)
	if err != nil {
		logger.Debug("Ignoring unparseable opening date", logger.Fields{
			"notice_number": rec.NoticeNumber,
			"error":         err.Error(),
		})
	}
	rec.OpeningDate = opening

	return rec, nil
}

// ParseDateTime parses "dd/mm/yyyy HH:MM" in the portal location. Empty text
// yields nil without error.
func (n *Normalizer) ParseDateTime(text string) (*time.Time, error) {
	return n.parse("date_time", DateTimeLayout, text)
}

// ParseDate parses "dd/mm/yyyy" in the portal location.
func (n *Normalizer) ParseDate(text string) (*time.Time, error) {
	return n.parse("date", DateLayout, text)
}

// DateTime is ParseDateTime with failures mapped to nil.
func (n *Normalizer) DateTime(text string) *time.Time {
	t, _ := n.ParseDateTime(text)
	return t
}

// Date is ParseDate with failures mapped to nil.
func (n *Normalizer) Date(text string) *time.Time {
	t, _ := n.ParseDate(text)
	return t
}

func (n *Normalizer) parse(field, layout, text string) (*time.Time, error) {
	text = Text(text)
	if text == "" {
		return nil, nil
	}
	loc := n.Location
	if loc == nil {
		loc = DefaultLocation
	}
	t, err := time.ParseInLocation(layout, text, loc)
	if err != nil {
		return nil, &FieldFormatError{Field: field, Value: text, Err: err}
	}
	return &t, nil
}

// ParseCurrency reads a Brazilian-formatted amount such as "R$ 1.234,56".
// Dots are thousands separators and the comma is the decimal separator; any
// other non-digit rune is dropped. The result is rounded to cents.
func ParseCurrency(text string) (*decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		}
	}

	cleaned := b.String()
	if cleaned == "" || cleaned == "-" {
		if Text(text) == "" {
			return nil, nil
		}
		return nil, &FieldFormatError{Field: "currency", Value: text, Err: errors.New("no digits")}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil, &FieldFormatError{Field: "currency", Value: text, Err: err}
	}
	d = d.Round(2)
	return &d, nil
}

// Currency is ParseCurrency with failures mapped to nil.
func Currency(text string) *decimal.Decimal {
	d, _ := ParseCurrency(text)
	return d
}

// Text collapses whitespace and trims. The empty string means absent.
func Text(s string) string {
	return extract.Clean(s)
}
