package cli

import (
	"sort"
	"strings"

	"github.com/pfrederiksen/bid-scout/internal/notice"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortByCreated SortOrder = "created"
	SortByOpening SortOrder = "opening"
	SortByNumber  SortOrder = "number"
)

// Valid reports whether o is a known sort order
func (o SortOrder) Valid() bool {
	switch o {
	case SortByCreated, SortByOpening, SortByNumber:
		return true
	}
	return false
}

// sortNotices sorts a slice of notices based on the specified sort order.
// SortByCreated keeps the storage order, newest first.
func sortNotices(list []*notice.Notice, order SortOrder) {
	switch order {
	case SortByOpening:
		sort.SliceStable(list, func(i, j int) bool {
			return compareByOpening(list[i], list[j])
		})
	case SortByNumber:
		sort.SliceStable(list, func(i, j int) bool {
			return strings.ToLower(list[i].NoticeNumber) < strings.ToLower(list[j].NoticeNumber)
		})
	}
}

// compareByOpening compares two notices by opening date
// Returns true if notice i should come before notice j
func compareByOpening(i, j *notice.Notice) bool {
	// If both dates are known, compare them
	if i.OpeningDate != nil && j.OpeningDate != nil {
		if !i.OpeningDate.Equal(*j.OpeningDate) {
			return i.OpeningDate.Before(*j.OpeningDate)
		}
		return i.NoticeNumber < j.NoticeNumber
	}

	// If only one date is known, put the known one first
	if i.OpeningDate != nil {
		return true
	}
	if j.OpeningDate != nil {
		return false
	}

	return i.NoticeNumber < j.NoticeNumber
}
