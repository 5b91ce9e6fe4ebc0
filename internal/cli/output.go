package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pfrederiksen/bid-scout/internal/documents"
	"github.com/pfrederiksen/bid-scout/internal/normalize"
	"github.com/pfrederiksen/bid-scout/internal/notice"
	"github.com/pfrederiksen/bid-scout/internal/portal"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// NoticeView is the printable form of a stored notice
type NoticeView struct {
	NoticeNumber    string           `json:"notice_number"`
	Description     string           `json:"description"`
	Modality        string           `json:"modality,omitempty"`
	OpeningDate     *time.Time       `json:"opening_date,omitempty"`
	PublicationDate *time.Time       `json:"publication_date,omitempty"`
	EstimatedValue  *decimal.Decimal `json:"estimated_value,omitempty"`
	DetailURL       string           `json:"detail_url,omitempty"`
	Source          string           `json:"source"`
	CreatedAt       time.Time        `json:"created_at"`
}

func views(list []*notice.Notice) []NoticeView {
	out := make([]NoticeView, 0, len(list))
	for _, n := range list {
		out = append(out, NoticeView{
			NoticeNumber:    n.NoticeNumber,
			Description:     n.Description,
			Modality:        n.Modality,
			OpeningDate:     n.OpeningDate,
			PublicationDate: n.PublicationDate,
			EstimatedValue:  n.EstimatedValue,
			DetailURL:       n.DetailURL,
			Source:          n.Source,
			CreatedAt:       n.CreatedAt,
		})
	}
	return out
}

// OutputResult contains data to be output. Only the sections a command
// fills are printed.
type OutputResult struct {
	CheckedAt    time.Time          `json:"checked_at"`
	Collection   *portal.Result     `json:"collection,omitempty"`
	Notices      []NoticeView       `json:"notices,omitempty"`
	NoticeNumber string             `json:"notice_number,omitempty"`
	Detail       *portal.Detail     `json:"detail,omitempty"`
	Downloads    *documents.Summary `json:"downloads,omitempty"`
	Portals      []string           `json:"portals,omitempty"`
}

// WriteOutput writes the result in the specified format
func WriteOutput(w io.Writer, result *OutputResult, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, result *OutputResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// writeText outputs results as human-readable text
func writeText(w io.Writer, result *OutputResult, verbose bool) error {
	if result.Collection != nil {
		writeCollection(w, result.Collection, verbose)
	}
	if result.Notices != nil {
		writeNotices(w, result.Notices, verbose)
	}
	if result.Detail != nil {
		writeDetail(w, result.NoticeNumber, result.Detail)
	}
	if result.Downloads != nil {
		writeDownloads(w, result.Downloads, verbose)
	}
	for _, id := range result.Portals {
		fmt.Fprintln(w, id)
	}
	return nil
}

func writeCollection(w io.Writer, r *portal.Result, verbose bool) {
	fmt.Fprintf(w, "%s: %s\n", r.Portal, r.Message)
	if !r.Success {
		return
	}
	for _, o := range r.Details {
		// unchanged rows are noise unless asked for
		if o.Tag == notice.Unchanged && !verbose {
			continue
		}
		fmt.Fprintf(w, "  %-9s %s: %s\n", strings.ToUpper(string(o.Tag)), o.NoticeNumber, o.Message)
	}
	fmt.Fprintf(w, "\nTotal: %d created, %d updated, %d unchanged, %d failed\n",
		r.Created, r.Updated, r.Unchanged, r.Failed)
}

func writeNotices(w io.Writer, list []NoticeView, verbose bool) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No notices found.")
		return
	}
	for _, n := range list {
		opening := "no opening date"
		if n.OpeningDate != nil {
			opening = n.OpeningDate.In(normalize.DefaultLocation).Format(normalize.DateTimeLayout)
		}
		fmt.Fprintf(w, "%s (%s): %s\n", n.NoticeNumber, opening, n.Description)
		if verbose {
			if n.Modality != "" {
				fmt.Fprintf(w, "     Modality: %s\n", n.Modality)
			}
			if n.EstimatedValue != nil {
				fmt.Fprintf(w, "     Estimated value: %s\n", n.EstimatedValue.StringFixed(2))
			}
			if n.DetailURL != "" {
				fmt.Fprintf(w, "     Link: %s\n", n.DetailURL)
			}
		}
	}
	fmt.Fprintf(w, "\nTotal: %d notices\n", len(list))
}

func writeDetail(w io.Writer, number string, d *portal.Detail) {
	fmt.Fprintf(w, "Notice %s\n", number)
	if d.EstimatedValue != nil {
		fmt.Fprintf(w, "  Estimated value: %s\n", d.EstimatedValue.StringFixed(2))
	}
	if d.PublicationDate != nil {
		fmt.Fprintf(w, "  Published: %s\n", d.PublicationDate.In(normalize.DefaultLocation).Format(normalize.DateLayout))
	}
	if len(d.Documents) == 0 {
		fmt.Fprintln(w, "  No documents linked.")
		return
	}
	fmt.Fprintf(w, "  Documents (%d):\n", len(d.Documents))
	for _, doc := range d.Documents {
		fmt.Fprintf(w, "    %s <%s>\n", doc.Name, doc.URL)
	}
}

func writeDownloads(w io.Writer, s *documents.Summary, verbose bool) {
	fmt.Fprintf(w, "Downloaded %d of %d documents", s.Succeeded, s.Total)
	if s.Failed > 0 {
		fmt.Fprintf(w, " (%d failed)", s.Failed)
	}
	fmt.Fprintln(w)
	for _, it := range s.Items {
		switch {
		case !it.Success:
			fmt.Fprintf(w, "  FAILED %s: %s\n", it.Name, it.Error)
		case verbose:
			fmt.Fprintf(w, "  OK     %s (%d bytes) -> %s\n", it.Name, it.Size, it.Path)
		}
	}
}
