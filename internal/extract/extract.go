// Package extract lifts raw notice records out of portal HTML.
//
// Extraction is deliberately forgiving: malformed rows are skipped with a
// debug log and never abort a page.
package extract

import (
	"bytes"
	"context"
	"iter"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	"github.com/pfrederiksen/bid-scout/internal/logger"
	"github.com/pfrederiksen/bid-scout/internal/notice"
)

var tracer = otel.Tracer("bid-scout/extract")

// Column positions in a listing row
const (
	ColNoticeNumber = iota
	ColDescription
	ColOrganization
	ColOpeningDate
	ColModality
	ColDetailLink
)

// RowSpec tells Rows where the listing lives and how to read it
type RowSpec struct {
	Selector   string
	MinColumns int
	BaseURL    string
	Source     string
}

// Rows returns the raw records of a listing page. The document is parsed
// again on every iteration, so the sequence can be ranged more than once.
func Rows(page []byte, spec RowSpec) iter.Seq[notice.RawRecord] {
	return func(yield func(notice.RawRecord) bool) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
		if err != nil {
			logger.Debug("Skipping unparseable listing page", logger.Fields{
				"source": spec.Source,
				"error":  err.Error(),
			})
			return
		}

		rows := doc.Find(spec.Selector)
		for i := range rows.Nodes {
			row := rows.Eq(i)
			if row.Find("th").Length() > 0 {
				logger.Debug("Skipping header row", logger.Fields{"source": spec.Source, "row": i})
				continue
			}

			cells := row.Find("td")
			if cells.Length() < spec.MinColumns {
				logger.Debug("Skipping short row", logger.Fields{
					"source":  spec.Source,
					"row":     i,
					"columns": cells.Length(),
				})
				continue
			}

			rec := notice.RawRecord{
				NoticeNumber: cellText(cells, ColNoticeNumber),
				Description:  cellText(cells, ColDescription),
				Organization: cellText(cells, ColOrganization),
				OpeningDate:  cellText(cells, ColOpeningDate),
				Modality:     cellText(cells, ColModality),
				Source:       spec.Source,
			}
			if cells.Length() > ColDetailLink {
				href, _ := cells.Eq(ColDetailLink).Find("a").First().Attr("href")
				rec.DetailURL = Resolve(spec.BaseURL, href)
			}

			if !yield(rec) {
				return
			}
		}
	}
}

func cellText(cells *goquery.Selection, i int) string {
	if i >= cells.Length() {
		return ""
	}
	return Clean(Text(cells.Get(i)))
}

// LabelValue is one row of a two-column details table
type LabelValue struct {
	Label string
	Value string
}

// LabelValues reads rows of selector whose first two cells hold a label and
// its value.
func LabelValues(page []byte, selector string) ([]LabelValue, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	pairs := make([]LabelValue, 0)
	doc.Find(selector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		pairs = append(pairs, LabelValue{
			Label: Clean(Text(cells.Get(0))),
			Value: Clean(Text(cells.Get(1))),
		})
	})
	return pairs, nil
}

// Links returns the anchors matching selector with hrefs resolved against
// baseURL. Anchors without an href are skipped.
func Links(ctx context.Context, page []byte, selector, baseURL string) ([]notice.DocumentRef, error) {
	_, span := tracer.Start(ctx, "Links")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse page")
		return nil, err
	}

	refs := make([]notice.DocumentRef, 0)
	for _, n := range doc.Find(selector).Nodes {
		var href string
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = a.Val
				break
			}
		}
		if strings.TrimSpace(href) == "" {
			continue
		}

		link := Resolve(baseURL, href)
		name := Clean(Text(n))
		refs = append(refs, notice.DocumentRef{Name: name, URL: link})
		span.AddEvent("link", trace.WithAttributes(
			attribute.String("name", name),
			attribute.String("url", link),
		))
	}
	return refs, nil
}

// Text concatenates every text node under node.
func Text(node *html.Node) string {
	var buf bytes.Buffer
	collectText(node, &buf)
	return buf.String()
}

func collectText(node *html.Node, buf *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buf.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, buf)
	}
}

var whitespace = regexp.MustCompile(`\s+`)

// Clean drops non-printable runes, collapses whitespace and trims.
func Clean(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Resolve makes href absolute against base. Unparseable input is returned
// trimmed but otherwise untouched.
func Resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
