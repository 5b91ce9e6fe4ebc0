package portal

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pfrederiksen/bid-scout/internal/extract"
	"github.com/pfrederiksen/bid-scout/internal/logger"
	"github.com/pfrederiksen/bid-scout/internal/normalize"
	"github.com/pfrederiksen/bid-scout/internal/notice"
)

var tracer = otel.Tracer("bid-scout/portal")

// ComprasNet constants
const (
	ComprasNetID      = "comprasnet"
	ComprasNetBaseURL = "https://comprasnet.gov.br"
	ComprasNetSource  = "ComprasNet"
	comprasNetSearch  = "/ConsultaLicitacoes/ConsLicitacaoPorData.asp"
)

// Fetcher retrieves portal pages
type Fetcher interface {
	Get(ctx context.Context, target string) ([]byte, error)
	PostForm(ctx context.Context, target string, form url.Values) ([]byte, error)
}

// Processor reconciles a batch of candidates
type Processor interface {
	ProcessAll(ctx context.Context, recs []notice.NormalizedRecord) []notice.Outcome
}

// ComprasNet collects notices from the federal ComprasNet portal
type ComprasNet struct {
	fetcher    Fetcher
	normalizer *normalize.Normalizer
	processor  Processor
	baseURL    string
}

// NewComprasNet creates the ComprasNet adapter. An empty baseURL selects the
// public portal.
func NewComprasNet(fetcher Fetcher, normalizer *normalize.Normalizer, processor Processor, baseURL string) *ComprasNet {
	if baseURL == "" {
		baseURL = ComprasNetBaseURL
	}
	if normalizer == nil {
		normalizer = normalize.New(nil)
	}
	return &ComprasNet{
		fetcher:    fetcher,
		normalizer: normalizer,
		processor:  processor,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// ID returns "comprasnet"
func (c *ComprasNet) ID() string { return ComprasNetID }

// SearchForm builds the listing search form for a range and filters
func (c *ComprasNet) SearchForm(r notice.DateRange, f Filters) url.Values {
	loc := c.normalizer.Location
	return url.Values{
		"NumDias":       {"0"},
		"DataDe":        {r.From.In(loc).Format(normalize.DateLayout)},
		"DataAte":       {r.To.In(loc).Format(normalize.DateLayout)},
		"Modalidade":    {f.Modality},
		"Situacao":      {f.Situation},
		"Orgao":         {f.Organization},
		"TipoLicitacao": {f.Type},
	}
}

// Collect searches the listing for r and reconciles every row found
func (c *ComprasNet) Collect(ctx context.Context, r notice.DateRange, f Filters) (*notice.Run, error) {
	ctx, span := tracer.Start(ctx, "ComprasNet.Collect")
	defer span.End()

	run := notice.NewRun(ComprasNetID, r)

	page, err := c.fetcher.PostForm(ctx, c.baseURL+comprasNetSearch, c.SearchForm(r, f))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing fetch failed")
		return nil, err
	}

	spec := extract.RowSpec{
		Selector:   "table.resultados tr",
		MinColumns: 6,
		BaseURL:    c.baseURL,
		Source:     ComprasNetSource,
	}
	recs := make([]notice.NormalizedRecord, 0)
	for raw := range extract.Rows(page, spec) {
		rec, err := c.normalizer.Normalize(raw)
		if err != nil {
			if !errors.Is(err, normalize.ErrMissingNoticeNumber) {
				logger.Warn("Dropping unnormalizable row", logger.Fields{"error": err.Error()})
				continue
			}
			logger.Debug("Dropping row without notice number", logger.Fields{"source": raw.Source})
			continue
		}
		recs = append(recs, rec)
	}
	span.SetAttributes(attribute.Int("rows", len(recs)))

	for _, o := range c.processor.ProcessAll(ctx, recs) {
		run.Append(o)
	}
	run.Finish()
	return run, nil
}

// Detail holds the extra fields of a notice detail page
type Detail struct {
	EstimatedValue  *decimal.Decimal     `json:"estimated_value,omitempty"`
	PublicationDate *time.Time           `json:"publication_date,omitempty"`
	Documents       []notice.DocumentRef `json:"documents"`
}

// FetchDetail reads a notice detail page. It returns nil when the page cannot
// be fetched or parsed.
func (c *ComprasNet) FetchDetail(ctx context.Context, detailURL string) *Detail {
	ctx, span := tracer.Start(ctx, "ComprasNet.FetchDetail")
	defer span.End()
	span.SetAttributes(attribute.String("url.full", detailURL))

	page, err := c.fetcher.Get(ctx, detailURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "detail fetch failed")
		logger.Error("Failed to fetch notice detail", logger.Fields{"url": detailURL}, err)
		return nil
	}

	pairs, err := extract.LabelValues(page, "table.detalhes tr")
	if err != nil {
		span.RecordError(err)
		logger.Error("Failed to parse notice detail", logger.Fields{"url": detailURL}, err)
		return nil
	}

	detail := &Detail{}
	for _, p := range pairs {
		label := strings.ToLower(p.Label)
		switch {
		case strings.Contains(label, "valor"):
			detail.EstimatedValue = normalize.Currency(p.Value)
		case strings.Contains(label, "publicação"), strings.Contains(label, "publicacao"):
			detail.PublicationDate = c.normalizer.Date(p.Value)
		}
	}

	docs, err := extract.Links(ctx, page, `a[href*="edital"]`, c.baseURL)
	if err != nil {
		span.RecordError(err)
		logger.Error("Failed to read notice documents", logger.Fields{"url": detailURL}, err)
		return nil
	}
	detail.Documents = docs
	return detail
}
