// Package portal collects notices from procurement portals.
//
// Each portal is an Adapter. The Registry maps portal ids to adapters and
// turns a collection run into the result shape reported to schedulers.
package portal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pfrederiksen/bid-scout/internal/logger"
	"github.com/pfrederiksen/bid-scout/internal/notice"
)

// DefaultDays is the look-back window when no range is given
const DefaultDays = 7

// ErrNotImplemented is returned by portals that are registered but not yet
// supported.
var ErrNotImplemented = errors.New("portal not implemented")

// UnsupportedPortalError reports an unknown portal id
type UnsupportedPortalError struct {
	Portal string
}

func (e *UnsupportedPortalError) Error() string {
	return fmt.Sprintf("unsupported portal: %q", e.Portal)
}

// Filters narrow a portal search. Empty fields are sent empty.
type Filters struct {
	Modality     string `json:"modality,omitempty"`
	Situation    string `json:"situation,omitempty"`
	Organization string `json:"organization,omitempty"`
	Type         string `json:"type,omitempty"`
}

// Adapter is one procurement portal
type Adapter interface {
	ID() string
	Collect(ctx context.Context, r notice.DateRange, f Filters) (*notice.Run, error)
}

// Params are the scheduler-facing collection parameters. A nil Range means
// the last Days days (DefaultDays when zero).
type Params struct {
	Range   *notice.DateRange `json:"range,omitempty"`
	Days    int               `json:"days,omitempty"`
	Filters Filters           `json:"filters"`
}

// Result is what a collection reports back to its caller
type Result struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Portal    string           `json:"portal"`
	Created   int              `json:"created"`
	Updated   int              `json:"updated"`
	Unchanged int              `json:"unchanged"`
	Failed    int              `json:"failed"`
	Details   []notice.Outcome `json:"details"`
}

// Registry maps portal ids to adapters
type Registry struct {
	adapters map[string]Adapter
	now      func() time.Time
}

// NewRegistry creates a registry holding adapters
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter), now: time.Now}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter
func (r *Registry) Register(a Adapter) {
	r.adapters[a.ID()] = a
}

// Adapter returns the adapter for id
func (r *Registry) Adapter(id string) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, &UnsupportedPortalError{Portal: id}
	}
	return a, nil
}

// IDs lists the registered portal ids in order
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Range resolves the date range a collection covers
func (r *Registry) Range(p Params) notice.DateRange {
	if p.Range != nil {
		return *p.Range
	}
	days := p.Days
	if days <= 0 {
		days = DefaultDays
	}
	return notice.LastDays(r.now(), days)
}

// Collect runs one collection. Run-level failures, such as an unknown portal
// or an unreachable listing, come back as Success false with zero counts.
func (r *Registry) Collect(ctx context.Context, portalID string, p Params) Result {
	result := Result{Portal: portalID, Details: make([]notice.Outcome, 0)}

	adapter, err := r.Adapter(portalID)
	if err != nil {
		logger.Error("Collection rejected", logger.Fields{"portal": portalID}, err)
		result.Message = "collection failed: " + err.Error()
		return result
	}

	dr := r.Range(p)
	logger.Info("Starting collection", logger.Fields{
		"portal": portalID,
		"from":   dr.From.Format(time.DateOnly),
		"to":     dr.To.Format(time.DateOnly),
	})

	start := r.now()
	run, err := adapter.Collect(ctx, dr, p.Filters)
	logger.RecordTiming("collect.duration", r.now().Sub(start))
	if err != nil {
		logger.IncrCounter("collect.errors")
		logger.Error("Collection failed", logger.Fields{"portal": portalID}, err)
		result.Message = "collection failed: " + err.Error()
		return result
	}

	logger.AddCounter("collect.created", int64(run.Counts.Created))
	logger.AddCounter("collect.updated", int64(run.Counts.Updated))
	logger.AddCounter("collect.unchanged", int64(run.Counts.Unchanged))
	logger.AddCounter("collect.failed", int64(run.Counts.Failed))
	logger.Info("Collection finished", logger.Fields{
		"portal":    portalID,
		"created":   run.Counts.Created,
		"updated":   run.Counts.Updated,
		"unchanged": run.Counts.Unchanged,
		"failed":    run.Counts.Failed,
		"duration":  run.FinishedAt.Sub(run.StartedAt).String(),
	})

	result.Success = true
	result.Message = run.Summary()
	result.Created = run.Counts.Created
	result.Updated = run.Counts.Updated
	result.Unchanged = run.Counts.Unchanged
	result.Failed = run.Counts.Failed
	result.Details = run.Outcomes
	return result
}

// notImplemented is a registered portal with no collector yet
type notImplemented struct {
	id string
}

// NewNotImplemented returns an adapter whose Collect always fails with
// ErrNotImplemented.
func NewNotImplemented(id string) Adapter {
	return notImplemented{id: id}
}

func (n notImplemented) ID() string { return n.id }

func (n notImplemented) Collect(ctx context.Context, r notice.DateRange, f Filters) (*notice.Run, error) {
	return nil, fmt.Errorf("%s: %w", n.id, ErrNotImplemented)
}

// Portal ids without a collector
const (
	LicitacoesE         = "licitacoes-e"
	PortalTransparencia = "portal-transparencia"
)
