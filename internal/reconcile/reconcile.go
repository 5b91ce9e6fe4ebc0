// Package reconcile merges normalized notice candidates into storage.
//
// Each candidate is handled in its own transaction and yields exactly one
// outcome: created, updated, unchanged or failed. A failed record never stops
// the ones after it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pfrederiksen/bid-scout/internal/classify"
	"github.com/pfrederiksen/bid-scout/internal/logger"
	"github.com/pfrederiksen/bid-scout/internal/notice"
	"github.com/pfrederiksen/bid-scout/internal/notifier"
	"github.com/pfrederiksen/bid-scout/internal/storage"
)

// Defaults for the bootstrap status and the notified role
const (
	DefaultStatus            = "New"
	DefaultStatusDescription = "Newly collected notice awaiting review"
	DefaultStatusColor       = "#3498db"
	DefaultReviewerRole      = "analyst"
)

// Tx is the transactional view of the store. NoticeByNumber returns
// storage.ErrNotFound when no notice carries the number.
type Tx interface {
	NoticeByNumber(ctx context.Context, number string) (*notice.Notice, error)
	CreateNotice(ctx context.Context, n *notice.Notice) error
	UpdateNotice(ctx context.Context, n *notice.Notice) error
	FindOrCreateOrganization(ctx context.Context, name, acronym string) (int64, error)
	FindOrCreateCategory(ctx context.Context, name, description string) (int64, error)
	FindOrCreateStatus(ctx context.Context, name, description, color string) (int64, error)
	RecordEvent(ctx context.Context, e notice.Event) error
}

// Store runs fn in a transaction, committing only when fn returns nil
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type dbStore struct {
	db *storage.DB
}

// FromDB adapts a SQLite database to Store
func FromDB(db *storage.DB) Store {
	return dbStore{db: db}
}

func (s dbStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithTx(ctx, func(tx *storage.Tx) error { return fn(tx) })
}

// Options configures a Reconciler
type Options struct {
	// ReviewerRole is notified about every created notice
	ReviewerRole string
	// Workers above one processes batches concurrently
	Workers int
	Now     func() time.Time
}

// Reconciler applies create/update/ignore semantics to candidates
type Reconciler struct {
	store    Store
	notifier notifier.Dispatcher
	opts     Options
	statusID int64
	locks    keyedMutex
}

// New creates a Reconciler and makes sure the default status and category
// exist. A nil dispatcher disables notifications.
func New(ctx context.Context, store Store, dispatcher notifier.Dispatcher, opts Options) (*Reconciler, error) {
	if opts.ReviewerRole == "" {
		opts.ReviewerRole = DefaultReviewerRole
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Reconciler{store: store, notifier: dispatcher, opts: opts}
	err := store.WithTx(ctx, func(tx Tx) error {
		id, err := tx.FindOrCreateStatus(ctx, DefaultStatus, DefaultStatusDescription, DefaultStatusColor)
		if err != nil {
			return err
		}
		r.statusID = id
		_, err = tx.FindOrCreateCategory(ctx, classify.DefaultCategory, classify.Describe(classify.DefaultCategory))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrapping defaults: %w", err)
	}
	return r, nil
}

// Process reconciles one candidate. It never returns an error: failures are
// reported through the outcome.
func (r *Reconciler) Process(ctx context.Context, rec notice.NormalizedRecord) notice.Outcome {
	categoryName := classify.Categorize(rec.Description)
	unlock := r.locks.lockAll(
		"notice:"+rec.NoticeNumber,
		"organization:"+rec.Organization,
		"category:"+categoryName,
	)
	defer unlock()

	var (
		outcome = notice.Outcome{NoticeNumber: rec.NoticeNumber}
		created *notice.Notice
	)
	err := r.store.WithTx(ctx, func(tx Tx) error {
		stored, err := tx.NoticeByNumber(ctx, rec.NoticeNumber)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		refs, err := r.resolve(ctx, tx, rec, categoryName)
		if err != nil {
			return err
		}

		if stored == nil {
			n, err := r.create(ctx, tx, rec, refs)
			if err != nil {
				return err
			}
			created = n
			outcome.Tag = notice.Created
			outcome.Message = "new notice registered"
			return nil
		}

		changes := notice.ApplyChanges(stored, rec)
		if len(changes) == 0 {
			outcome.Tag = notice.Unchanged
			outcome.Message = "no changes"
			return nil
		}
		if err := tx.UpdateNotice(ctx, stored); err != nil {
			return err
		}
		err = tx.RecordEvent(ctx, notice.Event{
			NoticeID: stored.ID,
			Type:     notice.EventUpdated,
			Title:    "Notice updated automatically",
			Description: fmt.Sprintf("Notice data updated by the collector (source: %s). Changed fields: %s.",
				rec.Source, notice.ChangedFields(changes)),
			At: r.opts.Now(),
		})
		if err != nil {
			return err
		}
		outcome.Tag = notice.Updated
		outcome.Message = "notice updated: " + notice.ChangedFields(changes)
		return nil
	})
	if err != nil {
		logger.Error("Failed to reconcile notice", logger.Fields{
			"notice_number": rec.NoticeNumber,
			"source":        rec.Source,
		}, err)
		return notice.Outcome{
			NoticeNumber: rec.NoticeNumber,
			Tag:          notice.Failed,
			Message:      "error: " + err.Error(),
		}
	}

	if created != nil {
		if err := r.notifyCreated(ctx, created); err != nil {
			logger.Warn("Notice stored but reviewers were not notified", logger.Fields{
				"notice_number": rec.NoticeNumber,
				"role":          r.opts.ReviewerRole,
				"error":         err.Error(),
			})
			outcome.Message += "; notification failed: " + err.Error()
		}
	}

	logger.Debug("Reconciled notice", logger.Fields{
		"notice_number": rec.NoticeNumber,
		"outcome":       string(outcome.Tag),
	})
	return outcome
}

// lookupRefs are the organization and category ids resolved for a record
type lookupRefs struct {
	organizationID *int64
	categoryID     int64
}

// resolve find-or-creates the organization and category of every record,
// whether or not the notice is already stored.
func (r *Reconciler) resolve(ctx context.Context, tx Tx, rec notice.NormalizedRecord, categoryName string) (lookupRefs, error) {
	var refs lookupRefs
	if rec.Organization != "" {
		orgID, err := tx.FindOrCreateOrganization(ctx, rec.Organization, classify.Acronym(rec.Organization))
		if err != nil {
			return refs, err
		}
		refs.organizationID = &orgID
	}

	categoryID, err := tx.FindOrCreateCategory(ctx, categoryName, classify.Describe(categoryName))
	if err != nil {
		return refs, err
	}
	refs.categoryID = categoryID
	return refs, nil
}

func (r *Reconciler) create(ctx context.Context, tx Tx, rec notice.NormalizedRecord, refs lookupRefs) (*notice.Notice, error) {
	n := notice.FromRecord(rec)
	n.StatusID = r.statusID
	n.OrganizationID = refs.organizationID
	n.CategoryID = &refs.categoryID

	if err := tx.CreateNotice(ctx, n); err != nil {
		return nil, err
	}

	err := tx.RecordEvent(ctx, notice.Event{
		NoticeID:    n.ID,
		Type:        notice.EventCreated,
		Title:       "Notice collected automatically",
		Description: fmt.Sprintf("New notice identified by the collector (source: %s).", rec.Source),
		At:          r.opts.Now(),
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *Reconciler) notifyCreated(ctx context.Context, n *notice.Notice) error {
	if r.notifier == nil {
		return nil
	}
	id := n.ID
	return r.notifier.NotifyByRole(ctx, notifier.Message{
		Type:     notice.EventCreated,
		Title:    "New notice identified",
		Body:     fmt.Sprintf("A new notice was identified: %s - %s", n.NoticeNumber, n.Description),
		NoticeID: &id,
		Link:     n.DetailURL,
	}, r.opts.ReviewerRole)
}

// ProcessAll reconciles a batch and returns one outcome per candidate in
// input order.
func (r *Reconciler) ProcessAll(ctx context.Context, recs []notice.NormalizedRecord) []notice.Outcome {
	outcomes := make([]notice.Outcome, len(recs))
	if r.opts.Workers == 1 {
		for i, rec := range recs {
			outcomes[i] = r.Process(ctx, rec)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, rec := range recs {
		g.Go(func() error {
			outcomes[i] = r.Process(ctx, rec)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return outcomes
}
