package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/pfrederiksen/bid-scout/internal/notice"
)

//go:embed schema.sql
var Schema string

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("not found")

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement. It runs against either the database or an
// open transaction.
type queries struct {
	q   querier
	now func() time.Time
}

// DB is a SQLite-backed store
type DB struct {
	queries
	db *sql.DB
}

// Tx is a store scoped to one transaction
type Tx struct {
	queries
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*DB, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// one connection keeps writers from fighting over the lock and keeps an
	// in-memory database alive for the lifetime of the handle
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("open db: %w", err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &DB{queries: queries{q: db, now: time.Now}, db: db}, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// WithTx runs fn in a transaction, committing when fn returns nil and rolling
// back otherwise. The DB must not be used from inside fn.
func (d *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck

	if err := fn(&Tx{queries: queries{q: sqlTx, now: d.now}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (q queries) stamp() time.Time {
	return q.now().UTC().Truncate(time.Second)
}

const noticeColumns = `id, notice_number, description, modality, estimated_value,
	publication_date, opening_date, organization_id, category_id, status_id,
	responsible_id, detail_url, notes, source, created_at, updated_at, deleted_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanNotice(row scanner) (*notice.Notice, error) {
	var n notice.Notice
	var value sql.NullString
	var published, opening, deleted sql.NullInt64
	var organization, category, responsible sql.NullInt64
	var created, updated int64
	err := row.Scan(&n.ID, &n.NoticeNumber, &n.Description, &n.Modality, &value,
		&published, &opening, &organization, &category, &n.StatusID,
		&responsible, &n.DetailURL, &n.Notes, &n.Source, &created, &updated, &deleted)
	if err != nil {
		return nil, err
	}

	n.EstimatedValue, err = fromNullDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("notice %s estimated value: %w", n.NoticeNumber, err)
	}
	n.PublicationDate = fromNullUnix(published)
	n.OpeningDate = fromNullUnix(opening)
	n.DeletedAt = fromNullUnix(deleted)
	n.OrganizationID = fromNullID(organization)
	n.CategoryID = fromNullID(category)
	n.ResponsibleID = fromNullID(responsible)
	n.CreatedAt = time.Unix(created, 0).UTC()
	n.UpdatedAt = time.Unix(updated, 0).UTC()
	return &n, nil
}

// NoticeByNumber looks a notice up by its natural key. Soft-deleted notices
// are included, since the key stays reserved.
func (q queries) NoticeByNumber(ctx context.Context, number string) (*notice.Notice, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+noticeColumns+` FROM notices WHERE notice_number = ?`, number)
	n, err := scanNotice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query notice %s: %w", number, err)
	}
	return n, nil
}

// NoticeByID looks a notice up by id, excluding soft-deleted ones.
func (q queries) NoticeByID(ctx context.Context, id int64) (*notice.Notice, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+noticeColumns+` FROM notices WHERE id = ? AND deleted_at IS NULL`, id)
	n, err := scanNotice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query notice %d: %w", id, err)
	}
	return n, nil
}

// RecentNotices returns up to limit live notices, most recently updated first.
func (q queries) RecentNotices(ctx context.Context, limit int) ([]*notice.Notice, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+noticeColumns+` FROM notices WHERE deleted_at IS NULL
		ORDER BY updated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query notices: %w", err)
	}
	defer rows.Close()

	notices := make([]*notice.Notice, 0)
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notice: %w", err)
		}
		notices = append(notices, n)
	}
	return notices, rows.Err()
}

// CreateNotice inserts n and fills its ID and timestamps.
func (q queries) CreateNotice(ctx context.Context, n *notice.Notice) error {
	now := q.stamp()
	res, err := q.q.ExecContext(ctx, `INSERT INTO notices (
		notice_number, description, modality, estimated_value, publication_date,
		opening_date, organization_id, category_id, status_id, responsible_id,
		detail_url, notes, source, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.NoticeNumber, n.Description, n.Modality, nullDecimal(n.EstimatedValue),
		nullUnix(n.PublicationDate), nullUnix(n.OpeningDate), nullID(n.OrganizationID),
		nullID(n.CategoryID), n.StatusID, nullID(n.ResponsibleID), n.DetailURL,
		n.Notes, n.Source, now.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("insert notice %s: %w", n.NoticeNumber, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert notice %s: %w", n.NoticeNumber, err)
	}
	n.ID = id
	n.CreatedAt = now
	n.UpdatedAt = now
	return nil
}

// UpdateNotice writes the collector-owned columns of n. Manual columns are
// never touched here.
func (q queries) UpdateNotice(ctx context.Context, n *notice.Notice) error {
	now := q.stamp()
	res, err := q.q.ExecContext(ctx, `UPDATE notices
		SET description = ?, modality = ?, opening_date = ?, detail_url = ?, updated_at = ?
		WHERE id = ?`,
		n.Description, n.Modality, nullUnix(n.OpeningDate), n.DetailURL, now.Unix(), n.ID)
	if err != nil {
		return fmt.Errorf("update notice %s: %w", n.NoticeNumber, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update notice %s: %w", n.NoticeNumber, ErrNotFound)
	}
	n.UpdatedAt = now
	return nil
}

// FillDetail sets the estimated value and publication date of a notice where
// they are still empty. Values already present, including manual edits, win.
func (q queries) FillDetail(ctx context.Context, id int64, value *decimal.Decimal, published *time.Time) error {
	res, err := q.q.ExecContext(ctx, `UPDATE notices
		SET estimated_value = COALESCE(estimated_value, ?),
			publication_date = COALESCE(publication_date, ?)
		WHERE id = ?`,
		nullDecimal(value), nullUnix(published), id)
	if err != nil {
		return fmt.Errorf("fill notice %d detail: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("fill notice %d detail: %w", id, ErrNotFound)
	}
	return nil
}

// findOrCreate runs an INSERT ... ON CONFLICT DO NOTHING and then selects the
// row id by name, so concurrent callers converge on one row.
func (q queries) findOrCreate(ctx context.Context, table, name, insert string, args ...any) (int64, error) {
	if _, err := q.q.ExecContext(ctx, insert, args...); err != nil {
		return 0, fmt.Errorf("insert %s %q: %w", table, name, err)
	}
	var id int64
	err := q.q.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE name = ?`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("select %s %q: %w", table, name, err)
	}
	return id, nil
}

// FindOrCreateOrganization returns the id of the named organization. The
// acronym is only stored when the row is created.
func (q queries) FindOrCreateOrganization(ctx context.Context, name, acronym string) (int64, error) {
	return q.findOrCreate(ctx, "organizations", name,
		`INSERT INTO organizations (name, acronym, created_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING`,
		name, acronym, q.stamp().Unix())
}

// FindOrCreateCategory returns the id of the named category.
func (q queries) FindOrCreateCategory(ctx context.Context, name, description string) (int64, error) {
	return q.findOrCreate(ctx, "categories", name,
		`INSERT INTO categories (name, description, created_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING`,
		name, description, q.stamp().Unix())
}

// FindOrCreateStatus returns the id of the named status.
func (q queries) FindOrCreateStatus(ctx context.Context, name, description, color string) (int64, error) {
	return q.findOrCreate(ctx, "statuses", name,
		`INSERT INTO statuses (name, description, color, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING`,
		name, description, color, q.stamp().Unix())
}

// Organization is a stored organization row
type Organization struct {
	ID      int64
	Name    string
	Acronym string
}

// OrganizationByID looks an organization up by id.
func (q queries) OrganizationByID(ctx context.Context, id int64) (*Organization, error) {
	var o Organization
	err := q.q.QueryRowContext(ctx,
		`SELECT id, name, acronym FROM organizations WHERE id = ?`, id).
		Scan(&o.ID, &o.Name, &o.Acronym)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query organization %d: %w", id, err)
	}
	return &o, nil
}

// CategoryName returns the name of a category.
func (q queries) CategoryName(ctx context.Context, id int64) (string, error) {
	return q.nameByID(ctx, "categories", id)
}

// StatusName returns the name of a status.
func (q queries) StatusName(ctx context.Context, id int64) (string, error) {
	return q.nameByID(ctx, "statuses", id)
}

func (q queries) nameByID(ctx context.Context, table string, id int64) (string, error) {
	var name string
	err := q.q.QueryRowContext(ctx, `SELECT name FROM `+table+` WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query %s %d: %w", table, id, err)
	}
	return name, nil
}

// RecordEvent appends an audit event. A zero At is stamped with the
// current time.
func (q queries) RecordEvent(ctx context.Context, e notice.Event) error {
	at := e.At
	if at.IsZero() {
		at = q.stamp()
	}
	_, err := q.q.ExecContext(ctx, `INSERT INTO events
		(notice_id, type, title, description, at, actor_id) VALUES (?, ?, ?, ?, ?, ?)`,
		e.NoticeID, e.Type, e.Title, e.Description, at.Unix(), nullID(e.ActorID))
	if err != nil {
		return fmt.Errorf("insert %s event for notice %d: %w", e.Type, e.NoticeID, err)
	}
	return nil
}

// EventsForNotice returns a notice's events, oldest first.
func (q queries) EventsForNotice(ctx context.Context, noticeID int64) ([]notice.Event, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT notice_id, type, title, description, at, actor_id
		FROM events WHERE notice_id = ? ORDER BY id`, noticeID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]notice.Event, 0)
	for rows.Next() {
		var (
			e     notice.Event
			at    int64
			actor sql.NullInt64
		)
		if err := rows.Scan(&e.NoticeID, &e.Type, &e.Title, &e.Description, &at, &actor); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.At = time.Unix(at, 0).UTC()
		e.ActorID = fromNullID(actor)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CreateDocument inserts d and fills its ID and creation time.
func (q queries) CreateDocument(ctx context.Context, d *notice.Document) error {
	now := q.stamp()
	res, err := q.q.ExecContext(ctx, `INSERT INTO documents
		(notice_id, name, kind, path, mime_type, size, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.NoticeID, d.Name, d.Kind, d.Path, d.MimeType, d.Size, now.Unix())
	if err != nil {
		return fmt.Errorf("insert document %q: %w", d.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert document %q: %w", d.Name, err)
	}
	d.ID = id
	d.CreatedAt = now
	return nil
}

// DocumentsForNotice returns a notice's documents in insertion order.
func (q queries) DocumentsForNotice(ctx context.Context, noticeID int64) ([]notice.Document, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT id, notice_id, name, kind, path, mime_type, size, created_at
		FROM documents WHERE notice_id = ? ORDER BY id`, noticeID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]notice.Document, 0)
	for rows.Next() {
		var (
			d       notice.Document
			created int64
		)
		if err := rows.Scan(&d.ID, &d.NoticeID, &d.Name, &d.Kind, &d.Path, &d.MimeType, &d.Size, &created); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.CreatedAt = time.Unix(created, 0).UTC()
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// SeedUser creates a user holding the given roles. Users are managed
// elsewhere; this exists for local setup and fixtures.
func (q queries) SeedUser(ctx context.Context, name string, roles ...string) (int64, error) {
	res, err := q.q.ExecContext(ctx, `INSERT INTO users (name, created_at) VALUES (?, ?)`,
		name, q.stamp().Unix())
	if err != nil {
		return 0, fmt.Errorf("insert user %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert user %q: %w", name, err)
	}
	for _, role := range roles {
		if _, err := q.q.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			id, role); err != nil {
			return 0, fmt.Errorf("assign role %q: %w", role, err)
		}
	}
	return id, nil
}

// UsersByRole returns the ids of users holding role.
func (q queries) UsersByRole(ctx context.Context, role string) ([]int64, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT u.id FROM users u
		JOIN user_roles r ON r.user_id = u.id
		WHERE r.role = ? ORDER BY u.id`, role)
	if err != nil {
		return nil, fmt.Errorf("query users with role %q: %w", role, err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Notification is a per-user inbox row
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	NoticeID  *int64    `json:"notice_id,omitempty"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateNotification inserts n and fills its ID and creation time.
func (q queries) CreateNotification(ctx context.Context, n *Notification) error {
	now := q.stamp()
	res, err := q.q.ExecContext(ctx, `INSERT INTO notifications
		(user_id, notice_id, type, title, message, read, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.UserID, nullID(n.NoticeID), n.Type, n.Title, n.Message, n.Read, now.Unix())
	if err != nil {
		return fmt.Errorf("insert notification for user %d: %w", n.UserID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert notification for user %d: %w", n.UserID, err)
	}
	n.ID = id
	n.CreatedAt = now
	return nil
}

// NotificationsForUser returns a user's notifications, newest first.
func (q queries) NotificationsForUser(ctx context.Context, userID int64) ([]Notification, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT id, user_id, notice_id, type, title, message, read, created_at
		FROM notifications WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	list := make([]Notification, 0)
	for rows.Next() {
		var (
			n        Notification
			noticeID sql.NullInt64
			created  int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &noticeID, &n.Type, &n.Title, &n.Message, &n.Read, &created); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.NoticeID = fromNullID(noticeID)
		n.CreatedAt = time.Unix(created, 0).UTC()
		list = append(list, n)
	}
	return list, rows.Err()
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func fromNullID(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	id := n.Int64
	return &id
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func fromNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
