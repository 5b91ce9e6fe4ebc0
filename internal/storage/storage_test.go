package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/bid-scout/internal/notice"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedStatus(t *testing.T, db *DB) int64 {
	t.Helper()
	id, err := db.FindOrCreateStatus(context.Background(), "New", "Newly collected notice", "#3498db")
	require.NoError(t, err)
	return id
}

func TestOpen_FileIsReusable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bid-scout.db")

	db, err := Open(path)
	require.NoError(t, err)
	statusID := seedStatus(t, db)
	require.NoError(t, db.CreateNotice(context.Background(), &notice.Notice{NoticeNumber: "1", StatusID: statusID}))
	require.NoError(t, db.Close())

	// schema application is idempotent
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	n, err := db.NoticeByNumber(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "1", n.NoticeNumber)
}

func TestNotice_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	statusID := seedStatus(t, db)
	orgID, err := db.FindOrCreateOrganization(ctx, "Secretaria de Estado da Fazenda", "SEF")
	require.NoError(t, err)

	opening := time.Date(2024, 3, 15, 14, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	value := decimal.RequireFromString("1234567.89")
	in := &notice.Notice{
		NoticeNumber:   "90001/2024",
		Description:    "Reforma do prédio sede",
		Modality:       "Pregão Eletrônico",
		EstimatedValue: &value,
		OpeningDate:    &opening,
		OrganizationID: &orgID,
		StatusID:       statusID,
		DetailURL:      "https://comprasnet.gov.br/x",
		Source:         "ComprasNet",
	}
	require.NoError(t, db.CreateNotice(ctx, in))
	assert.NotZero(t, in.ID)
	assert.False(t, in.CreatedAt.IsZero())

	got, err := db.NoticeByNumber(ctx, "90001/2024")
	require.NoError(t, err)

	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.Description, got.Description)
	assert.Equal(t, in.Modality, got.Modality)
	require.NotNil(t, got.OpeningDate)
	assert.True(t, opening.Equal(*got.OpeningDate))
	require.NotNil(t, got.EstimatedValue)
	assert.True(t, value.Equal(*got.EstimatedValue))
	require.NotNil(t, got.OrganizationID)
	assert.Equal(t, orgID, *got.OrganizationID)
	assert.Nil(t, got.CategoryID)
	assert.Nil(t, got.ResponsibleID)
	assert.Nil(t, got.PublicationDate)
	assert.Nil(t, got.DeletedAt)

	byID, err := db.NoticeByID(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, got, byID)
}

func TestNotice_NotFound(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.NoticeByNumber(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.NoticeByID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	err = db.UpdateNotice(ctx, &notice.Notice{ID: 42, NoticeNumber: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotice_DuplicateNumberRejected(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	statusID := seedStatus(t, db)

	require.NoError(t, db.CreateNotice(ctx, &notice.Notice{NoticeNumber: "1", StatusID: statusID}))
	assert.Error(t, db.CreateNotice(ctx, &notice.Notice{NoticeNumber: "1", StatusID: statusID}))
}

func TestUpdateNotice_PreservesManualFields(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	statusID := seedStatus(t, db)

	n := &notice.Notice{
		NoticeNumber: "2",
		Description:  "Old",
		Notes:        "call the buyer",
		StatusID:     statusID,
	}
	require.NoError(t, db.CreateNotice(ctx, n))

	n.Description = "New"
	n.Notes = "overwritten in memory"
	require.NoError(t, db.UpdateNotice(ctx, n))

	got, err := db.NoticeByNumber(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "New", got.Description)
	assert.Equal(t, "call the buyer", got.Notes)
}

func TestFillDetail(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	statusID := seedStatus(t, db)

	n := &notice.Notice{NoticeNumber: "3", StatusID: statusID}
	require.NoError(t, db.CreateNotice(ctx, n))

	first := decimal.RequireFromString("100.50")
	published := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.FillDetail(ctx, n.ID, &first, &published))

	second := decimal.RequireFromString("999")
	require.NoError(t, db.FillDetail(ctx, n.ID, &second, nil))

	got, err := db.NoticeByID(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EstimatedValue)
	assert.Equal(t, "100.5", got.EstimatedValue.String())
	require.NotNil(t, got.PublicationDate)
	assert.True(t, published.Equal(*got.PublicationDate))

	assert.ErrorIs(t, db.FillDetail(ctx, 9999, nil, nil), ErrNotFound)
}

func TestFindOrCreate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	first, err := db.FindOrCreateOrganization(ctx, "Ministério da Saúde", "MS")
	require.NoError(t, err)
	second, err := db.FindOrCreateOrganization(ctx, "Ministério da Saúde", "OTHER")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	org, err := db.OrganizationByID(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "MS", org.Acronym)

	cat1, err := db.FindOrCreateCategory(ctx, "IT", "Notices related to IT")
	require.NoError(t, err)
	cat2, err := db.FindOrCreateCategory(ctx, "Health", "Notices related to Health")
	require.NoError(t, err)
	cat3, err := db.FindOrCreateCategory(ctx, "IT", "ignored")
	require.NoError(t, err)
	assert.NotEqual(t, cat1, cat2)
	assert.Equal(t, cat1, cat3)

	name, err := db.CategoryName(ctx, cat2)
	require.NoError(t, err)
	assert.Equal(t, "Health", name)

	statusID := seedStatus(t, db)
	assert.Equal(t, statusID, seedStatus(t, db))
	name, err = db.StatusName(ctx, statusID)
	require.NoError(t, err)
	assert.Equal(t, "New", name)

	_, err = db.StatusName(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	statusID := seedStatus(t, db)

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.CreateNotice(ctx, &notice.Notice{NoticeNumber: "rolled-back", StatusID: statusID}); err != nil {
			return err
		}
		if _, err := tx.FindOrCreateOrganization(ctx, "Ghost Org", "GO"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = db.NoticeByNumber(ctx, "rolled-back")
	assert.ErrorIs(t, err, ErrNotFound)

	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.CreateNotice(ctx, &notice.Notice{NoticeNumber: "committed", StatusID: statusID})
	})
	require.NoError(t, err)

	_, err = db.NoticeByNumber(ctx, "committed")
	assert.NoError(t, err)
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	statusID := seedStatus(t, db)

	n := &notice.Notice{NoticeNumber: "4", StatusID: statusID}
	require.NoError(t, db.CreateNotice(ctx, n))

	require.NoError(t, db.RecordEvent(ctx, notice.Event{
		NoticeID: n.ID,
		Type:     notice.EventCreated,
		Title:    "Notice collected",
	}))
	require.NoError(t, db.RecordEvent(ctx, notice.Event{
		NoticeID:    n.ID,
		Type:        notice.EventUpdated,
		Title:       "Notice updated",
		Description: "Changed fields: description",
	}))

	events, err := db.EventsForNotice(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, notice.EventCreated, events[0].Type)
	assert.Nil(t, events[0].ActorID)
	assert.False(t, events[0].At.IsZero())
	assert.Equal(t, "Changed fields: description", events[1].Description)
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	statusID := seedStatus(t, db)

	n := &notice.Notice{NoticeNumber: "5", StatusID: statusID}
	require.NoError(t, db.CreateNotice(ctx, n))

	doc := &notice.Document{
		NoticeID: n.ID,
		Name:     "edital.pdf",
		Kind:     "notice",
		Path:     "notices/1/edital.pdf",
		MimeType: "application/pdf",
		Size:     1024,
	}
	require.NoError(t, db.CreateDocument(ctx, doc))
	assert.NotZero(t, doc.ID)

	docs, err := db.DocumentsForNotice(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
	assert.Equal(t, "edital.pdf", docs[0].Name)
	assert.Equal(t, "notice", docs[0].Kind)
	assert.Equal(t, "notices/1/edital.pdf", docs[0].Path)
	assert.Equal(t, "application/pdf", docs[0].MimeType)
	assert.Equal(t, int64(1024), docs[0].Size)
	assert.True(t, doc.CreatedAt.Equal(docs[0].CreatedAt))
}

func TestUsersAndNotifications(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	alice, err := db.SeedUser(ctx, "alice", "analyst")
	require.NoError(t, err)
	_, err = db.SeedUser(ctx, "bob", "admin")
	require.NoError(t, err)
	carol, err := db.SeedUser(ctx, "carol", "analyst", "admin")
	require.NoError(t, err)

	ids, err := db.UsersByRole(ctx, "analyst")
	require.NoError(t, err)
	assert.Equal(t, []int64{alice, carol}, ids)

	ids, err = db.UsersByRole(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, db.CreateNotification(ctx, &Notification{
		UserID:  alice,
		Type:    "notice_created",
		Title:   "New notice",
		Message: "Notice 1 was collected",
	}))

	list, err := db.NotificationsForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "New notice", list[0].Title)
	assert.False(t, list[0].Read)
	assert.Nil(t, list[0].NoticeID)
}

func TestRecentNotices(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	statusID := seedStatus(t, db)

	clock := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return clock }

	for _, number := range []string{"a", "b", "c"} {
		require.NoError(t, db.CreateNotice(ctx, &notice.Notice{NoticeNumber: number, StatusID: statusID}))
		clock = clock.Add(time.Minute)
	}

	list, err := db.RecentNotices(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].NoticeNumber)
	assert.Equal(t, "b", list[1].NoticeNumber)
}
