package documents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/bid-scout/internal/fetch"
	"github.com/pfrederiksen/bid-scout/internal/notice"
	"github.com/pfrederiksen/bid-scout/internal/storage"
)

func TestDownloadAll(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/edital.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4 edital"))
		case "/anexo.zip":
			w.Header().Set("Content-Type", "application/zip")
			w.Write([]byte("PK zip"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	db, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	statusID, err := db.FindOrCreateStatus(ctx, "New", "", "#3498db")
	require.NoError(t, err)
	n := &notice.Notice{NoticeNumber: "90001/2024", Source: "ComprasNet", StatusID: statusID}
	require.NoError(t, db.CreateNotice(ctx, n))

	root := t.TempDir()
	d := New(db, fetch.New(fetch.Options{}), root)

	refs := []notice.DocumentRef{
		{Name: "Edital", URL: server.URL + "/edital.pdf"},
		{Name: "Planilha", URL: server.URL + "/missing.xls"},
		{URL: server.URL + "/anexo.zip"},
	}
	summary, err := d.DownloadAll(ctx, n.ID, refs)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Items, 3)

	assert.True(t, summary.Items[0].Success)
	assert.Equal(t, "Edital.pdf", summary.Items[0].Name)
	assert.False(t, summary.Items[1].Success)
	assert.Contains(t, summary.Items[1].Error, "404")
	assert.Equal(t, "anexo.zip", summary.Items[2].Name)

	assert.Equal(t, filepath.Join("notices", fmt.Sprint(n.ID), "Edital.pdf"), summary.Items[0].Path)
	data, err := os.ReadFile(filepath.Join(root, summary.Items[0].Path))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 edital", string(data))

	_, err = os.Stat(filepath.Join(root, summary.Items[1].Path))
	assert.True(t, os.IsNotExist(err), "failed download leaves no file")

	docs, err := db.DocumentsForNotice(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, doc := range docs {
		assert.Equal(t, KindNotice, doc.Kind)
		assert.Positive(t, doc.Size)
	}
}

func TestDownloadAll_MissingNotice(t *testing.T) {
	db, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	d := New(db, fetch.New(fetch.Options{}), t.TempDir())
	_, err = d.DownloadAll(context.Background(), 42, []notice.DocumentRef{{URL: "http://example.invalid/a.pdf"}})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

type failingStore struct {
	*storage.DB
}

func (failingStore) CreateDocument(context.Context, *notice.Document) error {
	return errors.New("disk full")
}

func TestDownloadAll_RecordFailureRemovesFile(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	db, err := storage.Open(storage.MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	statusID, err := db.FindOrCreateStatus(ctx, "New", "", "#3498db")
	require.NoError(t, err)
	n := &notice.Notice{NoticeNumber: "90003/2024", Source: "ComprasNet", StatusID: statusID}
	require.NoError(t, db.CreateNotice(ctx, n))

	root := t.TempDir()
	d := New(failingStore{db}, fetch.New(fetch.Options{}), root)

	summary, err := d.DownloadAll(ctx, n.ID, []notice.DocumentRef{{Name: "a", URL: server.URL + "/a.pdf"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Items, 1)
	assert.Equal(t, "disk full", summary.Items[0].Error)

	_, err = os.Stat(filepath.Join(root, summary.Items[0].Path))
	assert.True(t, os.IsNotExist(err), "unrecorded download leaves no file")
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		name string
		ref  notice.DocumentRef
		want string
	}{
		{name: "document name with url extension", ref: notice.DocumentRef{Name: "Edital", URL: "https://x/a/edital.pdf"}, want: "Edital.pdf"},
		{name: "name already has extension", ref: notice.DocumentRef{Name: "edital.PDF", URL: "https://x/e.pdf"}, want: "edital.PDF"},
		{name: "falls back to url base", ref: notice.DocumentRef{URL: "https://x/files/anexo_1.zip?v=2"}, want: "anexo_1.zip"},
		{name: "unsafe characters", ref: notice.DocumentRef{Name: "Anexo I / Termo de Referência"}, want: "Anexo_I_Termo_de_Referência"},
		{name: "path traversal", ref: notice.DocumentRef{Name: "../../etc/passwd"}, want: "etc_passwd"},
		{name: "nothing usable", ref: notice.DocumentRef{URL: "https://x/"}, want: "document"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeName(tt.ref); got != tt.want {
				t.Errorf("SafeName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUniqueNames(t *testing.T) {
	refs := []notice.DocumentRef{
		{Name: "Edital", URL: "https://x/1.pdf"},
		{Name: "Edital", URL: "https://x/2.pdf"},
	}
	assert.Equal(t, []string{"Edital.pdf", "2_Edital.pdf"}, uniqueNames(refs))
}
