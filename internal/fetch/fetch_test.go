package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PostForm(t *testing.T) {
	var gotUA, gotContentType string
	var gotForm url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Write([]byte("<html>ok</html>"))
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL})
	body, err := client.PostForm(context.Background(), "/search", url.Values{
		"DataDe":  {"08/03/2024"},
		"NumDias": {"0"},
	})
	require.NoError(t, err)

	assert.Equal(t, "<html>ok</html>", string(body))
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Contains(t, gotContentType, "application/x-www-form-urlencoded")
	assert.Equal(t, "08/03/2024", gotForm.Get("DataDe"))
	assert.Equal(t, "0", gotForm.Get("NumDias"))
}

func TestClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte("late"))
		case "/down":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/choices":
			w.WriteHeader(http.StatusMultipleChoices)
			w.Write([]byte("choose"))
		case "/cached":
			w.WriteHeader(http.StatusNotModified)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, Timeout: 50 * time.Millisecond})

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "not found", path: "/missing", wantStatus: http.StatusNotFound},
		{name: "server error", path: "/down", wantStatus: http.StatusServiceUnavailable},
		{name: "multiple choices", path: "/choices", wantStatus: http.StatusMultipleChoices},
		{name: "not modified", path: "/cached", wantStatus: http.StatusNotModified},
		{name: "timeout", path: "/slow", wantStatus: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Get(context.Background(), tt.path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFetch))

			var fetchErr *FetchError
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, http.MethodGet, fetchErr.Method)
			assert.Equal(t, tt.path, fetchErr.URL)
			assert.Equal(t, tt.wantStatus, fetchErr.StatusCode)
			if tt.wantStatus == 0 {
				assert.NotNil(t, fetchErr.Err)
			}
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	_, err := New(Options{}).Get(context.Background(), addr)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
}

func TestClient_Download(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gone.pdf":
			w.WriteHeader(http.StatusGone)
			io.WriteString(w, "gone")
			return
		case "/choices.pdf":
			w.WriteHeader(http.StatusMultipleChoices)
			io.WriteString(w, "choose")
			return
		case "/cached.pdf":
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4 fake")
	}))
	defer server.Close()

	dir := t.TempDir()
	client := New(Options{})

	t.Run("success", func(t *testing.T) {
		path := filepath.Join(dir, "notices", "1", "edital.pdf")
		info, err := client.Download(context.Background(), server.URL+"/edital.pdf", path)
		require.NoError(t, err)

		assert.Equal(t, path, info.Path)
		assert.Equal(t, "application/pdf", info.MimeType)
		assert.Equal(t, int64(len("%PDF-1.4 fake")), info.Size)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 fake", string(data))
	})

	for _, name := range []string{"gone.pdf", "choices.pdf", "cached.pdf"} {
		t.Run("non-2xx leaves no file: "+name, func(t *testing.T) {
			path := filepath.Join(dir, "notices", "1", name)
			_, err := client.Download(context.Background(), server.URL+"/"+name, path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFetch)

			_, statErr := os.Stat(path)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestFetchError_Message(t *testing.T) {
	err := &FetchError{Method: "GET", URL: "https://example.com", StatusCode: 500}
	assert.Equal(t, "GET https://example.com: unexpected status code: 500", err.Error())

	err = &FetchError{Method: "POST", URL: "https://example.com", Err: errors.New("connection refused")}
	assert.Equal(t, "POST https://example.com: connection refused", err.Error())
}
