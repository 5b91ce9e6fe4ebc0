// Package documents downloads notice attachments to local storage.
package documents

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pfrederiksen/bid-scout/internal/fetch"
	"github.com/pfrederiksen/bid-scout/internal/logger"
	"github.com/pfrederiksen/bid-scout/internal/notice"
)

// DefaultConcurrency bounds parallel downloads per notice
const DefaultConcurrency = 4

// KindNotice is the document kind recorded for collected attachments
const KindNotice = "notice"

// Store persists downloaded documents
type Store interface {
	NoticeByID(ctx context.Context, id int64) (*notice.Notice, error)
	CreateDocument(ctx context.Context, d *notice.Document) error
}

// Fetcher streams a URL to a local file
type Fetcher interface {
	Download(ctx context.Context, target, path string) (fetch.DownloadInfo, error)
}

// Item is the result of one document download
type Item struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Path    string `json:"path,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Summary aggregates a DownloadAll call
type Summary struct {
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Items     []Item `json:"items"`
}

// Downloader saves documents under Root and records them in the store
type Downloader struct {
	Store       Store
	Fetcher     Fetcher
	Root        string
	Concurrency int
}

// New creates a Downloader with the default concurrency
func New(store Store, fetcher Fetcher, root string) *Downloader {
	return &Downloader{Store: store, Fetcher: fetcher, Root: root, Concurrency: DefaultConcurrency}
}

// DownloadAll fetches every ref for the notice. The returned error is only
// set when the notice does not exist; per-document failures are reported in
// the summary items, which keep the order of refs.
func (d *Downloader) DownloadAll(ctx context.Context, noticeID int64, refs []notice.DocumentRef) (Summary, error) {
	if _, err := d.Store.NoticeByID(ctx, noticeID); err != nil {
		return Summary{}, fmt.Errorf("notice %d: %w", noticeID, err)
	}

	limit := d.Concurrency
	if limit < 1 {
		limit = DefaultConcurrency
	}

	names := uniqueNames(refs)
	items := make([]Item, len(refs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, ref := range refs {
		g.Go(func() error {
			items[i] = d.download(ctx, noticeID, ref, names[i])
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	summary := Summary{Total: len(items), Items: items}
	for _, it := range items {
		if it.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	logger.Info("Documents downloaded", logger.Fields{
		"notice_id": noticeID,
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	})
	logger.AddCounter("documents.downloaded", int64(summary.Succeeded))
	logger.AddCounter("documents.failed", int64(summary.Failed))
	return summary, nil
}

func (d *Downloader) download(ctx context.Context, noticeID int64, ref notice.DocumentRef, name string) Item {
	rel := filepath.Join("notices", fmt.Sprint(noticeID), name)
	item := Item{Name: name, URL: ref.URL, Path: rel}

	info, err := d.Fetcher.Download(ctx, ref.URL, filepath.Join(d.Root, rel))
	if err != nil {
		logger.Warn("Document download failed", logger.Fields{
			"notice_id": noticeID,
			"url":       ref.URL,
			"error":     err.Error(),
		})
		item.Error = err.Error()
		return item
	}

	doc := &notice.Document{
		NoticeID: noticeID,
		Name:     name,
		Kind:     KindNotice,
		Path:     filepath.ToSlash(rel),
		MimeType: info.MimeType,
		Size:     info.Size,
	}
	if err := d.Store.CreateDocument(ctx, doc); err != nil {
		logger.Warn("Document record failed, removing file", logger.Fields{
			"notice_id": noticeID,
			"path":      doc.Path,
			"error":     err.Error(),
		})
		os.Remove(filepath.Join(d.Root, rel)) //nolint:errcheck
		item.Error = err.Error()
		return item
	}

	item.Success = true
	item.Size = info.Size
	return item
}

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// SafeName derives a file name from the document name, falling back to the
// URL's base name.
func SafeName(ref notice.DocumentRef) string {
	name := strings.TrimSpace(ref.Name)
	if ext := urlExt(ref.URL); name != "" && ext != "" && !strings.EqualFold(filepath.Ext(name), ext) {
		name += ext
	}
	if name == "" {
		if u, err := url.Parse(ref.URL); err == nil {
			name = path.Base(u.Path)
		}
	}

	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "document"
	}
	return name
}

func urlExt(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}

// uniqueNames assigns each ref a file name, prefixing repeats with their
// position so no two downloads share a path.
func uniqueNames(refs []notice.DocumentRef) []string {
	names := make([]string, len(refs))
	seen := make(map[string]bool, len(refs))
	for i, ref := range refs {
		name := SafeName(ref)
		if seen[name] {
			name = fmt.Sprintf("%d_%s", i+1, name)
		}
		seen[name] = true
		names[i] = name
	}
	return names
}
