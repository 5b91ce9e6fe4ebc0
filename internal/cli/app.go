package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pfrederiksen/bid-scout/internal/config"
	"github.com/pfrederiksen/bid-scout/internal/documents"
	"github.com/pfrederiksen/bid-scout/internal/fetch"
	"github.com/pfrederiksen/bid-scout/internal/normalize"
	"github.com/pfrederiksen/bid-scout/internal/notifier"
	"github.com/pfrederiksen/bid-scout/internal/portal"
	"github.com/pfrederiksen/bid-scout/internal/reconcile"
	"github.com/pfrederiksen/bid-scout/internal/storage"
	"github.com/pfrederiksen/bid-scout/internal/telegram"
	"github.com/pfrederiksen/bid-scout/internal/telemetry"
)

// app holds the collaborators shared by every command
type app struct {
	cfg        config.Config
	db         *storage.DB
	normalizer *normalize.Normalizer
	comprasnet *portal.ComprasNet
	registry   *portal.Registry
	downloader *documents.Downloader
	shutdown   func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config, out io.Writer) (*app, error) {
	shutdown, err := telemetry.Setup(ctx, "bid-scout", cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("setting up telemetry: %w", err)
	}

	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	root, err := config.Expand(cfg.Documents.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving documents root: %w", err)
	}

	db, err := storage.Open(cfg.Database.File)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	dispatcher, err := newDispatcher(cfg.Notify, db, out)
	if err != nil {
		db.Close()
		return nil, err
	}

	rec, err := reconcile.New(ctx, reconcile.FromDB(db), dispatcher, reconcile.Options{
		ReviewerRole: cfg.Reconcile.ReviewerRole,
		Workers:      cfg.Reconcile.Workers,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	client := fetch.New(fetch.Options{
		Timeout:            timeout,
		UserAgent:          cfg.HTTP.UserAgent,
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
	})
	normalizer := normalize.New(loc)
	comprasnet := portal.NewComprasNet(client, normalizer, rec, cfg.Portal.ComprasNet.BaseURL)

	return &app{
		cfg:        cfg,
		db:         db,
		normalizer: normalizer,
		comprasnet: comprasnet,
		registry: portal.NewRegistry(
			comprasnet,
			portal.NewNotImplemented(portal.LicitacoesE),
			portal.NewNotImplemented(portal.PortalTransparencia),
		),
		downloader: documents.New(db, client, root),
		shutdown:   shutdown,
	}, nil
}

// newDispatcher stores notifications per user, or prints them in dry-run
// mode, and also broadcasts to Telegram when a bot token and chats are set.
func newDispatcher(cfg config.Notify, db *storage.DB, out io.Writer) (notifier.Dispatcher, error) {
	var multi notifier.Multi
	if cfg.DryRun {
		multi = append(multi, notifier.NewDryRun(out))
	} else {
		multi = append(multi, notifier.NewInbox(db))
	}

	if cfg.Telegram.BotToken != "" && len(cfg.Telegram.Chats) > 0 {
		client, err := telegram.NewClient(cfg.Telegram.BotToken, "")
		if err != nil {
			return nil, fmt.Errorf("creating telegram client: %w", err)
		}
		multi = append(multi, notifier.NewTelegram(client, cfg.Telegram.Chats))
	}
	return multi, nil
}

func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.db.Close(), a.shutdown(ctx))
}
