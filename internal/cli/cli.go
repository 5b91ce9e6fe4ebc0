package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/bid-scout/internal/config"
	"github.com/pfrederiksen/bid-scout/internal/logger"
	"github.com/pfrederiksen/bid-scout/internal/notice"
	"github.com/pfrederiksen/bid-scout/internal/portal"
	"github.com/pfrederiksen/bid-scout/internal/schedule"
)

const (
	ExitSuccess    = 0
	ExitError      = 1
	ExitNewNotices = 2
)

var (
	flagConfig  string
	flagFormat  string
	flagVerbose bool

	flagPortal       string
	flagDays         int
	flagFrom         string
	flagTo           string
	flagModality     string
	flagSituation    string
	flagOrganization string
	flagType         string

	flagLimit int
	flagSort  string

	flagDownload bool
	flagRunNow   bool
)

// exitCode is set by commands that report through the process status
var exitCode = ExitSuccess

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	exitCode = ExitSuccess

	cmd := &cobra.Command{
		Use:   "bid-scout",
		Short: "Collect public procurement notices",
		Long: `A CLI tool to collect public procurement notices from government portals.
Listings are parsed, normalized and reconciled against the local database;
new notices are announced to reviewers.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultFile, "Path to the JSON5 config file")
	cmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "Output format: text or json")
	cmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable verbose logging")

	cmd.AddCommand(newCollectCmd(), newNoticesCmd(), newDetailCmd(), newDownloadCmd(), newServeCmd(), newPortalsCmd())
	return cmd
}

func newCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one collection against a portal",
		Long: `Run one collection against a portal and report what changed.
Exits with status 2 when new notices were registered.`,
		RunE: runCollect,
	}
	cmd.Flags().StringVar(&flagPortal, "portal", portal.ComprasNetID, "Portal id")
	cmd.Flags().IntVar(&flagDays, "days", portal.DefaultDays, "Look-back window in days when no range is given")
	cmd.Flags().StringVar(&flagFrom, "from", "", "Range start (dd/mm/yyyy)")
	cmd.Flags().StringVar(&flagTo, "to", "", "Range end (dd/mm/yyyy)")
	cmd.Flags().StringVar(&flagModality, "modality", "", "Portal modality filter")
	cmd.Flags().StringVar(&flagSituation, "situation", "", "Portal situation filter")
	cmd.Flags().StringVar(&flagOrganization, "organization", "", "Portal organization filter")
	cmd.Flags().StringVar(&flagType, "type", "", "Portal notice type filter")
	return cmd
}

func newNoticesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notices",
		Short: "List recently collected notices",
		RunE:  runNotices,
	}
	cmd.Flags().IntVar(&flagLimit, "limit", 20, "Maximum number of notices")
	cmd.Flags().StringVar(&flagSort, "sort", string(SortByCreated), "Sort order: created, opening or number")
	return cmd
}

func newDetailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detail <notice-number>",
		Short: "Fetch a notice's detail page and store its extra fields",
		Args:  cobra.ExactArgs(1),
		RunE:  runDetail,
	}
	cmd.Flags().BoolVar(&flagDownload, "download", false, "Also download the notice documents")
	return cmd
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <notice-number>",
		Short: "Download the documents linked from a notice's detail page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flagDownload = true
			return runDetail(cmd, args)
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled collections until interrupted",
		RunE:  runServe,
	}
	cmd.Flags().BoolVar(&flagRunNow, "now", false, "Trigger every job once at startup")
	return cmd
}

func newPortalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "portals",
		Short: "List known portal ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app, format OutputFormat) error {
				return WriteOutput(cmd.OutOrStdout(), &OutputResult{
					CheckedAt: time.Now().UTC(),
					Portals:   a.registry.IDs(),
				}, format, flagVerbose)
			})
		},
	}
}

// withApp loads config, configures logging and builds the app for one
// command invocation.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app, format OutputFormat) error) error {
	format := OutputFormat(strings.ToLower(flagFormat))
	if format != FormatText && format != FormatJSON {
		return fmt.Errorf("invalid format: %s (must be 'text' or 'json')", flagFormat)
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	level := logger.ParseLevel(cfg.Log.Level)
	if flagVerbose {
		level = logger.LevelDebug
	}
	logger.SetDefault(logger.New(level, cmd.ErrOrStderr(), logger.Format(cfg.Log.Format)))
	if cfg.Source == "" {
		logger.Debug("No config file found, using defaults", logger.Fields{"path": flagConfig})
	} else {
		logger.Debug("Loaded config", logger.Fields{"path": cfg.Source})
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("Shutdown incomplete", logger.Fields{"error": err.Error()})
		}
	}()

	return fn(ctx, a, format)
}

func runCollect(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app, format OutputFormat) error {
		params := portal.Params{
			Days: flagDays,
			Filters: portal.Filters{
				Modality:     flagModality,
				Situation:    flagSituation,
				Organization: flagOrganization,
				Type:         flagType,
			},
		}
		if flagFrom != "" || flagTo != "" {
			r, err := parseRange(a, flagFrom, flagTo)
			if err != nil {
				return err
			}
			params.Range = r
		}

		result := a.registry.Collect(ctx, flagPortal, params)
		if err := WriteOutput(cmd.OutOrStdout(), &OutputResult{
			CheckedAt:  time.Now().UTC(),
			Collection: &result,
		}, format, flagVerbose); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}

		if !result.Success {
			return errors.New(result.Message)
		}
		if result.Created > 0 {
			exitCode = ExitNewNotices
		}
		return nil
	})
}

func parseRange(a *app, from, to string) (*notice.DateRange, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("--from and --to must be given together")
	}
	start, err := a.normalizer.ParseDate(from)
	if err != nil {
		return nil, fmt.Errorf("--from: %w", err)
	}
	end, err := a.normalizer.ParseDate(to)
	if err != nil {
		return nil, fmt.Errorf("--to: %w", err)
	}
	if end.Before(*start) {
		return nil, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	return &notice.DateRange{From: *start, To: *end}, nil
}

func runNotices(cmd *cobra.Command, args []string) error {
	order := SortOrder(strings.ToLower(flagSort))
	if !order.Valid() {
		return fmt.Errorf("invalid sort order: %s (must be 'created', 'opening' or 'number')", flagSort)
	}

	return withApp(cmd, func(ctx context.Context, a *app, format OutputFormat) error {
		list, err := a.db.RecentNotices(ctx, flagLimit)
		if err != nil {
			return fmt.Errorf("listing notices: %w", err)
		}
		sortNotices(list, order)
		return WriteOutput(cmd.OutOrStdout(), &OutputResult{
			CheckedAt: time.Now().UTC(),
			Notices:   views(list),
		}, format, flagVerbose)
	})
}

func runDetail(cmd *cobra.Command, args []string) error {
	number := strings.TrimSpace(args[0])
	return withApp(cmd, func(ctx context.Context, a *app, format OutputFormat) error {
		n, err := a.db.NoticeByNumber(ctx, number)
		if err != nil {
			return fmt.Errorf("loading notice %s: %w", number, err)
		}
		if n.DeletedAt != nil {
			return fmt.Errorf("notice %s was deleted", number)
		}
		if n.DetailURL == "" {
			return fmt.Errorf("notice %s has no detail link", number)
		}

		detail := a.comprasnet.FetchDetail(ctx, n.DetailURL)
		if detail == nil {
			return fmt.Errorf("detail page for notice %s is unavailable", number)
		}
		if err := a.db.FillDetail(ctx, n.ID, detail.EstimatedValue, detail.PublicationDate); err != nil {
			return fmt.Errorf("storing detail: %w", err)
		}

		result := &OutputResult{
			CheckedAt:    time.Now().UTC(),
			NoticeNumber: number,
			Detail:       detail,
		}
		if flagDownload {
			summary, err := a.downloader.DownloadAll(ctx, n.ID, detail.Documents)
			if err != nil {
				return err
			}
			result.Downloads = &summary
		}
		return WriteOutput(cmd.OutOrStdout(), result, format, flagVerbose)
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app, format OutputFormat) error {
		loc, err := a.cfg.Location()
		if err != nil {
			return err
		}
		s, err := schedule.New(a.registry, a.cfg.Schedule.Jobs, loc)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		s.Start()
		if flagRunNow {
			for _, name := range s.Names() {
				s.Go(name) //nolint:errcheck // name comes from s.Names
			}
		}
		logger.Info("Scheduler running", logger.Fields{"jobs": len(s.Names())})

		<-ctx.Done()
		logger.Info("Stopping scheduler", nil)

		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	})
}

// Execute runs the CLI
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
	os.Exit(exitCode)
}
