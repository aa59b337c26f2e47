package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pfrederiksen/wca-events/internal/logger"
	"github.com/pfrederiksen/wca-events/internal/status"
	"github.com/pfrederiksen/wca-events/internal/storage"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Check now and then on every interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoller(cmd, opts)
		},
	}
}

func runPoller(cmd *cobra.Command, opts *options) error {
	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	setupLogger(cfg, cmd.OutOrStdout())

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := newPoller(cfg, store, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.Run(ctx)
		return nil
	})
	if cfg.StatusAddr != "" {
		g.Go(func() error {
			return status.Serve(ctx, cfg.StatusAddr, status.NewHandler(p, store, nil).Router())
		})
	}
	return g.Wait()
}

func newCheckCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a single check and report new competitions",
		Long: `Runs one check: scrapes the listing, records new competitions in the cache
and announces them. Exits with code 2 when new competitions were found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Include listing statistics in text output")
	return cmd
}

func runCheck(cmd *cobra.Command, opts *options) error {
	format, err := parseFormat(opts.format)
	if err != nil {
		return err
	}

	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	setupLogger(cfg, cmd.ErrOrStderr())

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// Keep stdout parseable in JSON mode.
	announceTo := cmd.OutOrStdout()
	if format == FormatJSON {
		announceTo = cmd.ErrOrStderr()
	}
	p, err := newPoller(cfg, store, announceTo)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cycle, cycleErr := p.Cycle(ctx)

	result := &OutputResult{
		CheckedAt:  time.Now().UTC(),
		Country:    cfg.TargetCountry,
		Cycle:      cycle,
		NewEvents:  cycle.NewKeys,
		EventCount: len(cycle.NewKeys),
		DryRun:     cfg.DryRun,
	}
	if err := WriteOutput(cmd.OutOrStdout(), result, format, opts.verbose); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if cycleErr != nil {
		return cycleErr
	}
	if result.EventCount > 0 {
		return ErrNewEvents
	}
	return nil
}

func newInitCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty seen-event cache",
		Long: `Creates the seen-event cache if it does not exist yet. An existing cache is
left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			setupLogger(cfg, cmd.ErrOrStderr())

			created, err := initStore(cfg.Store, cfg.CachePath)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s cache at %s\n", cfg.Store, cfg.CachePath)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Cache %s already exists, left unchanged\n", cfg.CachePath)
			}
			return nil
		},
	}
}

func initStore(backend, path string) (bool, error) {
	if backend != storage.BackendSQLite {
		return storage.CreateJSON(path)
	}

	_, statErr := os.Stat(path)
	store, err := storage.OpenSQLite(path)
	if err != nil {
		return false, err
	}
	if err := store.Close(); err != nil {
		return false, err
	}
	return os.IsNotExist(statErr), nil
}

func newSeenCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seen [filter]",
		Short: "List competitions already announced",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(opts.format)
			if err != nil {
				return err
			}

			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			setupLogger(cfg, cmd.ErrOrStderr())

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			keys := store.Keys()
			if len(args) == 1 {
				keys = filterKeys(keys, args[0])
			}
			logger.Debug("Listing seen events", logger.Fields{"total": store.Len(), "shown": len(keys)})

			return WriteSeen(cmd.OutOrStdout(), keys, format)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text or json")
	return cmd
}

// filterKeys keeps keys containing filter, ignoring case.
func filterKeys(keys []string, filter string) []string {
	filter = strings.ToLower(filter)
	matched := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.Contains(strings.ToLower(k), filter) {
			matched = append(matched, k)
		}
	}
	return matched
}
