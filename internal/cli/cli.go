package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/wca-events/internal/config"
	"github.com/pfrederiksen/wca-events/internal/discord"
	"github.com/pfrederiksen/wca-events/internal/logger"
	"github.com/pfrederiksen/wca-events/internal/notifier"
	"github.com/pfrederiksen/wca-events/internal/poller"
	"github.com/pfrederiksen/wca-events/internal/scraper"
	"github.com/pfrederiksen/wca-events/internal/storage"
)

const (
	ExitSuccess   = 0
	ExitError     = 1
	ExitNewEvents = 2
)

// ErrNewEvents is returned by check when new competitions were found. It maps
// to ExitNewEvents and is not printed as an error.
var ErrNewEvents = errors.New("new competitions found")

// options holds flag values. Only flags set on the command line override the
// loaded configuration.
type options struct {
	envFile string
	flags   config.Config
	format  string
	verbose bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &options{flags: config.Default()}

	cmd := &cobra.Command{
		Use:   "wca-events",
		Short: "Announce newly listed WCA competitions on Discord",
		Long: `Periodically checks the World Cube Association competition listing for
newly announced competitions in one country and posts them to every Discord
channel whose name contains a marker.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoller(cmd, opts)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.envFile, "env-file", "", "Environment file to load (default .env when present)")
	f.StringVar(&opts.flags.TargetCountry, "country", opts.flags.TargetCountry, "Country whose competitions are announced (env: WCA_COUNTRY)")
	f.StringVar(&opts.flags.ChannelMarker, "marker", opts.flags.ChannelMarker, "Substring marking announcement channels (env: WCA_MARKER)")
	f.StringVar(&opts.flags.Mention, "mention", opts.flags.Mention, "Mention prefixed to announcements, empty for none (env: WCA_MENTION)")
	f.DurationVar(&opts.flags.PollInterval, "interval", opts.flags.PollInterval, "Time between checks (env: WCA_INTERVAL)")
	f.StringVar(&opts.flags.CachePath, "cache", opts.flags.CachePath, "Seen-event cache path (env: WCA_CACHE)")
	f.StringVar(&opts.flags.Store, "store", opts.flags.Store, "Cache backend: json or sqlite (env: WCA_STORE)")
	f.StringVar(&opts.flags.TokenFile, "token-file", opts.flags.TokenFile, "File holding the Discord bot token (env: WCA_TOKEN_FILE)")
	f.StringVar(&opts.flags.ListingURL, "listing-url", opts.flags.ListingURL, "WCA competition listing URL (env: WCA_LISTING_URL)")
	f.StringVar(&opts.flags.APIBaseURL, "api-url", opts.flags.APIBaseURL, "Discord API base URL (env: WCA_API_URL)")
	f.DurationVar(&opts.flags.HTTPTimeout, "timeout", opts.flags.HTTPTimeout, "HTTP request timeout, 0 for none (env: WCA_TIMEOUT)")
	f.StringVar(&opts.flags.LogLevel, "log-level", opts.flags.LogLevel, "Log level: debug, info, warn, error (env: WCA_LOG_LEVEL)")
	f.StringVar(&opts.flags.StatusAddr, "status-addr", opts.flags.StatusAddr, "Serve status endpoints on this address, e.g. :8080 (env: WCA_STATUS_ADDR)")
	f.BoolVar(&opts.flags.DryRun, "dry-run", opts.flags.DryRun, "Print announcements instead of posting them (env: WCA_DRY_RUN)")

	cmd.AddCommand(
		newRunCmd(opts),
		newCheckCmd(opts),
		newInitCmd(opts),
		newSeenCmd(opts),
	)

	return cmd
}

// resolve loads the configuration and applies explicitly set flags.
func (o *options) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	overrides := map[string]func(){
		"country":     func() { cfg.TargetCountry = o.flags.TargetCountry },
		"marker":      func() { cfg.ChannelMarker = o.flags.ChannelMarker },
		"mention":     func() { cfg.Mention = o.flags.Mention },
		"interval":    func() { cfg.PollInterval = o.flags.PollInterval },
		"cache":       func() { cfg.CachePath = o.flags.CachePath },
		"store":       func() { cfg.Store = o.flags.Store },
		"token-file":  func() { cfg.TokenFile = o.flags.TokenFile },
		"listing-url": func() { cfg.ListingURL = o.flags.ListingURL },
		"api-url":     func() { cfg.APIBaseURL = o.flags.APIBaseURL },
		"timeout":     func() { cfg.HTTPTimeout = o.flags.HTTPTimeout },
		"log-level":   func() { cfg.LogLevel = o.flags.LogLevel },
		"status-addr": func() { cfg.StatusAddr = o.flags.StatusAddr },
		"dry-run":     func() { cfg.DryRun = o.flags.DryRun },
	}
	for name, apply := range overrides {
		if f.Changed(name) {
			apply()
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogger points the default logger at w with the configured level.
func setupLogger(cfg config.Config, w io.Writer) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logger.LevelInfo
	}
	logger.SetDefault(logger.New(level, w))
}

// openStore opens the configured cache, pointing at init when it is missing.
func openStore(cfg config.Config) (storage.Store, error) {
	store, err := storage.Open(cfg.Store, cfg.CachePath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: run 'wca-events init' to create %s", err, cfg.CachePath)
	}
	if err != nil {
		return nil, fmt.Errorf("opening event cache: %w", err)
	}
	return store, nil
}

// newPoller wires the scraper, notifier and store into a Poller. Dry-run
// announcements are written to out.
func newPoller(cfg config.Config, store storage.Store, out io.Writer) (*poller.Poller, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var n notifier.Notifier
	if cfg.DryRun {
		n = notifier.NewDryRunNotifier(out, cfg.Mention)
	} else {
		token, err := cfg.BotToken()
		if err != nil {
			return nil, err
		}
		client := discord.New(httpClient, cfg.APIBaseURL, token)
		n = notifier.NewDiscordNotifier(client, cfg.ChannelMarker, cfg.Mention)
	}

	return poller.New(cfg, scraper.New(httpClient, cfg.ListingURL), store, n), nil
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrNewEvents):
		return ExitNewEvents
	default:
		return ExitError
	}
}

// Execute runs the CLI
func Execute() {
	err := NewRootCmd().Execute()
	code := ExitCode(err)
	if code == ExitError {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}
