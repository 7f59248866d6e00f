package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frederic-klein/stickler/internal/config"
	"github.com/frederic-klein/stickler/internal/format"
	"github.com/frederic-klein/stickler/internal/loader"
	"github.com/frederic-klein/stickler/internal/logging"
	"github.com/frederic-klein/stickler/internal/server"
)

var version = "dev"

var (
	configPath     string
	addr           string
	gemPaths       []string
	archiveRoot    string
	marshalVersion string
	watch          bool
	workers        int
	logLevel       string
	logFormat      string
	latestOnly     bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "stickler",
		Short:        "Serve a gem index from local spec directories",
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Config file (default ~/.stickler/stickler.yaml)")
	pf.StringArrayVarP(&gemPaths, "gem-path", "g", nil, "Gem path whose specifications/ directory is indexed (repeatable)")
	pf.IntVarP(&workers, "workers", "w", config.DefaultWorkers, "Spec files parsed in parallel")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVarP(&addr, "addr", "a", config.DefaultAddr, "Listen address")
	serveCmd.Flags().StringVar(&archiveRoot, "archive-root", config.DefaultArchiveRoot, "Directory holding package archives")
	serveCmd.Flags().StringVar(&marshalVersion, "marshal-version", config.DefaultMarshalVersion, "Format tag used in index URLs")
	serveCmd.Flags().BoolVar(&watch, "watch", false, "Keep the index in memory and rebuild it on file changes")

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Print the full names of every indexed spec",
		Args:  cobra.NoArgs,
		RunE:  runIndex,
	}
	indexCmd.Flags().BoolVar(&latestOnly, "latest", false, "Only print the newest version of each package")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "stickler", version)
		},
	}

	rootCmd.AddCommand(serveCmd, indexCmd, versionCmd)
	return rootCmd
}

// loadConfig reads the config file and applies any flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyFlags overrides cfg with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = addr
	}
	if flags.Changed("gem-path") {
		cfg.GemPath = cfg.GemPath[:0]
		for _, p := range gemPaths {
			expanded, err := config.ExpandPath(p)
			if err != nil {
				return err
			}
			cfg.GemPath = append(cfg.GemPath, expanded)
		}
	}
	if flags.Changed("archive-root") {
		root, err := config.ExpandPath(archiveRoot)
		if err != nil {
			return err
		}
		cfg.ArchiveRoot = root
	}
	if flags.Changed("marshal-version") {
		cfg.MarshalVersion = marshalVersion
	}
	if flags.Changed("watch") {
		cfg.Watch = watch
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, closeSource, err := newSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	srv := server.New(server.Config{
		Source:         source,
		ArchiveRoot:    cfg.ArchiveRoot,
		MarshalVersion: cfg.MarshalVersion,
		Logger:         logger,
	})

	logger.Info("serving gem index",
		"addr", cfg.Addr,
		"spec_dirs", cfg.SpecDirs(),
		"archive_root", cfg.ArchiveRoot,
		"watch", cfg.Watch)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeTCP(cfg.Addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return <-errCh
}

// newSource picks the index source for cfg. The returned func releases it.
func newSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (loader.Source, func(), error) {
	l := loader.NewLoader(cfg.Workers, logger)
	dirs := cfg.SpecDirs()

	if !cfg.Watch {
		return loader.NewRescan(l, dirs), func() {}, nil
	}

	w, err := loader.NewWatcher(ctx, l, dirs, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("starting watcher: %w", err)
	}
	return w, func() {
		if err := w.Close(); err != nil {
			logger.Warn("closing watcher", "error", err)
		}
	}, nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	return printIndex(cmd.Context(), cmd.OutOrStdout(), cfg, latestOnly, logger)
}

func printIndex(ctx context.Context, out io.Writer, cfg *config.Config, latest bool, logger *slog.Logger) error {
	logger = logging.Default(logger)
	idx, err := loader.NewLoader(cfg.Workers, logger).Load(ctx, cfg.SpecDirs())
	if err != nil {
		return err
	}

	records := idx.All()
	if latest {
		records = idx.Latest()
	}
	if len(records) == 0 {
		logger.Warn("no specs found", "dirs", cfg.SpecDirs())
		return nil
	}

	_, err = out.Write(format.SortedText(format.FullNames(records)).Body)
	if err == nil {
		_, err = fmt.Fprintln(out)
	}
	return err
}
