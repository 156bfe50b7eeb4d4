// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/tsup/internal/buildinfo"
	"github.com/autobrr/tsup/internal/config"
	"github.com/autobrr/tsup/internal/litrcc"
	"github.com/autobrr/tsup/internal/metrics"
	"github.com/autobrr/tsup/internal/models"
	"github.com/autobrr/tsup/internal/pkg/httpclient"
	"github.com/autobrr/tsup/internal/services/dedup"
	"github.com/autobrr/tsup/internal/services/reconcile"
	"github.com/autobrr/tsup/internal/torrserver"
	"github.com/autobrr/tsup/internal/trackers"
)

// runFlags holds the run command line. Zero values mean "not given" except
// for booleans, which are applied only when the flag was set.
type runFlags struct {
	configDir       string
	logPath         string
	debug           bool
	dryRun          bool
	cleanup         bool
	proxy           string
	tsURL           string
	tsPort          int
	litrcc          string
	kzLogin         string
	kzPass          string
	credentialsFile string
	metricsFile     string
	lockFile        string

	rutor     bool
	nnmclub   bool
	torrentby bool
	kinozal   bool
	trackers  []string
}

// requested returns the trackers named on the command line in table order
// for the built-in switches, followed by --tracker values.
func (f *runFlags) requested() []string {
	var names []string
	for _, sw := range []struct {
		on   bool
		name string
	}{
		{f.rutor, models.TrackerRutor},
		{f.nnmclub, models.TrackerNnmClub},
		{f.torrentby, models.TrackerTorrentBy},
		{f.kinozal, models.TrackerKinozal},
	} {
		if sw.on {
			names = append(names, sw.name)
		}
	}
	for _, name := range f.trackers {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func RunCommand() *cobra.Command {
	var flags runFlags

	command := &cobra.Command{
		Use:   "run",
		Short: "Check trackers and the feed once and update the server",
		Long: `Check every selected tracker, and the litr.cc feed when configured, once.

Trackers are selected with the tracker switches or --tracker. Without any,
the trackers listed in the config file are used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(flags.configDir, buildinfo.Version)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			applyRunFlags(cmd, cfg, &flags)
			cfg.ApplyLogConfig()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app := &Application{cfg: cfg, flags: &flags, out: cmd.OutOrStdout()}
			return app.run(ctx)
		},
	}

	f := command.Flags()
	f.StringVar(&flags.configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/tsup/ or %APPDATA%\\tsup\\), or a direct path to a .toml file")
	f.StringVar(&flags.logPath, "log-path", "", "log file path (default is stderr)")
	f.BoolVar(&flags.debug, "debug", false, "enable debug logging")
	f.BoolVar(&flags.dryRun, "dry-run", false, "log decisions without changing the server")
	f.BoolVar(&flags.cleanup, "cleanup", false, "remove duplicate torrents before checking (destructive)")
	f.StringVar(&flags.proxy, "proxy", "", "proxy url for tracker and feed requests")
	f.StringVar(&flags.tsURL, "ts-url", "", "TorrServer url")
	f.IntVar(&flags.tsPort, "ts-port", 0, "TorrServer port")
	f.StringVar(&flags.litrcc, "litrcc", "", "litr.cc feed uuid")
	f.StringVar(&flags.kzLogin, "kz-login", "", "kinozal username")
	f.StringVar(&flags.kzPass, "kz-pass", "", "kinozal password")
	f.StringVar(&flags.credentialsFile, "credentials", "", "credentials file (default is credentials.yaml next to the config)")
	f.StringVar(&flags.metricsFile, "metrics-file", "", "write run metrics to this file in Prometheus text format")
	f.StringVar(&flags.lockFile, "lock-file", "", "refuse to run while another run holds this lock file")
	f.BoolVar(&flags.rutor, "rutor", false, "check rutor.info")
	f.BoolVar(&flags.nnmclub, "nnmclub", false, "check nnmclub.to")
	f.BoolVar(&flags.torrentby, "torrentby", false, "check torrent.by")
	f.BoolVar(&flags.kinozal, "kinozal", false, "check kinozal.tv")
	f.StringSliceVar(&flags.trackers, "tracker", nil, "check a tracker by name, repeatable (built-in or customTrackers)")

	return command
}

// applyRunFlags layers explicitly given flags over the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.AppConfig, flags *runFlags) {
	c := cfg.Config
	changed := cmd.Flags().Changed

	if flags.logPath != "" {
		c.LogPath = flags.logPath
	}
	if flags.debug {
		c.LogLevel = "DEBUG"
	}
	if changed("dry-run") {
		c.DryRun = flags.dryRun
	}
	if changed("cleanup") {
		c.Cleanup = flags.cleanup
	}
	if flags.proxy != "" {
		c.Proxy = flags.proxy
	}
	if flags.tsURL != "" {
		c.TorrServerURL = flags.tsURL
	}
	if flags.tsPort > 0 {
		c.TorrServerPort = flags.tsPort
	}
	if flags.litrcc != "" {
		c.LitrccFeed = flags.litrcc
	}
	if flags.credentialsFile != "" {
		c.CredentialsFile = flags.credentialsFile
	}
	if flags.metricsFile != "" {
		c.MetricsFile = flags.metricsFile
	}
	if flags.lockFile != "" {
		c.LockFile = flags.lockFile
	}
	if requested := flags.requested(); len(requested) > 0 {
		c.Trackers = requested
	}
}

// selectTrackers resolves names against table, keeping their order and
// dropping repeats.
func selectTrackers(table *models.TrackerTable, names []string) ([]models.TrackerSpec, error) {
	seen := make(map[string]struct{}, len(names))
	specs := make([]models.TrackerSpec, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		spec, ok := table.Get(name)
		if !ok {
			return nil, errors.Errorf("unknown tracker %q (known: %s)", name, strings.Join(table.Names(), ", "))
		}
		seen[name] = struct{}{}
		specs = append(specs, spec)
	}
	return specs, nil
}

type Application struct {
	cfg   *config.AppConfig
	flags *runFlags
	out   io.Writer
}

func (app *Application) run(ctx context.Context) error {
	c := app.cfg.Config

	if c.LockFile != "" {
		release, err := acquireLock(c.LockFile)
		if err != nil {
			return err
		}
		defer release()
	}

	table, err := app.cfg.TrackerTable()
	if err != nil {
		return err
	}

	specs, err := selectTrackers(table, c.Trackers)
	if err != nil {
		return err
	}
	if c.Cleanup {
		if _, ok := table.Get(c.CleanupTracker); !ok {
			return errors.Errorf("cleanup tracker %q is not a known tracker", c.CleanupTracker)
		}
	}

	if len(specs) == 0 && c.LitrccFeed == "" && !c.Cleanup {
		log.Warn().Msg("nothing to do: no tracker, feed or cleanup selected")
		return nil
	}

	creds, err := config.LoadCredentials(app.cfg.CredentialsPath())
	if err != nil {
		return err
	}
	creds = creds.With(models.TrackerKinozal, app.flags.kzLogin, app.flags.kzPass)

	httpOpts := httpclient.Options{Timeout: c.RequestTimeout(), Proxy: c.Proxy}

	registry, err := trackers.NewRegistry(ctx, specs, trackers.Options{HTTP: httpOpts, Credentials: creds})
	if err != nil {
		return err
	}

	baseURL, err := torrserver.BaseURL(c.TorrServerURL, c.TorrServerPort)
	if err != nil {
		return err
	}
	server := torrserver.NewClient(torrserver.Config{Host: baseURL, Timeout: c.RequestTimeout()})

	var feed reconcile.FeedSource
	if c.LitrccFeed != "" {
		feedHTTP, err := httpclient.New(httpOpts)
		if err != nil {
			return err
		}
		feed = litrcc.NewClient("", feedHTTP)
	}

	recorder := metrics.NewRecorder()
	engine := reconcile.NewEngine(
		reconcile.Config{Table: table, DryRun: c.DryRun},
		server,
		dedup.NewService(dedup.Config{DryRun: c.DryRun}, server),
		feed,
		recorder,
	)

	selected := make([]string, 0, len(specs))
	for _, spec := range specs {
		selected = append(selected, spec.Name)
	}
	log.Info().Str("version", buildinfo.Version).Str("torrserver", baseURL).Strs("trackers", selected).Int("adapters", registry.Len()).Msg("tsup starting")

	sum, runErr := engine.Run(ctx, reconcile.Options{
		Sweep:        c.Cleanup,
		SweepTracker: c.CleanupTracker,
		Adapters:     registry.All(),
		Feed:         c.LitrccFeed,
	})

	fmt.Fprintln(app.out, renderSummary(sum))

	recorder.Finish(sum.Started, sum.Finished, runErr != nil)
	if c.MetricsFile != "" {
		if err := recorder.WriteTextfile(c.MetricsFile); err != nil {
			log.Error().Err(err).Msg("could not write metrics")
		}
	}

	return runErr
}
