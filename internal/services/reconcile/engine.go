// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package reconcile brings the media server library in line with what the
// trackers and the aggregator feed currently publish.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tsup/internal/catalog"
	"github.com/autobrr/tsup/internal/litrcc"
	"github.com/autobrr/tsup/internal/models"
	"github.com/autobrr/tsup/internal/torrserver"
	"github.com/autobrr/tsup/internal/trackers"
)

// Server is the media server API used by the engine.
type Server interface {
	ListTorrents(ctx context.Context) []torrserver.RawTorrent
	Viewed(ctx context.Context, hash string) []torrserver.ViewedEntry
	Add(ctx context.Context, spec torrserver.TorrentSpec) torrserver.Status
	SetViewed(ctx context.Context, hash string, fileIndex int) torrserver.Status
	FileStats(ctx context.Context, hash string) (*torrserver.FileStats, torrserver.Status)
}

// Collapser removes superseded torrents.
type Collapser interface {
	Remove(ctx context.Context, hashes []string) int
	Sweep(ctx context.Context, cat *catalog.Catalog, tracker string) int
}

// FeedSource loads the aggregator feed.
type FeedSource interface {
	Fetch(ctx context.Context, ref string) (*litrcc.Feed, error)
}

// Recorder receives run statistics.
type Recorder interface {
	Checked(source string)
	Outcome(source, outcome string)
	Removed(n int)
}

// FeedSourceName labels feed results in summaries and metrics.
const FeedSourceName = "litrcc"

type Config struct {
	Table  *models.TrackerTable
	DryRun bool
}

// Options selects the work of one Run.
type Options struct {
	// Sweep runs the destructive duplicate sweep over SweepTracker first.
	Sweep        bool
	SweepTracker string
	// Adapters are reconciled in order.
	Adapters []trackers.Adapter
	// Feed is a litr.cc feed uuid or url. Empty skips the feed.
	Feed string
}

type Engine struct {
	cfg       Config
	server    Server
	collapser Collapser
	feed      FeedSource
	recorder  Recorder
	now       func() time.Time
	log       zerolog.Logger
}

// NewEngine constructs an Engine. feed and recorder may be nil.
func NewEngine(cfg Config, server Server, collapser Collapser, feed FeedSource, recorder Recorder) *Engine {
	if cfg.Table == nil {
		cfg.Table = models.DefaultTrackerTable()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Engine{
		cfg:       cfg,
		server:    server,
		collapser: collapser,
		feed:      feed,
		recorder:  recorder,
		now:       time.Now,
		log:       log.With().Str("component", "reconcile").Logger(),
	}
}

// Run performs one full pass: optional sweep, a fresh listing, every
// requested tracker in order, then the feed. Individual series failures are
// logged and counted; only a cancelled context stops the run early.
func (e *Engine) Run(ctx context.Context, opts Options) (*Summary, error) {
	sum := &Summary{RunID: uuid.NewString(), DryRun: e.cfg.DryRun, Started: e.now()}
	logger := e.log.With().Str("run", sum.RunID).Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		sum.Finished = e.now()
		logger.Info().
			Dur("took", sum.Duration()).
			Int("removed", sum.Removed).
			Bool("dryRun", sum.DryRun).
			Msg("run finished")
	}()

	logger.Info().Bool("dryRun", e.cfg.DryRun).Int("trackers", len(opts.Adapters)).Bool("feed", opts.Feed != "").Msg("run started")

	if opts.Sweep {
		tracker := opts.SweepTracker
		if tracker == "" {
			tracker = models.TrackerRutor
		}
		e.protect(ctx, "sweep", func() {
			e.removed(sum, e.collapser.Sweep(ctx, catalog.New(e.snapshot(ctx)), tracker))
		})
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	cat := catalog.New(e.snapshot(ctx))
	logger.Info().Int("torrents", cat.Len()).Msg("server library listed")

	for _, adapter := range opts.Adapters {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		e.reconcileTracker(ctx, adapter, cat, sum)
	}

	if opts.Feed != "" {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		e.protect(ctx, FeedSourceName, func() {
			e.reconcileFeed(ctx, opts.Feed, cat, sum)
		})
	}

	return sum, ctx.Err()
}

func (e *Engine) snapshot(ctx context.Context) []models.TorrentRecord {
	return torrserver.ParseRecords(e.server.ListTorrents(ctx), e.cfg.Table)
}

func (e *Engine) reconcileTracker(ctx context.Context, adapter trackers.Adapter, cat *catalog.Catalog, sum *Summary) {
	logger := e.logger(ctx).With().Str("tracker", adapter.Name()).Logger()
	groups := cat.GroupByTracker(adapter.Name())
	logger.Info().Int("series", len(groups)).Msg("checking tracker")

	for _, group := range groups {
		if ctx.Err() != nil {
			return
		}
		ev := e.guard(ctx, adapter.Name(), group.ItemID, func() Event {
			return e.ReconcileItem(ctx, adapter, group)
		})
		e.record(sum, ev)
	}
}

// ReconcileItem checks one tracker item against its server records and
// applies an update when the tracker publishes a new hash.
func (e *Engine) ReconcileItem(ctx context.Context, adapter trackers.Adapter, group catalog.Group) Event {
	src := adapter.Name()
	ev := Event{Source: src, ItemID: group.ItemID, Title: firstTitle(group.Records)}
	logger := e.logger(ctx).With().Stringer("item", models.TrackerItem{Tracker: src, ID: group.ItemID}).Logger()

	page, err := adapter.FetchPage(ctx, group.ItemID)
	if err != nil {
		logger.Warn().Err(err).Msg("could not fetch tracker page")
		return ev.with(OutcomeSkipped, "fetch failed")
	}
	if !page.OK() {
		logger.Warn().Int("status", page.StatusCode).Str("url", page.URL).Msg("tracker page unavailable")
		return ev.with(OutcomeSkipped, fmt.Sprintf("page status %d", page.StatusCode))
	}

	title := adapter.ExtractTitle(page)
	if title == "" {
		title = ev.Title
	} else {
		ev.Title = title
	}
	poster := adapter.ExtractPoster(page)
	if poster == "" {
		poster = firstPoster(group.Records)
	}

	hash := models.NormalizeHash(adapter.ExtractHash(ctx, page, trackers.HashContext{Records: group.Records, Stats: e.server}))
	logger.Info().Str("title", title).Msg("checking")
	logger.Debug().Str("poster", poster).Str("hash", hash).Msg("extracted")

	if hash == "" {
		logger.Info().Msg("no hash on tracker page, skipping")
		return ev.with(OutcomeSkipped, "no hash")
	}
	ev.Hash = hash

	decision := models.Decide(hash, title, poster, group.Hashes())
	if !decision.IsUpdate() {
		logger.Info().Str("hash", hash).Msg("no updates found")
		return ev.with(OutcomeUnchanged, "")
	}

	logger.Info().Str("hash", hash).Msg("found update")
	prov := models.TrackerProvenance(adapter.PageURL(group.ItemID))
	return e.applyUpdate(ctx, ev, group.Hashes(), decision, prov)
}

// applyUpdate adds the new torrent, carries viewed markers over from every
// existing hash and removes the superseded hashes. Each step is best effort.
func (e *Engine) applyUpdate(ctx context.Context, ev Event, existing []string, d models.UpdateDecision, prov models.Provenance) Event {
	logger := e.logger(ctx).With().Str("source", ev.Source).Str("hash", d.Hash).Logger()

	viewed := models.NewViewedEpisodeSet()
	for _, hash := range existing {
		marked := models.NewViewedEpisodeSet()
		for _, entry := range e.server.Viewed(ctx, hash) {
			marked.Add(entry.FileIndex)
		}
		if added := viewed.Union(marked); added > 0 {
			logger.Debug().Str("from", hash).Int("viewed", marked.Len()).Int("new", added).Msg("collected viewed episodes")
		}
	}

	spec := torrserver.TorrentSpec{
		Hash:    d.Hash,
		Title:   d.Title,
		Poster:  d.Poster,
		Persist: true,
		Data:    prov.Encode(),
	}

	if e.cfg.DryRun {
		logger.Info().
			Str("title", d.Title).
			Strs("replaces", existing).
			Ints("viewed", viewed.Indexes()).
			Msg("dry run: would update torrent")
		return ev.with(OutcomeUpdated, "dry run")
	}

	outcome, reason := OutcomeUpdated, ""
	if status := e.server.Add(ctx, spec); status.OK() {
		logger.Info().Str("title", d.Title).Msg("added/updated")
	} else {
		logger.Warn().Stringer("status", status).Msg("add failed")
		outcome, reason = OutcomeFailed, "add failed: "+status.String()
	}

	failedViewed := 0
	for _, idx := range viewed.Indexes() {
		if status := e.server.SetViewed(ctx, d.Hash, idx); !status.OK() {
			failedViewed++
			logger.Warn().Int("index", idx).Stringer("status", status).Msg("could not set episode as viewed")
			continue
		}
		logger.Debug().Int("index", idx).Msg("episode set as viewed")
	}
	if failedViewed > 0 && reason == "" {
		reason = fmt.Sprintf("%d of %d viewed markers failed", failedViewed, viewed.Len())
	}

	ev.removed = e.collapser.Remove(ctx, existing)
	return ev.with(outcome, reason)
}

// guard runs fn and converts a panic into a failed event.
func (e *Engine) guard(ctx context.Context, source, itemID string, fn func() Event) (ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger(ctx).Error().
				Str("source", source).
				Str("id", itemID).
				Interface("panic", r).
				Msg("recovered from panic while reconciling")
			ev = Event{Source: source, ItemID: itemID, Outcome: OutcomeFailed, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return fn()
}

// protect runs a stage of the run and logs a panic instead of propagating it.
func (e *Engine) protect(ctx context.Context, stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger(ctx).Error().Str("stage", stage).Interface("panic", r).Msg("recovered from panic, stage aborted")
		}
	}()
	fn()
}

// logger returns the run logger carried by ctx, or the engine logger.
func (e *Engine) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &e.log
}

func (e *Engine) record(sum *Summary, ev Event) {
	sum.add(ev)
	e.recorder.Checked(ev.Source)
	e.recorder.Outcome(ev.Source, string(ev.Outcome))
	e.removed(sum, ev.removed)
}

func (e *Engine) removed(sum *Summary, n int) {
	sum.Removed += n
	e.recorder.Removed(n)
}

func (ev Event) with(o Outcome, reason string) Event {
	ev.Outcome = o
	ev.Reason = reason
	return ev
}

func firstTitle(records []models.TorrentRecord) string {
	for _, r := range records {
		if r.Title != "" {
			return r.Title
		}
	}
	return ""
}

func firstPoster(records []models.TorrentRecord) string {
	for _, r := range records {
		if r.PosterURL != "" {
			return r.PosterURL
		}
	}
	return ""
}

type nopRecorder struct{}

func (nopRecorder) Checked(string) {}

func (nopRecorder) Outcome(string, string) {}

func (nopRecorder) Removed(int) {}
