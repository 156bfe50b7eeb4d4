// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package reconcile

import (
	"context"

	"github.com/autobrr/tsup/internal/catalog"
	"github.com/autobrr/tsup/internal/models"
	"github.com/autobrr/tsup/internal/torrserver"
)

func (e *Engine) reconcileFeed(ctx context.Context, ref string, cat *catalog.Catalog, sum *Summary) {
	logger := e.logger(ctx).With().Str("source", FeedSourceName).Logger()

	if e.feed == nil {
		logger.Warn().Msg("feed requested but no feed source configured")
		return
	}

	feed, err := e.feed.Fetch(ctx, ref)
	if err != nil {
		logger.Error().Err(err).Msg("could not load feed")
		return
	}

	fresh := catalog.NewFeedCatalog(feed.Items)
	logger.Info().Int("items", len(feed.Items)).Int("series", fresh.Len()).Msg("checking feed")

	e.ReconcileFeed(ctx, fresh, cat, sum)
}

// ReconcileFeed compares fresh feed records against the server records that
// were added from the feed. A known source with an unseen hash is updated, an
// unknown source is added as a new series.
func (e *Engine) ReconcileFeed(ctx context.Context, fresh, server *catalog.Catalog, sum *Summary) {
	known := make(map[string]catalog.Group)
	for _, g := range server.GroupBySource(models.ProviderFeed) {
		known[g.ItemID] = g
	}

	for _, item := range fresh.Records() {
		if ctx.Err() != nil {
			return
		}
		ev := e.guard(ctx, FeedSourceName, item.SourceURL, func() Event {
			return e.reconcileFeedItem(ctx, item, known)
		})
		e.record(sum, ev)
	}
}

func (e *Engine) reconcileFeedItem(ctx context.Context, item models.TorrentRecord, known map[string]catalog.Group) Event {
	ev := Event{Source: FeedSourceName, ItemID: item.SourceURL, Title: item.Title, Hash: item.ContentHash}
	logger := e.logger(ctx).With().Str("source", FeedSourceName).Str("url", item.SourceURL).Logger()

	if item.SourceURL == "" {
		logger.Debug().Str("title", item.Title).Msg("feed item has no external url, skipping")
		return ev.with(OutcomeSkipped, "no external url")
	}

	prov := models.FeedProvenance(item.SourceURL)

	group, ok := known[item.SourceURL]
	if !ok {
		return e.addFeedItem(ctx, ev, item, prov)
	}

	title := item.Title
	if title == "" {
		title = firstTitle(group.Records)
		ev.Title = title
	}
	poster := item.PosterURL
	if poster == "" {
		poster = firstPoster(group.Records)
	}

	decision := models.Decide(item.ContentHash, title, poster, group.Hashes())
	if !decision.IsUpdate() {
		logger.Info().Str("title", title).Msg("no new episodes found")
		return ev.with(OutcomeUnchanged, "")
	}

	logger.Info().Str("title", title).Str("hash", item.ContentHash).Msg("found update")
	return e.applyUpdate(ctx, ev, group.Hashes(), decision, prov)
}

func (e *Engine) addFeedItem(ctx context.Context, ev Event, item models.TorrentRecord, prov models.Provenance) Event {
	logger := e.logger(ctx).With().Str("source", FeedSourceName).Str("hash", item.ContentHash).Logger()

	if e.cfg.DryRun {
		logger.Info().Str("title", item.Title).Msg("dry run: would add new series")
		return ev.with(OutcomeAdded, "dry run")
	}

	status := e.server.Add(ctx, torrserver.TorrentSpec{
		Hash:    item.ContentHash,
		Title:   item.Title,
		Poster:  item.PosterURL,
		Persist: true,
		Data:    prov.Encode(),
	})
	if !status.OK() {
		logger.Warn().Stringer("status", status).Msg("could not add new series")
		return ev.with(OutcomeFailed, "add failed: "+status.String())
	}

	logger.Info().Str("title", item.Title).Msg("new series added")
	return ev.with(OutcomeAdded, "")
}
