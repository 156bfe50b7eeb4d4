// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalog

import (
	"strings"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tsup/internal/models"
)

// FeedItem is one entry of the aggregator JSON feed.
type FeedItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	DateModified string `json:"date_modified"`
	Image        string `json:"image"`
	ExternalURL  string `json:"external_url"`
}

var feedTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseFeedTime parses the ISO-8601 variants seen in feed date_modified fields.
func ParseFeedTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range feedTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NewFeedCatalog builds a catalog from feed items. The feed republishes a
// series on every update instead of replacing the old entry, so only the most
// recently modified item per external URL is kept. Ties keep the first one
// seen, and an item whose timestamp cannot be parsed never replaces another.
func NewFeedCatalog(items []FeedItem) *Catalog {
	type entry struct {
		record   models.TorrentRecord
		modified time.Time
	}

	var order []string
	latest := make(map[string]entry)

	for _, item := range items {
		hash := models.NormalizeHash(item.ID)
		if hash == "" {
			continue
		}
		var ih metainfo.Hash
		if err := ih.FromHexString(hash); err != nil {
			log.Warn().Err(err).Str("id", item.ID).Str("title", item.Title).Msg("skipping feed item with invalid info-hash")
			continue
		}
		modified, ok := ParseFeedTime(item.DateModified)
		if !ok && item.DateModified != "" {
			log.Debug().Str("date", item.DateModified).Str("title", item.Title).Msg("feed item has unparsable date_modified")
		}

		rec := models.TorrentRecord{
			Title:       item.Title,
			PosterURL:   item.Image,
			SourceURL:   item.ExternalURL,
			Provider:    models.ProviderFeed,
			ContentHash: hash,
		}
		if ok {
			rec.Timestamp = modified.Unix()
		}

		prev, seen := latest[item.ExternalURL]
		if !seen {
			order = append(order, item.ExternalURL)
			latest[item.ExternalURL] = entry{record: rec, modified: modified}
			continue
		}
		if ok && modified.After(prev.modified) {
			latest[item.ExternalURL] = entry{record: rec, modified: modified}
		}
	}

	records := make([]models.TorrentRecord, 0, len(order))
	for _, key := range order {
		records = append(records, latest[key].record)
	}
	return New(records)
}
