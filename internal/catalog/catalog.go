// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package catalog groups torrent records from the media server or an
// aggregator feed by the tracker item they belong to.
package catalog

import (
	"github.com/autobrr/tsup/internal/models"
)

// Group is every record that shares one key, in traversal order.
type Group struct {
	ItemID  string
	Records []models.TorrentRecord
}

// Hashes returns the content hash of every record in the group.
func (g Group) Hashes() []string {
	hashes := make([]string, 0, len(g.Records))
	for _, r := range g.Records {
		hashes = append(hashes, r.ContentHash)
	}
	return hashes
}

// Catalog is an ordered, read-only collection of torrent records.
type Catalog struct {
	records []models.TorrentRecord
}

func New(records []models.TorrentRecord) *Catalog {
	return &Catalog{records: records}
}

func (c *Catalog) Len() int {
	return len(c.records)
}

// Records returns the records in insertion order.
func (c *Catalog) Records() []models.TorrentRecord {
	out := make([]models.TorrentRecord, len(c.records))
	copy(out, c.records)
	return out
}

// GroupByTracker groups records carrying an item id for tracker. Groups are
// ordered by first appearance.
func (c *Catalog) GroupByTracker(tracker string) []Group {
	return c.groupBy(func(r models.TorrentRecord) (string, bool) {
		return r.TrackerID(tracker)
	})
}

// GroupBySource groups records added by provider by their source URL.
func (c *Catalog) GroupBySource(provider string) []Group {
	return c.groupBy(func(r models.TorrentRecord) (string, bool) {
		if r.Provider != provider || r.SourceURL == "" {
			return "", false
		}
		return r.SourceURL, true
	})
}

func (c *Catalog) groupBy(key func(models.TorrentRecord) (string, bool)) []Group {
	var groups []Group
	pos := make(map[string]int)
	for _, r := range c.records {
		k, ok := key(r)
		if !ok {
			continue
		}
		i, seen := pos[k]
		if !seen {
			i = len(groups)
			pos[k] = i
			groups = append(groups, Group{ItemID: k})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups
}
