// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dedup removes duplicate torrents of one series from the media server.
package dedup

import (
	"context"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tsup/internal/catalog"
	"github.com/autobrr/tsup/internal/models"
	"github.com/autobrr/tsup/internal/torrserver"
)

// Server is the subset of the media server API the collapser needs.
type Server interface {
	Remove(ctx context.Context, hash string) torrserver.Status
	Get(ctx context.Context, hash string) torrserver.Status
	FileStats(ctx context.Context, hash string) (*torrserver.FileStats, torrserver.Status)
}

// Config controls the collapser.
type Config struct {
	// DryRun logs removals without issuing them.
	DryRun bool
}

// Service deletes torrents and verifies they are gone.
type Service struct {
	cfg    Config
	server Server
	log    zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg Config, server Server) *Service {
	return &Service{
		cfg:    cfg,
		server: server,
		log:    log.With().Str("component", "dedup").Logger(),
	}
}

// Remove deletes every hash and returns how many were verified gone. A
// removal counts only when rem succeeds and a follow-up get reports 404.
func (s *Service) Remove(ctx context.Context, hashes []string) int {
	removed := 0
	for _, hash := range hashes {
		if s.remove(ctx, hash) {
			removed++
		}
	}
	return removed
}

func (s *Service) remove(ctx context.Context, hash string) bool {
	if s.cfg.DryRun {
		s.log.Info().Str("hash", hash).Msg("dry run: would remove torrent")
		return false
	}

	if status := s.server.Remove(ctx, hash); !status.OK() {
		s.log.Warn().Str("hash", hash).Stringer("status", status).Msg("remove request failed")
		return false
	}

	if status := s.server.Get(ctx, hash); !status.NotFound() {
		s.log.Warn().Str("hash", hash).Stringer("status", status).Msg("torrent still present after removal")
		return false
	}

	s.log.Info().Str("hash", hash).Msg("removed torrent")
	return true
}

type ranked struct {
	record models.TorrentRecord
	stats  *torrserver.FileStats
}

// Sweep collapses every group of tracker in cat that holds more than one
// record down to the record with the most episodes. Ties keep the record
// listed first. Records whose stats cannot be read are left alone.
func (s *Service) Sweep(ctx context.Context, cat *catalog.Catalog, tracker string) int {
	s.log.Warn().
		Str("tracker", tracker).
		Msg("duplicate sweep: for every series only the torrent with the most episodes is kept, the rest are deleted")

	removed := 0
	for _, group := range cat.GroupByTracker(tracker) {
		if len(group.Records) < 2 {
			continue
		}
		if err := ctx.Err(); err != nil {
			s.log.Warn().Err(err).Msg("sweep interrupted")
			break
		}
		removed += s.collapse(ctx, tracker, group)
	}

	s.log.Info().Str("tracker", tracker).Int("removed", removed).Msg("duplicate sweep finished")
	return removed
}

func (s *Service) collapse(ctx context.Context, tracker string, group catalog.Group) int {
	candidates := make([]ranked, 0, len(group.Records))
	for _, rec := range group.Records {
		stats, status := s.server.FileStats(ctx, rec.ContentHash)
		if !status.OK() || stats == nil {
			s.log.Warn().
				Str("tracker", tracker).
				Str("id", group.ItemID).
				Str("hash", rec.ContentHash).
				Stringer("status", status).
				Msg("could not read file stats, leaving torrent untouched")
			continue
		}
		candidates = append(candidates, ranked{record: rec, stats: stats})
	}

	if len(candidates) < 2 {
		return 0
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].stats.Episodes() > candidates[j].stats.Episodes()
	})

	keep := candidates[0]
	s.log.Info().
		Str("tracker", tracker).
		Str("id", group.ItemID).
		Str("hash", keep.record.ContentHash).
		Str("title", keep.record.Title).
		Int("episodes", keep.stats.Episodes()).
		Str("size", humanize.IBytes(uint64(max(keep.stats.TotalSize(), 0)))).
		Msg("keeping torrent")

	drop := make([]string, 0, len(candidates)-1)
	for _, c := range candidates[1:] {
		s.log.Info().
			Str("tracker", tracker).
			Str("id", group.ItemID).
			Str("hash", c.record.ContentHash).
			Int("episodes", c.stats.Episodes()).
			Str("size", humanize.IBytes(uint64(max(c.stats.TotalSize(), 0)))).
			Msg("dropping duplicate")
		drop = append(drop, c.record.ContentHash)
	}

	return s.Remove(ctx, drop)
}
