// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torrserver

import (
	"github.com/anacrolix/torrent/metainfo"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tsup/internal/models"
)

// ParseRecords converts raw list entries into records. The data field is
// decoded as a provenance blob; when it is not JSON it is taken as a legacy
// bare source URL. Entries without a valid info-hash are dropped.
func ParseRecords(raw []RawTorrent, table *models.TrackerTable) []models.TorrentRecord {
	records := make([]models.TorrentRecord, 0, len(raw))
	for _, entry := range raw {
		hash := models.NormalizeHash(entry.Hash)
		if hash == "" {
			continue
		}
		var ih metainfo.Hash
		if err := ih.FromHexString(hash); err != nil {
			log.Warn().Err(err).Str("hash", entry.Hash).Str("title", entry.Title).Msg("skipping torrent with invalid info-hash")
			continue
		}

		prov, isJSON := models.ParseProvenance(entry.Data)
		if !isJSON && entry.Data != "" {
			log.Debug().Str("hash", hash).Str("data", entry.Data).Msg("torrent data is not a provenance blob, using it as source url")
		}

		rec := models.TorrentRecord{
			Title:       entry.Title,
			PosterURL:   entry.Poster,
			SourceURL:   prov.Value,
			Provider:    prov.Provider,
			ContentHash: hash,
			Timestamp:   entry.Timestamp,
			Stat:        entry.Stat,
			StatString:  entry.StatString,
			TorrentSize: entry.TorrentSize,
		}
		if table != nil && rec.Provider != models.ProviderFeed {
			rec.TrackerIDs = table.TrackerIDs(rec.SourceURL)
		}
		records = append(records, rec)
	}
	return records
}
