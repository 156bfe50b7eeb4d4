// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torrserver

import (
	"github.com/autobrr/tsup/internal/models"
)

// RawTorrent is one entry of the torrents list response.
type RawTorrent struct {
	Hash        string `json:"hash"`
	Title       string `json:"title"`
	Poster      string `json:"poster"`
	Data        string `json:"data"`
	Timestamp   int64  `json:"timestamp"`
	Stat        int    `json:"stat"`
	StatString  string `json:"stat_string"`
	TorrentSize int64  `json:"torrent_size"`
}

// ViewedEntry is one viewed marker.
type ViewedEntry struct {
	Hash      string `json:"hash"`
	FileIndex int    `json:"file_index"`
}

// FileStat describes one file of a torrent.
type FileStat struct {
	ID     int    `json:"id"`
	Path   string `json:"path"`
	Length int64  `json:"length"`
}

// FileStats is the stat payload of the stream endpoint.
type FileStats struct {
	Name      string     `json:"name"`
	Title     string     `json:"title"`
	Hash      string     `json:"hash"`
	FileStats []FileStat `json:"file_stats"`
}

// Episodes is the number of files in the torrent.
func (s *FileStats) Episodes() int {
	if s == nil {
		return 0
	}
	return len(s.FileStats)
}

// TotalSize sums the file lengths.
func (s *FileStats) TotalSize() int64 {
	if s == nil {
		return 0
	}
	var total int64
	for _, f := range s.FileStats {
		total += f.Length
	}
	return total
}

// TorrentSpec is the payload of an add call.
type TorrentSpec struct {
	Hash   string
	Title  string
	Poster string
	// Persist asks the server to keep the torrent in its database.
	Persist bool
	// Data is the provenance blob.
	Data string
}

func (s TorrentSpec) Link() string {
	return models.MagnetLink(s.Hash)
}
