// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"fmt"
	"slices"
	"strings"
)

// TorrentRecord is one torrent known to the media server or to an aggregator feed.
type TorrentRecord struct {
	Title     string `json:"title"`
	PosterURL string `json:"poster,omitempty"`
	// SourceURL is the page or feed URL the torrent was derived from.
	SourceURL string `json:"sourceUrl,omitempty"`
	// Provider is the provenance tag SourceURL was read from. Empty for legacy
	// records whose data field held a bare URL.
	Provider    string `json:"provider,omitempty"`
	ContentHash string `json:"hash"`
	// Timestamp is unix seconds, zero when unknown.
	Timestamp   int64             `json:"timestamp,omitempty"`
	TrackerIDs  map[string]string `json:"trackerIds,omitempty"`
	Stat        int               `json:"stat,omitempty"`
	StatString  string            `json:"statString,omitempty"`
	TorrentSize int64             `json:"torrentSize,omitempty"`
}

// TrackerID returns the tracker item id recorded for tracker.
func (r TorrentRecord) TrackerID(tracker string) (string, bool) {
	if r.TrackerIDs == nil {
		return "", false
	}
	id, ok := r.TrackerIDs[tracker]
	return id, ok && id != ""
}

// TrackerItem identifies one logical series on one tracker.
type TrackerItem struct {
	Tracker string
	ID      string
}

func (i TrackerItem) String() string {
	return i.Tracker + ":" + i.ID
}

// MagnetLink builds the bare magnet URI the media server expects for hash.
func MagnetLink(hash string) string {
	return "magnet:?xt=urn:btih:" + hash
}

// NormalizeHash lowercases and trims an info-hash.
func NormalizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

// ViewedEpisodeSet is the set of file indexes marked watched for a torrent.
type ViewedEpisodeSet struct {
	indexes map[int]struct{}
}

func NewViewedEpisodeSet(indexes ...int) *ViewedEpisodeSet {
	s := &ViewedEpisodeSet{indexes: make(map[int]struct{}, len(indexes))}
	for _, idx := range indexes {
		s.Add(idx)
	}
	return s
}

func (s *ViewedEpisodeSet) Add(idx int) {
	if s.indexes == nil {
		s.indexes = make(map[int]struct{})
	}
	s.indexes[idx] = struct{}{}
}

func (s *ViewedEpisodeSet) Has(idx int) bool {
	_, ok := s.indexes[idx]
	return ok
}

func (s *ViewedEpisodeSet) Len() int {
	return len(s.indexes)
}

// Union adds every index of other to s and returns how many were new.
func (s *ViewedEpisodeSet) Union(other *ViewedEpisodeSet) int {
	if other == nil {
		return 0
	}
	added := 0
	for idx := range other.indexes {
		if !s.Has(idx) {
			s.Add(idx)
			added++
		}
	}
	return added
}

// Indexes returns the members in ascending order.
func (s *ViewedEpisodeSet) Indexes() []int {
	out := make([]int, 0, len(s.indexes))
	for idx := range s.indexes {
		out = append(out, idx)
	}
	slices.Sort(out)
	return out
}

// DecisionKind classifies the outcome of comparing a live hash against the server.
type DecisionKind string

const (
	DecisionNoChange DecisionKind = "no_change"
	DecisionUpdate   DecisionKind = "update"
)

// UpdateDecision is the result of comparing one tracker item's live hash
// against the hashes already on the server.
type UpdateDecision struct {
	Kind   DecisionKind
	Hash   string
	Title  string
	Poster string
}

// Decide returns NoChange when liveHash is already present in existing.
func Decide(liveHash, title, poster string, existing []string) UpdateDecision {
	if slices.Contains(existing, liveHash) {
		return UpdateDecision{Kind: DecisionNoChange, Hash: liveHash}
	}
	return UpdateDecision{Kind: DecisionUpdate, Hash: liveHash, Title: title, Poster: poster}
}

func (d UpdateDecision) IsUpdate() bool {
	return d.Kind == DecisionUpdate
}

func (d UpdateDecision) String() string {
	if d.Kind == DecisionUpdate {
		return fmt.Sprintf("update(%s)", d.Hash)
	}
	return string(d.Kind)
}
