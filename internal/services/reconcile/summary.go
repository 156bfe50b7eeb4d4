// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package reconcile

import (
	"time"
)

// Outcome describes how one series check ended.
type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeAdded     Outcome = "added"
	OutcomeFailed    Outcome = "failed"
)

// Event records a single series check.
type Event struct {
	Source  string
	ItemID  string
	Title   string
	Hash    string
	Outcome Outcome
	Reason  string

	removed int
}

// SourceSummary counts outcomes for one tracker or feed.
type SourceSummary struct {
	Source    string
	Checked   int
	Updated   int
	Unchanged int
	Skipped   int
	Added     int
	Failed    int
}

func (s *SourceSummary) count(o Outcome) {
	switch o {
	case OutcomeUpdated:
		s.Updated++
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeAdded:
		s.Added++
	case OutcomeFailed:
		s.Failed++
	}
}

// Summary is the result of one Run.
type Summary struct {
	RunID    string
	DryRun   bool
	Started  time.Time
	Finished time.Time
	// Removed counts torrents verified gone, across targeted cleanup and sweep.
	Removed int
	Sources []SourceSummary
	Events  []Event
}

func (s *Summary) source(name string) *SourceSummary {
	for i := range s.Sources {
		if s.Sources[i].Source == name {
			return &s.Sources[i]
		}
	}
	s.Sources = append(s.Sources, SourceSummary{Source: name})
	return &s.Sources[len(s.Sources)-1]
}

func (s *Summary) add(ev Event) {
	src := s.source(ev.Source)
	src.Checked++
	src.count(ev.Outcome)
	s.Events = append(s.Events, ev)
}

// Totals sums every source.
func (s *Summary) Totals() SourceSummary {
	total := SourceSummary{Source: "total"}
	for _, src := range s.Sources {
		total.Checked += src.Checked
		total.Updated += src.Updated
		total.Unchanged += src.Unchanged
		total.Skipped += src.Skipped
		total.Added += src.Added
		total.Failed += src.Failed
	}
	return total
}

func (s *Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}
