// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"fmt"
	"net/url"
	"strings"
)

// TrackerVariant selects the adapter implementation for a tracker.
type TrackerVariant string

const (
	// VariantPattern extracts title, poster and magnet hash with regular expressions.
	VariantPattern TrackerVariant = "pattern"
	// VariantKinozal logs in and reads the hash from the details service endpoint.
	VariantKinozal TrackerVariant = "kinozal"
	// VariantTorrentFile matches downloadable .torrent files by internal name.
	VariantTorrentFile TrackerVariant = "torrentfile"
)

// ItemIDPlaceholder is substituted with the tracker item id in PageURL.
const ItemIDPlaceholder = "{id}"

const (
	TrackerRutor     = "rutor"
	TrackerNnmClub   = "nnmclub"
	TrackerTorrentBy = "torrentby"
	TrackerKinozal   = "kinozal"
)

// TrackerSpec describes how to recognise a tracker's links and build its pages.
type TrackerSpec struct {
	Name    string         `mapstructure:"name"`
	Domains []string       `mapstructure:"domains"`
	Variant TrackerVariant `mapstructure:"variant"`
	// Separator splits a link into segments; the first numeric one is the item id.
	// Empty means the normalized link is the id.
	Separator    string `mapstructure:"separator"`
	PageURL      string `mapstructure:"pageUrl"`
	RequiresAuth bool   `mapstructure:"requiresAuth"`
	InsecureTLS  bool   `mapstructure:"insecureTls"`

	// Pattern variant rules; the first capture group is used.
	TitlePattern  string `mapstructure:"titlePattern"`
	PosterPattern string `mapstructure:"posterPattern"`
	HashPattern   string `mapstructure:"hashPattern"`
}

// ItemPageURL returns the tracker page for an item id. Without a separator
// the id is already the normalized page link and is returned as is.
func (s TrackerSpec) ItemPageURL(id string) string {
	if s.Separator == "" || s.PageURL == "" {
		return id
	}
	if strings.Contains(s.PageURL, ItemIDPlaceholder) {
		return strings.ReplaceAll(s.PageURL, ItemIDPlaceholder, id)
	}
	return s.PageURL + id
}

// MatchLink returns the item id when link belongs to this tracker.
func (s TrackerSpec) MatchLink(link string) (string, bool) {
	return ParseTrackerLink(link, s.Domains, s.Separator)
}

func (s TrackerSpec) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("tracker name is required")
	}
	if len(s.Domains) == 0 {
		return fmt.Errorf("tracker %s: at least one domain is required", s.Name)
	}
	switch s.Variant {
	case VariantPattern, VariantKinozal, VariantTorrentFile:
	default:
		return fmt.Errorf("tracker %s: unknown variant %q", s.Name, s.Variant)
	}
	if s.Variant == VariantKinozal && (s.Separator == "" || s.PageURL == "") {
		return fmt.Errorf("tracker %s: kinozal variant needs separator and pageUrl", s.Name)
	}
	return nil
}

// TrackerTable is the ordered set of trackers the engine reconciles.
type TrackerTable struct {
	specs []TrackerSpec
	index map[string]int
}

// DefaultTrackers returns the built-in tracker definitions.
func DefaultTrackers() []TrackerSpec {
	return []TrackerSpec{
		{
			Name:      TrackerRutor,
			Domains:   []string{"rutor.info", "rutor.is"},
			Variant:   VariantPattern,
			Separator: "/",
			PageURL:   "http://rutor.info/torrent/{id}",
		},
		{
			Name:      TrackerNnmClub,
			Domains:   []string{"nnmclub.to"},
			Variant:   VariantPattern,
			Separator: "=",
			PageURL:   "https://nnmclub.to/forum/viewtopic.php?t={id}",
		},
		{
			Name:        TrackerTorrentBy,
			Domains:     []string{"torrent.by"},
			Variant:     VariantPattern,
			Separator:   "/",
			PageURL:     "https://torrent.by/{id}",
			InsecureTLS: true,
		},
		{
			Name:         TrackerKinozal,
			Domains:      []string{"kinozal.tv", "kinozal.guru", "kinozal.me"},
			Variant:      VariantKinozal,
			Separator:    "=",
			PageURL:      "https://kinozal.tv/details.php?id={id}",
			RequiresAuth: true,
		},
	}
}

// NewTrackerTable builds a table from specs. Later specs replace earlier ones
// with the same name while keeping the original position.
func NewTrackerTable(specs ...TrackerSpec) (*TrackerTable, error) {
	t := &TrackerTable{index: make(map[string]int, len(specs))}
	for _, spec := range specs {
		spec.Name = strings.ToLower(strings.TrimSpace(spec.Name))
		if spec.Variant == "" {
			spec.Variant = VariantPattern
		}
		if err := spec.validate(); err != nil {
			return nil, err
		}
		if pos, ok := t.index[spec.Name]; ok {
			t.specs[pos] = spec
			continue
		}
		t.index[spec.Name] = len(t.specs)
		t.specs = append(t.specs, spec)
	}
	return t, nil
}

// DefaultTrackerTable returns the built-in table.
func DefaultTrackerTable() *TrackerTable {
	t, err := NewTrackerTable(DefaultTrackers()...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *TrackerTable) Get(name string) (TrackerSpec, bool) {
	pos, ok := t.index[strings.ToLower(name)]
	if !ok {
		return TrackerSpec{}, false
	}
	return t.specs[pos], true
}

// All returns the specs in table order.
func (t *TrackerTable) All() []TrackerSpec {
	out := make([]TrackerSpec, len(t.specs))
	copy(out, t.specs)
	return out
}

func (t *TrackerTable) Names() []string {
	names := make([]string, 0, len(t.specs))
	for _, spec := range t.specs {
		names = append(names, spec.Name)
	}
	return names
}

// TrackerIDs matches link against every tracker in the table.
func (t *TrackerTable) TrackerIDs(link string) map[string]string {
	var ids map[string]string
	for _, spec := range t.specs {
		id, ok := spec.MatchLink(link)
		if !ok {
			continue
		}
		if ids == nil {
			ids = make(map[string]string, 1)
		}
		ids[spec.Name] = id
	}
	return ids
}

// NormalizeLink trims link, drops any fragment and everything from the first '&'.
func NormalizeLink(link string) string {
	link = strings.TrimSpace(link)
	if i := strings.IndexByte(link, '#'); i >= 0 {
		link = link[:i]
	}
	if i := strings.IndexByte(link, '&'); i >= 0 {
		link = link[:i]
	}
	return link
}

// ParseTrackerLink returns the tracker item id for link when its host is one
// of domains (or a subdomain of one). With a separator the first purely
// numeric segment is the id; without one the normalized link is the id.
func ParseTrackerLink(link string, domains []string, sep string) (string, bool) {
	link = NormalizeLink(link)
	if link == "" || !hostMatches(link, domains) {
		return "", false
	}
	if sep == "" {
		return link, true
	}
	for _, part := range strings.Split(link, sep) {
		if isDigits(part) {
			return part, true
		}
	}
	return "", false
}

func hostMatches(link string, domains []string) bool {
	parseable := link
	if !strings.Contains(parseable, "://") {
		parseable = "http://" + parseable
	}
	u, err := url.Parse(parseable)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, domain := range domains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
