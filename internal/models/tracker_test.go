// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrackerLink(t *testing.T) {
	rutor := []string{"rutor.info", "rutor.is"}
	kinozal := []string{"kinozal.tv", "kinozal.guru", "kinozal.me"}

	tests := []struct {
		name    string
		link    string
		domains []string
		sep     string
		wantID  string
		wantOK  bool
	}{
		{
			name:    "rutor path id",
			link:    "http://rutor.info/torrent/12345/some-title",
			domains: rutor,
			sep:     "/",
			wantID:  "12345",
			wantOK:  true,
		},
		{
			name:    "kinozal query id truncated at ampersand",
			link:    "https://kinozal.tv/details.php?id=999&foo=bar",
			domains: kinozal,
			sep:     "=",
			wantID:  "999",
			wantOK:  true,
		},
		{
			name:    "ampersand value would otherwise be numeric",
			link:    "https://kinozal.tv/details.php?id=abc&page=2",
			domains: kinozal,
			sep:     "=",
			wantOK:  false,
		},
		{
			name:    "mirror domain",
			link:    "http://rutor.is/torrent/777",
			domains: rutor,
			sep:     "/",
			wantID:  "777",
			wantOK:  true,
		},
		{
			name:    "subdomain",
			link:    "http://www.rutor.info/torrent/42",
			domains: rutor,
			sep:     "/",
			wantID:  "42",
			wantOK:  true,
		},
		{
			name:    "legacy link without scheme",
			link:    "rutor.info/torrent/314/foo",
			domains: rutor,
			sep:     "/",
			wantID:  "314",
			wantOK:  true,
		},
		{
			name:    "foreign host mentioning domain in path",
			link:    "http://example.com/rutor.info/torrent/1",
			domains: rutor,
			sep:     "/",
			wantOK:  false,
		},
		{
			name:    "no numeric segment",
			link:    "http://rutor.info/browse/new",
			domains: rutor,
			sep:     "/",
			wantOK:  false,
		},
		{
			name:    "no separator uses normalized link",
			link:    "  https://anime.example.org/release/spring-show#files ",
			domains: []string{"anime.example.org"},
			sep:     "",
			wantID:  "https://anime.example.org/release/spring-show",
			wantOK:  true,
		},
		{
			name:    "empty link",
			link:    "",
			domains: rutor,
			sep:     "/",
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ParseTrackerLink(tt.link, tt.domains, tt.sep)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestTrackerTable_TrackerIDs(t *testing.T) {
	table := DefaultTrackerTable()

	ids := table.TrackerIDs("https://nnmclub.to/forum/viewtopic.php?t=1571096")
	assert.Equal(t, map[string]string{TrackerNnmClub: "1571096"}, ids)

	ids = table.TrackerIDs("https://torrent.by/628011/")
	assert.Equal(t, map[string]string{TrackerTorrentBy: "628011"}, ids)

	assert.Nil(t, table.TrackerIDs("https://example.com/12"))
}

func TestNewTrackerTable(t *testing.T) {
	t.Run("custom spec replaces builtin in place", func(t *testing.T) {
		custom := TrackerSpec{
			Name:        "Rutor",
			Domains:     []string{"rutor.org"},
			Separator:   "/",
			HashPattern: `btih:([a-f0-9]{40})`,
		}
		table, err := NewTrackerTable(append(DefaultTrackers(), custom)...)
		require.NoError(t, err)

		assert.Equal(t, []string{TrackerRutor, TrackerNnmClub, TrackerTorrentBy, TrackerKinozal}, table.Names())
		spec, ok := table.Get(TrackerRutor)
		require.True(t, ok)
		assert.Equal(t, []string{"rutor.org"}, spec.Domains)
		assert.Equal(t, VariantPattern, spec.Variant)
	})

	t.Run("rejects missing domains", func(t *testing.T) {
		_, err := NewTrackerTable(TrackerSpec{Name: "empty"})
		require.Error(t, err)
	})

	t.Run("rejects kinozal variant without separator", func(t *testing.T) {
		_, err := NewTrackerTable(TrackerSpec{Name: "kz", Domains: []string{"kz.org"}, Variant: VariantKinozal, PageURL: "https://kz.org/details.php?id={id}"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "needs separator")
	})

	t.Run("rejects unknown variant", func(t *testing.T) {
		_, err := NewTrackerTable(TrackerSpec{Name: "x", Domains: []string{"x.org"}, Variant: "html"})
		require.Error(t, err)
	})
}

func TestTrackerSpec_ItemPageURL(t *testing.T) {
	tests := []struct {
		name string
		spec TrackerSpec
		id   string
		want string
	}{
		{name: "placeholder", spec: TrackerSpec{Separator: "=", PageURL: "https://kinozal.tv/details.php?id={id}"}, id: "5", want: "https://kinozal.tv/details.php?id=5"},
		{name: "prefix", spec: TrackerSpec{Separator: "/", PageURL: "http://rutor.info/torrent/"}, id: "9", want: "http://rutor.info/torrent/9"},
		{name: "id is url", spec: TrackerSpec{}, id: "https://a.org/r/1", want: "https://a.org/r/1"},
		{name: "no separator ignores page url", spec: TrackerSpec{PageURL: "https://ex.org/series/{id}"}, id: "http://ex.org/series/abc", want: "http://ex.org/series/abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.ItemPageURL(tt.id))
		})
	}
}
