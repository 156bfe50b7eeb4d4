// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package trackers

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/autobrr/tsup/internal/models"
)

const maxTorrentFileBytes int64 = 16 << 20

var torrentHref = regexp.MustCompile(`(?i)href=["']([^"']+?\.torrent(?:\?[^"']*)?)["']`)

// torrentFileAdapter serves pages that publish one .torrent per release
// instead of a magnet link. The live torrent is the one whose info name
// matches what the media server already holds.
type torrentFileAdapter struct {
	spec  models.TrackerSpec
	rules rules
	fetch *fetcher
	log   zerolog.Logger
	fold  cases.Caser
}

func newTorrentFileAdapter(spec models.TrackerSpec, client *http.Client) (*torrentFileAdapter, error) {
	r, err := compileRules(spec)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("tracker", spec.Name).Logger()
	return &torrentFileAdapter{
		spec:  spec,
		rules: r,
		fetch: &fetcher{client: client, log: logger},
		log:   logger,
		fold:  cases.Fold(),
	}, nil
}

func (a *torrentFileAdapter) Name() string {
	return a.spec.Name
}

func (a *torrentFileAdapter) PageURL(itemID string) string {
	return a.spec.ItemPageURL(itemID)
}

func (a *torrentFileAdapter) FetchPage(ctx context.Context, itemID string) (*Page, error) {
	return a.fetch.page(ctx, itemID, a.PageURL(itemID))
}

func (a *torrentFileAdapter) ExtractTitle(page *Page) string {
	if page == nil {
		return ""
	}
	return cleanTitle(firstMatch(a.rules.title, flatten(page.Body)))
}

func (a *torrentFileAdapter) ExtractPoster(page *Page) string {
	if page == nil {
		return ""
	}
	poster := firstMatch(a.rules.poster, flatten(page.Body))
	if poster == "" {
		return ""
	}
	return resolveURL(page.URL, poster)
}

func (a *torrentFileAdapter) ExtractHash(ctx context.Context, page *Page, hc HashContext) string {
	if page == nil {
		return ""
	}

	want := a.serverName(ctx, hc)
	if want == "" {
		a.log.Debug().Str("id", page.ItemID).Msg("no server-side torrent name to match against")
		return ""
	}

	var matches []string
	for _, link := range torrentLinks(page) {
		name, hash, err := a.inspect(ctx, link)
		if err != nil {
			a.log.Debug().Err(err).Str("link", link).Msg("skipping torrent file")
			continue
		}
		if a.sameName(name, want) {
			matches = append(matches, hash)
		}
	}

	if len(matches) != 1 {
		a.log.Debug().Str("id", page.ItemID).Str("name", want).Int("matches", len(matches)).Msg("no unique torrent file match")
		return ""
	}
	return matches[0]
}

// serverName returns the torrent name of the first record the server can
// describe.
func (a *torrentFileAdapter) serverName(ctx context.Context, hc HashContext) string {
	if hc.Stats == nil {
		return ""
	}
	for _, rec := range hc.Records {
		stats, status := hc.Stats.FileStats(ctx, rec.ContentHash)
		if !status.OK() || stats == nil {
			continue
		}
		if stats.Name != "" {
			return stats.Name
		}
	}
	return ""
}

func (a *torrentFileAdapter) inspect(ctx context.Context, link string) (string, string, error) {
	data, err := a.fetch.bytes(ctx, link, maxTorrentFileBytes)
	if err != nil {
		return "", "", err
	}

	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return "", "", err
	}

	name := info.NameUtf8
	if name == "" {
		name = info.Name
	}
	return name, mi.HashInfoBytes().HexString(), nil
}

func (a *torrentFileAdapter) sameName(x, y string) bool {
	normalize := func(s string) string {
		return a.fold.String(norm.NFC.String(strings.TrimSpace(s)))
	}
	return normalize(x) == normalize(y)
}

// torrentLinks returns the distinct absolute .torrent links of page in
// document order.
func torrentLinks(page *Page) []string {
	seen := make(map[string]struct{})
	var links []string
	for _, m := range torrentHref.FindAllStringSubmatch(flatten(page.Body), -1) {
		link := resolveURL(page.URL, m[1])
		if link == "" {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	return links
}
