// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package trackers

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/tsup/internal/models"
)

// rules holds the extraction patterns of a pattern tracker.
type rules struct {
	title  *regexp.Regexp
	poster *regexp.Regexp
	hash   *regexp.Regexp
}

var (
	rutorTitle  = regexp.MustCompile(`<h1>(.*?)</h1>`)
	rutorPoster = regexp.MustCompile(`<br /><img src=['"]?([^'" >]+)`)

	genericMagnet = regexp.MustCompile(`magnet:\?xt=urn:btih:([a-fA-F0-9]{40})`)

	builtinRules = map[string]rules{
		models.TrackerRutor: {
			title:  rutorTitle,
			poster: rutorPoster,
			hash:   regexp.MustCompile(`<div id="download"><a href="magnet:\?xt=urn:btih:([a-fA-F0-9]{40})`),
		},
		models.TrackerNnmClub: {
			title:  regexp.MustCompile(`<a class="maintitle" href="viewtopic\.php\?t=[0-9]*">(.*?)</a>`),
			poster: regexp.MustCompile(`<meta property="og:image" content=['"]?([^'" >]+)`),
			hash:   regexp.MustCompile(`<a rel="nofollow" href="magnet:\?xt=urn:btih:([a-fA-F0-9]{40})`),
		},
		// torrent.by mirrors rutor's page layout except for the download block.
		models.TrackerTorrentBy: {
			title:  rutorTitle,
			poster: rutorPoster,
			hash:   regexp.MustCompile(`<a href="magnet:\?xt=urn:btih:([a-fA-F0-9]{40})`),
		},
	}
)

func compileRules(spec models.TrackerSpec) (rules, error) {
	r := builtinRules[spec.Name]

	compile := func(field, pattern string, dst **regexp.Regexp) error {
		if pattern == "" {
			return nil
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("tracker %s: invalid %s: %w", spec.Name, field, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("tracker %s: %s needs a capture group", spec.Name, field)
		}
		*dst = re
		return nil
	}

	if err := compile("titlePattern", spec.TitlePattern, &r.title); err != nil {
		return rules{}, err
	}
	if err := compile("posterPattern", spec.PosterPattern, &r.poster); err != nil {
		return rules{}, err
	}
	if err := compile("hashPattern", spec.HashPattern, &r.hash); err != nil {
		return rules{}, err
	}
	if r.hash == nil {
		r.hash = genericMagnet
	}
	return r, nil
}

// patternAdapter serves trackers whose pages expose a magnet link.
type patternAdapter struct {
	spec  models.TrackerSpec
	rules rules
	fetch *fetcher
}

func newPatternAdapter(spec models.TrackerSpec, client *http.Client) (*patternAdapter, error) {
	r, err := compileRules(spec)
	if err != nil {
		return nil, err
	}
	return &patternAdapter{
		spec:  spec,
		rules: r,
		fetch: &fetcher{client: client, log: log.With().Str("tracker", spec.Name).Logger()},
	}, nil
}

func (a *patternAdapter) Name() string {
	return a.spec.Name
}

func (a *patternAdapter) PageURL(itemID string) string {
	return a.spec.ItemPageURL(itemID)
}

func (a *patternAdapter) FetchPage(ctx context.Context, itemID string) (*Page, error) {
	return a.fetch.page(ctx, itemID, a.PageURL(itemID))
}

func (a *patternAdapter) ExtractTitle(page *Page) string {
	if page == nil {
		return ""
	}
	return cleanTitle(firstMatch(a.rules.title, flatten(page.Body)))
}

func (a *patternAdapter) ExtractPoster(page *Page) string {
	if page == nil {
		return ""
	}
	poster := firstMatch(a.rules.poster, flatten(page.Body))
	if poster == "" {
		return ""
	}
	return resolveURL(page.URL, poster)
}

func (a *patternAdapter) ExtractHash(_ context.Context, page *Page, _ HashContext) string {
	if page == nil {
		return ""
	}
	return models.NormalizeHash(firstMatch(a.rules.hash, flatten(page.Body)))
}
