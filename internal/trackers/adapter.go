// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package trackers fetches tracker pages and extracts the title, poster and
// info-hash of the torrent they currently publish.
package trackers

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"

	"github.com/autobrr/tsup/internal/buildinfo"
	"github.com/autobrr/tsup/internal/models"
	"github.com/autobrr/tsup/internal/torrserver"
)

const maxPageBytes int64 = 8 << 20

// Page is one fetched tracker page.
type Page struct {
	ItemID     string
	URL        string
	StatusCode int
	Body       string
	// InfoHash is set by adapters that learn the hash while fetching.
	InfoHash string
}

func (p *Page) OK() bool {
	return p != nil && p.StatusCode == http.StatusOK
}

// FileStatsGetter reads per-torrent file statistics from the media server.
type FileStatsGetter interface {
	FileStats(ctx context.Context, hash string) (*torrserver.FileStats, torrserver.Status)
}

// HashContext carries what some adapters need beyond the page itself: the
// server records already present for the item.
type HashContext struct {
	Records []models.TorrentRecord
	Stats   FileStatsGetter
}

// Adapter is the capability every tracker variant provides. Extraction
// methods return an empty string when the value cannot be determined.
type Adapter interface {
	Name() string
	PageURL(itemID string) string
	FetchPage(ctx context.Context, itemID string) (*Page, error)
	ExtractTitle(page *Page) string
	ExtractPoster(page *Page) string
	ExtractHash(ctx context.Context, page *Page, hc HashContext) string
}

// SessionRefresher is implemented by adapters holding an authenticated session.
type SessionRefresher interface {
	RefreshSession(ctx context.Context) error
}

// DownloadError reports a non-success HTTP status for a tracker request.
type DownloadError struct {
	StatusCode int
	URL        string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("request to %s returned status %d", e.URL, e.StatusCode)
}

func (e *DownloadError) Is(target error) bool {
	_, ok := target.(*DownloadError)
	return ok
}

// fetcher performs GET requests and transcodes bodies to UTF-8.
type fetcher struct {
	client *http.Client
	log    zerolog.Logger
}

func (f *fetcher) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, errors.Wrap(err, "could not build request")
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	return req, nil
}

// page fetches rawURL. A non-200 response is returned as a page, not an error.
func (f *fetcher) page(ctx context.Context, itemID, rawURL string) (*Page, error) {
	req, err := f.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "could not fetch %s", rawURL)
	}
	defer resp.Body.Close()

	body, err := readText(resp)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %s", rawURL)
	}
	f.log.Trace().Str("url", rawURL).Int("status", resp.StatusCode).Int("bytes", len(body)).Msg("page fetched")

	return &Page{ItemID: itemID, URL: rawURL, StatusCode: resp.StatusCode, Body: body}, nil
}

// bytes downloads rawURL enforcing limit.
func (f *fetcher) bytes(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	req, err := f.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "could not download %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &DownloadError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, errors.Wrap(err, "could not read body")
	}
	if int64(len(data)) > limit {
		return nil, errors.Errorf("download exceeded %d bytes limit", limit)
	}
	f.log.Trace().Str("url", rawURL).Int("bytes", len(data)).Msg("file downloaded")
	return data, nil
}

func readText(resp *http.Response) (string, error) {
	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var flattenReplacer = strings.NewReplacer("\n", "", "\r", "", "\t", "")

// flatten removes line breaks and tabs so single-line patterns match across
// wrapped markup.
func flatten(body string) string {
	return flattenReplacer.Replace(body)
}

// firstMatch returns the first capture group of re in body.
func firstMatch(re *regexp.Regexp, body string) string {
	if re == nil {
		return ""
	}
	m := re.FindStringSubmatch(body)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func cleanTitle(raw string) string {
	return strings.TrimSpace(html.UnescapeString(raw))
}

// resolveURL makes ref absolute against base.
func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(html.UnescapeString(ref))
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// origin returns scheme://host of rawURL.
func origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
