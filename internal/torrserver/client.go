// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package torrserver talks to the TorrServer JSON API, the system of record
// for the torrent library and per-episode viewed markers.
package torrserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tsup/internal/buildinfo"
)

// StatusUnknown is reported when a request never produced an HTTP response.
const StatusUnknown = 520

const maxResponseBytes int64 = 32 << 20

// Status is the HTTP status code of one server call.
type Status int

func (s Status) OK() bool {
	return s == http.StatusOK
}

func (s Status) NotFound() bool {
	return s == http.StatusNotFound
}

func (s Status) String() string {
	if s == StatusUnknown {
		return "unknown error"
	}
	return strconv.Itoa(int(s)) + " " + http.StatusText(int(s))
}

// Config configures a Client.
type Config struct {
	// Host is the server base URL, e.g. http://127.0.0.1:8090.
	Host       string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// BaseURL joins host and port the way the CLI accepts them: the scheme and
// host of rawHost, with port replacing any port rawHost carried.
func BaseURL(rawHost string, port int) (string, error) {
	rawHost = strings.TrimSpace(rawHost)
	if rawHost == "" {
		rawHost = "http://127.0.0.1"
	}
	if !strings.Contains(rawHost, "://") {
		rawHost = "http://" + rawHost
	}
	u, err := url.Parse(rawHost)
	if err != nil {
		return "", errors.Wrapf(err, "invalid torrserver url %q", rawHost)
	}
	if u.Hostname() == "" {
		return "", errors.Errorf("invalid torrserver url %q: missing host", rawHost)
	}
	host := u.Hostname()
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port > 0 {
		host += ":" + strconv.Itoa(port)
	} else if u.Port() != "" {
		host += ":" + u.Port()
	}
	return u.Scheme + "://" + host, nil
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.Host, "/"),
		httpClient: httpClient,
		log:        log.With().Str("component", "torrserver").Logger(),
	}
}

type response struct {
	status Status
	body   []byte
}

// do performs one round trip. Transport failures are logged and reported as
// StatusUnknown; they never surface as errors.
func (c *Client) do(ctx context.Context, method, path string, payload any) response {
	endpoint := c.baseURL + path

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			c.log.Error().Err(err).Str("path", path).Msg("could not encode request")
			return response{status: StatusUnknown}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		c.log.Error().Err(errors.Wrap(err, "could not build request")).Str("url", endpoint).Msg("torrserver request failed")
		return response{status: StatusUnknown}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	c.log.Trace().Str("method", method).Str("url", endpoint).Msg("torrserver request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("url", endpoint).Msg("connection problems with torrserver")
		return response{status: StatusUnknown}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.log.Error().Err(err).Str("url", endpoint).Msg("could not read torrserver response")
		return response{status: StatusUnknown}
	}

	return response{status: Status(resp.StatusCode), body: data}
}

func (c *Client) torrents(ctx context.Context, payload map[string]any) response {
	return c.do(ctx, http.MethodPost, "/torrents", payload)
}

func (c *Client) viewed(ctx context.Context, payload map[string]any) response {
	return c.do(ctx, http.MethodPost, "/viewed", payload)
}

// ListTorrents returns every torrent on the server, or nothing on failure.
func (c *Client) ListTorrents(ctx context.Context) []RawTorrent {
	resp := c.torrents(ctx, map[string]any{"action": "list"})
	if !resp.status.OK() {
		c.log.Warn().Stringer("status", resp.status).Msg("could not list torrents")
		return nil
	}

	var list []RawTorrent
	if err := json.Unmarshal(resp.body, &list); err != nil {
		c.log.Warn().Err(err).Msg("could not decode torrent list")
		return nil
	}
	return list
}

// Viewed returns the viewed markers for hash, or nothing on failure.
func (c *Client) Viewed(ctx context.Context, hash string) []ViewedEntry {
	resp := c.viewed(ctx, map[string]any{"action": "list", "hash": hash})
	if !resp.status.OK() {
		c.log.Warn().Str("hash", hash).Stringer("status", resp.status).Msg("could not list viewed episodes")
		return nil
	}

	var entries []ViewedEntry
	if err := json.Unmarshal(resp.body, &entries); err != nil {
		c.log.Warn().Err(err).Str("hash", hash).Msg("could not decode viewed episodes")
		return nil
	}
	return entries
}

// Add adds a torrent, or replaces the one with the same hash.
func (c *Client) Add(ctx context.Context, spec TorrentSpec) Status {
	payload := map[string]any{
		"action":     "add",
		"link":       spec.Link(),
		"hash":       spec.Hash,
		"title":      spec.Title,
		"poster":     spec.Poster,
		"save_to_db": spec.Persist,
		"data":       spec.Data,
	}
	return c.torrents(ctx, payload).status
}

func (c *Client) SetViewed(ctx context.Context, hash string, fileIndex int) Status {
	return c.viewed(ctx, map[string]any{"action": "set", "hash": hash, "file_index": fileIndex}).status
}

func (c *Client) Remove(ctx context.Context, hash string) Status {
	return c.torrents(ctx, map[string]any{"action": "rem", "hash": hash}).status
}

// Get reports whether the server knows hash; 404 means it does not.
func (c *Client) Get(ctx context.Context, hash string) Status {
	return c.torrents(ctx, map[string]any{"action": "get", "hash": hash}).status
}

// FileStats fetches the torrent's file list from the stream endpoint.
func (c *Client) FileStats(ctx context.Context, hash string) (*FileStats, Status) {
	query := url.Values{}
	query.Set("link", hash)
	path := "/stream/fname?" + query.Encode() + "&stat"

	resp := c.do(ctx, http.MethodGet, path, nil)
	if !resp.status.OK() {
		return nil, resp.status
	}

	var stats FileStats
	if err := json.Unmarshal(resp.body, &stats); err != nil {
		c.log.Warn().Err(err).Str("hash", hash).Msg("could not decode torrent stat")
		return nil, StatusUnknown
	}
	if stats.Name == "" {
		stats.Name = stats.Title
	}
	return &stats, resp.status
}
