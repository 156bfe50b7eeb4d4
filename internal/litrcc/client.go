// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package litrcc reads litr.cc JSON feeds.
package litrcc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tsup/internal/buildinfo"
	"github.com/autobrr/tsup/internal/catalog"
)

const (
	DefaultBaseURL = "https://litr.cc"

	maxFeedBytes int64 = 16 << 20
)

// Feed is the JSON feed document.
type Feed struct {
	Version string             `json:"version"`
	Title   string             `json:"title"`
	Items   []catalog.FeedItem `json:"items"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient returns a feed client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        log.With().Str("component", "litrcc").Logger(),
	}
}

// FeedURL resolves a feed reference. A full URL is used as is, anything else
// must be a feed uuid.
func (c *Client) FeedURL(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("feed reference is empty")
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if _, err := url.ParseRequestURI(ref); err != nil {
			return "", errors.Wrap(err, "invalid feed url")
		}
		return ref, nil
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return "", errors.Wrapf(err, "feed reference %q is neither a url nor a uuid", ref)
	}
	return url.JoinPath(c.baseURL, "feed", id.String(), "json")
}

// Fetch downloads and decodes the feed.
func (c *Client) Fetch(ctx context.Context, ref string) (*Feed, error) {
	endpoint, err := c.FeedURL(ref)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build feed request")
	}
	req.Header.Set("Accept", "application/feed+json, application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "feed request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Errorf("feed returned status %d", resp.StatusCode)
	}

	var feed Feed
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&feed); err != nil {
		return nil, errors.Wrap(err, "decode feed")
	}

	c.log.Info().Str("feed", feed.Title).Int("items", len(feed.Items)).Msg("feed fetched")
	return &feed, nil
}
