// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package httpclient builds the HTTP clients shared by the torrserver client
// and the tracker adapters.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTimeout = 10 * time.Second

type Options struct {
	Timeout time.Duration
	// Proxy is an http, https or socks5 proxy URL. Empty uses the environment.
	Proxy       string
	InsecureTLS bool
	Jar         http.CookieJar
}

// New returns a client honouring opts. Each call gets its own transport so
// TLS and proxy settings never leak between trackers.
func New(opts Options) (*http.Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()

	proxy, err := ParseProxy(opts.Proxy)
	if err != nil {
		return nil, err
	}
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
	}

	if opts.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per tracker
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		Jar:       opts.Jar,
	}, nil
}

// ParseProxy validates a proxy URL. An empty string yields nil.
func ParseProxy(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q: missing host", raw)
	}
	return u, nil
}
