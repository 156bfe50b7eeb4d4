// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package trackers

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"

	"github.com/autobrr/tsup/internal/models"
)

var (
	kinozalTitle   = regexp.MustCompile(`<h1[^>]*>\s*<a[^>]*>(.*?)</a>`)
	kinozalPoster  = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["'][^>]*class=["']p200["']`)
	kinozalSrvHash = regexp.MustCompile(`: ([a-fA-F0-9]{40})</li>`)
)

// kinozalAdapter keeps a logged-in session. The info-hash is not on the
// details page; it comes from the server details endpoint during fetch.
type kinozalAdapter struct {
	spec          models.TrackerSpec
	base          string
	fetch         *fetcher
	log           zerolog.Logger
	authenticated bool
}

// newSessionJar returns the cookie jar a logged-in session keeps its cookies in.
func newSessionJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "could not create cookie jar")
	}
	return jar, nil
}

// newKinozalAdapter logs in with cred. client must carry a cookie jar.
func newKinozalAdapter(ctx context.Context, spec models.TrackerSpec, cred models.Credential, client *http.Client) (*kinozalAdapter, error) {
	if client.Jar == nil {
		return nil, errors.Errorf("tracker %s: session client has no cookie jar", spec.Name)
	}

	logger := log.With().Str("tracker", spec.Name).Logger()
	a := &kinozalAdapter{
		spec:  spec,
		base:  origin(spec.ItemPageURL("0")),
		fetch: &fetcher{client: client, log: logger},
		log:   logger,
	}

	if a.base == "" {
		return nil, errors.Errorf("tracker %s: page url has no host", spec.Name)
	}

	if cred.Empty() {
		a.log.Warn().Msg("no credentials configured, continuing unauthenticated")
		return a, nil
	}

	if err := a.login(ctx, cred); err != nil {
		a.log.Warn().Err(err).Msg("login failed, continuing unauthenticated")
		return a, nil
	}

	a.authenticated = true
	a.log.Debug().Str("user", cred.Username).Msg("logged in")
	return a, nil
}

func (a *kinozalAdapter) login(ctx context.Context, cred models.Credential) error {
	form := url.Values{}
	form.Set("username", cred.Username)
	form.Set("password", cred.Password)
	form.Set("returnto", "")

	req, err := a.fetch.newRequest(ctx, http.MethodPost, a.base+"/takelogin.php", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.fetch.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "login request failed")
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &DownloadError{StatusCode: resp.StatusCode, URL: req.URL.String()}
	}

	baseURL, err := url.Parse(a.base)
	if err != nil {
		return errors.Wrap(err, "could not parse base url")
	}
	for _, c := range a.fetch.client.Jar.Cookies(baseURL) {
		if c.Name == "uid" && c.Value != "" {
			return nil
		}
	}
	return errors.New("credentials rejected")
}

// RefreshSession is a no-op; sessions live for the whole run.
// TODO: re-login when the session cookie expires mid-run.
func (a *kinozalAdapter) RefreshSession(context.Context) error {
	return nil
}

func (a *kinozalAdapter) Name() string {
	return a.spec.Name
}

func (a *kinozalAdapter) PageURL(itemID string) string {
	return a.spec.ItemPageURL(itemID)
}

func (a *kinozalAdapter) FetchPage(ctx context.Context, itemID string) (*Page, error) {
	page, err := a.fetch.page(ctx, itemID, a.PageURL(itemID))
	if err != nil || !page.OK() {
		return page, err
	}

	detailsURL := a.base + "/get_srv_details.php?id=" + url.QueryEscape(itemID) + "&action=2"
	details, err := a.fetch.page(ctx, itemID, detailsURL)
	switch {
	case err != nil:
		a.log.Debug().Err(err).Str("id", itemID).Msg("could not fetch server details")
	case !details.OK():
		a.log.Debug().Int("status", details.StatusCode).Str("id", itemID).Bool("authenticated", a.authenticated).Msg("server details unavailable")
	default:
		page.InfoHash = models.NormalizeHash(firstMatch(kinozalSrvHash, flatten(details.Body)))
	}
	return page, nil
}

func (a *kinozalAdapter) ExtractTitle(page *Page) string {
	if page == nil {
		return ""
	}
	return cleanTitle(firstMatch(kinozalTitle, flatten(page.Body)))
}

func (a *kinozalAdapter) ExtractPoster(page *Page) string {
	if page == nil {
		return ""
	}
	poster := firstMatch(kinozalPoster, flatten(page.Body))
	if poster == "" {
		return ""
	}
	return resolveURL(page.URL, poster)
}

func (a *kinozalAdapter) ExtractHash(_ context.Context, page *Page, _ HashContext) string {
	if page == nil {
		return ""
	}
	return page.InfoHash
}
