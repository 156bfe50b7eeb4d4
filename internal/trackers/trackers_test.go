// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package trackers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/autobrr/tsup/internal/catalog"
	"github.com/autobrr/tsup/internal/models"
	"github.com/autobrr/tsup/internal/torrserver"
)

const (
	hashA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func newRegistry(t *testing.T, specs ...models.TrackerSpec) *Registry {
	t.Helper()
	reg, err := NewRegistry(context.Background(), specs, Options{})
	require.NoError(t, err)
	return reg
}

func getAdapter(t *testing.T, reg *Registry, name string) Adapter {
	t.Helper()
	for _, a := range reg.All() {
		if a.Name() == name {
			return a
		}
	}
	require.FailNow(t, "adapter not registered", name)
	return nil
}

func TestPatternAdapter_Rutor(t *testing.T) {
	page := "<html><body>\n<h1>Show &amp; Tell / S01E01-05</h1>\n" +
		"<table><tr><td><br /><img src=\"http://img.example.com/poster.jpg\" /></td></tr></table>\n" +
		"<div id=\"download\">\n<a href=\"magnet:?xt=urn:btih:" + strings.ToUpper(hashB) + "&dn=show\">magnet</a></div>"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/torrent/100" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	reg := newRegistry(t, models.TrackerSpec{
		Name:      models.TrackerRutor,
		Domains:   []string{"rutor.info"},
		Separator: "/",
		PageURL:   srv.URL + "/torrent/{id}",
	})
	a := getAdapter(t, reg, models.TrackerRutor)

	assert.Equal(t, srv.URL+"/torrent/100", a.PageURL("100"))

	got, err := a.FetchPage(context.Background(), "100")
	require.NoError(t, err)
	require.True(t, got.OK())

	assert.Equal(t, "Show & Tell / S01E01-05", a.ExtractTitle(got))
	assert.Equal(t, "http://img.example.com/poster.jpg", a.ExtractPoster(got))
	assert.Equal(t, hashB, a.ExtractHash(context.Background(), got, HashContext{}))

	missing, err := a.FetchPage(context.Background(), "404")
	require.NoError(t, err)
	assert.False(t, missing.OK())
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestPatternAdapter_NnmClubWindows1251(t *testing.T) {
	title, err := charmap.Windows1251.NewEncoder().String("Сериал (1 сезон)")
	require.NoError(t, err)

	body := `<meta property="og:image" content="https://i.example.com/p.png">` +
		`<a class="maintitle" href="viewtopic.php?t=555">` + title + `</a>` +
		`<a rel="nofollow" href="magnet:?xt=urn:btih:` + hashA + `">get</a>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	reg := newRegistry(t, models.TrackerSpec{
		Name:      models.TrackerNnmClub,
		Domains:   []string{"nnmclub.to"},
		Separator: "=",
		PageURL:   srv.URL + "/forum/viewtopic.php?t={id}",
	})
	a := getAdapter(t, reg, models.TrackerNnmClub)

	page, err := a.FetchPage(context.Background(), "555")
	require.NoError(t, err)

	assert.Equal(t, "Сериал (1 сезон)", a.ExtractTitle(page))
	assert.Equal(t, "https://i.example.com/p.png", a.ExtractPoster(page))
	assert.Equal(t, hashA, a.ExtractHash(context.Background(), page, HashContext{}))
}

func TestPatternAdapter_MissingValues(t *testing.T) {
	reg := newRegistry(t, models.TrackerSpec{Name: models.TrackerTorrentBy, Domains: []string{"torrent.by"}})
	a := getAdapter(t, reg, models.TrackerTorrentBy)

	page := &Page{StatusCode: http.StatusOK, Body: "<html>nothing here</html>"}
	assert.Empty(t, a.ExtractTitle(page))
	assert.Empty(t, a.ExtractPoster(page))
	assert.Empty(t, a.ExtractHash(context.Background(), page, HashContext{}))

	assert.Empty(t, a.ExtractTitle(nil))
	assert.Empty(t, a.ExtractHash(context.Background(), nil, HashContext{}))
}

func TestPatternAdapter_RelativePoster(t *testing.T) {
	reg := newRegistry(t, models.TrackerSpec{
		Name:          "custom",
		Domains:       []string{"example.org"},
		PosterPattern: `<img class="cover" src="([^"]+)"`,
	})
	a := getAdapter(t, reg, "custom")

	page := &Page{
		URL:        "https://example.org/series/7",
		StatusCode: http.StatusOK,
		Body:       `<img class="cover" src="/covers/7.jpg">magnet:?xt=urn:btih:` + hashA,
	}
	assert.Equal(t, "https://example.org/covers/7.jpg", a.ExtractPoster(page))
	assert.Equal(t, hashA, a.ExtractHash(context.Background(), page, HashContext{}), "custom trackers fall back to any magnet link")
}

func TestPatternAdapter_LinkIsItemWithoutSeparator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/series/abc" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<h1>Show</h1><a href="magnet:?xt=urn:btih:`+hashB+`">get</a>`)
	}))
	defer srv.Close()

	table, err := models.NewTrackerTable(models.TrackerSpec{
		Name:    "ex",
		Domains: []string{"127.0.0.1"},
		PageURL: "https://ex.org/series/{id}",
	})
	require.NoError(t, err)

	link := srv.URL + "/series/abc"
	records := torrserver.ParseRecords([]torrserver.RawTorrent{
		{Hash: hashA, Title: "Show", Data: models.TrackerProvenance(link).Encode()},
	}, table)

	groups := catalog.New(records).GroupByTracker("ex")
	require.Len(t, groups, 1)
	assert.Equal(t, link, groups[0].ItemID)

	spec, ok := table.Get("ex")
	require.True(t, ok)
	a := getAdapter(t, newRegistry(t, spec), "ex")
	assert.Equal(t, link, a.PageURL(groups[0].ItemID))

	page, err := a.FetchPage(context.Background(), groups[0].ItemID)
	require.NoError(t, err)
	require.True(t, page.OK(), "fetched %s", page.URL)
	assert.Equal(t, hashB, a.ExtractHash(context.Background(), page, HashContext{}))
}

func TestNewRegistry(t *testing.T) {
	tests := []struct {
		name    string
		specs   []models.TrackerSpec
		want    []string
		wantErr string
	}{
		{
			name:  "builtin trackers",
			specs: []models.TrackerSpec{{Name: models.TrackerRutor}, {Name: models.TrackerTorrentBy, InsecureTLS: true}},
			want:  []string{models.TrackerRutor, models.TrackerTorrentBy},
		},
		{
			name:  "duplicates keep the first",
			specs: []models.TrackerSpec{{Name: models.TrackerRutor}, {Name: models.TrackerRutor}},
			want:  []string{models.TrackerRutor},
		},
		{
			name:    "invalid pattern",
			specs:   []models.TrackerSpec{{Name: "bad", HashPattern: "("}},
			wantErr: "tracker bad: invalid hashPattern",
		},
		{
			name:    "pattern without capture group",
			specs:   []models.TrackerSpec{{Name: "bad", TitlePattern: "<h2>.*</h2>"}},
			wantErr: "needs a capture group",
		},
		{
			name:    "unknown variant",
			specs:   []models.TrackerSpec{{Name: "odd", Variant: "scrape"}},
			wantErr: `unknown variant "scrape"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := NewRegistry(context.Background(), tt.specs, Options{})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			var names []string
			for _, a := range reg.All() {
				names = append(names, a.Name())
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, len(tt.want), reg.Len())
		})
	}
}

func newKinozalServer(t *testing.T, logins *[]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/takelogin.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		*logins = append(*logins, r.PostForm.Get("username"))
		if r.PostForm.Get("password") == "secret" {
			http.SetCookie(w, &http.Cookie{Name: "uid", Value: "42", Path: "/"})
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/details.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<h1><a href="/details.php?id=%s" class="r1">Сериал / 2024</a></h1>`+
			`<li class="img"><a href="#"><img src="/i/poster/1.jpg" class="p200"></a></li>`, r.URL.Query().Get("id"))
	})
	mux.HandleFunc("/get_srv_details.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("action"))
		if _, err := r.Cookie("uid"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprintf(w, "<ul><li>Инфо хеш: %s</li></ul>", strings.ToUpper(hashB))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func kinozalSpec(base string) models.TrackerSpec {
	return models.TrackerSpec{
		Name:         models.TrackerKinozal,
		Domains:      []string{"kinozal.tv"},
		Variant:      models.VariantKinozal,
		Separator:    "=",
		PageURL:      base + "/details.php?id={id}",
		RequiresAuth: true,
	}
}

func TestKinozalAdapter(t *testing.T) {
	var logins []string
	srv := newKinozalServer(t, &logins)

	reg, err := NewRegistry(context.Background(), []models.TrackerSpec{kinozalSpec(srv.URL)}, Options{
		Credentials: map[string]models.Credential{models.TrackerKinozal: {Username: "user", Password: "secret"}},
	})
	require.NoError(t, err)
	a := getAdapter(t, reg, models.TrackerKinozal)
	assert.Equal(t, []string{"user"}, logins)

	kz, ok := a.(*kinozalAdapter)
	require.True(t, ok)
	assert.True(t, kz.authenticated)
	assert.NotNil(t, kz.fetch.client.Jar)
	assert.NoError(t, kz.RefreshSession(context.Background()))

	page, err := a.FetchPage(context.Background(), "77")
	require.NoError(t, err)
	require.True(t, page.OK())

	assert.Equal(t, "Сериал / 2024", a.ExtractTitle(page))
	assert.Equal(t, srv.URL+"/i/poster/1.jpg", a.ExtractPoster(page))
	assert.Equal(t, hashB, a.ExtractHash(context.Background(), page, HashContext{}))
}

func TestKinozalAdapter_Unauthenticated(t *testing.T) {
	tests := []struct {
		name   string
		cred   models.Credential
		logins int
	}{
		{name: "missing credentials", cred: models.Credential{}, logins: 0},
		{name: "rejected credentials", cred: models.Credential{Username: "user", Password: "wrong"}, logins: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logins []string
			srv := newKinozalServer(t, &logins)

			reg, err := NewRegistry(context.Background(), []models.TrackerSpec{kinozalSpec(srv.URL)}, Options{
				Credentials: map[string]models.Credential{models.TrackerKinozal: tt.cred},
			})
			require.NoError(t, err)
			assert.Len(t, logins, tt.logins)

			a := getAdapter(t, reg, models.TrackerKinozal)
			assert.False(t, a.(*kinozalAdapter).authenticated)

			page, err := a.FetchPage(context.Background(), "77")
			require.NoError(t, err)
			assert.True(t, page.OK())
			assert.Empty(t, a.ExtractHash(context.Background(), page, HashContext{}))
		})
	}
}

func testTorrent(t *testing.T, name string) ([]byte, string) {
	t.Helper()

	info := metainfo.Info{
		Name:        name,
		PieceLength: 16 * 1024,
		Length:      12,
		Pieces:      make([]byte, 20),
	}
	infoBytes, err := bencode.Marshal(info)
	require.NoError(t, err)

	mi := metainfo.MetaInfo{
		AnnounceList: [][]string{{"http://tracker.example.com:8080/announce"}},
		InfoBytes:    infoBytes,
	}

	var buf bytes.Buffer
	require.NoError(t, mi.Write(&buf))
	return buf.Bytes(), mi.HashInfoBytes().HexString()
}

type fakeStats map[string]*torrserver.FileStats

func (f fakeStats) FileStats(_ context.Context, hash string) (*torrserver.FileStats, torrserver.Status) {
	if s, ok := f[hash]; ok {
		return s, torrserver.Status(http.StatusOK)
	}
	return nil, torrserver.Status(http.StatusNotFound)
}

func TestKinozalAdapter_NeedsCookieJar(t *testing.T) {
	_, err := newKinozalAdapter(context.Background(), kinozalSpec("https://kinozal.tv"), models.Credential{}, &http.Client{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cookie jar")
}

func TestTorrentFileAdapter(t *testing.T) {
	showFile, showHash := testTorrent(t, "Show.S01.1080p")
	otherFile, _ := testTorrent(t, "Other.Series.S02")

	page := `<a href="/dl/show.torrent">720p</a> <a href="/dl/other.torrent">other</a>` +
		`<a href="/dl/show.torrent">mirror</a> <a href="/dl/broken.torrent">broken</a>`

	mux := http.NewServeMux()
	mux.HandleFunc("/series/9", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, page) })
	mux.HandleFunc("/dl/show.torrent", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(showFile) })
	mux.HandleFunc("/dl/other.torrent", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(otherFile) })
	mux.HandleFunc("/dl/broken.torrent", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "gone", http.StatusGone) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	reg := newRegistry(t, models.TrackerSpec{
		Name:      "anime",
		Domains:   []string{"anime.example"},
		Variant:   models.VariantTorrentFile,
		Separator: "/",
		PageURL:   srv.URL + "/series/{id}",
	})
	a := getAdapter(t, reg, "anime")

	fetched, err := a.FetchPage(context.Background(), "9")
	require.NoError(t, err)
	assert.Len(t, torrentLinks(fetched), 3)

	records := []models.TorrentRecord{{ContentHash: hashB}, {ContentHash: hashA}}

	tests := []struct {
		name  string
		stats fakeStats
		want  string
	}{
		{
			name:  "case-insensitive unique match",
			stats: fakeStats{hashA: {Name: "show.s01.1080P"}},
			want:  showHash,
		},
		{
			name:  "no server name",
			stats: fakeStats{},
			want:  "",
		},
		{
			name:  "name not offered",
			stats: fakeStats{hashA: {Name: "Unrelated"}},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.ExtractHash(context.Background(), fetched, HashContext{Records: records, Stats: tt.stats})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTorrentFileAdapter_AmbiguousMatch(t *testing.T) {
	first, _ := testTorrent(t, "Show")
	second, _ := testTorrent(t, "SHOW")

	mux := http.NewServeMux()
	mux.HandleFunc("/a.torrent", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(first) })
	mux.HandleFunc("/b.torrent", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(second) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	reg := newRegistry(t, models.TrackerSpec{Name: "anime", Domains: []string{"anime.example"}, Variant: models.VariantTorrentFile})
	a := getAdapter(t, reg, "anime")

	page := &Page{
		URL:        srv.URL + "/series",
		StatusCode: http.StatusOK,
		Body:       `<a href="a.torrent">a</a><a href='b.torrent'>b</a>`,
	}
	hc := HashContext{
		Records: []models.TorrentRecord{{ContentHash: hashA}},
		Stats:   fakeStats{hashA: {Name: "show"}},
	}
	assert.Empty(t, a.ExtractHash(context.Background(), page, hc))
}

func TestDownloadError(t *testing.T) {
	f := &fetcher{client: http.DefaultClient}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	_, err := f.bytes(context.Background(), srv.URL, 1024)
	require.Error(t, err)

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, http.StatusTeapot, dlErr.StatusCode)
	assert.ErrorIs(t, err, &DownloadError{})
}
