// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	// ProviderTracker tags torrents added from a tracker page.
	ProviderTracker = "TSA"
	// ProviderFeed tags torrents added from the litr.cc feed.
	ProviderFeed = "LITRCC"

	fieldTrackerURL = "srcUrl"
	fieldFeedURL    = "external_url"
)

// knownProviders is checked in order when decoding a data blob.
var knownProviders = []struct {
	provider string
	field    string
}{
	{ProviderTracker, fieldTrackerURL},
	{ProviderFeed, fieldFeedURL},
}

// Provenance records where a server torrent came from. It is stored as
// {"<Provider>":{"<Field>":"<Value>"}} in the server's opaque data field.
type Provenance struct {
	Provider string
	Field    string
	Value    string
}

func TrackerProvenance(pageURL string) Provenance {
	return Provenance{Provider: ProviderTracker, Field: fieldTrackerURL, Value: pageURL}
}

func FeedProvenance(externalURL string) Provenance {
	return Provenance{Provider: ProviderFeed, Field: fieldFeedURL, Value: externalURL}
}

// Encode renders the blob. HTML escaping is disabled so URLs keep their '&'.
func (p Provenance) Encode() string {
	blob := map[string]map[string]string{p.Provider: {p.Field: p.Value}}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(blob); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

// ParseProvenance decodes a data blob. isJSON is false when raw is not a JSON
// object; the trimmed raw string is then returned as Value so legacy records
// holding a bare URL keep working. A JSON object without a known provider
// yields an empty Provenance.
func ParseProvenance(raw string) (p Provenance, isJSON bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Provenance{}, false
	}

	var outer map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &outer); err != nil || outer == nil {
		return Provenance{Value: raw}, false
	}

	for _, known := range knownProviders {
		inner, ok := outer[known.provider]
		if !ok {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(inner, &fields); err != nil {
			continue
		}
		if value, ok := fields[known.field].(string); ok && value != "" {
			return Provenance{Provider: known.provider, Field: known.field, Value: value}, true
		}
	}

	return Provenance{}, true
}
