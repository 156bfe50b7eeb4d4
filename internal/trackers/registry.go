// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package trackers

import (
	"context"
	"fmt"

	"github.com/autobrr/tsup/internal/models"
	"github.com/autobrr/tsup/internal/pkg/httpclient"
)

// Options configures adapter construction.
type Options struct {
	HTTP        httpclient.Options
	Credentials map[string]models.Credential
}

// Registry holds the adapters of the trackers enabled for a run, in the
// order they were requested.
type Registry struct {
	adapters []Adapter
	byName   map[string]Adapter
}

// NewRegistry builds one adapter per spec. Trackers that log in do so here.
func NewRegistry(ctx context.Context, specs []models.TrackerSpec, opts Options) (*Registry, error) {
	r := &Registry{byName: make(map[string]Adapter, len(specs))}
	for _, spec := range specs {
		if _, dup := r.byName[spec.Name]; dup {
			continue
		}
		adapter, err := newAdapter(ctx, spec, opts)
		if err != nil {
			return nil, err
		}
		r.adapters = append(r.adapters, adapter)
		r.byName[spec.Name] = adapter
	}
	return r, nil
}

func newAdapter(ctx context.Context, spec models.TrackerSpec, opts Options) (Adapter, error) {
	httpOpts := opts.HTTP
	httpOpts.InsecureTLS = httpOpts.InsecureTLS || spec.InsecureTLS

	if spec.Variant == models.VariantKinozal {
		jar, err := newSessionJar()
		if err != nil {
			return nil, fmt.Errorf("tracker %s: %w", spec.Name, err)
		}
		httpOpts.Jar = jar
	}

	client, err := httpclient.New(httpOpts)
	if err != nil {
		return nil, fmt.Errorf("tracker %s: %w", spec.Name, err)
	}

	switch spec.Variant {
	case models.VariantPattern, "":
		return newPatternAdapter(spec, client)
	case models.VariantKinozal:
		return newKinozalAdapter(ctx, spec, opts.Credentials[spec.Name], client)
	case models.VariantTorrentFile:
		return newTorrentFileAdapter(spec, client)
	default:
		return nil, fmt.Errorf("tracker %s: unknown variant %q", spec.Name, spec.Variant)
	}
}

func (r *Registry) All() []Adapter {
	out := make([]Adapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

func (r *Registry) Len() int {
	return len(r.adapters)
}
