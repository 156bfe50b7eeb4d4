// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/tsup/internal/models"
)

// Credentials maps a tracker name to its login.
type Credentials map[string]models.Credential

// LoadCredentials reads the YAML credential store. A missing file yields an
// empty store.
func LoadCredentials(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("path", path).Msg("no credentials file")
		return Credentials{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read credentials: %w", err)
	}

	creds := Credentials{}
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("could not parse credentials %s: %w", path, err)
	}

	normalized := make(Credentials, len(creds))
	for name, cred := range creds {
		normalized[strings.ToLower(strings.TrimSpace(name))] = cred
	}
	return normalized, nil
}

// SaveCredential stores cred for tracker, keeping the other entries.
func SaveCredential(path, tracker string, cred models.Credential) error {
	tracker = strings.ToLower(strings.TrimSpace(tracker))
	if tracker == "" {
		return errors.New("tracker name is required")
	}

	creds, err := LoadCredentials(path)
	if err != nil {
		return err
	}
	creds[tracker] = cred

	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("could not encode credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("could not write credentials: %w", err)
	}
	return nil
}

// With returns a copy with tracker's login replaced when both halves are set.
func (c Credentials) With(tracker, username, password string) Credentials {
	out := make(Credentials, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	cred := models.Credential{Username: username, Password: password}
	if !cred.Empty() {
		out[tracker] = cred
	}
	return out
}
