// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package update replaces the running binary with the latest GitHub release.
package update

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/creativeprojects/go-selfupdate"
)

const DefaultRepository = "autobrr/tsup"

type Config struct {
	Repository string
	Version    string
	// Out receives progress messages. Defaults to stdout.
	Out io.Writer
}

type Updater struct {
	config Config
}

func NewUpdater(config Config) *Updater {
	if config.Repository == "" {
		config.Repository = DefaultRepository
	}
	if config.Out == nil {
		config.Out = os.Stdout
	}
	return &Updater{
		config: config,
	}
}

// current validates the running version. Development builds are never
// replaced.
func (u *Updater) current() (*semver.Version, error) {
	v, err := semver.NewVersion(u.config.Version)
	if err != nil {
		return nil, fmt.Errorf("could not parse version: %w", err)
	}
	if v.Prerelease() == "dev" {
		return nil, fmt.Errorf("refusing to update development build %s", u.config.Version)
	}
	return v, nil
}

func (u *Updater) Run(ctx context.Context) error {
	if _, err := u.current(); err != nil {
		return err
	}

	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(u.config.Repository))
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest version for %s could not be found from github repository", u.config.Repository)
	}

	if latest.LessOrEqual(u.config.Version) {
		fmt.Fprintf(u.config.Out, "Current binary is the latest version: %s\n", u.config.Version)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}

	fmt.Fprintf(u.config.Out, "Successfully updated to version: %s\n", latest.Version())
	return nil
}
