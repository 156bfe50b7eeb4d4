// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"time"

	"github.com/autobrr/tsup/internal/models"
)

type Config struct {
	Version        string
	TorrServerURL  string `toml:"torrServerUrl" mapstructure:"torrServerUrl"`
	TorrServerPort int    `toml:"torrServerPort" mapstructure:"torrServerPort"`
	// Timeout is the per-request timeout in seconds.
	Timeout int    `toml:"timeout" mapstructure:"timeout"`
	Proxy   string `toml:"proxy" mapstructure:"proxy"`

	// Trackers lists the trackers reconciled when no tracker flag is given.
	Trackers       []string             `toml:"trackers" mapstructure:"trackers"`
	CustomTrackers []models.TrackerSpec `toml:"customTrackers" mapstructure:"customTrackers"`
	LitrccFeed     string               `toml:"litrccFeed" mapstructure:"litrccFeed"`
	Cleanup        bool                 `toml:"cleanup" mapstructure:"cleanup"`
	CleanupTracker string               `toml:"cleanupTracker" mapstructure:"cleanupTracker"`
	DryRun         bool                 `toml:"dryRun" mapstructure:"dryRun"`

	CredentialsFile string `toml:"credentialsFile" mapstructure:"credentialsFile"`

	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`

	MetricsFile string `toml:"metricsFile" mapstructure:"metricsFile"`
	LockFile    string `toml:"lockFile" mapstructure:"lockFile"`
}

func (c *Config) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}
