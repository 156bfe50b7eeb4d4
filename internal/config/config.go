// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/autobrr/tsup/internal/domain"
	"github.com/autobrr/tsup/internal/models"
)

var envPrefix = "TSUP__"

// ErrConfigExists is returned by WriteDefaultConfig when the file is present.
var ErrConfigExists = errors.New("config file already exists")

type AppConfig struct {
	Config  *domain.Config
	viper   *viper.Viper
	version string
}

// New loads configuration from configDirOrPath (a directory holding
// config.toml, or the file itself). A missing file is not an error: defaults
// and environment variables still apply.
func New(configDirOrPath string, versions ...string) (*AppConfig, error) {
	version := "dev"
	if len(versions) > 0 && strings.TrimSpace(versions[0]) != "" {
		version = versions[0]
	}

	c := &AppConfig{
		viper:   viper.New(),
		Config:  &domain.Config{},
		version: version,
	}

	c.defaults()

	if err := c.load(configDirOrPath); err != nil {
		return nil, err
	}

	if err := c.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	c.Config.Version = c.version

	return c, nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("torrServerUrl", "http://127.0.0.1")
	c.viper.SetDefault("torrServerPort", 8090)
	c.viper.SetDefault("timeout", 10)
	c.viper.SetDefault("proxy", "")
	c.viper.SetDefault("trackers", []string{})
	c.viper.SetDefault("litrccFeed", "")
	c.viper.SetDefault("cleanup", false)
	c.viper.SetDefault("cleanupTracker", models.TrackerRutor)
	c.viper.SetDefault("dryRun", false)
	c.viper.SetDefault("credentialsFile", "")
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)
	c.viper.SetDefault("metricsFile", "")
	c.viper.SetDefault("lockFile", "")
}

func (c *AppConfig) load(configDirOrPath string) error {
	c.viper.SetConfigType("toml")

	if configDirOrPath != "" {
		configPath := c.resolveConfigPath(configDirOrPath)
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", configPath).Msg("no config file, using defaults")
			return nil
		}

		c.viper.SetConfigFile(configPath)
		if err := c.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}

	c.viper.SetConfigName("config")
	c.viper.AddConfigPath(".")
	c.viper.AddConfigPath(GetDefaultConfigDir())

	if err := c.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Debug().Msg("no config file found, using defaults")
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	return nil
}

func (c *AppConfig) loadFromEnv() error {
	// Only explicit bindings; AutomaticEnv would pick up unrelated variables.
	c.viper.BindEnv("torrServerUrl", envPrefix+"TORRSERVER_URL")
	c.viper.BindEnv("torrServerPort", envPrefix+"TORRSERVER_PORT")
	c.viper.BindEnv("timeout", envPrefix+"TIMEOUT")
	c.viper.BindEnv("proxy", envPrefix+"PROXY")
	c.viper.BindEnv("trackers", envPrefix+"TRACKERS")
	c.viper.BindEnv("cleanup", envPrefix+"CLEANUP")
	c.viper.BindEnv("cleanupTracker", envPrefix+"CLEANUP_TRACKER")
	c.viper.BindEnv("dryRun", envPrefix+"DRY_RUN")
	c.viper.BindEnv("credentialsFile", envPrefix+"CREDENTIALS_FILE")
	c.viper.BindEnv("logLevel", envPrefix+"LOG_LEVEL")
	c.viper.BindEnv("logPath", envPrefix+"LOG_PATH")
	c.viper.BindEnv("logMaxSize", envPrefix+"LOG_MAX_SIZE")
	c.viper.BindEnv("logMaxBackups", envPrefix+"LOG_MAX_BACKUPS")
	c.viper.BindEnv("metricsFile", envPrefix+"METRICS_FILE")
	c.viper.BindEnv("lockFile", envPrefix+"LOCK_FILE")

	return c.bindOrReadFromFile("litrccFeed", "LITRCC_FEED")
}

// bindOrReadFromFile reads viperVar from the file named by <prefix><env>_FILE
// when set, otherwise binds <prefix><env>.
func (c *AppConfig) bindOrReadFromFile(viperVar, env string) error {
	fileEnv := envPrefix + env + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("could not read %s: %w", fileEnv, err)
		}
		c.viper.Set(viperVar, strings.TrimSpace(string(content)))
		return nil
	}
	return c.viper.BindEnv(viperVar, envPrefix+env)
}

// TrackerTable returns the built-in trackers with customTrackers applied on
// top. A custom entry reusing a built-in name replaces it.
func (c *AppConfig) TrackerTable() (*models.TrackerTable, error) {
	specs := append(models.DefaultTrackers(), c.Config.CustomTrackers...)
	table, err := models.NewTrackerTable(specs...)
	if err != nil {
		return nil, fmt.Errorf("invalid tracker configuration: %w", err)
	}
	return table, nil
}

// CredentialsPath returns the credentials file, defaulting to
// credentials.yaml next to the config file.
func (c *AppConfig) CredentialsPath() string {
	if c.Config.CredentialsFile != "" {
		return c.Config.CredentialsFile
	}
	return filepath.Join(c.GetConfigDir(), "credentials.yaml")
}

// GetConfigDir returns the directory containing the config file.
func (c *AppConfig) GetConfigDir() string {
	if used := c.viper.ConfigFileUsed(); used != "" {
		return filepath.Dir(used)
	}
	return GetDefaultConfigDir()
}

// resolveConfigPath determines the config file path from a directory or file path.
func (c *AppConfig) resolveConfigPath(configDirOrPath string) string {
	if strings.HasSuffix(strings.ToLower(configDirOrPath), ".toml") {
		return configDirOrPath
	}

	if info, err := os.Stat(configDirOrPath); err == nil && !info.IsDir() {
		return configDirOrPath
	}

	return filepath.Join(configDirOrPath, "config.toml")
}

const configTemplate = `# config.toml - tsup configuration

# TorrServer address
# Default: "http://127.0.0.1"
torrServerUrl = "{{ .torrServerUrl }}"

# TorrServer port, replaces any port in torrServerUrl
# Default: 8090
torrServerPort = {{ .torrServerPort }}

# Per-request timeout in seconds
# Default: {{ .timeout }}
timeout = {{ .timeout }}

# Proxy for tracker and feed requests (http, https or socks5)
# Optional
#proxy = "socks5://127.0.0.1:1080"

# Trackers checked when no tracker flag is given
# Options: "rutor", "nnmclub", "torrentby", "kinozal" and any custom tracker name
#trackers = ["rutor", "nnmclub"]

# litr.cc feed uuid
# Optional
#litrccFeed = ""

# Remove duplicate torrents of one series before checking trackers.
# WARNING: destructive, only the torrent with the most episodes is kept.
# Default: false
#cleanup = false

# Tracker whose item ids group duplicates for cleanup
# Default: "{{ .cleanupTracker }}"
#cleanupTracker = "{{ .cleanupTracker }}"

# Log the decisions without changing anything on the server
# Default: false
#dryRun = false

# Tracker logins, YAML mapping tracker name to username/password
# Default: credentials.yaml next to this file
#credentialsFile = ""

# Log file path
# If not defined, logs to stderr
# Optional
#logPath = "log/tsup.log"

# Log rotation
# Maximum log file size in megabytes before rotation
# Default: {{ .logMaxSize }}
#logMaxSize = {{ .logMaxSize }}

# Number of rotated log files to retain (0 keeps all)
# Default: {{ .logMaxBackups }}
#logMaxBackups = {{ .logMaxBackups }}

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "{{ .logLevel }}"

# Write run metrics in Prometheus text format, for the node_exporter textfile collector
# Optional
#metricsFile = "/var/lib/node_exporter/tsup.prom"

# Refuse to start while another run holds this lock
# Optional
#lockFile = "/tmp/tsup.lock"

# Additional trackers
#[[customTrackers]]
#name = "mytracker"
#domains = ["tracker.example.org"]
#separator = "/"
#pageUrl = "https://tracker.example.org/torrent/{id}"
#variant = "pattern"
#titlePattern = "<h1>(.*?)</h1>"
#hashPattern = "magnet:\\?xt=urn:btih:([a-fA-F0-9]{40})"
`

func (c *AppConfig) writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	data := map[string]any{
		"torrServerUrl":  c.viper.GetString("torrServerUrl"),
		"torrServerPort": c.viper.GetInt("torrServerPort"),
		"timeout":        c.viper.GetInt("timeout"),
		"cleanupTracker": c.viper.GetString("cleanupTracker"),
		"logLevel":       c.viper.GetString("logLevel"),
		"logMaxSize":     c.viper.GetInt("logMaxSize"),
		"logMaxBackups":  c.viper.GetInt("logMaxBackups"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info().Msgf("Created default config file: %s", path)
	return nil
}

// WriteDefaultConfig writes a commented config file with default values.
func WriteDefaultConfig(path string) error {
	c := &AppConfig{
		viper: viper.New(),
	}

	c.defaults()

	return c.writeDefaultConfig(path)
}

// GetDefaultConfigDir returns the OS-specific config directory
func GetDefaultConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		// Containers mount the config volume at /config.
		if xdgConfig == "/config" {
			return xdgConfig
		}
		return filepath.Join(xdgConfig, "tsup")
	}

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "tsup")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "tsup")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "tsup")
	}
}

// ApplyLogConfig configures the global logger from the loaded config.
func (c *AppConfig) ApplyLogConfig() {
	zerolog.TimeFieldFormat = time.RFC3339

	setLogLevel(c.Config.LogLevel)

	writer := baseLogWriter(c.version)

	if c.Config.LogPath != "" {
		multiWriter, err := setupLogFile(c.Config.LogPath, writer, c.Config.LogMaxSize, c.Config.LogMaxBackups)
		if err != nil {
			log.Error().Err(err).Msg("Failed to setup log file")
		} else {
			writer = multiWriter
		}
	}

	log.Logger = log.Logger.Output(writer)
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Logger.Level(lvl)
}

func setupLogFile(path string, base io.Writer, maxSize, maxBackups int) (io.Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if maxSize <= 0 {
		maxSize = 50
	}

	if maxBackups < 0 {
		maxBackups = 0
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}

	return io.MultiWriter(base, rotator), nil
}

// baseLogWriter pretty-prints for dev builds and interactive terminals and
// writes JSON otherwise, which is what cron and journald see.
func baseLogWriter(version string) io.Writer {
	if isDevBuild(version) || isTerminal(os.Stderr) {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		writer.PartsOrder = []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName}
		writer.FormatMessage = func(i any) string {
			if i == nil {
				return ""
			}
			return strings.TrimSpace(fmt.Sprint(i))
		}
		return writer
	}
	return os.Stderr
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DefaultLogWriter returns the base log writer for the provided version.
func DefaultLogWriter(version string) io.Writer {
	return baseLogWriter(version)
}

// InitDefaultLogger configures zerolog with the default writer for this version.
// This is used by CLI entry points before a configuration file is loaded.
func InitDefaultLogger(version string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Logger.Output(DefaultLogWriter(version))
}

func isDevBuild(version string) bool {
	v := strings.ToLower(strings.TrimSpace(version))
	return v == "" || v == "dev" || strings.HasSuffix(v, "-dev")
}
