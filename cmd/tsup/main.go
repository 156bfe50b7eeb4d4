// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/autobrr/tsup/internal/buildinfo"
	"github.com/autobrr/tsup/internal/config"
	"github.com/autobrr/tsup/internal/models"
	"github.com/autobrr/tsup/internal/update"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "tsup",
		Short: "Keep TorrServer series up to date with their trackers",
		Long: `tsup - replaces series torrents on a TorrServer with the newest release
published by rutor, nnmclub, torrent.by, kinozal or a litr.cc feed,
carrying viewed episodes over and removing the superseded torrents.`,
		SilenceUsage: true,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunCredentialsCommand())
	rootCmd.AddCommand(RunUpdateCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tsup",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
			cmd.Printf("commit: %s, built: %s\n", buildinfo.Commit, buildinfo.Date)
		},
	}

	return command
}

// resolveConfigFile maps --config-dir to the config file path.
func resolveConfigFile(configDir string) string {
	if configDir == "" {
		return filepath.Join(config.GetDefaultConfigDir(), "config.toml")
	}
	if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
		return configDir
	}
	if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
		return configDir
	}
	return filepath.Join(configDir, "config.toml")
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/tsup/config.toml
- Windows: %APPDATA%\tsup\config.toml

You can specify either a directory path or a direct file path:
- Directory: tsup generate-config --config-dir /path/to/config/
- File: tsup generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := resolveConfigFile(configDir)

			err := config.WriteDefaultConfig(configPath)
			if errors.Is(err, config.ErrConfigExists) {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func RunCredentialsCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "credentials",
		Short: "Manage tracker logins",
	}
	command.AddCommand(runCredentialsSetCommand())
	return command
}

func runCredentialsSetCommand() *cobra.Command {
	var configDir, credentialsFile, username, password string

	command := &cobra.Command{
		Use:   "set <tracker>",
		Short: "Store the login for a tracker",
		Long: `Store the login for a tracker in the credentials file.

The password is prompted for when --password is not given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(configDir, buildinfo.Version)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			path := credentialsFile
			if path == "" {
				path = cfg.CredentialsPath()
			}

			if username == "" {
				return errors.New("--username is required")
			}
			if password == "" {
				password, err = readPassword(fmt.Sprintf("Password for %s: ", args[0]))
				if err != nil {
					return err
				}
			}

			if err := config.SaveCredential(path, args[0], models.Credential{Username: username, Password: password}); err != nil {
				return err
			}

			cmd.Printf("Credentials for %s saved to %s\n", strings.ToLower(args[0]), path)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&credentialsFile, "credentials", "", "credentials file (default is credentials.yaml next to the config)")
	command.Flags().StringVar(&username, "username", "", "tracker username")
	command.Flags().StringVar(&password, "password", "", "tracker password (prompted when empty)")

	return command
}

func readPassword(prompt string) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	var password string
	if _, err := fmt.Scanln(&password); err != nil {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return password, nil
}

func RunUpdateCommand() *cobra.Command {
	var command = &cobra.Command{
		Use:                   "update",
		Short:                 "Update tsup",
		Long:                  `Update tsup to the latest version.`,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			updater := update.NewUpdater(update.Config{
				Repository: update.DefaultRepository,
				Version:    buildinfo.Version,
				Out:        cmd.OutOrStdout(),
			})
			return updater.Run(cmd.Context())
		},
	}

	command.SetUsageTemplate(`Usage:
  {{.CommandPath}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}
`)

	return command
}
