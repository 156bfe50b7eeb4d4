// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

// Credential is a tracker login.
type Credential struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// Empty reports whether either half of the login is missing.
func (c Credential) Empty() bool {
	return c.Username == "" || c.Password == ""
}
