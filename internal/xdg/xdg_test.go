// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package xdg

import "testing"

func TestConfigDir(t *testing.T) {
	tests := []struct {
		name       string
		configHome string
		want       string
	}{
		{"env var", "/custom/config", "/custom/config/codebot"},
		{"default", "", "/home/testuser/.config/codebot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_CONFIG_HOME", tt.configHome)
			t.Setenv("HOME", "/home/testuser")

			if got := ConfigDir(); got != tt.want {
				t.Errorf("ConfigDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	want := "/custom/config/codebot/config.yaml"
	if got := ConfigFile(); got != want {
		t.Errorf("ConfigFile() = %q, want %q", got, want)
	}
}
