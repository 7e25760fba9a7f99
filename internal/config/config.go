// Package config reads the optional edugate profile. Command line flags and
// EDUGATE_* environment variables take precedence over anything set here.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const fileName = "config.yaml"

// Profile holds connection settings for a data service.
type Profile struct {
	BaseURL     string        `yaml:"baseURL"`
	LoginPath   string        `yaml:"loginPath"`
	LogoutPath  string        `yaml:"logoutPath"`
	ProfilePath string        `yaml:"profilePath"`
	TokenURL    string        `yaml:"tokenURL"`
	ClientID    string        `yaml:"clientID"`
	Scopes      []string      `yaml:"scopes"`
	AdminRoles  []string      `yaml:"adminRoles"`
	MaxIdle     time.Duration `yaml:"maxIdle"`
	Timeout     time.Duration `yaml:"timeout"`
	Cache       bool          `yaml:"cache"`
	CORSOrigins []string      `yaml:"corsOrigins"`
}

// DefaultPath returns ~/.edugate/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".edugate", fileName), nil
}

// Load reads the profile at path. A missing file yields an empty profile.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Profile{}, nil
		}
		return Profile{}, fmt.Errorf("failed to read config: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return p, nil
}

// Merge returns p with every non-zero field of override applied on top.
func (p Profile) Merge(override Profile) Profile {
	out := p

	setString(&out.BaseURL, override.BaseURL)
	setString(&out.LoginPath, override.LoginPath)
	setString(&out.LogoutPath, override.LogoutPath)
	setString(&out.ProfilePath, override.ProfilePath)
	setString(&out.TokenURL, override.TokenURL)
	setString(&out.ClientID, override.ClientID)

	if len(override.Scopes) > 0 {
		out.Scopes = override.Scopes
	}
	if len(override.AdminRoles) > 0 {
		out.AdminRoles = override.AdminRoles
	}
	if len(override.CORSOrigins) > 0 {
		out.CORSOrigins = override.CORSOrigins
	}
	if override.MaxIdle > 0 {
		out.MaxIdle = override.MaxIdle
	}
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	if override.Cache {
		out.Cache = true
	}

	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
