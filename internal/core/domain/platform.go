package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Platform names for the built-in adapters.
const (
	PlatformLark  = "lark"
	PlatformSlack = "slack"
	PlatformGmail = "gmail"
)

// PlatformConfig configures one adapter instance. Several configs may exist
// for the same platform (one per workspace, tenant or mailbox set).
type PlatformConfig struct {
	// ID uniquely identifies this configuration. By convention it is
	// "<platform>-<suffix>" so a bare platform name resolves by prefix.
	ID string `json:"id" toml:"id"`

	// Platform is the adapter type this config drives.
	Platform string `json:"platform" toml:"platform"`

	// Name is a human-readable label ("Acme workspace").
	Name string `json:"name,omitempty" toml:"name,omitempty"`

	// Accounts lists the token IDs of the accounts searched under this
	// configuration.
	Accounts []string `json:"accounts" toml:"accounts"`

	// Settings carries adapter-specific options (endpoints, caps).
	Settings map[string]string `json:"settings,omitempty" toml:"settings,omitempty"`

	// Enabled excludes the config from loading when false.
	Enabled bool `json:"enabled" toml:"enabled"`
}

// NewConfigID generates a config ID carrying the platform-name prefix.
func NewConfigID(platform string) string {
	return fmt.Sprintf("%s-%s", platform, uuid.NewString()[:8])
}

// Validate checks the config is loadable.
func (c *PlatformConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: missing config id", ErrInvalidInput)
	}
	if c.Platform == "" {
		return fmt.Errorf("%w: missing platform", ErrInvalidInput)
	}
	if !strings.HasPrefix(c.ID, c.Platform) {
		return fmt.Errorf("%w: config id %q must be prefixed by platform %q", ErrInvalidInput, c.ID, c.Platform)
	}
	return nil
}

// UserInfo describes the authenticated user behind an account.
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}
