package config

import (
	"errors"
	"time"
)

// Config holds runtime settings for the ClipSmart popup.
//
// Fields fall into three groups: the payment service (ExtensionID,
// APIBaseURL, Development), the storage tiers (LocalDSN plus the Sync*
// fields for the propagating backend), and the free-plan limits.
type Config struct {
	// ExtensionID identifies this extension on the payment service.
	ExtensionID string
	// APIBaseURL is the payment service origin.
	APIBaseURL string
	// Development requests test-mode credentials from the payment service.
	Development bool

	// LocalDSN is the sqlite path of the device-local tier.
	LocalDSN string

	// Sync* configure the propagating tier. An empty SyncBucket disables
	// the tier and the store runs local-only.
	SyncRegion    string
	SyncBucket    string
	SyncPrefix    string
	SyncEndpoint  string
	SyncAccessKey string
	SyncSecretKey string

	// FreeItemLimit caps how many history items non-entitled users see.
	FreeItemLimit int
	// FreeTranslationLimit caps translations per calendar month for
	// non-entitled users.
	FreeTranslationLimit int

	// PollInterval and PollAttempts bound the post-checkout payment poll.
	PollInterval time.Duration
	PollAttempts int
	// RecheckInterval is how often the open popup re-verifies entitlement.
	RecheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "https://extensionpay.com"
	c.LocalDSN = "clipsmart.db"
	c.SyncRegion = "us-east-1"
	c.FreeItemLimit = 20
	c.FreeTranslationLimit = 5
	c.PollInterval = 1 * time.Second
	c.PollAttempts = 120
	c.RecheckInterval = 5 * time.Second
}

// Validate reports configuration that cannot possibly work.
func (c *Config) Validate() error {
	if c.ExtensionID == "" {
		return errors.New("extension id is not configured")
	}
	if c.APIBaseURL == "" {
		return errors.New("api base url is not configured")
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment (including an optional .env file), a JSON file (if present)
// and command-line flags (if present). Later sources take precedence over
// earlier ones.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
