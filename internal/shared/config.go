package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Sync        SyncConfig        `toml:"sync"`
	Safety      SafetyConfig      `toml:"safety"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// SyncConfig contains tunables for the sync engine: concurrency bounds,
// matching thresholds, and the retry policy for remote calls.
type SyncConfig struct {
	MaxGlobalConcurrency     int     `toml:"max_global_concurrency"`
	MaxPerAdapterConcurrency int     `toml:"max_per_adapter_concurrency"`
	DefaultMode              string  `toml:"default_mode"`
	MatchAutoThreshold       float64 `toml:"match_auto_threshold"`
	MatchCandidateThreshold  float64 `toml:"match_candidate_threshold"`
	RetryMaxAttempts         int     `toml:"retry_max_attempts"`
	RetryBaseDelayMS         int     `toml:"retry_base_delay_ms"`
	RetryJitterRatio         float64 `toml:"retry_jitter_ratio"`
}

// SafetyConfig controls the safety gate's test-mode policy.
type SafetyConfig struct {
	TestMode     bool     `toml:"test_mode"`
	TestPrefixes []string `toml:"test_prefixes"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyDefaults()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyDefaults fills zero values with the documented defaults so a
// partial config file stays usable.
func (c *Config) applyDefaults() {
	if c.Sync.MaxGlobalConcurrency <= 0 {
		c.Sync.MaxGlobalConcurrency = 2
	}
	if c.Sync.MaxPerAdapterConcurrency <= 0 {
		c.Sync.MaxPerAdapterConcurrency = 1
	}
	if c.Sync.DefaultMode == "" {
		c.Sync.DefaultMode = "full_bidirectional"
	}
	if c.Sync.MatchAutoThreshold == 0 {
		c.Sync.MatchAutoThreshold = 0.82
	}
	if c.Sync.MatchCandidateThreshold == 0 {
		c.Sync.MatchCandidateThreshold = 0.60
	}
	if c.Sync.RetryMaxAttempts <= 0 {
		c.Sync.RetryMaxAttempts = 5
	}
	if c.Sync.RetryBaseDelayMS <= 0 {
		c.Sync.RetryBaseDelayMS = 250
	}
	if c.Sync.RetryJitterRatio == 0 {
		c.Sync.RetryJitterRatio = 0.2
	}
	if len(c.Safety.TestPrefixes) == 0 {
		c.Safety.TestPrefixes = []string{"🧪", "[TEST]", "SELECTA_TEST_"}
	}
	if c.Database.Path == "" {
		c.Database.Path = "syncta.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 1
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 1
	}
}
