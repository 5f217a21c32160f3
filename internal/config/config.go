// Package config provides the settings for the NeonBoard exporter.
// It uses Viper to load settings from defaults, an optional config file and
// environment variables. An optional dotenv file is merged into the process
// environment first.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Stale policies applied to a source's instruments after it fails.
const (
	StaleZero   = "zero"
	StaleRetain = "retain"
	StaleDrop   = "drop"
)

// Config holds all runtime configuration for the exporter.
type Config struct {
	// ── Listener ─────────────────────────────────────────────────────────────
	ListenHost string `mapstructure:"listen_host"`
	Port       int    `mapstructure:"exporter_port"`

	// ── Tautulli ─────────────────────────────────────────────────────────────
	TautulliURL    string `mapstructure:"tautulli_url"`
	TautulliAPIKey string `mapstructure:"tautulli_api_key"`

	// ── qBittorrent ──────────────────────────────────────────────────────────
	QBitURL  string `mapstructure:"qbit_url"`
	QBitUser string `mapstructure:"qbit_user"`
	QBitPass string `mapstructure:"qbit_pass"`

	// MountCandidates translates qBittorrent's save path into a path visible
	// to this process. Order matters: the first prefix match wins.
	MountCandidates []string      `mapstructure:"download_mount_candidates"`
	MountFallback   string        `mapstructure:"download_fallback_path"`
	MountCacheTTL   time.Duration `mapstructure:"mount_cache_ttl"` // 0 = resolve every scrape

	// ── System ───────────────────────────────────────────────────────────────
	RootPath        string        `mapstructure:"root_path"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
	CPUSampleWindow time.Duration `mapstructure:"cpu_sample_window"`
	TopProcesses    int           `mapstructure:"top_processes"`
	StalePolicy     string        `mapstructure:"stale_policy"`

	// ── Logging ──────────────────────────────────────────────────────────────
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // console | json
}

// Load reads config from file (./config.yaml or ~/.neonboard/config.yaml)
// and falls back to defaults. Environment variables use the bare key name in
// upper case (TAUTULLI_URL, QBIT_USER, EXPORTER_PORT, ...). When envFile is
// non-empty it is loaded into the environment before anything else; variables
// already set in the environment win.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	v := viper.New()

	v.SetDefault("listen_host", "0.0.0.0")
	v.SetDefault("exporter_port", 9814)

	v.SetDefault("tautulli_url", "http://localhost:8181")
	v.SetDefault("tautulli_api_key", "")

	v.SetDefault("qbit_url", "")
	v.SetDefault("qbit_user", "")
	v.SetDefault("qbit_pass", "")
	v.SetDefault("download_mount_candidates", []string{
		"/mnt/local/downloads",
		"/downloads",
		"/mnt/qbit-downloads",
	})
	v.SetDefault("download_fallback_path", "/downloads")
	v.SetDefault("mount_cache_ttl", "0s")

	v.SetDefault("root_path", "/")
	v.SetDefault("upstream_timeout", "5s")
	v.SetDefault("cpu_sample_window", "1s")
	v.SetDefault("top_processes", 5)
	v.SetDefault("stale_policy", StaleZero)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.neonboard")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.MountCandidates = cleanList(cfg.MountCandidates)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the exporter cannot start with. Missing upstream
// credentials are not errors: the affected collector simply fails each pass.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("exporter_port %d out of range", c.Port)
	}
	if c.TopProcesses <= 0 {
		return fmt.Errorf("top_processes must be positive, got %d", c.TopProcesses)
	}
	switch c.StalePolicy {
	case StaleZero, StaleRetain, StaleDrop:
	default:
		return fmt.Errorf("unknown stale_policy %q (use %s, %s or %s)",
			c.StalePolicy, StaleZero, StaleRetain, StaleDrop)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream_timeout must be positive")
	}
	if c.CPUSampleWindow <= 0 {
		return fmt.Errorf("cpu_sample_window must be positive")
	}
	if c.MountCacheTTL < 0 {
		return fmt.Errorf("mount_cache_ttl must not be negative")
	}
	return nil
}

// Addr is the listen address for the scrape server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.Port)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

