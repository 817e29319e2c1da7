package cache

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
)

// Config is the file-loadable configuration for a Manager. Durations
// are strings in Go duration syntax ("5m", "100ms"). Layers, loader,
// and writer are code and stay on Options; ApplyConfig copies the scalar
// knobs over.
type Config struct {
	DefaultTTL                  string   `yaml:"default_ttl"`
	LayerTTLs                   []string `yaml:"layer_ttls"`
	EarlyRefreshThreshold       string   `yaml:"early_refresh_threshold"`
	MinRefreshInterval          string   `yaml:"min_refresh_interval"`
	MaxConcurrentEarlyRefreshes int64    `yaml:"max_concurrent_early_refreshes"`
	TTLJitterFraction           float64  `yaml:"ttl_jitter_fraction"`
	PromotionPolicy             string   `yaml:"promotion_policy"`
	StaleKeyCleanupInterval     string   `yaml:"stale_key_cleanup_interval"`
	StaleThreshold              string   `yaml:"stale_threshold"`
	MaxRetries                  int      `yaml:"max_retries"`
	RetryBaseDelay              string   `yaml:"retry_base_delay"`
}

// LoadConfig reads and validates a YAML config file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to read config file", err).
			WithContext("path", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to parse config file", err).
			WithContext("path", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every duration field and the jitter bounds
func (c *Config) Validate() error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"default_ttl", c.DefaultTTL},
		{"early_refresh_threshold", c.EarlyRefreshThreshold},
		{"min_refresh_interval", c.MinRefreshInterval},
		{"stale_key_cleanup_interval", c.StaleKeyCleanupInterval},
		{"stale_threshold", c.StaleThreshold},
		{"retry_base_delay", c.RetryBaseDelay},
	} {
		if _, err := parseDuration(field.value); err != nil {
			return errors.Newf(errors.ErrCodeConfigValidation, "invalid duration for %s: %q", field.name, field.value)
		}
	}
	for _, ttl := range c.LayerTTLs {
		if _, err := parseDuration(ttl); err != nil {
			return errors.Newf(errors.ErrCodeConfigValidation, "invalid layer ttl: %q", ttl)
		}
	}
	if c.TTLJitterFraction < 0 || c.TTLJitterFraction > 1 {
		return errors.New(errors.ErrCodeConfigValidation, "ttl_jitter_fraction must be in [0,1]")
	}
	return nil
}

// ApplyConfig copies cfg's scalar knobs onto opts. Unset fields leave
// the option untouched so option-level defaults still apply. Durations
// were validated by LoadConfig/Validate; parse errors here are ignored.
func ApplyConfig[K comparable, V any](cfg *Config, opts *Options[K, V]) {
	setDuration := func(dst *time.Duration, value string) {
		if value == "" {
			return
		}
		if d, err := parseDuration(value); err == nil {
			*dst = d
		}
	}

	setDuration(&opts.DefaultTTL, cfg.DefaultTTL)
	setDuration(&opts.EarlyRefreshThreshold, cfg.EarlyRefreshThreshold)
	setDuration(&opts.MinRefreshInterval, cfg.MinRefreshInterval)
	setDuration(&opts.StaleKeyCleanupInterval, cfg.StaleKeyCleanupInterval)
	setDuration(&opts.StaleThreshold, cfg.StaleThreshold)
	setDuration(&opts.RetryBaseDelay, cfg.RetryBaseDelay)

	if len(cfg.LayerTTLs) > 0 {
		ttls := make([]time.Duration, 0, len(cfg.LayerTTLs))
		for _, s := range cfg.LayerTTLs {
			d, _ := parseDuration(s)
			ttls = append(ttls, d)
		}
		opts.LayerTTLs = ttls
	}

	if cfg.PromotionPolicy != "" {
		opts.Promotion = types.ParsePromotionPolicy(cfg.PromotionPolicy)
	}
	if cfg.MaxConcurrentEarlyRefreshes > 0 {
		opts.MaxConcurrentEarlyRefreshes = cfg.MaxConcurrentEarlyRefreshes
	}
	if cfg.TTLJitterFraction > 0 {
		opts.TTLJitterFraction = cfg.TTLJitterFraction
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
