package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/types"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
default_ttl: 2m
layer_ttls: ["30s", "10m"]
early_refresh_threshold: 45s
min_refresh_interval: 15s
max_concurrent_early_refreshes: 4
ttl_jitter_fraction: 0.2
promotion_policy: first_layer_only
stale_key_cleanup_interval: 5m
stale_threshold: 30m
max_retries: 5
retry_base_delay: 50ms
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	var opts Options[string, string]
	ApplyConfig(cfg, &opts)

	if opts.DefaultTTL != 2*time.Minute {
		t.Errorf("DefaultTTL = %v, want 2m", opts.DefaultTTL)
	}
	if len(opts.LayerTTLs) != 2 || opts.LayerTTLs[0] != 30*time.Second || opts.LayerTTLs[1] != 10*time.Minute {
		t.Errorf("LayerTTLs = %v", opts.LayerTTLs)
	}
	if opts.EarlyRefreshThreshold != 45*time.Second {
		t.Errorf("EarlyRefreshThreshold = %v", opts.EarlyRefreshThreshold)
	}
	if opts.MinRefreshInterval != 15*time.Second {
		t.Errorf("MinRefreshInterval = %v", opts.MinRefreshInterval)
	}
	if opts.MaxConcurrentEarlyRefreshes != 4 {
		t.Errorf("MaxConcurrentEarlyRefreshes = %d", opts.MaxConcurrentEarlyRefreshes)
	}
	if opts.TTLJitterFraction != 0.2 {
		t.Errorf("TTLJitterFraction = %f", opts.TTLJitterFraction)
	}
	if opts.Promotion != types.PromoteFirstLayerOnly {
		t.Errorf("Promotion = %v", opts.Promotion)
	}
	if opts.StaleThreshold != 30*time.Minute {
		t.Errorf("StaleThreshold = %v", opts.StaleThreshold)
	}
	if opts.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", opts.MaxRetries)
	}
	if opts.RetryBaseDelay != 50*time.Millisecond {
		t.Errorf("RetryBaseDelay = %v", opts.RetryBaseDelay)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/cache.yaml")
	if errors.GetCode(err) != errors.ErrCodeConfigLoad {
		t.Errorf("err = %v, want CONFIG_LOAD", err)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "default_ttl: [broken")
	_, err := LoadConfig(path)
	if errors.GetCode(err) != errors.ErrCodeConfigLoad {
		t.Errorf("err = %v, want CONFIG_LOAD", err)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		path := writeConfigFile(t, "default_ttl: soon")
		_, err := LoadConfig(path)
		if errors.GetCode(err) != errors.ErrCodeConfigValidation {
			t.Errorf("err = %v, want CONFIG_VALIDATION", err)
		}
	})

	t.Run("jitter out of range", func(t *testing.T) {
		path := writeConfigFile(t, "ttl_jitter_fraction: 1.5")
		_, err := LoadConfig(path)
		if errors.GetCode(err) != errors.ErrCodeConfigValidation {
			t.Errorf("err = %v, want CONFIG_VALIDATION", err)
		}
	})
}

func TestApplyConfigLeavesUnsetFieldsAlone(t *testing.T) {
	opts := Options[string, string]{
		DefaultTTL: 7 * time.Minute,
		MaxRetries: 9,
	}
	ApplyConfig(&Config{MinRefreshInterval: "10s"}, &opts)

	if opts.DefaultTTL != 7*time.Minute {
		t.Errorf("unset config field overwrote DefaultTTL: %v", opts.DefaultTTL)
	}
	if opts.MaxRetries != 9 {
		t.Errorf("unset config field overwrote MaxRetries: %d", opts.MaxRetries)
	}
	if opts.MinRefreshInterval != 10*time.Second {
		t.Errorf("set config field not applied: %v", opts.MinRefreshInterval)
	}
}
