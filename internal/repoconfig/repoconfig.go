// Package repoconfig carries the engine's process-wide tunables: a cache
// size hint, a default namespace and a default CheckOption set. It only
// loads these values; no other package in this module reads them, so they
// do not change how the cache, name resolution or batched operations
// behave. Values are read through viper so a
// config file, environment variables and explicit defaults layer the same
// way the teacher's CLI configuration does.
package repoconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "CONTENTREPO"

// Config holds the engine-wide settings resolved at startup.
type Config struct {
	// CacheSize is the configured item-count hint for the session item
	// cache (component G). internal/cache does not read it and applies no
	// size limit.
	CacheSize int

	// DefaultNamespace is the configured namespace for unqualified
	// QualifiedNames. Name resolution in this module does not read it.
	DefaultNamespace string

	// DefaultCheckOptions is a configured bitwise-OR CheckOption set (see
	// internal/ops). internal/ops does not read it; its operations use the
	// options they are passed. Stored as a plain int to keep this package free of an internal/ops
	// import; callers cast it to ops.CheckOption.
	DefaultCheckOptions int
}

// Load resolves Config from defaults, an optional config.yaml/config.toml
// found on configPaths, and CONTENTREPO_-prefixed environment overrides, in
// that order of increasing precedence.
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("cache-size", 4096)
	v.SetDefault("default-namespace", "")
	v.SetDefault("default-check-options", defaultCheckAll)

	v.SetConfigName("config")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	if len(configPaths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("repoconfig: reading config file: %w", err)
			}
		}
	}

	return &Config{
		CacheSize:           v.GetInt("cache-size"),
		DefaultNamespace:    v.GetString("default-namespace"),
		DefaultCheckOptions: v.GetInt("default-check-options"),
	}, nil
}

// defaultCheckAll mirrors ops.CheckAll (CheckAccess|CheckLock|
// CheckVersioning|CheckConstraints|CheckReferences == 1|2|4|8|16) without
// importing internal/ops, so repoconfig stays a leaf package.
const defaultCheckAll = 1 | 2 | 4 | 8 | 16
