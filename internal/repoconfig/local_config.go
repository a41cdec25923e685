package repoconfig

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig is the subset of config.yaml a caller may need to read
// directly, bypassing viper — e.g. before the engine (and therefore Load)
// has been initialized, or when reading a different repository directory
// than the process default. Mirrors the teacher's internal/config.LocalConfig.
type LocalConfig struct {
	DefaultNamespace string `yaml:"default-namespace"`
	CacheSize        int    `yaml:"cache-size"`
}

// LoadLocalConfig reads config.yaml directly from repoDir. It returns an
// empty, non-nil LocalConfig if the file is absent or unparsable rather than
// an error, since callers use this for a best-effort early read.
func LoadLocalConfig(repoDir string) *LocalConfig {
	data, err := os.ReadFile(filepath.Join(repoDir, "config.yaml"))
	if err != nil {
		return &LocalConfig{}
	}
	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}
	return &cfg
}
