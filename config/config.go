package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/beanbocchi/stowage/pkg/validator"
)

// EnvPrefix prefixes every environment override, e.g.
// STOWAGE_OBJECTSTORE_BUCKET for objectstore.bucket.
const EnvPrefix = "STOWAGE"

var defaults = map[string]any{
	"env":                        "development",
	"log.level":                  "info",
	"log.format":                 "text",
	"log.addSource":              false,
	"server.addr":                ":8080",
	"server.shutdownTimeout":     "10s",
	"credential.tenancyId":       "",
	"credential.userId":          "",
	"credential.keyFingerprint":  "",
	"credential.privateKey":      "",
	"credential.privateKeyPath":  "",
	"credential.region":          "",
	"objectstore.namespace":      "",
	"objectstore.bucket":         "",
	"objectstore.prefix":         "",
	"objectstore.endpoint":       "",
	"objectstore.partSize":       8 << 20,
	"objectstore.abortOnFailure": false,
	"objectstore.timeout":        "0s",
	"objectstore.cache.enabled":  false,
	"objectstore.cache.root":     "./data/cache",
	"objectstore.cache.maxSize":  1024,
	"journal.path":               "./data/journal.db",
}

// Load reads the YAML file at path, if any, then applies environment
// overrides and validates the result. A .env file in the working directory
// is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.Validate(cfg); err != nil {
		return nil, err
	}

	if cfg.Credential.PrivateKey == "" {
		key, err := os.ReadFile(cfg.Credential.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		cfg.Credential.PrivateKey = string(key)
	}

	return &cfg, nil
}

var (
	once     sync.Once
	instance *Config
)

// GetConfig loads the config named by STOWAGE_CONFIG (default config.yaml)
// on first use and panics if it is invalid.
func GetConfig() *Config {
	once.Do(func() {
		path := os.Getenv(EnvPrefix + "_CONFIG")
		if path == "" {
			path = "config.yaml"
		}

		cfg, err := Load(path)
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
		instance = cfg
	})
	return instance
}
