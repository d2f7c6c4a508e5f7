package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/enginegate/pkg/adapters/process"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ENGINEGATE_"

// DefaultPath is read when no --config flag is given.
const DefaultPath = "enginegate.yaml"

// Config is the launcher configuration.
type Config struct {
	process.Config `mapstructure:",squash"`

	LogLevel   string `mapstructure:"log_level"`
	StatusAddr string `mapstructure:"status_addr"`

	Demo  DemoConfig  `mapstructure:"demo"`
	Redis RedisConfig `mapstructure:"redis"`
}

// DemoConfig controls where demo recordings go.
type DemoConfig struct {
	// Dir is used by the file store. Ignored when Redis is configured.
	Dir string        `mapstructure:"dir"`
	TTL time.Duration `mapstructure:"ttl"`
	// Key is a hex AES-256 key; when set recordings are encrypted at rest.
	Key          string   `mapstructure:"key"`
	FallbackKeys []string `mapstructure:"fallback_keys"`
}

// RedisConfig enables the Redis demo store and the cross-process engine lock.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Config:   process.Config{Executable: process.DefaultExecutable},
		LogLevel: "info",
		Demo: DemoConfig{
			Dir: filepath.Join(".enginegate", "demos"),
		},
		Redis: RedisConfig{
			Prefix:  "enginegate:",
			LockTTL: 30 * time.Second,
		},
	}
}

// envKeys maps environment variables onto config keys.
var envKeys = map[string][]string{
	"BIN_DIR":        {"bin_dir"},
	"EXECUTABLE":     {"executable"},
	"DEV_BUILD":      {"dev_build"},
	"LOG_LEVEL":      {"log_level"},
	"STATUS_ADDR":    {"status_addr"},
	"DEMO_DIR":       {"demo", "dir"},
	"DEMO_TTL":       {"demo", "ttl"},
	"DEMO_KEY":       {"demo", "key"},
	"REDIS_ADDR":     {"redis", "addr"},
	"REDIS_PASSWORD": {"redis", "password"},
	"REDIS_DB":       {"redis", "db"},
	"REDIS_PREFIX":   {"redis", "prefix"},
	"REDIS_LOCK_TTL": {"redis", "lock_ttl"},
}

// Load reads path (YAML, or JSON by extension), applies ENGINEGATE_* overrides and decodes
// the result over Default(). A missing file is not an error.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	raw := map[string]any{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := unmarshal(path, data, &raw); err != nil {
				return Config{}, err
			}
		}
	}

	for env, keys := range envKeys {
		if v, ok := lookup(EnvPrefix + env); ok {
			set(raw, keys, v)
		}
	}

	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func unmarshal(path string, data []byte, out *map[string]any) error {
	var err error
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, out)
	} else {
		err = yaml.Unmarshal(data, out)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	// An empty YAML document or a JSON null leaves no map to overlay env values on.
	if *out == nil {
		*out = map[string]any{}
	}
	return nil
}

func set(m map[string]any, keys []string, v string) {
	for _, k := range keys[:len(keys)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[k] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = v
}
