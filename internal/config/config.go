package config

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// DebounceMS is the quiet period before a changed document is analyzed.
	DebounceMS int `json:"debounceMs" yaml:"debounceMs" validate:"gte=0,lte=10000"`
	// Scan indexes the workspace folders at initialize.
	Scan bool `json:"scan" yaml:"scan"`
	// Watch turns file system events into watched-file changes, for clients
	// that don't send them.
	Watch bool `json:"watch" yaml:"watch"`
	// Cache keeps scanned symbols in a sqlite database between runs.
	Cache     bool   `json:"cache" yaml:"cache"`
	CachePath string `json:"cachePath" yaml:"cachePath"`
	// RescanSeconds rescans the workspace periodically; 0 disables it.
	RescanSeconds int      `json:"rescanSeconds" yaml:"rescanSeconds" validate:"gte=0"`
	Include       []string `json:"include" yaml:"include" validate:"min=1,dive,glob"`
	Exclude       []string `json:"exclude" yaml:"exclude" validate:"dive,glob"`
	// MaxConcurrentReads bounds the read-only requests running at once.
	MaxConcurrentReads int `json:"maxConcurrentReads" yaml:"maxConcurrentReads" validate:"gte=1,lte=256"`
}

var defaultConfig = Config{
	DebounceMS:         200,
	Scan:               true,
	Watch:              false,
	Cache:              false,
	Include:            []string{"**/*.dae"},
	Exclude:            []string{"**/.git/**", "**/node_modules/**"},
	MaxConcurrentReads: 8,
}

func Default() Config {
	cfg := defaultConfig
	cfg.Include = append([]string(nil), defaultConfig.Include...)
	cfg.Exclude = append([]string(nil), defaultConfig.Exclude...)
	return cfg
}

func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c Config) RescanInterval() time.Duration {
	return time.Duration(c.RescanSeconds) * time.Second
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("glob", func(fl validator.FieldLevel) bool {
		return doublestar.ValidatePattern(fl.Field().String())
	})
	return v
}

// Validate checks the value ranges and glob patterns of c.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Load overlays v, typically the client's initializationOptions, on the
// defaults.
func Load(v any) (Config, error) {
	return LoadOnto(Default(), v)
}

// LoadOnto overlays v on base. Only fields present in v overwrite.
func LoadOnto(base Config, v any) (Config, error) {
	cfg := base
	if v == nil {
		return cfg, cfg.Validate()
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Config{}, fmt.Errorf("failed to marshal source: %w", err)
	}
	if string(data) == "null" {
		return cfg, cfg.Validate()
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal into Config: %w", err)
	}

	return cfg, cfg.Validate()
}

// LoadFromYAML reads a YAML config file from r on top of the defaults.
func LoadFromYAML(r io.Reader) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("failed to decode YAML config: %w", err)
	}

	return cfg, cfg.Validate()
}
