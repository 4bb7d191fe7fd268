// Package config loads the TOML configuration shared by both services,
// applies environment overrides, and validates the result.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/openshift/cincinnati/internal/plugin"
	cincerrors "github.com/openshift/cincinnati/pkg/errors"
)

// Defaults applied when the configuration omits a value.
const (
	DefaultServiceAddress    = "0.0.0.0"
	DefaultServicePort       = 8080
	DefaultStatusPort        = 9080
	DefaultPauseSecs         = 30
	DefaultScrapeTimeoutSecs = 300
)

// Service configures the main listener and the service loop.
type Service struct {
	Address           string `mapstructure:"address" validate:"required"`
	Port              int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	PathPrefix        string `mapstructure:"path_prefix"`
	PauseSecs         int    `mapstructure:"pause_secs" validate:"gte=0"`
	ScrapeTimeoutSecs int    `mapstructure:"scrape_timeout_secs" validate:"gte=0"`
	TracingEndpoint   string `mapstructure:"tracing_endpoint"`
}

// Status configures the status listener serving liveness, readiness and
// metrics.
type Status struct {
	Address string `mapstructure:"address" validate:"required"`
	Port    int    `mapstructure:"port" validate:"gt=0,lte=65535"`
}

// NamedSettings is one plugin_settings entry: the plugin name plus its
// options, all stringly typed.
type NamedSettings struct {
	Name     string
	Settings plugin.Settings
}

// Config is the parsed configuration of either service.
type Config struct {
	Service        Service                  `mapstructure:"service"`
	Status         Status                   `mapstructure:"status"`
	PluginSettings []map[string]interface{} `mapstructure:"plugin_settings"`
}

// envKeys are the scalar keys that accept <PREFIX>_<TABLE>_<KEY>
// environment overrides.
var envKeys = []string{
	"service.address",
	"service.port",
	"service.path_prefix",
	"service.pause_secs",
	"service.scrape_timeout_secs",
	"service.tracing_endpoint",
	"status.address",
	"status.port",
}

// Load reads the TOML file at path. Environment variables of the form
// <envPrefix>_<TABLE>_<KEY> override file values.
func Load(path, envPrefix string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetDefault("service.address", DefaultServiceAddress)
	v.SetDefault("service.port", DefaultServicePort)
	v.SetDefault("service.path_prefix", "/")
	v.SetDefault("service.pause_secs", DefaultPauseSecs)
	v.SetDefault("service.scrape_timeout_secs", DefaultScrapeTimeoutSecs)
	v.SetDefault("status.address", DefaultServiceAddress)
	v.SetDefault("status.port", DefaultStatusPort)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, cincerrors.NewValidationError(key, "binding environment override", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, cincerrors.NewParseError(path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, cincerrors.NewParseError(path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) && len(invalid) > 0 {
			first := invalid[0]
			return cincerrors.NewValidationError(first.Namespace(), fmt.Sprintf("failed %q constraint", first.Tag()), err)
		}
		return cincerrors.NewValidationError("", "configuration invalid", err)
	}

	for i, raw := range c.PluginSettings {
		if _, ok := raw["name"]; !ok {
			return cincerrors.NewValidationError(
				fmt.Sprintf("plugin_settings[%d]", i), "missing plugin name", nil)
		}
	}

	if !strings.HasPrefix(c.Service.PathPrefix, "/") {
		return cincerrors.NewValidationError("service.path_prefix", "must start with /", nil)
	}
	return nil
}

// Plugins converts the raw plugin_settings tables into named settings, in
// declaration order.
func (c *Config) Plugins() ([]NamedSettings, error) {
	out := make([]NamedSettings, 0, len(c.PluginSettings))
	for i, raw := range c.PluginSettings {
		entry := NamedSettings{Settings: plugin.Settings{}}
		for key, value := range raw {
			text := fmt.Sprintf("%v", value)
			if key == "name" {
				entry.Name = text
				continue
			}
			entry.Settings[key] = text
		}
		if entry.Name == "" {
			return nil, cincerrors.NewValidationError(
				fmt.Sprintf("plugin_settings[%d]", i), "missing plugin name", nil)
		}
		out = append(out, entry)
	}
	return out, nil
}
