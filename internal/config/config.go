// Package config loads msgxref settings from an optional YAML file,
// MSGXREF_ environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jward/msgxref/internal/logging"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// FileName is the configuration file looked up in the target directory.
const FileName = ".msgxref.yaml"

// EnvPrefix prefixes the environment variables that override settings.
const EnvPrefix = "MSGXREF"

// Config holds all settings.
type Config struct {
	// DB is the SQLite path of the session store. Empty means in-memory.
	DB             string    `mapstructure:"db"`
	Workers        int       `mapstructure:"workers" validate:"min=1"`
	Presets        []string  `mapstructure:"presets" validate:"dive,required"`
	RulesScript    string    `mapstructure:"rules_script" validate:"omitempty,file"`
	Format         string    `mapstructure:"format" validate:"oneof=json text yaml"`
	MetricsAddr    string    `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
	AttributeNames []string  `mapstructure:"attribute_names" validate:"min=1,dive,required"`
	Log            LogConfig `mapstructure:"log"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	Output string `mapstructure:"output"`
}

// Logging converts the log section for logging.New.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format, Output: c.Log.Output}
}

// Load reads configuration into v. configFile, when set, must exist;
// otherwise FileName is looked up in dir and is optional. Flags bound to v
// before Load take precedence over both file and environment.
func Load(v *viper.Viper, configFile, dir string) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, ".yaml"))
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db", "")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("presets", []string{})
	v.SetDefault("rules_script", "")
	v.SetDefault("format", "json")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("attribute_names", []string{"eventType", "payloadType"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
