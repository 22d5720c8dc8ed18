// Package config loads slabkvd's YAML configuration.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is slabkvd's on-disk configuration.
type Config struct {
	Store struct {
		// PageSize overrides the detected OS page size; 0 means "autodetect".
		// Open rejects anything other than 4096.
		PageSize int `mapstructure:"page_size"`
	} `mapstructure:"store"`
	Server struct {
		Addr  string `mapstructure:"addr"`
		Debug bool   `mapstructure:"debug"`
	} `mapstructure:"server"`
}

// Load reads and unmarshals a YAML config file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return &cfg, nil
}
