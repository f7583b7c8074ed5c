// Package config loads the buffer pool's runtime settings from a YAML file:
// how many frames to give it, what page size to use, and where its backing
// data file lives.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// pageSizeGranularity is the block size a configured page size must be a
// multiple of, matching the alignment pagefile and bufpool enforce.
const pageSizeGranularity = 512

// Config holds the settings minirel needs to bring up a buffer pool over a
// data file.
type Config struct {
	Pool struct {
		NFrames  int   `mapstructure:"n_frames"`
		PageSize int64 `mapstructure:"page_size"`
	} `mapstructure:"pool"`
	Storage struct {
		DataFile string `mapstructure:"data_file"`
	} `mapstructure:"storage"`
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
}

// validate checks the fields Load/Default can't simply default their way
// out of: a page size that isn't a positive multiple of 512 would silently
// misalign every page read/write against the underlying file.
func (c *Config) validate() error {
	if c.Pool.NFrames < 1 {
		return errors.New("config: pool.n_frames must be >= 1")
	}
	if c.Pool.PageSize <= 0 || c.Pool.PageSize%pageSizeGranularity != 0 {
		return errors.New("config: pool.page_size must be positive and a multiple of 512")
	}
	return nil
}

// defaults applied before the file is read, so a config need only set what
// it wants to override.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("pool.n_frames", 64)
	v.SetDefault("pool.page_size", 4096)
	v.SetDefault("storage.data_file", "minirel.db")
	v.SetDefault("server.addr", "127.0.0.1:7890")
	return v
}

// Load reads and unmarshals the YAML config file at path.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "config: read")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: unmarshal")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config populated with the same defaults Load falls
// back to when a file does not override them, for callers (tests, the
// bufdebug REPL) that don't need an on-disk config file.
func Default() *Config {
	v := newViper()
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
