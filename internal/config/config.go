// Package config loads the tunables this decoder exposes — node and block
// cache sizing, and the AutoDetectOffset flag — through spf13/viper,
// mirroring the teacher's LoadDMGConfig.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// OpenOptions controls the caching and auto-detection behavior of Open.
type OpenOptions struct {
	// NodeCacheSize is the maximum number of btree node buffers kept per
	// image in the node cache.
	NodeCacheSize int `mapstructure:"node_cache_size"`
	// BlockCacheBytes bounds the total size of raw node bytes retained by
	// the image's block cache.
	BlockCacheBytes int `mapstructure:"block_cache_bytes"`
	// AutoDetectOffset is loaded and carried with the other options, but
	// Open does not consult it: Open always reads the superblock at sector
	// 8 and rejects a magic mismatch there with ErrBadSuperblock. No other
	// superblock or partition offset is searched.
	AutoDetectOffset bool `mapstructure:"auto_detect_offset"`
}

// LoadOpenOptions loads OpenOptions using Viper: defaults, then an
// optional "bcachefs-config.yaml" from the working directory, "./config",
// "$HOME/.bcachefs" or "/etc/bcachefs", then "BCACHEFS_"-prefixed
// environment variables.
func LoadOpenOptions() (*OpenOptions, error) {
	v := viper.New()
	v.SetConfigName("bcachefs-config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.bcachefs")
	v.AddConfigPath("/etc/bcachefs")

	v.SetDefault("node_cache_size", 64)
	v.SetDefault("block_cache_bytes", 64*1024*1024)
	v.SetDefault("auto_detect_offset", true)

	v.SetEnvPrefix("BCACHEFS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading bcachefs-config: %w", err)
		}
	}

	var opts OpenOptions
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("config: unmarshaling open options: %w", err)
	}
	return &opts, nil
}

// Default returns the options Open uses when the caller does not supply
// its own, without touching the filesystem or environment.
func Default() OpenOptions {
	return OpenOptions{
		NodeCacheSize:    64,
		BlockCacheBytes:  64 * 1024 * 1024,
		AutoDetectOffset: true,
	}
}
