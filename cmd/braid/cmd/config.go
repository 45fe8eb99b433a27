package cmd

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/halcyonfs/braid"
	"github.com/halcyonfs/braid/bucket"
	"github.com/halcyonfs/braid/chunk"
	"github.com/halcyonfs/braid/transport"
)

// Config is the YAML bucket-set configuration consumed by the upload,
// download, and verify subcommands.
type Config struct {
	// Buckets are the bucket base URLs, one per shard.
	Buckets []string `yaml:"buckets"`
	// Required is K, the number of shards needed for recovery.
	Required int `yaml:"required"`
	// WordSize is the erasure lane width in bytes. Defaults to 8.
	WordSize int `yaml:"word_size"`
	// Key is the hex-encoded 32-byte AES-256 key.
	Key string `yaml:"key"`
	// AuthHeader is an optional value for the Authorization header.
	AuthHeader string `yaml:"auth_header"`
}

// loadOptions reads the YAML config into pipeline options.
func loadOptions(path string) (braid.Options, error) {
	var opts braid.Options

	raw, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return opts, fmt.Errorf("failed to parse config: %w", err)
	}

	key, err := hex.DecodeString(cfg.Key)
	if err != nil {
		return opts, fmt.Errorf("invalid key: %w", err)
	}
	if len(key) != chunk.KeySize {
		return opts, fmt.Errorf("key must be %d hex-encoded bytes", chunk.KeySize)
	}
	if cfg.WordSize == 0 {
		cfg.WordSize = 8
	}

	set := &bucket.URLSet{Bases: cfg.Buckets}
	if cfg.AuthHeader != "" {
		set.Header = map[string][]string{"Authorization": {cfg.AuthHeader}}
	}

	opts = braid.Options{
		Buckets:        set,
		Transport:      &transport.HTTP{},
		RequiredShards: cfg.Required,
		WordSize:       cfg.WordSize,
		Key:            key,
	}
	return opts, nil
}
