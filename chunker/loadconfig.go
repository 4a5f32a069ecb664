package chunker

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads a packing configuration from a YAML file, starting from
// DefaultConfig and overriding whatever fields the file sets. SpecialTaxa is
// never read from disk (see Config.SpecialTaxa) and must be assigned by the
// caller after loading.
func LoadConfig(fs afero.Fs, path string) (Config, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("chunker: read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("chunker: parse config %s: %w", path, err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, fmt.Errorf("chunker: invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML.
func SaveConfig(fs afero.Fs, path string, cfg Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("chunker: marshal config: %w", err)
	}
	return afero.WriteFile(fs, path, raw, 0o644)
}

// ValidateConfig rejects packing configurations that could never produce a
// valid chunk (spec §3 chunk manifest invariant iv: total size bounded by
// max_chunk_size).
func ValidateConfig(cfg Config) error {
	if cfg.TargetChunkSize <= 0 {
		return fmt.Errorf("target_chunk_size must be > 0")
	}
	if cfg.MaxChunkSize <= 0 {
		return fmt.Errorf("max_chunk_size must be > 0")
	}
	if cfg.TargetChunkSize > cfg.MaxChunkSize {
		return fmt.Errorf("target_chunk_size must be <= max_chunk_size")
	}
	if cfg.MinSequencesPerChunk < 0 {
		return fmt.Errorf("min_sequences_per_chunk must be >= 0")
	}
	if cfg.SpecialTaxaBailoutThreshold < 0 {
		return fmt.Errorf("special_taxa_bailout_threshold must be >= 0")
	}
	return nil
}
