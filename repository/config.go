package repository

import (
	"errors"
	"os"
	"path/filepath"

	"talaria/chunker"
)

// chunkerConfigFileName is the packing-config override file a repository
// reads at DataDir root, if present (spec §4.E Configuration).
const chunkerConfigFileName = "chunker.yaml"

// ChunkerConfig loads the packing configuration override at
// <data_dir>/chunker.yaml, or chunker.DefaultConfig() if no override file
// exists.
func (r *Repository) ChunkerConfig() (chunker.Config, error) {
	path := filepath.Join(r.paths.DataDir, chunkerConfigFileName)
	cfg, err := chunker.LoadConfig(r.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return chunker.DefaultConfig(), nil
		}
		return chunker.Config{}, err
	}
	return cfg, nil
}
