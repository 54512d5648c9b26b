// fetch/index.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fetch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/iancoleman/orderedmap"
)

const IndexFilename = "index.json"

// Index records what a download run stored in a directory. Files maps
// competitor name to stored filename in results-page order, which a
// plain map would scramble.
type Index struct {
	Source  string                 `json:"source"`
	Fetched time.Time              `json:"fetched"`
	Files   *orderedmap.OrderedMap `json:"files"`
}

func NewIndex(source string) *Index {
	return &Index{
		Source:  source,
		Fetched: time.Now().UTC(),
		Files:   orderedmap.New(),
	}
}

// Filenames returns the stored filenames in index order.
func (idx *Index) Filenames() []string {
	var names []string
	for _, comp := range idx.Files.Keys() {
		if name, ok := idx.Files.Get(comp); ok {
			names = append(names, name.(string))
		}
	}
	return names
}

func WriteIndex(dir string, idx *Index) error {
	b, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}

	fn := filepath.Join(dir, IndexFilename)
	tmpFile := fn + ".tmp"
	if err := os.WriteFile(tmpFile, b, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpFile, fn); err != nil {
		os.Remove(tmpFile)
		return err
	}
	return nil
}

func ReadIndex(dir string) (*Index, error) {
	b, err := os.ReadFile(filepath.Join(dir, IndexFilename))
	if err != nil {
		return nil, err
	}

	var idx Index
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, err
	}
	if idx.Files == nil {
		idx.Files = orderedmap.New()
	}
	return &idx, nil
}
