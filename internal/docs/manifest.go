package docs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// manifestVersion is bumped when the snapshot schema changes.
// A version mismatch is treated like corruption: start empty, rescan.
const manifestVersion = 1

// Manifest is the persisted state of the document manager: the
// last-seen fingerprint of every document. It is read at startup and
// rewritten atomically after each successful scan+update cycle.
type Manifest struct {
	Version   int                 `json:"version"`
	Documents map[string]Document `json:"documents"`
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		Version:   manifestVersion,
		Documents: make(map[string]Document),
	}
}

// LoadManifest reads a manifest snapshot from disk.
// A missing file yields an empty manifest (first run). A corrupt or
// incompatible file returns the error; the caller decides whether to
// rebuild from scratch.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManifest(), nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("manifest version %d not supported (want %d)", m.Version, manifestVersion)
	}
	if m.Documents == nil {
		m.Documents = make(map[string]Document)
	}
	return &m, nil
}

// Save writes the manifest atomically: write to a temp file in the same
// directory, then rename over the target. A crash mid-write leaves the
// prior snapshot intact.
func (m *Manifest) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp manifest: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// Len returns the number of tracked documents.
func (m *Manifest) Len() int { return len(m.Documents) }
