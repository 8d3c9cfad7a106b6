// Snapshot files are zstd-compressed JSON exports of the full city,
// independent of the database. They exist for backups and for moving a
// city between hosts.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Harishik/SkyLand/internal/engine"
)

const snapshotVersion = 1

type snapshotFile struct {
	Version int          `json:"version"`
	SavedAt time.Time    `json:"saved_at"`
	State   engine.State `json:"state"`
}

// WriteSnapshot exports the city to a snapshot file, creating parent
// directories as needed and truncating any existing file.
func WriteSnapshot(path string, st engine.State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return err
	}

	sf := snapshotFile{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		State:   st,
	}
	if err := json.NewEncoder(enc).Encode(sf); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	// Close order matters: the encoder flushes its frame into f.
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadSnapshot loads a snapshot file back into a restorable state.
func ReadSnapshot(path string) (engine.State, error) {
	f, err := os.Open(path)
	if err != nil {
		return engine.State{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return engine.State{}, err
	}
	defer dec.Close()

	var sf snapshotFile
	if err := json.NewDecoder(dec).Decode(&sf); err != nil {
		return engine.State{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if sf.Version != snapshotVersion {
		return engine.State{}, fmt.Errorf("unsupported snapshot version %d", sf.Version)
	}
	return sf.State, nil
}
