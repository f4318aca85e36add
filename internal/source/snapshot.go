package source

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
)

// SnapshotExt is appended to the original file name of every snapshot.
const SnapshotExt = ".sz"

// SnapshotPath returns where the raw copy of file is kept for a run.
func SnapshotPath(dir, runID, file string) string {
	return filepath.Join(dir, runID, filepath.Base(file)+SnapshotExt)
}

// WriteSnapshot stores a snappy-compressed copy of the raw source bytes.
func WriteSnapshot(dir, runID, file string, data []byte) (string, error) {
	path := SnapshotPath(dir, runID, file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.WriteFile(path, snappy.Encode(nil, data), 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// ReadSnapshot returns the decompressed raw bytes of a snapshot.
func ReadSnapshot(path string) ([]byte, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return data, nil
}
