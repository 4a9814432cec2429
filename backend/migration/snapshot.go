package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const snapshotDir = "migration_snapshots"

func saveSnapshot(legacyPath string) error {
	dir := filepath.Join(filepath.Dir(legacyPath), snapshotDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := os.ReadFile(legacyPath)
	if err != nil {
		return err
	}

	timestamp := time.Now().Format("20060102_150405")
	snapshotPath := filepath.Join(dir, fmt.Sprintf("save_data_%s.json", timestamp))
	return os.WriteFile(snapshotPath, data, 0o644)
}

func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
