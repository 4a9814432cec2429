package migration

import (
	"os"
	"path/filepath"
)

const (
	legacyStoreFile = "save_data.json"
	migratedSuffix  = ".migrated"
)

func RunIfNeeded(appDataDir string, notesDir string) (bool, error) {
	legacyPath := filepath.Join(appDataDir, legacyStoreFile)

	if _, err := os.Stat(legacyPath); os.IsNotExist(err) {
		return false, nil
	}

	if err := migrateLegacyStore(legacyPath, notesDir); err != nil {
		return false, err
	}

	// 変換済みの旧ファイルを改名して次回以降の再実行を止める
	if err := os.Rename(legacyPath, legacyPath+migratedSuffix); err != nil {
		return false, err
	}
	return true, nil
}
