package migration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigration_LegacyStore_Basic(t *testing.T) {
	tempDir := t.TempDir()
	notesDir := filepath.Join(tempDir, "notes")
	legacyPath := filepath.Join(tempDir, legacyStoreFile)

	store := legacyStore{
		Data: map[string]legacyNote{
			"sticky_n1": {Color: "#fff7ad", Contents: "milk, eggs", X: 100, Y: 80, Height: 240, Width: 320},
			"sticky_n2": {Color: "#b8e986", Contents: `{"ops":[{"insert":"call mom\n"}]}`, X: -40, Y: 600, Height: 180, Width: 260},
		},
	}
	writeLegacyStore(t, legacyPath, store)

	err := migrateLegacyStore(legacyPath, notesDir)
	require.NoError(t, err)

	n1 := readNoteRecord(t, filepath.Join(notesDir, "n1.json"))
	assert.Equal(t, "n1", n1.ID)
	assert.Equal(t, "active", n1.Status)
	assert.Equal(t, "#fff7ad", n1.Color)
	assert.Equal(t, "milk, eggs", n1.Contents)
	assert.Equal(t, 100, n1.X)
	assert.Equal(t, 80, n1.Y)
	assert.Equal(t, 320, n1.Width)
	assert.Equal(t, 240, n1.Height)
	assert.Equal(t, 1.0, n1.Zoom)
	assert.False(t, n1.AlwaysOnTop)
	assert.False(t, n1.Modified.IsZero())

	n2 := readNoteRecord(t, filepath.Join(notesDir, "n2.json"))
	assert.Equal(t, "n2", n2.ID)
	assert.Equal(t, -40, n2.X)
	assert.Equal(t, `{"ops":[{"insert":"call mom\n"}]}`, n2.Contents)
}

func TestMigration_LegacyStore_Empty(t *testing.T) {
	tempDir := t.TempDir()
	notesDir := filepath.Join(tempDir, "notes")
	legacyPath := filepath.Join(tempDir, legacyStoreFile)

	writeLegacyStore(t, legacyPath, legacyStore{Data: map[string]legacyNote{}})

	err := migrateLegacyStore(legacyPath, notesDir)
	require.NoError(t, err)

	entries, err := os.ReadDir(notesDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMigration_LegacyStore_Malformed(t *testing.T) {
	tempDir := t.TempDir()
	notesDir := filepath.Join(tempDir, "notes")
	legacyPath := filepath.Join(tempDir, legacyStoreFile)

	require.NoError(t, os.WriteFile(legacyPath, []byte("{not json"), 0o644))

	err := migrateLegacyStore(legacyPath, notesDir)
	assert.Error(t, err)

	// 解析に失敗した場合はスナップショットも作らない
	_, err = os.Stat(filepath.Join(tempDir, snapshotDir))
	assert.True(t, os.IsNotExist(err))
}

func TestMigration_Snapshot_Created(t *testing.T) {
	tempDir := t.TempDir()
	notesDir := filepath.Join(tempDir, "notes")
	legacyPath := filepath.Join(tempDir, legacyStoreFile)

	writeLegacyStore(t, legacyPath, legacyStore{
		Data: map[string]legacyNote{
			"sticky_n1": {Color: "#fff7ad", Contents: "snapshot me", X: 0, Y: 0, Height: 240, Width: 320},
		},
	})

	err := migrateLegacyStore(legacyPath, notesDir)
	require.NoError(t, err)

	snapshotPattern := filepath.Join(tempDir, snapshotDir, "save_data_*.json")
	matches, err := filepath.Glob(snapshotPattern)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	// スナップショットは変換前の内容そのまま
	original, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	var snap legacyStore
	require.NoError(t, json.Unmarshal(original, &snap))
	assert.Contains(t, snap.Data, "sticky_n1")
}

func TestMigration_ExistingNoteNotOverwritten(t *testing.T) {
	tempDir := t.TempDir()
	notesDir := filepath.Join(tempDir, "notes")
	legacyPath := filepath.Join(tempDir, legacyStoreFile)
	require.NoError(t, os.MkdirAll(notesDir, 0o755))

	// 変換済みを装った既存ファイル
	existing := noteRecord{ID: "n1", Status: "active", Modified: time.Now(), Contents: "already migrated", Zoom: 1.0}
	existingData, err := json.Marshal(existing)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(notesDir, "n1.json"), existingData, 0o644))

	writeLegacyStore(t, legacyPath, legacyStore{
		Data: map[string]legacyNote{
			"sticky_n1": {Color: "#fff7ad", Contents: "legacy contents", X: 0, Y: 0, Height: 240, Width: 320},
		},
	})

	err = migrateLegacyStore(legacyPath, notesDir)
	require.NoError(t, err)

	kept := readNoteRecord(t, filepath.Join(notesDir, "n1.json"))
	assert.Equal(t, "already migrated", kept.Contents)
}

func TestMigration_UnprefixedLabelGetsNewID(t *testing.T) {
	tempDir := t.TempDir()
	notesDir := filepath.Join(tempDir, "notes")
	legacyPath := filepath.Join(tempDir, legacyStoreFile)

	writeLegacyStore(t, legacyPath, legacyStore{
		Data: map[string]legacyNote{
			"main": {Color: "#fff7ad", Contents: "stray entry", X: 0, Y: 0, Height: 240, Width: 320},
		},
	})

	err := migrateLegacyStore(legacyPath, notesDir)
	require.NoError(t, err)

	entries, err := os.ReadDir(notesDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEqual(t, "main.json", entries[0].Name())

	record := readNoteRecord(t, filepath.Join(notesDir, entries[0].Name()))
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "stray entry", record.Contents)
}

func TestMigration_RunIfNeeded_FreshInstall(t *testing.T) {
	tempDir := t.TempDir()
	notesDir := filepath.Join(tempDir, "notes")

	migrated, err := RunIfNeeded(tempDir, notesDir)
	require.NoError(t, err)
	assert.False(t, migrated)

	_, err = os.Stat(filepath.Join(tempDir, snapshotDir))
	assert.True(t, os.IsNotExist(err))
}

func TestMigration_RunIfNeeded_MarksStoreMigrated(t *testing.T) {
	tempDir := t.TempDir()
	notesDir := filepath.Join(tempDir, "notes")
	legacyPath := filepath.Join(tempDir, legacyStoreFile)

	writeLegacyStore(t, legacyPath, legacyStore{
		Data: map[string]legacyNote{
			"sticky_n1": {Color: "#fff7ad", Contents: "once", X: 0, Y: 0, Height: 240, Width: 320},
		},
	})

	migrated, err := RunIfNeeded(tempDir, notesDir)
	require.NoError(t, err)
	assert.True(t, migrated)

	// 旧ファイルは改名され、元の名前では残らない
	_, err = os.Stat(legacyPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(legacyPath + migratedSuffix)
	assert.NoError(t, err)

	// 二回目は何もしない
	migrated, err = RunIfNeeded(tempDir, notesDir)
	require.NoError(t, err)
	assert.False(t, migrated)
}

func writeLegacyStore(t *testing.T, path string, store legacyStore) {
	t.Helper()
	data, err := json.MarshalIndent(store, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func readNoteRecord(t *testing.T, path string) noteRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var record noteRecord
	require.NoError(t, json.Unmarshal(data, &record))
	return record
}
