/*
BackupServiceのテストスイート

このテストファイルは、ノートの世代バックアップと
保持数による剪定を提供するbackupServiceの機能を検証するためのテストケースを含んでいます。

テストケース:
1. TestBackupCurrentCreatesGeneration
   - ノートファイルの世代コピーが作成されることを確認

2. TestBackupSkipsUnchangedContent
   - 内容が変わっていない場合に世代が増えないことを確認

3. TestBackupPrunesToRetention
   - 保持数を超えた古い世代が削除されることを確認

4. TestBackupMissingNoteIsNoOp
   - ノートファイルが無い場合に何もしないことを確認

5. TestRetentionZeroDisablesBackups
   - 保持数0でバックアップが無効になることを確認

6. TestLoadBackupRoundTrip
   - 世代からレコードを読み戻せることを確認

7. TestDeleteBackups
   - ノートの全世代削除を確認
*/

package backend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// テストヘルパー構造体
type backupTestHelper struct {
	tempDir   string
	notesDir  string
	retention int
	backup    *backupService
}

// テストのセットアップ
func setupBackupTest(t *testing.T) *backupTestHelper {
	tempDir, err := os.MkdirTemp("", "backup_service_test")
	if err != nil {
		t.Fatalf("一時ディレクトリの作成に失敗: %v", err)
	}

	notesDir := filepath.Join(tempDir, "notes")
	if err := os.MkdirAll(notesDir, 0755); err != nil {
		t.Fatalf("ノートディレクトリの作成に失敗: %v", err)
	}

	helper := &backupTestHelper{
		tempDir:   tempDir,
		notesDir:  notesDir,
		retention: 3,
	}
	helper.backup = NewBackupService(tempDir, notesDir, func() int { return helper.retention })
	return helper
}

// テストのクリーンアップ
func (h *backupTestHelper) cleanup() {
	os.RemoveAll(h.tempDir)
}

// ノートファイルを直接書き込む
func (h *backupTestHelper) writeNoteFile(t *testing.T, id string, text string) {
	t.Helper()
	record := testRecord(id, text)
	record.Status = NoteStatusActive
	record.Modified = time.Now()
	data, err := json.MarshalIndent(record, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(h.notesDir, id+".json"), data, 0644))
}

// TestBackupCurrentCreatesGeneration は世代コピーの作成をテストします
func TestBackupCurrentCreatesGeneration(t *testing.T) {
	helper := setupBackupTest(t)
	defer helper.cleanup()

	helper.writeNoteFile(t, "note-1", "世代テスト")
	require.NoError(t, helper.backup.BackupCurrent("note-1"))

	infos, err := helper.backup.ListBackups("note-1")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Greater(t, infos[0].Size, int64(0))
}

// TestBackupSkipsUnchangedContent は同一内容の重複世代を作らないことをテストします
func TestBackupSkipsUnchangedContent(t *testing.T) {
	helper := setupBackupTest(t)
	defer helper.cleanup()

	helper.writeNoteFile(t, "note-1", "変わらない内容")
	require.NoError(t, helper.backup.BackupCurrent("note-1"))
	require.NoError(t, helper.backup.BackupCurrent("note-1"))

	infos, err := helper.backup.ListBackups("note-1")
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

// TestBackupPrunesToRetention は保持数による剪定をテストします
func TestBackupPrunesToRetention(t *testing.T) {
	helper := setupBackupTest(t)
	defer helper.cleanup()

	for i := 0; i < 5; i++ {
		helper.writeNoteFile(t, "note-1", fmt.Sprintf("世代 %d", i))
		require.NoError(t, helper.backup.BackupCurrent("note-1"))
		time.Sleep(2 * time.Millisecond)
	}

	infos, err := helper.backup.ListBackups("note-1")
	require.NoError(t, err)
	require.Len(t, infos, helper.retention)

	// 最新世代が残っている
	latest, err := helper.backup.LoadBackup("note-1", infos[0].Name)
	require.NoError(t, err)
	assert.Contains(t, latest.Contents, "世代 4")
}

// TestBackupMissingNoteIsNoOp はノートファイルが無い場合の動作をテストします
func TestBackupMissingNoteIsNoOp(t *testing.T) {
	helper := setupBackupTest(t)
	defer helper.cleanup()

	require.NoError(t, helper.backup.BackupCurrent("missing"))

	infos, err := helper.backup.ListBackups("missing")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

// TestRetentionZeroDisablesBackups は保持数0でバックアップされないことをテストします
func TestRetentionZeroDisablesBackups(t *testing.T) {
	helper := setupBackupTest(t)
	defer helper.cleanup()

	helper.retention = 0
	helper.writeNoteFile(t, "note-1", "保存されない")
	require.NoError(t, helper.backup.BackupCurrent("note-1"))

	infos, err := helper.backup.ListBackups("note-1")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

// TestLoadBackupRoundTrip は世代からの読み戻しをテストします
func TestLoadBackupRoundTrip(t *testing.T) {
	helper := setupBackupTest(t)
	defer helper.cleanup()

	helper.writeNoteFile(t, "note-1", "読み戻しテスト")
	require.NoError(t, helper.backup.BackupCurrent("note-1"))

	infos, err := helper.backup.ListBackups("note-1")
	require.NoError(t, err)
	require.Len(t, infos, 1)

	record, err := helper.backup.LoadBackup("note-1", infos[0].Name)
	require.NoError(t, err)
	assert.Equal(t, "note-1", record.ID)
	assert.Contains(t, record.Contents, "読み戻しテスト")

	// パス区切りを含む世代名は拒否する
	_, err = helper.backup.LoadBackup("note-1", filepath.Join("..", "escape.json"))
	assert.Error(t, err)
}

// TestDeleteBackups は全世代削除をテストします
func TestDeleteBackups(t *testing.T) {
	helper := setupBackupTest(t)
	defer helper.cleanup()

	helper.writeNoteFile(t, "note-1", "消える世代")
	require.NoError(t, helper.backup.BackupCurrent("note-1"))
	require.NoError(t, helper.backup.DeleteBackups("note-1"))

	infos, err := helper.backup.ListBackups("note-1")
	require.NoError(t, err)
	assert.Empty(t, infos)
}
