/*
NoteStoreのテストスイート

このテストファイルは、付箋ノートのファイル永続化と
インデックス管理を提供するnoteStoreの機能を検証するためのテストケースを含んでいます。

テストケース:
1. TestNewNoteStore
   - noteStoreの初期化が正しく行われることを確認
   - 空のインデックスファイルが作成されることを検証

2. TestSaveAndLoadSticky
   - ノートの保存と読み込みが正しく動作することを確認
   - インデックスのサマリー(プレビュー・ハッシュ)の自動更新を検証

3. TestLastWriteWinsByCallOrder
   - 同じノートへの連続した保存で後の呼び出しが勝つことを確認

4. TestStatusTransitions
   - active / closed / archived の状態遷移を確認
   - ステータスによる一覧の絞り込みを検証

5. TestDeleteSticky
   - ノートの削除でファイルとインデックス項目の両方が消えることを確認

6. TestListOrderedByModified
   - 一覧が更新日時の新しい順に並ぶことを確認

7. TestIndexRebuiltFromPhysicalFiles
   - インデックスファイルが消えても物理ファイルから再構築されることを確認

8. TestCorruptIndexRecovered
   - 壊れたインデックスファイルからの復旧を検証

9. TestStaleIndexEntryDropped
   - 実体のないインデックス項目が起動時に取り除かれることを確認

10. TestWriteObserverSeesOwnWrites
    - 書き込みフックが自前の書き込みを受け取ることを確認

11. TestActiveRecordsSkipsCorruptFile
    - 壊れたノートファイルがあっても残りの読み込みが続くことを確認

12. TestRecordMissingStatusDefaultsActive
    - status未設定の古いレコードがactive扱いになることを検証
*/

package backend

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sticky-notes/backend/delta"
)

// テストヘルパー構造体
type noteStoreTestHelper struct {
	tempDir  string
	notesDir string
	store    *noteStore
}

// テストのセットアップ
func setupStoreTest(t *testing.T) *noteStoreTestHelper {
	tempDir, err := os.MkdirTemp("", "note_store_test")
	if err != nil {
		t.Fatalf("一時ディレクトリの作成に失敗: %v", err)
	}

	notesDir := filepath.Join(tempDir, "notes")
	store, err := NewNoteStore(notesDir)
	if err != nil {
		t.Fatalf("noteStoreの作成に失敗: %v", err)
	}

	return &noteStoreTestHelper{
		tempDir:  tempDir,
		notesDir: notesDir,
		store:    store,
	}
}

// テストのクリーンアップ
func (h *noteStoreTestHelper) cleanup() {
	os.RemoveAll(h.tempDir)
}

func (h *noteStoreTestHelper) indexPath() string {
	return filepath.Join(h.tempDir, "noteList.json")
}

func testRecord(id, text string) *NoteRecord {
	return &NoteRecord{
		ID: id,
		Note: Note{
			Color:    "#fff7ad",
			Contents: delta.FromText(text + "\n").Serialize(),
			X:        120,
			Y:        80,
			Width:    320,
			Height:   240,
			Zoom:     1.0,
		},
	}
}

// TestNewNoteStore はnoteStoreの初期化をテストします
func TestNewNoteStore(t *testing.T) {
	helper := setupStoreTest(t)
	defer helper.cleanup()

	assert.NotNil(t, helper.store)
	assert.Equal(t, indexVersion, helper.store.index.Version)
	assert.Empty(t, helper.store.index.Notes)

	// インデックスファイルが作成されている
	_, err := os.Stat(helper.indexPath())
	assert.NoError(t, err)
}

// TestSaveAndLoadSticky はノートの保存と読み込みをテストします
func TestSaveAndLoadSticky(t *testing.T) {
	helper := setupStoreTest(t)
	defer helper.cleanup()

	record := testRecord("note-1", "買い物メモ")
	err := helper.store.SaveSticky(record)
	assert.NoError(t, err)

	// 保存時に更新日時が刻印される
	assert.WithinDuration(t, time.Now(), record.Modified, 5*time.Second)

	loaded, err := helper.store.LoadSticky("note-1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, loaded.ID)
	assert.Equal(t, NoteStatusActive, loaded.Status)
	assert.Equal(t, record.Contents, loaded.Contents)
	assert.Equal(t, record.Color, loaded.Color)
	assert.Equal(t, record.X, loaded.X)
	assert.Equal(t, record.Width, loaded.Width)
	assert.Equal(t, record.Zoom, loaded.Zoom)

	// インデックスのサマリーが更新されている
	summaries, err := helper.store.ListStickies()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "note-1", summaries[0].ID)
	assert.Equal(t, "買い物メモ", summaries[0].Preview)
	assert.Equal(t, "#fff7ad", summaries[0].Color)
	assert.NotEmpty(t, summaries[0].ContentHash)
}

// TestLastWriteWinsByCallOrder は連続した保存で後の呼び出しが勝つことをテストします
func TestLastWriteWinsByCallOrder(t *testing.T) {
	helper := setupStoreTest(t)
	defer helper.cleanup()

	first := testRecord("note-1", "最初の内容")
	require.NoError(t, helper.store.SaveSticky(first))

	summaries, err := helper.store.ListStickies()
	require.NoError(t, err)
	firstHash := summaries[0].ContentHash

	second := testRecord("note-1", "あとの内容")
	require.NoError(t, helper.store.SaveSticky(second))

	loaded, err := helper.store.LoadSticky("note-1")
	require.NoError(t, err)
	assert.Equal(t, delta.FromText("あとの内容\n").Serialize(), loaded.Contents)

	summaries, err = helper.store.ListStickies()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "あとの内容", summaries[0].Preview)
	assert.NotEqual(t, firstHash, summaries[0].ContentHash)
}

// TestStatusTransitions はノートの状態遷移をテストします
func TestStatusTransitions(t *testing.T) {
	helper := setupStoreTest(t)
	defer helper.cleanup()

	require.NoError(t, helper.store.SaveSticky(testRecord("note-1", "状態テスト")))

	// closed への遷移
	require.NoError(t, helper.store.MarkClosed("note-1"))

	active, err := helper.store.ListStickies(NoteStatusActive)
	require.NoError(t, err)
	assert.Empty(t, active)

	closed, err := helper.store.ListStickies(NoteStatusClosed)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, NoteStatusClosed, closed[0].Status)

	records, err := helper.store.ActiveRecords()
	require.NoError(t, err)
	assert.Empty(t, records)

	// 同じ状態への遷移は何もしない
	require.NoError(t, helper.store.MarkClosed("note-1"))

	// active へ戻す
	require.NoError(t, helper.store.Restore("note-1"))
	records, err = helper.store.ActiveRecords()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "note-1", records[0].ID)

	// archived への遷移
	require.NoError(t, helper.store.Archive("note-1"))
	archived, err := helper.store.ListStickies(NoteStatusArchived)
	require.NoError(t, err)
	require.Len(t, archived, 1)

	// 存在しないノートはエラー
	err = helper.store.MarkClosed("missing")
	assert.Error(t, err)
}

// TestDeleteSticky はノートの削除をテストします
func TestDeleteSticky(t *testing.T) {
	helper := setupStoreTest(t)
	defer helper.cleanup()

	require.NoError(t, helper.store.SaveSticky(testRecord("note-1", "削除テスト")))

	err := helper.store.Delete("note-1")
	assert.NoError(t, err)

	// ノートファイルが削除されている
	_, err = os.Stat(filepath.Join(helper.notesDir, "note-1.json"))
	assert.True(t, os.IsNotExist(err))

	// インデックスからも消えている
	summaries, err := helper.store.ListStickies()
	require.NoError(t, err)
	assert.Empty(t, summaries)

	// 存在しないノートの削除はエラーにしない
	assert.NoError(t, helper.store.Delete("missing"))
}

// TestListOrderedByModified は一覧が更新日時の新しい順に並ぶことをテストします
func TestListOrderedByModified(t *testing.T) {
	helper := setupStoreTest(t)
	defer helper.cleanup()

	require.NoError(t, helper.store.SaveSticky(testRecord("note-a", "a")))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, helper.store.SaveSticky(testRecord("note-b", "b")))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, helper.store.SaveSticky(testRecord("note-a", "aの更新")))

	summaries, err := helper.store.ListStickies()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "note-a", summaries[0].ID)
	assert.Equal(t, "note-b", summaries[1].ID)
}

// TestIndexRebuiltFromPhysicalFiles はインデックス消失からの再構築をテストします
func TestIndexRebuiltFromPhysicalFiles(t *testing.T) {
	helper := setupStoreTest(t)
	defer helper.cleanup()

	require.NoError(t, helper.store.SaveSticky(testRecord("note-1", "ひとつめ")))
	require.NoError(t, helper.store.SaveSticky(testRecord("note-2", "ふたつめ")))

	// インデックスとその復旧用コピーを消す
	require.NoError(t, os.Remove(helper.indexPath()))
	os.Remove(helper.indexPath() + ".bak")

	rebuilt, err := NewNoteStore(helper.notesDir)
	require.NoError(t, err)

	summaries, err := rebuilt.ListStickies()
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	ids := []string{summaries[0].ID, summaries[1].ID}
	assert.Contains(t, ids, "note-1")
	assert.Contains(t, ids, "note-2")
	assert.NotEmpty(t, summaries[0].Preview)
}

// TestCorruptIndexRecovered は壊れたインデックスからの復旧をテストします
func TestCorruptIndexRecovered(t *testing.T) {
	helper := setupStoreTest(t)
	defer helper.cleanup()

	require.NoError(t, helper.store.SaveSticky(testRecord("note-1", "復旧テスト")))
	require.NoError(t, helper.store.SaveSticky(testRecord("note-1", "復旧テストの更新")))

	// インデックス本体を壊す
	require.NoError(t, os.WriteFile(helper.indexPath(), []byte("{broken"), 0644))

	recovered, err := NewNoteStore(helper.notesDir)
	require.NoError(t, err)

	summaries, err := recovered.ListStickies()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "note-1", summaries[0].ID)
}

// TestStaleIndexEntryDropped は実体のない項目の除去をテストします
func TestStaleIndexEntryDropped(t *testing.T) {
	helper := setupStoreTest(t)
	defer helper.cleanup()

	// 実体のないノートを指すインデックスを用意する
	ghost := &NoteIndex{
		Version: indexVersion,
		Notes: []NoteSummary{
			{ID: "ghost", Status: NoteStatusActive, Modified: time.Now()},
		},
	}
	data, err := json.MarshalIndent(ghost, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(helper.indexPath(), data, 0644))

	reopened, err := NewNoteStore(helper.notesDir)
	require.NoError(t, err)

	summaries, err := reopened.ListStickies()
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

// TestWriteObserverSeesOwnWrites は書き込みフックの通知をテストします
func TestWriteObserverSeesOwnWrites(t *testing.T) {
	helper := setupStoreTest(t)
	defer helper.cleanup()

	var paths []string
	var payloads [][]byte
	helper.store.SetWriteObserver(func(path string, data []byte) {
		paths = append(paths, path)
		payloads = append(payloads, data)
	})

	require.NoError(t, helper.store.SaveSticky(testRecord("note-1", "フックテスト")))

	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(helper.notesDir, "note-1.json"), paths[0])

	var written NoteRecord
	require.NoError(t, json.Unmarshal(payloads[0], &written))
	assert.Equal(t, "note-1", written.ID)
	assert.Equal(t, delta.FromText("フックテスト\n").Serialize(), written.Contents)
}

// TestActiveRecordsSkipsCorruptFile は壊れたファイルの読み飛ばしをテストします
func TestActiveRecordsSkipsCorruptFile(t *testing.T) {
	helper := setupStoreTest(t)
	defer helper.cleanup()

	require.NoError(t, helper.store.SaveSticky(testRecord("note-1", "正常なノート")))
	require.NoError(t, helper.store.SaveSticky(testRecord("note-2", "壊れるノート")))

	// 片方のファイルを壊す
	corruptPath := filepath.Join(helper.notesDir, "note-2.json")
	require.NoError(t, os.WriteFile(corruptPath, []byte("not json"), 0644))

	records, err := helper.store.ActiveRecords()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "note-1", records[0].ID)
}

// TestRecordMissingStatusDefaultsActive は古い形式のレコードの扱いをテストします
func TestRecordMissingStatusDefaultsActive(t *testing.T) {
	helper := setupStoreTest(t)
	defer helper.cleanup()

	// status を持たないレコードを直接書き込む
	legacy := []byte(`{"id":"legacy-1","color":"#fff7ad","contents":"素のテキスト","x":10,"y":20,"width":200,"height":150,"zoom":1}`)
	require.NoError(t, os.WriteFile(filepath.Join(helper.notesDir, "legacy-1.json"), legacy, 0644))

	loaded, err := helper.store.LoadSticky("legacy-1")
	require.NoError(t, err)
	assert.Equal(t, NoteStatusActive, loaded.Status)
	assert.Equal(t, "素のテキスト", loaded.Contents)
}
