/*
FileServiceのテストスイート

このテストファイルは、付箋のプレーンテキスト書き出しと
ノートフォルダ表示を提供するfileServiceの機能を検証するためのテストケースを含んでいます。
保存ダイアログとフォルダ表示はテスト用の関数に差し替えます。

テストケース:
1. TestExportNoteWritesPlainText
   - 本文がプレーンテキストとして書き出されることを確認
   - 既定ファイル名が本文の1行目から作られることを検証

2. TestExportCancelledWritesNothing
   - ダイアログのキャンセルで何も書き込まれないことを確認

3. TestExportMissingNoteFails
   - 存在しないノートの書き出しがエラーになることを確認

4. TestOpenNotesFolderTargetsNotesDir
   - ノート保存フォルダがファイルマネージャに渡されることを確認

5. TestExportFileName
   - 既定ファイル名の組み立て規則を確認

6. TestExportStripsFormatting
   - 装飾と埋め込みがプレーンテキスト書き出しに残らないことを確認
*/

package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// テストヘルパー構造体
type fileServiceTestHelper struct {
	tempDir  string
	notesDir string
	store    *noteStore
	service  *fileService

	dialogName string // ダイアログに渡された既定ファイル名
	dialogPath string // ダイアログが返す保存先
	openedPath string // フォルダ表示に渡されたパス
}

// テストのセットアップ
func setupFileServiceTest(t *testing.T) *fileServiceTestHelper {
	tempDir, err := os.MkdirTemp("", "file_service_test")
	if err != nil {
		t.Fatalf("一時ディレクトリの作成に失敗: %v", err)
	}

	notesDir := filepath.Join(tempDir, "notes")
	store, err := NewNoteStore(notesDir)
	if err != nil {
		t.Fatalf("noteStoreの作成に失敗: %v", err)
	}

	logger := NewAppLogger(context.Background(), true, tempDir)
	helper := &fileServiceTestHelper{
		tempDir:  tempDir,
		notesDir: notesDir,
		store:    store,
	}

	service := NewFileService(NewContext(context.Background()), store, logger)
	service.saveDialog = func(defaultName string) (string, error) {
		helper.dialogName = defaultName
		return helper.dialogPath, nil
	}
	service.openFolder = func(path string) error {
		helper.openedPath = path
		return nil
	}
	helper.service = service
	return helper
}

// テストのクリーンアップ
func (h *fileServiceTestHelper) cleanup() {
	os.RemoveAll(h.tempDir)
}

// TestExportNoteWritesPlainText は本文の書き出しをテストします
func TestExportNoteWritesPlainText(t *testing.T) {
	helper := setupFileServiceTest(t)
	defer helper.cleanup()

	record := testRecord("note-1", "買い物メモ\n牛乳と卵を買う")
	require.NoError(t, helper.store.SaveSticky(record))

	helper.dialogPath = filepath.Join(helper.tempDir, "exported.txt")
	path, err := helper.service.ExportNote("note-1")
	require.NoError(t, err)
	assert.Equal(t, helper.dialogPath, path)
	assert.Equal(t, "買い物メモ.txt", helper.dialogName)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "買い物メモ\n牛乳と卵を買う\n", string(data))
}

// TestExportCancelledWritesNothing はキャンセル時の動作をテストします
func TestExportCancelledWritesNothing(t *testing.T) {
	helper := setupFileServiceTest(t)
	defer helper.cleanup()

	record := testRecord("note-1", "本文")
	require.NoError(t, helper.store.SaveSticky(record))

	helper.dialogPath = ""
	path, err := helper.service.ExportNote("note-1")
	require.NoError(t, err)
	assert.Empty(t, path)

	entries, err := os.ReadDir(helper.tempDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotEqual(t, "exported.txt", entry.Name())
	}
}

// TestExportMissingNoteFails は存在しないノートの書き出しをテストします
func TestExportMissingNoteFails(t *testing.T) {
	helper := setupFileServiceTest(t)
	defer helper.cleanup()

	_, err := helper.service.ExportNote("ghost")
	assert.Error(t, err)
}

// TestOpenNotesFolderTargetsNotesDir はフォルダ表示をテストします
func TestOpenNotesFolderTargetsNotesDir(t *testing.T) {
	helper := setupFileServiceTest(t)
	defer helper.cleanup()

	require.NoError(t, helper.service.OpenNotesFolder())
	assert.Equal(t, helper.notesDir, helper.openedPath)
}

// TestExportFileName は既定ファイル名の組み立てをテストします
func TestExportFileName(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "1行目がそのままファイル名になる",
			text: "会議メモ\n詳細は後で",
			want: "会議メモ.txt",
		},
		{
			name: "空の本文は untitled になる",
			text: "",
			want: "untitled.txt",
		},
		{
			name: "空白だけの1行目も untitled になる",
			text: "   \n本文",
			want: "untitled.txt",
		},
		{
			name: "パスに使えない文字は置き換えられる",
			text: "2024/08: 進捗*報告?",
			want: "2024_08_ 進捗_報告_.txt",
		},
		{
			name: "長い1行目は切り詰められる",
			text: "あいうえおかきくけこあいうえおかきくけこあいうえおかきくけこあいうえおかきくけこあいうえお",
			want: "あいうえおかきくけこあいうえおかきくけこあいうえおかきくけこあいうえおかきくけこ.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exportFileName(tt.text))
		})
	}
}

// TestExportStripsFormatting は装飾と埋め込みが書き出しに残らないことをテストします
func TestExportStripsFormatting(t *testing.T) {
	helper := setupFileServiceTest(t)
	defer helper.cleanup()

	serialized := `{"ops":[` +
		`{"insert":"太字の見出し","attributes":{"bold":true}},` +
		`{"insert":"\n"},` +
		`{"insert":{"image":"data:image/png;base64,xxxx"}},` +
		`{"insert":"続きの本文\n"}]}`
	record := &NoteRecord{
		ID:     "styled",
		Status: NoteStatusActive,
		Note: Note{
			Color:    "#fff7ad",
			Contents: serialized,
			Zoom:     1.0,
			Width:    320,
			Height:   240,
		},
	}
	require.NoError(t, helper.store.SaveSticky(record))

	helper.dialogPath = filepath.Join(helper.tempDir, "styled.txt")
	_, err := helper.service.ExportNote("styled")
	require.NoError(t, err)

	data, err := os.ReadFile(helper.dialogPath)
	require.NoError(t, err)
	assert.Equal(t, "太字の見出し\n続きの本文\n", string(data))
	assert.Equal(t, "太字の見出し.txt", helper.dialogName)
}
