package backend

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"sticky-notes/backend/delta"
)

// FileService は付箋の書き出しとノートフォルダ表示を提供するインターフェースです
type FileService interface {
	ExportNote(id string) (string, error)
	OpenNotesFolder() error
}

// fileService はFileServiceの実装です
type fileService struct {
	appCtx *Context
	store  *noteStore
	logger AppLogger

	// テストではダイアログ表示とフォルダ表示を差し替える
	saveDialog func(defaultName string) (string, error)
	openFolder func(path string) error
}

// NewFileService は新しいfileServiceインスタンスを作成します
func NewFileService(appCtx *Context, store *noteStore, logger AppLogger) *fileService {
	return &fileService{
		appCtx: appCtx,
		store:  store,
		logger: logger,
	}
}

// ExportNote は付箋の本文をプレーンテキストとして書き出します。
// 保存先はダイアログで選ぶ。キャンセル時は空のパスを返して何もしない
func (s *fileService) ExportNote(id string) (string, error) {
	record, err := s.store.LoadSticky(id)
	if err != nil {
		return "", fmt.Errorf("load note %s for export: %w", id, err)
	}

	text := ""
	if record.Contents != "" {
		doc, err := delta.Parse(record.Contents)
		if err != nil {
			return "", fmt.Errorf("parse note %s contents: %w", id, err)
		}
		text = doc.PlainText()
	}

	path, err := s.selectSavePath(exportFileName(text))
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", nil
	}

	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("write exported note: %w", err)
	}
	s.logger.Console("note %s exported to %s", id, path)
	return path, nil
}

// OpenNotesFolder はノートファイルの保存フォルダをOSのファイルマネージャで開きます
func (s *fileService) OpenNotesFolder() error {
	dir := s.store.NotesDir()
	if s.openFolder != nil {
		return s.openFolder(dir)
	}
	return openFolderInExplorer(dir)
}

// selectSavePath は書き出し先を選ぶ保存ダイアログを表示します
func (s *fileService) selectSavePath(defaultName string) (string, error) {
	if s.saveDialog != nil {
		return s.saveDialog(defaultName)
	}
	if s.logger.IsTestMode() || s.appCtx == nil || s.appCtx.ctx == nil {
		return "", fmt.Errorf("save dialog is not available")
	}

	return wailsRuntime.SaveFileDialog(s.appCtx.ctx, wailsRuntime.SaveDialogOptions{
		Title:           "Please select export file path.",
		DefaultFilename: defaultName,
		Filters: []wailsRuntime.FileFilter{
			{
				DisplayName: "Text Files (*.txt)",
				Pattern:     "*.txt",
			},
		},
	})
}

// exportFileName は本文の1行目から保存ダイアログの既定ファイル名を作ります
func exportFileName(text string) string {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	line = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, line)

	if runes := []rune(line); len(runes) > 40 {
		line = string(runes[:40])
	}
	if line == "" {
		line = "untitled"
	}
	return line + ".txt"
}

// openFolderInExplorer はOS標準のファイルマネージャでフォルダを開きます
func openFolderInExplorer(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path).Start()
	case "windows":
		return exec.Command("cmd", "/c", "start", "", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}
