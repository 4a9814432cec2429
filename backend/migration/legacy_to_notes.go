package migration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const stickyLabelPrefix = "sticky_"

// ノート別ファイルに書き出すレコード。backend.NoteRecord と同じ
// JSON 形式をここで二重定義して循環importを避ける。
type noteRecord struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Modified    time.Time `json:"modified"`
	Color       string    `json:"color"`
	Contents    string    `json:"contents"`
	X           int       `json:"x"`
	Y           int       `json:"y"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Zoom        float64   `json:"zoom"`
	AlwaysOnTop bool      `json:"always_on_top"`
}

func migrateLegacyStore(legacyPath, notesDir string) error {
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		return fmt.Errorf("failed to read legacy store: %w", err)
	}
	var store legacyStore
	if err := json.Unmarshal(data, &store); err != nil {
		return fmt.Errorf("failed to parse legacy store: %w", err)
	}

	if err := saveSnapshot(legacyPath); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	if err := os.MkdirAll(notesDir, 0o755); err != nil {
		return fmt.Errorf("failed to create notes dir: %w", err)
	}

	modified := legacyModTime(legacyPath)
	for label, note := range store.Data {
		record := convertLegacyNote(label, note, modified)
		path := filepath.Join(notesDir, record.ID+".json")

		// 途中失敗からの再実行で変換済みファイルを上書きしない
		if _, err := os.Stat(path); err == nil {
			continue
		}

		out, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal note %s: %w", record.ID, err)
		}
		if err := atomicWrite(path, out); err != nil {
			return fmt.Errorf("failed to write note %s: %w", record.ID, err)
		}
	}
	return nil
}

func convertLegacyNote(label string, note legacyNote, modified time.Time) noteRecord {
	return noteRecord{
		ID:       noteIDFromLabel(label),
		Status:   "active",
		Modified: modified,
		Color:    note.Color,
		Contents: note.Contents,
		X:        note.X,
		Y:        note.Y,
		Width:    note.Width,
		Height:   note.Height,
		Zoom:     1.0,
	}
}

// noteIDFromLabel はウィンドウラベル sticky_<id> からノートIDを取り出します。
// ラベル形式でないキーやファイル名に使えないIDには新しいIDを割り当てます。
func noteIDFromLabel(label string) string {
	id := strings.TrimPrefix(label, stickyLabelPrefix)
	if id == label || id == "" || strings.ContainsAny(id, `/\`) {
		return uuid.NewString()
	}
	return id
}

func legacyModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Now()
	}
	return info.ModTime()
}
