package backend

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"sticky-notes/backend/delta"
)

// インデックスのフォーマットバージョン
const indexVersion = "2.0"

// previewLimit は一覧表示用プレビューの最大文字数
const previewLimit = 80

// NoteStore は付箋データの永続化を担うインターフェースです
type NoteStore interface {
	SaveSticky(record *NoteRecord) error                      // ノートの完全なスナップショットを書き込む
	LoadSticky(id string) (*NoteRecord, error)                // 指定されたIDのノートを読み込む
	ListStickies(statuses ...NoteStatus) ([]NoteSummary, error) // 一覧用のサマリーを返す
	ActiveRecords() ([]*NoteRecord, error)                    // 画面に出すノートの完全なデータを返す
	MarkClosed(id string) error                               // ノートを閉じた状態にする
	Archive(id string) error                                  // ノートをアーカイブする
	Restore(id string) error                                  // ノートを画面に戻す
	Delete(id string) error                                   // ノートを完全に削除する
	RefreshSummary(id string) error                           // ファイルの現在内容でインデックス項目を作り直す
	NotesDir() string
}

// noteStore はNoteStoreの実装です
// 書き込みは単一のミューテックスで直列化され、後着の呼び出しが常に勝ちます
type noteStore struct {
	mu       sync.Mutex
	notesDir string
	index    *NoteIndex
	onWrite  func(path string, data []byte)
}

// NewNoteStore は新しいnoteStoreインスタンスを作成します
func NewNoteStore(notesDir string) (*noteStore, error) {
	if err := os.MkdirAll(notesDir, 0755); err != nil {
		return nil, fmt.Errorf("create notes directory: %w", err)
	}

	store := &noteStore{
		notesDir: notesDir,
		index: &NoteIndex{
			Version: indexVersion,
			Notes:   []NoteSummary{},
		},
	}

	if err := store.loadIndex(); err != nil {
		return nil, fmt.Errorf("load note index: %w", err)
	}

	// 物理ファイルとインデックスのずれを起動時に直す
	if err := store.syncIndexLocked(); err != nil {
		return nil, fmt.Errorf("sync note index: %w", err)
	}

	return store, nil
}

// SetWriteObserver は自前の書き込みを通知するフックを設定します
// 外部変更監視が自分の書き込みを外部変更と取り違えないために使います
func (s *noteStore) SetWriteObserver(fn func(path string, data []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = fn
}

// SaveSticky はノートの完全なスナップショットを保存します
func (s *noteStore) SaveSticky(record *NoteRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("note id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record.Status == "" {
		record.Status = NoteStatusActive
	}
	return s.saveRecordLocked(record)
}

// LoadSticky は指定されたIDのノートを読み込みます
func (s *noteStore) LoadSticky(id string) (*NoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRecordLocked(id)
}

// ListStickies は一覧用のサマリーを更新日時の新しい順で返します
// ステータスを渡すと該当するものだけに絞り込みます
func (s *noteStore) ListStickies(statuses ...NoteStatus) ([]NoteSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := s.index.Notes
	if len(statuses) > 0 {
		summaries = lo.Filter(summaries, func(item NoteSummary, _ int) bool {
			return lo.Contains(statuses, item.Status)
		})
	}

	out := make([]NoteSummary, len(summaries))
	copy(out, summaries)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Modified.After(out[j].Modified)
	})
	return out, nil
}

// ActiveRecords は画面に出すノートの完全なデータを返します
func (s *noteStore) ActiveRecords() ([]*NoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*NoteRecord
	for _, summary := range s.index.Notes {
		if summary.Status != NoteStatusActive {
			continue
		}
		record, err := s.loadRecordLocked(summary.ID)
		if err != nil {
			// 読めないファイルは飛ばして起動を続ける
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// MarkClosed はノートを閉じた状態にします(データは残る)
func (s *noteStore) MarkClosed(id string) error {
	return s.setStatus(id, NoteStatusClosed)
}

// Archive はノートをアーカイブします
func (s *noteStore) Archive(id string) error {
	return s.setStatus(id, NoteStatusArchived)
}

// Restore は閉じた/アーカイブ済みのノートを画面に戻します
func (s *noteStore) Restore(id string) error {
	return s.setStatus(id, NoteStatusActive)
}

// Delete はノートのファイルとインデックス項目を削除します
func (s *noteStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.notePath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete note %s: %w", id, err)
	}

	s.index.Notes = lo.Reject(s.index.Notes, func(item NoteSummary, _ int) bool {
		return item.ID == id
	})
	return s.saveIndexLocked()
}

// RefreshSummary はファイルの現在内容からインデックス項目を作り直します
// ノートファイルが外部から書き換えられたときの反映に使います
func (s *noteStore) RefreshSummary(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.loadRecordLocked(id)
	if err != nil {
		return err
	}
	s.upsertSummaryLocked(summaryFromRecord(record))
	return s.saveIndexLocked()
}

// NotesDir はノートファイルの保存先ディレクトリを返します
func (s *noteStore) NotesDir() string {
	return s.notesDir
}

// ------------------------------------------------------------
// 内部処理
// ------------------------------------------------------------

func (s *noteStore) setStatus(id string, status NoteStatus) error {
	if !ValidStatus(status) {
		return fmt.Errorf("unknown note status: %s", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.loadRecordLocked(id)
	if err != nil {
		return fmt.Errorf("load note %s: %w", id, err)
	}
	if record.Status == status {
		return nil
	}
	record.Status = status
	return s.saveRecordLocked(record)
}

func (s *noteStore) loadRecordLocked(id string) (*NoteRecord, error) {
	data, err := os.ReadFile(s.notePath(id))
	if err != nil {
		return nil, err
	}

	var record NoteRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse note %s: %w", id, err)
	}
	if record.ID == "" {
		record.ID = id
	}
	if record.Status == "" {
		record.Status = NoteStatusActive
	}
	return &record, nil
}

func (s *noteStore) saveRecordLocked(record *NoteRecord) error {
	record.Modified = time.Now()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	notePath := s.notePath(record.ID)
	if err := writeFileAtomic(notePath, data); err != nil {
		return fmt.Errorf("write note %s: %w", record.ID, err)
	}
	if s.onWrite != nil {
		s.onWrite(notePath, data)
	}

	s.upsertSummaryLocked(summaryFromRecord(record))
	return s.saveIndexLocked()
}

func (s *noteStore) upsertSummaryLocked(summary NoteSummary) {
	for i, existing := range s.index.Notes {
		if existing.ID == summary.ID {
			s.index.Notes[i] = summary
			return
		}
	}
	s.index.Notes = append(s.index.Notes, summary)
}

// loadIndex はインデックスをJSONファイルから読み込みます
// 壊れている場合は直前の世代から復旧し、それも無ければ空から再構築します
func (s *noteStore) loadIndex() error {
	indexPath := s.indexPath()

	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		s.index = &NoteIndex{
			Version:   indexVersion,
			Notes:     []NoteSummary{},
			LastSaved: time.Now(),
		}
		return s.saveIndexLocked()
	}

	data, err := os.ReadFile(indexPath)
	if err != nil {
		return err
	}

	var index NoteIndex
	if err := json.Unmarshal(data, &index); err != nil {
		if recovered, berr := s.loadIndexBackup(); berr == nil {
			s.index = recovered
			return nil
		}
		// syncIndexLocked が物理ファイルから作り直す
		s.index = &NoteIndex{Version: indexVersion, Notes: []NoteSummary{}}
		return nil
	}

	s.index = &index
	if s.index.Notes == nil {
		s.index.Notes = []NoteSummary{}
	}
	return nil
}

func (s *noteStore) loadIndexBackup() (*NoteIndex, error) {
	data, err := os.ReadFile(s.indexPath() + ".bak")
	if err != nil {
		return nil, err
	}
	var index NoteIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, err
	}
	if index.Notes == nil {
		index.Notes = []NoteSummary{}
	}
	return &index, nil
}

// saveIndexLocked はインデックスをJSONファイルとして保存します
func (s *noteStore) saveIndexLocked() error {
	s.index.Version = indexVersion
	s.index.LastSaved = time.Now()

	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return err
	}

	indexPath := s.indexPath()
	// 直前の世代を復旧用に残す
	if _, err := os.Stat(indexPath); err == nil {
		_ = os.Rename(indexPath, indexPath+".bak")
	}
	return writeFileAtomic(indexPath, data)
}

// syncIndexLocked は物理ファイルとインデックスの同期を行います
func (s *noteStore) syncIndexLocked() error {
	files, err := os.ReadDir(s.notesDir)
	if err != nil {
		return err
	}

	physicalNotes := make(map[string]bool)
	for _, file := range files {
		if filepath.Ext(file.Name()) != ".json" {
			continue
		}
		noteID := file.Name()[:len(file.Name())-5]
		physicalNotes[noteID] = true

		found := false
		for _, summary := range s.index.Notes {
			if summary.ID == noteID {
				found = true
				break
			}
		}
		if found {
			continue
		}

		// インデックスに無いノートはファイルから拾い直す
		record, err := s.loadRecordLocked(noteID)
		if err != nil {
			continue
		}
		s.index.Notes = append(s.index.Notes, summaryFromRecord(record))
	}

	// ファイルの無い項目はインデックスから外す
	s.index.Notes = lo.Filter(s.index.Notes, func(item NoteSummary, _ int) bool {
		return physicalNotes[item.ID]
	})

	return s.saveIndexLocked()
}

func (s *noteStore) notePath(id string) string {
	return filepath.Join(s.notesDir, id+".json")
}

func (s *noteStore) indexPath() string {
	return filepath.Join(filepath.Dir(s.notesDir), "noteList.json")
}

func summaryFromRecord(record *NoteRecord) NoteSummary {
	return NoteSummary{
		ID:          record.ID,
		Status:      record.Status,
		Modified:    record.Modified,
		Preview:     delta.Preview(record.Contents, previewLimit),
		Color:       record.Color,
		ContentHash: contentHash(record.Contents),
	}
}

func contentHash(contents string) string {
	h := sha256.New()
	h.Write([]byte(contents))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// writeFileAtomic は一時ファイル経由で書き込み、renameで置き換えます
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
