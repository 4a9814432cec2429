package backend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// バックアップファイル名のタイムスタンプ形式(辞書順=時刻順になる固定幅)
const backupTimestampLayout = "20060102_150405.000000000"

// バックアップ世代の一覧表示用メタデータ
type BackupInfo struct {
	Name string    `json:"name"`
	Time time.Time `json:"time"`
	Size int64     `json:"size"`
}

// BackupService はノートの世代バックアップを提供するインターフェースです
type BackupService interface {
	BackupCurrent(id string) error                     // 現在のノートファイルを世代コピーする
	ListBackups(id string) ([]BackupInfo, error)       // 世代を新しい順で返す
	LoadBackup(id string, name string) (*NoteRecord, error) // 指定世代のレコードを読み込む
	DeleteBackups(id string) error                     // ノートの全世代を削除する
}

// backupService はBackupServiceの実装です
// 上書きされる直前の内容を backups/<id>/ 以下に世代コピーとして残します
type backupService struct {
	appDataDir string
	notesDir   string
	retention  func() int
}

// NewBackupService は新しいbackupServiceインスタンスを作成します
func NewBackupService(appDataDir string, notesDir string, retention func() int) *backupService {
	return &backupService{
		appDataDir: appDataDir,
		notesDir:   notesDir,
		retention:  retention,
	}
}

// BackupCurrent は現在のノートファイルを世代コピーします
// ファイルが無い場合と、直近の世代から内容が変わっていない場合は何もしません
func (s *backupService) BackupCurrent(id string) error {
	keep := s.retention()
	if keep <= 0 {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(s.notesDir, id+".json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read note %s for backup: %w", id, err)
	}

	dir := s.backupDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	names, err := s.backupNames(id)
	if err != nil {
		return err
	}

	// 直近の世代と同じ内容なら世代を増やさない
	if len(names) > 0 {
		latest, err := os.ReadFile(filepath.Join(dir, names[len(names)-1]))
		if err == nil && xxhash.Sum64(latest) == xxhash.Sum64(data) {
			return nil
		}
	}

	name := time.Now().Format(backupTimestampLayout) + ".json"
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return fmt.Errorf("write backup for note %s: %w", id, err)
	}

	return s.prune(id, keep)
}

// ListBackups はノートのバックアップ世代を新しい順で返します
func (s *backupService) ListBackups(id string) ([]BackupInfo, error) {
	names, err := s.backupNames(id)
	if err != nil {
		return nil, err
	}

	infos := make([]BackupInfo, 0, len(names))
	// 新しい順
	for i := len(names) - 1; i >= 0; i-- {
		path := filepath.Join(s.backupDir(id), names[i])
		stat, err := os.Stat(path)
		if err != nil {
			continue
		}
		infos = append(infos, BackupInfo{
			Name: names[i],
			Time: stat.ModTime(),
			Size: stat.Size(),
		})
	}
	return infos, nil
}

// LoadBackup は指定世代のレコードを読み込みます
func (s *backupService) LoadBackup(id string, name string) (*NoteRecord, error) {
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid backup name: %s", name)
	}

	data, err := os.ReadFile(filepath.Join(s.backupDir(id), name))
	if err != nil {
		return nil, err
	}

	var record NoteRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse backup %s: %w", name, err)
	}
	if record.ID == "" {
		record.ID = id
	}
	return &record, nil
}

// DeleteBackups はノートの全バックアップ世代を削除します
func (s *backupService) DeleteBackups(id string) error {
	return os.RemoveAll(s.backupDir(id))
}

// prune は古い世代から削除して保持数に収めます
func (s *backupService) prune(id string, keep int) error {
	names, err := s.backupNames(id)
	if err != nil {
		return err
	}

	for len(names) > keep {
		oldest := names[0]
		if err := os.Remove(filepath.Join(s.backupDir(id), oldest)); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}

// backupNames は世代ファイル名を古い順で返します
func (s *backupService) backupNames(id string) ([]string, error) {
	entries, err := os.ReadDir(s.backupDir(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *backupService) backupDir(id string) string {
	return filepath.Join(s.appDataDir, "backups", id)
}
