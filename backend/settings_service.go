package backend

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// defaultBackupRetention はノートごとに保持するバックアップ世代数の既定値
const defaultBackupRetention = 20

// 付箋の背景色パレットの既定値
func defaultPalette() []string {
	return []string{"#fff7ad", "#ffd6a5", "#d4f7c5", "#c5e8f7", "#f7c5e8", "#ededed"}
}

// SettingsService は設定関連の操作を提供するインターフェースです
type SettingsService interface {
	LoadSettings() (*Settings, error)
	SaveSettings(settings *Settings) error
	Palette() []string
	DefaultColor() string
	BringAllEnabled() bool
	BackupRetention() int
}

// settingsService はSettingsServiceの実装です
type settingsService struct {
	appDataDir string
}

// NewSettingsService は新しいsettingsServiceインスタンスを作成します
func NewSettingsService(appDataDir string) *settingsService {
	return &settingsService{
		appDataDir: appDataDir,
	}
}

// LoadSettings はsettings.jsonから設定を読み込みます
// ファイルが存在しない場合はデフォルト設定を返します
func (s *settingsService) LoadSettings() (*Settings, error) {
	settingsPath := filepath.Join(s.appDataDir, "settings.json")

	// ファイルが存在しない場合はデフォルト設定を返す
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		palette := defaultPalette()
		return &Settings{
			Palette:         palette,
			DefaultColor:    palette[0],
			BringAllToFront: true,
			BackupRetention: defaultBackupRetention,
			IsDebug:         false,
		}, nil
	}

	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, err
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}

	// パレットが空の設定ファイルは既定パレットへ寄せる
	if len(settings.Palette) == 0 {
		settings.Palette = defaultPalette()
	}
	if settings.DefaultColor == "" {
		settings.DefaultColor = settings.Palette[0]
	}

	// 古いsettings.jsonで未定義の項目には既定値を適用する
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err == nil {
		if _, exists := raw["bringAllToFront"]; !exists {
			settings.BringAllToFront = true
		}
		if _, exists := raw["backupRetention"]; !exists {
			settings.BackupRetention = defaultBackupRetention
		}
	}
	if settings.BackupRetention < 0 {
		settings.BackupRetention = 0
	}

	return &settings, nil
}

// SaveSettings は設定をsettings.jsonに保存します
func (s *settingsService) SaveSettings(settings *Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	settingsPath := filepath.Join(s.appDataDir, "settings.json")
	return os.WriteFile(settingsPath, data, 0644)
}

// Palette は現在の背景色パレットを返す(読めないときは既定値)
func (s *settingsService) Palette() []string {
	settings, err := s.LoadSettings()
	if err != nil {
		return defaultPalette()
	}
	return settings.Palette
}

// DefaultColor は新規ノートの背景色を返す
func (s *settingsService) DefaultColor() string {
	settings, err := s.LoadSettings()
	if err != nil {
		return defaultPalette()[0]
	}
	return settings.DefaultColor
}

// BringAllEnabled はフォーカス時に全付箋を前面へ出す設定かどうかを返す
func (s *settingsService) BringAllEnabled() bool {
	settings, err := s.LoadSettings()
	if err != nil {
		return true
	}
	return settings.BringAllToFront
}

// BackupRetention はノートごとのバックアップ保持世代数を返す
func (s *settingsService) BackupRetention() int {
	settings, err := s.LoadSettings()
	if err != nil {
		return defaultBackupRetention
	}
	return settings.BackupRetention
}
