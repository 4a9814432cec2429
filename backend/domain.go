package backend

import (
	"context"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/menu"
)

// アプリケーションのメインの構造体
type App struct {
	ctx             *Context         // アプリケーションのコンテキスト
	appDataDir      string           // アプリケーションデータディレクトリのパス
	notesDir        string           // ノートファイル保存ディレクトリのパス
	store           *noteStore       // ノート永続化サービス
	settingsService *settingsService // 設定操作サービス
	backupService   *backupService   // バックアップ保持サービス
	windowService   *windowService   // 付箋ウィンドウ管理サービス
	anchorService   *anchorService   // 外部ウィンドウ追従サービス
	fileService     *fileService     // ファイル操作サービス
	storeWatcher    *storeWatcher    // ストア外部変更の監視
	bus             eventBus         // サービスとフロントエンドを結ぶイベントバス
	clock           Clock            // 保存タイマーと追従ループの時刻源
	frontendReady   chan struct{}    // フロントエンドの準備完了を通知するチャネル
	readyOnce       sync.Once        // frontendReadyを一度だけ閉じるための番
	menuBringAll    *menu.MenuItem   // メニューのチェック状態を設定と同期するための参照
	logger          AppLogger        // アプリケーションのロガー
}

// アプリケーションのコンテキストを管理
type Context struct {
	ctx             context.Context
	skipBeforeClose bool // アプリケーション終了前の保存処理をスキップするかどうか
}

// ノートの状態(表示中・閉じた・アーカイブ済み)
type NoteStatus string

const (
	NoteStatusActive   NoteStatus = "active"
	NoteStatusClosed   NoteStatus = "closed"
	NoteStatusArchived NoteStatus = "archived"
)

// ValidStatus は既知の状態値かどうかを返す
func ValidStatus(s NoteStatus) bool {
	switch s {
	case NoteStatusActive, NoteStatusClosed, NoteStatusArchived:
		return true
	}
	return false
}

// ノート1枚の保存内容(本文・見た目・ウィンドウ矩形)。
// JSON フィールド名は保存ファイルのワイヤ形式。
type Note struct {
	Color       string  `json:"color"`         // 背景色
	Contents    string  `json:"contents"`      // 直列化済み本文(delta JSON または生テキスト)
	X           int     `json:"x"`             // ウィンドウ左上 X(論理ピクセル)
	Y           int     `json:"y"`             // ウィンドウ左上 Y(論理ピクセル)
	Width       int     `json:"width"`         // ウィンドウ幅
	Height      int     `json:"height"`        // ウィンドウ高さ
	Zoom        float64 `json:"zoom"`          // ズーム倍率(既定 1.0)
	AlwaysOnTop bool    `json:"always_on_top"` // 最前面固定
}

// ノートの保存レコード(1ノート=1ファイル)。
// Note のフィールドはフラットに直列化される。
type NoteRecord struct {
	ID       string     `json:"id"`       // ノートの一意識別子
	Status   NoteStatus `json:"status"`   // ライフサイクル状態
	Modified time.Time  `json:"modified"` // 最終更新日時
	Note
}

// ノートのメタデータのみを保持(一覧・マネージャー表示用)
type NoteSummary struct {
	ID          string     `json:"id"`
	Status      NoteStatus `json:"status"`
	Modified    time.Time  `json:"modifiedTime"`
	Preview     string     `json:"preview"`     // 本文の先頭を平文で切り出したもの
	Color       string     `json:"color"`       // 背景色
	ContentHash string     `json:"contentHash"` // 本文のハッシュ(変更検出用)
}

// ノートのインデックスファイルの内容
type NoteIndex struct {
	Version   string        `json:"version"`
	Notes     []NoteSummary `json:"notes"`
	LastSaved time.Time     `json:"lastSaved"`
}

// アプリケーションの設定を管理
type Settings struct {
	Palette         []string `json:"palette"`         // 背景色パレット
	DefaultColor    string   `json:"defaultColor"`    // 新規ノートの背景色
	BringAllToFront bool     `json:"bringAllToFront"` // フォーカス時に全付箋を前面へ出すか
	BackupRetention int      `json:"backupRetention"` // ノートごとに保持するバックアップ世代数
	IsDebug         bool     `json:"isDebug"`
}

// ウィンドウ初期化ペイロード。フロントエンドの付箋ウィンドウ生成時に渡す。
// 保存済みノートの復元時は保存値、新規ノートは既定値が入る。
type NoteInit struct {
	ID          string  `json:"id"`
	Contents    string  `json:"contents"`
	Color       string  `json:"color"`
	Zoom        float64 `json:"zoom"`
	AlwaysOnTop bool    `json:"always_on_top"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Focused     bool    `json:"focused"`
}

// ウィンドウの矩形(論理ピクセル)
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center は矩形の中心座標を返す
func (r Rect) Center() (float64, float64) {
	return float64(r.X) + float64(r.Width)/2, float64(r.Y) + float64(r.Height)/2
}

// Contains は点が矩形内にあるかどうかを返す
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// overlap1D は区間 [aStart, aEnd) と [bStart, bEnd) の重なり幅を返す
func overlap1D(aStart, aEnd, bStart, bEnd int) int {
	lo := aStart
	if bStart > lo {
		lo = bStart
	}
	hi := aEnd
	if bEnd < hi {
		hi = bEnd
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// OverlapArea は2つの矩形の重なり面積を返す
func (r Rect) OverlapArea(o Rect) int {
	w := overlap1D(r.X, r.X+r.Width, o.X, o.X+o.Width)
	h := overlap1D(r.Y, r.Y+r.Height, o.Y, o.Y+o.Height)
	return w * h
}

type WailsConfig struct {
	Name           string `json:"name"`
	OutputFilename string `json:"outputfilename"`
	Info           struct {
		ProductVersion string `json:"productVersion"`
	} `json:"info"`
}
