package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"sticky-notes/backend/migration"
)

// NewContext は新しいContextインスタンスを作成します
func NewContext(ctx context.Context) *Context {
	return &Context{
		ctx:             ctx,
		skipBeforeClose: false,
	}
}

// SkipBeforeClose はBeforeClose処理のスキップフラグを設定します
func (c *Context) SkipBeforeClose(skip bool) {
	c.skipBeforeClose = skip
}

// ShouldSkipBeforeClose はBeforeClose処理をスキップすべきかどうかを返します
func (c *Context) ShouldSkipBeforeClose() bool {
	return c.skipBeforeClose
}

// NewApp は新しいAppインスタンスを作成します
func NewApp() *App {
	return &App{
		ctx:           NewContext(context.Background()),
		frontendReady: make(chan struct{}),
	}
}

// ------------------------------------------------------------
// アプリケーション関連の操作
// ------------------------------------------------------------

// アプリケーション起動時に呼び出される初期化関数
func (a *App) Startup(ctx context.Context) {
	a.ctx.ctx = ctx

	// アプリケーションデータディレクトリの設定
	appData, err := os.UserConfigDir()
	if err != nil {
		appData, err = os.UserHomeDir()
		if err != nil {
			appData = "."
		}
	}
	a.appDataDir = filepath.Join(appData, "sticky-notes")
	a.notesDir = filepath.Join(a.appDataDir, "notes")
	os.MkdirAll(a.notesDir, 0755)

	a.logger = NewAppLogger(ctx, false, a.appDataDir)
	a.logger.Console("appDataDir %s", a.appDataDir)

	if err := a.wireServices(ctx, newWailsEventBus(ctx), systemClock{}); err != nil {
		a.logger.ErrorWithNotify(err, "failed to initialize services")
		return
	}
	a.syncMenuState()

	// 保存済みの付箋はフロントエンドの準備ができてから開く
	go func() {
		<-a.frontendReady
		a.openStartupNotes()
	}()
}

// wireServices は各サービスを初期化して接続します
func (a *App) wireServices(ctx context.Context, bus eventBus, clock Clock) error {
	a.bus = bus
	a.clock = clock

	// 旧形式の保存データがあれば先にノート別ファイルへ変換する
	if migrated, err := migration.RunIfNeeded(a.appDataDir, a.notesDir); err != nil {
		a.logger.Error(err, "legacy store migration failed")
	} else if migrated {
		a.logger.Console("legacy store migrated to per-note files")
	}

	store, err := NewNoteStore(a.notesDir)
	if err != nil {
		return fmt.Errorf("initialize note store: %w", err)
	}
	a.store = store

	a.settingsService = NewSettingsService(a.appDataDir)
	a.backupService = NewBackupService(a.appDataDir, a.notesDir, a.settingsService.BackupRetention)

	a.windowService = NewWindowService(store, a.backupService, a.settingsService, bus, clock, a.logger)
	a.windowService.Start(ctx)

	a.storeWatcher = NewStoreWatcher(a.notesDir, store, bus, a.logger)
	if err := a.storeWatcher.Start(ctx); err != nil {
		a.logger.Error(err, "store watcher failed to start")
	}

	a.anchorService = NewAnchorService(a.windowService, bus, clock, a.logger)
	a.fileService = NewFileService(a.ctx, store, a.logger)
	return nil
}

// openStartupNotes は保存済みのactiveな付箋を開きます。1枚もなければ新規に1枚作る
func (a *App) openStartupNotes() {
	records, err := a.store.ActiveRecords()
	if err != nil {
		a.logger.Error(err, "failed to load notes on startup")
		return
	}

	if len(records) == 0 {
		if _, err := a.windowService.SpawnNote(); err != nil {
			a.logger.Error(err, "failed to create first note")
		}
		return
	}

	// 直近に触った付箋を最後に開いてフォーカスを渡す
	sort.Slice(records, func(i, j int) bool {
		return records[i].Modified.Before(records[j].Modified)
	})
	for i, record := range records {
		focused := i == len(records)-1
		if err := a.windowService.OpenNote(record, focused); err != nil {
			a.logger.Error(err, "failed to open note %s", record.ID)
		}
	}
}

func (a *App) DomReady(ctx context.Context) {
	a.markFrontendReady()
	if !a.logger.IsTestMode() {
		// ウィンドウ生成後でないと NSWindow への設定が効かない
		ApplyStickyWindowStyle()
		wailsRuntime.EventsEmit(ctx, EventBackendReady)
	}
}

// NotifyFrontendReady はフロントエンドの準備完了を通知する
func (a *App) NotifyFrontendReady() {
	a.markFrontendReady()
}

func (a *App) markFrontendReady() {
	a.readyOnce.Do(func() {
		close(a.frontendReady)
	})
}

// アプリケーション終了前に呼び出される処理
func (a *App) BeforeClose(ctx context.Context) (prevent bool) {
	if a.ctx.ShouldSkipBeforeClose() {
		return false
	}

	// フロントエンドに知らせてから全付箋を書き切る
	if !a.logger.IsTestMode() {
		wailsRuntime.EventsEmit(ctx, EventAppBeforeClose)
	}

	if a.anchorService != nil {
		a.anchorService.StopAll()
	}
	if a.storeWatcher != nil {
		a.storeWatcher.Stop()
	}
	if a.windowService != nil {
		if err := a.windowService.FlushAll(); err != nil {
			a.logger.Error(err, "final flush failed on shutdown")
		}
		a.windowService.TeardownAll(false)
		a.windowService.Stop()
	}
	return false
}

// アプリケーションを強制終了する
func (a *App) DestroyApp() {
	// BeforeCloseイベントをスキップしてアプリケーションを終了
	a.ctx.SkipBeforeClose(true)
	if !a.logger.IsTestMode() {
		wailsRuntime.Quit(a.ctx.ctx)
	}
}

// BringToFront brings the application window to front
func (a *App) BringToFront() {
	a.bus.Emit(EventWindowFrontAll)
	a.windowService.showHostWindow()
}

// ------------------------------------------------------------
// 付箋ウィンドウの操作
// ------------------------------------------------------------

// NewNote は新しい付箋を開く
func (a *App) NewNote() (*NoteRecord, error) {
	return a.windowService.SpawnNote()
}

// SaveContents は付箋の本文・色・ズームを保存する。位置と寸法は台帳の現在値が使われる
func (a *App) SaveContents(id string, contents string, color string, zoom float64) error {
	return a.windowService.SaveContents(id, contents, color, zoom)
}

// CloseWindow は付箋を閉じる。未保存の内容は書き切られる
func (a *App) CloseWindow(id string) error {
	return a.windowService.CloseNote(id)
}

// SetNoteAlwaysOnTop は付箋の最前面固定を切り替える
func (a *App) SetNoteAlwaysOnTop(id string, onTop bool) error {
	return a.windowService.SetAlwaysOnTop(id, onTop)
}

// BringAllToFront は全付箋をまとめて前面へ出す(設定で無効化できる)
func (a *App) BringAllToFront() {
	a.windowService.BringAllToFront()
}

// AnchorToNearest は付箋をいちばん近い他アプリのウィンドウに貼り付け、そのタイトルを返す
func (a *App) AnchorToNearest(id string) (string, error) {
	return a.anchorService.AnchorToNearest(id)
}

// Unanchor は付箋の追従をやめる
func (a *App) Unanchor(id string) {
	a.anchorService.Unanchor(id)
}

// SnapNote は付箋を画面の端に寄せる(direction: left/right/up/down)
func (a *App) SnapNote(id string, direction string) error {
	return a.windowService.SnapNote(id, direction)
}

// PartialSnapNote は付箋を画面の半分を占める形に合わせる(direction: left/right/up/down)
func (a *App) PartialSnapNote(id string, direction string) error {
	return a.windowService.PartialSnap(id, direction)
}

// FocusNextNote は空間順で次の付箋にフォーカスを移す
func (a *App) FocusNextNote() {
	a.windowService.FocusNext()
}

// FocusPreviousNote は空間順を逆向きに巡回する
func (a *App) FocusPreviousNote() {
	a.windowService.FocusPrev()
}

// ResetNotePositions は開いている付箋を既定位置に並べ直す
func (a *App) ResetNotePositions() {
	a.windowService.ResetPositions()
}

// FocusedNoteID は現在フォーカスされている付箋のIDを返す。なければ空文字列
func (a *App) FocusedNoteID() string {
	id, _ := a.windowService.FocusedID()
	return id
}

// SetNoteColor はパレット番号で付箋の色を変える
func (a *App) SetNoteColor(id string, index int) {
	a.bus.Emit(EventSetColor, SetColorPayload{ID: id, Index: index})
}

// ZoomNote は付箋のズームを変える(direction: in/out/reset)
func (a *App) ZoomNote(id string, direction string) {
	a.bus.Emit(EventZoom, ZoomPayload{ID: id, Direction: direction})
}

// FitNoteText は付箋の高さを本文に合わせる
func (a *App) FitNoteText(id string) {
	a.bus.Emit(EventFitText, NoteRef{ID: id})
}

// ------------------------------------------------------------
// ノート管理画面の操作
// ------------------------------------------------------------

// OpenNoteManagerWindow はノート管理画面を開く
func (a *App) OpenNoteManagerWindow() {
	a.bus.Emit(EventManagerOpen)
	a.windowService.showHostWindow()
}

// ListSavedNotes は全ステータスのノート一覧を返す
func (a *App) ListSavedNotes() ([]NoteSummary, error) {
	return a.store.ListStickies()
}

// RestoreNote は閉じた/アーカイブ済みの付箋を画面に戻す
func (a *App) RestoreNote(id string) error {
	if err := a.store.Restore(id); err != nil {
		return err
	}
	record, err := a.store.LoadSticky(id)
	if err != nil {
		return err
	}
	if err := a.windowService.OpenNote(record, true); err != nil {
		return err
	}
	a.logger.NotifyNotesUpdated(a.ctx.ctx)
	return nil
}

// ArchiveNote は付箋をアーカイブへ移す。開いていれば先に閉じる
func (a *App) ArchiveNote(id string) error {
	if a.windowService.IsOpen(id) {
		if err := a.windowService.CloseNote(id); err != nil {
			return err
		}
	}
	if err := a.store.Archive(id); err != nil {
		// 一度も保存されないまま破棄された付箋はアーカイブ対象にならない
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	a.logger.NotifyNotesUpdated(a.ctx.ctx)
	return nil
}

// DeleteNote は付箋を完全に削除する(バックアップも消す)
func (a *App) DeleteNote(id string) error {
	a.windowService.DiscardNote(id)
	if err := a.store.Delete(id); err != nil {
		return err
	}
	if err := a.backupService.DeleteBackups(id); err != nil {
		a.logger.Error(err, "failed to delete backups for note %s", id)
	}
	a.logger.NotifyNotesUpdated(a.ctx.ctx)
	return nil
}

// ListNoteBackups は付箋のバックアップ世代一覧を新しい順で返す
func (a *App) ListNoteBackups(id string) ([]BackupInfo, error) {
	return a.backupService.ListBackups(id)
}

// RestoreNoteBackup はバックアップ世代の内容を付箋に書き戻す。
// 開いている付箋の位置と寸法は書き戻しで動かさない
func (a *App) RestoreNoteBackup(id string, name string) error {
	record, err := a.backupService.LoadBackup(id, name)
	if err != nil {
		return err
	}

	if rect, open := a.windowService.NoteRect(id); open {
		record.X, record.Y = rect.X, rect.Y
		record.Width, record.Height = rect.Width, rect.Height
	}
	if current, err := a.store.LoadSticky(id); err == nil {
		record.Status = current.Status
	} else {
		record.Status = NoteStatusActive
	}

	// 書き戻しで消える現在の内容も世代として残す
	if err := a.backupService.BackupCurrent(id); err != nil {
		a.logger.Error(err, "backup before restore failed for note %s", id)
	}
	if err := a.store.SaveSticky(record); err != nil {
		return err
	}

	// 開いている付箋には外部更新として反映される
	payload := ExternalUpdatePayload{ID: id, Contents: record.Contents}
	if record.Color != "" {
		color := record.Color
		payload.Color = &color
	}
	if isFinitePositive(record.Zoom) {
		zoom := record.Zoom
		payload.Zoom = &zoom
	}
	a.bus.Emit(EventExternalNoteUpdate, payload)
	a.logger.NotifyNotesUpdated(a.ctx.ctx)
	return nil
}

// ------------------------------------------------------------
// ファイル操作
// ------------------------------------------------------------

// OpenNotesFolder はノート保存フォルダをOSのファイルマネージャで開く
func (a *App) OpenNotesFolder() error {
	return a.fileService.OpenNotesFolder()
}

// ExportNote は付箋の本文をテキストファイルとして書き出し、保存先のパスを返す
func (a *App) ExportNote(id string) (string, error) {
	return a.fileService.ExportNote(id)
}

// ------------------------------------------------------------
// 設定関連の操作
// ------------------------------------------------------------

// 設定を読み込む
func (a *App) LoadSettings() (*Settings, error) {
	return a.settingsService.LoadSettings()
}

// 設定を保存する
func (a *App) SaveSettings(settings *Settings) error {
	return a.settingsService.SaveSettings(settings)
}
