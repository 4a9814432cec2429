package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// 付箋ウィンドウ配置の定数(論理ピクセル)
const (
	spawnGap          = 20 // 新規付箋のカスケード間隔
	visiblePadding    = 32 // 画面内に必ず残すつかみ代
	defaultNoteWidth  = 320
	defaultNoteHeight = 240
)

// noteHandle は開いている付箋1枚分のサービス側の台帳項目
type noteHandle struct {
	engine *NoteWindow
	proxy  *editorProxy
	rect   Rect
}

// windowService は開いている付箋ウィンドウの台帳を持ち、
// 生成・配置・整列・クローズと保存窓口(NoteSaver)を提供します。
// 保存時のジオメトリと最前面固定は台帳から合成するので、
// エンジンは本文・色・ズームのスナップショットだけを渡せばよい。
type windowService struct {
	store    *noteStore
	backup   *backupService
	settings SettingsService
	bus      eventBus
	clock    Clock
	logger   AppLogger

	// 画面矩形の供給元。実行時はWailsランタイム、テストでは固定値に差し替える
	screens func() []Rect

	ctx     context.Context
	mu      sync.RWMutex
	handles map[string]*noteHandle
	subs    subscriptions
}

// NewWindowService は新しいwindowServiceインスタンスを作成します
func NewWindowService(store *noteStore, backup *backupService, settings SettingsService,
	bus eventBus, clock Clock, logger AppLogger) *windowService {

	return &windowService{
		store:    store,
		backup:   backup,
		settings: settings,
		bus:      bus,
		clock:    clock,
		logger:   logger,
		handles:  make(map[string]*noteHandle),
	}
}

// Start はウィンドウシグナルの台帳反映を開始します
func (s *windowService) Start(ctx context.Context) {
	s.ctx = ctx
	if s.screens == nil {
		s.screens = s.runtimeScreens
	}

	s.subs.add(s.bus.Subscribe(EventWindowMoved, func(args ...interface{}) {
		var p MovedPayload
		if !decodePayload(args, &p) {
			return
		}
		s.mu.Lock()
		if h, ok := s.handles[p.ID]; ok {
			h.rect.X, h.rect.Y = p.X, p.Y
		}
		s.mu.Unlock()
	}))

	s.subs.add(s.bus.Subscribe(EventWindowResized, func(args ...interface{}) {
		var p ResizedPayload
		if !decodePayload(args, &p) {
			return
		}
		s.mu.Lock()
		if h, ok := s.handles[p.ID]; ok {
			h.rect.Width, h.rect.Height = p.Width, p.Height
		}
		s.mu.Unlock()
	}))
}

// Stop はサービス側の購読を解除します
func (s *windowService) Stop() {
	s.subs.release()
}

// ------------------------------------------------------------
// NoteSaver(エンジンから見た保存窓口)
// ------------------------------------------------------------

// SaveContents は本文・色・ズームに台帳のジオメトリを合成して全量保存します
func (s *windowService) SaveContents(id string, contents string, color string, zoom float64) error {
	s.mu.RLock()
	handle, ok := s.handles[id]
	var rect Rect
	if ok {
		rect = handle.rect
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("note %s is not open", id)
	}

	// 上書きされる世代を先に残す(失敗しても保存は続ける)
	if err := s.backup.BackupCurrent(id); err != nil {
		s.logger.Error(err, "backup before save failed for note %s", id)
	}

	record := &NoteRecord{
		ID:     id,
		Status: NoteStatusActive,
		Note: Note{
			Color:       color,
			Contents:    contents,
			X:           rect.X,
			Y:           rect.Y,
			Width:       rect.Width,
			Height:      rect.Height,
			Zoom:        zoom,
			AlwaysOnTop: handle.engine.AlwaysOnTop(),
		},
	}
	if err := s.store.SaveSticky(record); err != nil {
		return err
	}

	s.logger.NotifyNotesUpdated(s.ctx)
	return nil
}

// BringAllToFront は全付箋を前面へ出します(設定で無効化できる)
func (s *windowService) BringAllToFront() {
	if !s.settings.BringAllEnabled() {
		return
	}
	s.bus.Emit(EventWindowFrontAll)
	s.showHostWindow()
}

// ------------------------------------------------------------
// ウィンドウの生成・クローズ
// ------------------------------------------------------------

// OpenNote は保存レコードから付箋ウィンドウを開きます。
// 既に開いているノートはフォーカスだけを移します。
func (s *windowService) OpenNote(record *NoteRecord, focused bool) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("note id is required")
	}

	s.mu.Lock()
	if _, exists := s.handles[record.ID]; exists {
		s.mu.Unlock()
		s.bus.Emit(EventWindowSetFocus, NoteRef{ID: record.ID})
		return nil
	}

	rect := Rect{X: record.X, Y: record.Y, Width: record.Width, Height: record.Height}
	if rect.Width <= 0 {
		rect.Width = defaultNoteWidth
	}
	if rect.Height <= 0 {
		rect.Height = defaultNoteHeight
	}
	rect = s.ensureVisible(rect)

	proxy := newEditorProxy(record.ID, s.bus)
	host := &noteWindowHost{svc: s, id: record.ID}
	engine := NewNoteWindow(record.ID, record.Note, proxy, host, s, s.bus, s.clock, s.settings.Palette, s.logger)
	engine.bindEvents()
	for _, off := range proxy.bindEvents(engine.handleEditorReady) {
		engine.subs.add(off)
	}

	s.handles[record.ID] = &noteHandle{engine: engine, proxy: proxy, rect: rect}
	s.mu.Unlock()

	s.applyAlwaysOnTop()
	s.bus.Emit(EventWindowOpen, NoteInit{
		ID:          record.ID,
		Contents:    record.Contents,
		Color:       record.Color,
		Zoom:        engine.Zoom(),
		AlwaysOnTop: record.AlwaysOnTop,
		X:           rect.X,
		Y:           rect.Y,
		Width:       rect.Width,
		Height:      rect.Height,
		Focused:     focused,
	})
	return nil
}

// SpawnNote は新しい付箋をフォーカス中の付箋からずらした位置に開きます。
// レコードはまだ書き込まない(最初の保存で初めてファイルができる)。
func (s *windowService) SpawnNote() (*NoteRecord, error) {
	base := s.spawnBase()
	record := &NoteRecord{
		ID:     uuid.NewString(),
		Status: NoteStatusActive,
		Note: Note{
			Color:  s.settings.DefaultColor(),
			Zoom:   1.0,
			X:      base.X,
			Y:      base.Y,
			Width:  defaultNoteWidth,
			Height: defaultNoteHeight,
		},
	}
	if err := s.OpenNote(record, true); err != nil {
		return nil, err
	}
	return record, nil
}

// CloseNote は付箋を閉じます。未保存内容を書き切ってから closed に落とす
func (s *windowService) CloseNote(id string) error {
	s.mu.RLock()
	handle, ok := s.handles[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("note %s is not open", id)
	}

	// 一度も保存されていない空の付箋はファイルを作らずに消す
	discard := false
	if _, err := s.store.LoadSticky(id); err != nil && errors.Is(err, os.ErrNotExist) {
		doc := handle.proxy.Contents()
		if doc == nil || doc.Serialize() == "" {
			discard = true
		}
	}

	// 台帳から外す前に書き切る(保存窓口は台帳を参照する)
	if err := handle.engine.Teardown(!discard); err != nil {
		s.logger.ErrorWithNotify(err, "final save failed for note %s", id)
	}

	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()

	if !discard {
		if err := s.store.MarkClosed(id); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	s.bus.Emit(EventWindowClose, NoteRef{ID: id})
	s.applyAlwaysOnTop()
	s.logger.NotifyNotesUpdated(s.ctx)
	return nil
}

// DiscardNote は保存せずに付箋ウィンドウを閉じます(ノート削除用)
func (s *windowService) DiscardNote(id string) {
	s.mu.RLock()
	handle, ok := s.handles[id]
	s.mu.RUnlock()
	if !ok {
		return
	}

	if err := handle.engine.Teardown(false); err != nil {
		s.logger.Error(err, "teardown failed for note %s", id)
	}

	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()

	s.bus.Emit(EventWindowClose, NoteRef{ID: id})
	s.applyAlwaysOnTop()
}

// FlushAll は開いている全付箋の未保存内容を同期的に書き切ります
func (s *windowService) FlushAll() error {
	s.mu.RLock()
	engines := make([]*NoteWindow, 0, len(s.handles))
	for _, h := range s.handles {
		engines = append(engines, h.engine)
	}
	s.mu.RUnlock()

	var errs []error
	for _, engine := range engines {
		if err := engine.RequestSave(true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TeardownAll は全付箋のエンジンを破棄します(アプリ終了時)
func (s *windowService) TeardownAll(flush bool) {
	s.mu.RLock()
	handles := make(map[string]*noteHandle, len(s.handles))
	for id, h := range s.handles {
		handles[id] = h
	}
	s.mu.RUnlock()

	for id, h := range handles {
		if err := h.engine.Teardown(flush); err != nil {
			s.logger.Error(err, "teardown save failed for note %s", id)
		}
	}

	s.mu.Lock()
	s.handles = make(map[string]*noteHandle)
	s.mu.Unlock()
}

// ------------------------------------------------------------
// 配置・整列
// ------------------------------------------------------------

// SnapNote は付箋を寸法そのままで画面の端へ寄せます
func (s *windowService) SnapNote(id string, direction string) error {
	s.mu.RLock()
	handle, ok := s.handles[id]
	var rect Rect
	if ok {
		rect = handle.rect
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("note %s is not open", id)
	}

	screen, found := s.screenFor(rect)
	if !found {
		return nil
	}

	switch direction {
	case "left":
		rect.X = screen.X
	case "right":
		rect.X = screen.X + screen.Width - rect.Width
	case "up":
		rect.Y = screen.Y
	case "down":
		rect.Y = screen.Y + screen.Height - rect.Height
	default:
		return fmt.Errorf("unknown snap direction: %s", direction)
	}

	s.setNoteRect(id, rect)
	return handle.engine.RequestSave(false)
}

// PartialSnap は付箋を画面の半分を占めるレイアウトに合わせます
func (s *windowService) PartialSnap(id string, direction string) error {
	s.mu.RLock()
	handle, ok := s.handles[id]
	var rect Rect
	if ok {
		rect = handle.rect
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("note %s is not open", id)
	}

	screen, found := s.screenFor(rect)
	if !found {
		return nil
	}

	switch direction {
	case "left":
		rect = Rect{X: screen.X, Y: screen.Y, Width: screen.Width / 2, Height: screen.Height}
	case "right":
		rect = Rect{X: screen.X + screen.Width/2, Y: screen.Y, Width: screen.Width - screen.Width/2, Height: screen.Height}
	case "up":
		rect = Rect{X: screen.X, Y: screen.Y, Width: screen.Width, Height: screen.Height / 2}
	case "down":
		rect = Rect{X: screen.X, Y: screen.Y + screen.Height/2, Width: screen.Width, Height: screen.Height - screen.Height/2}
	default:
		return fmt.Errorf("unknown snap direction: %s", direction)
	}

	s.setNoteRect(id, rect)
	return handle.engine.RequestSave(false)
}

// FocusNext は空間順(上から下、左から右)で次の付箋へフォーカスを移します
func (s *windowService) FocusNext() {
	s.cycleFocus(false)
}

// FocusPrev は空間順を逆向きに巡回します
func (s *windowService) FocusPrev() {
	s.cycleFocus(true)
}

func (s *windowService) cycleFocus(reverse bool) {
	type entry struct {
		id      string
		rect    Rect
		focused bool
	}

	s.mu.RLock()
	entries := make([]entry, 0, len(s.handles))
	for id, h := range s.handles {
		entries = append(entries, entry{id: id, rect: h.rect, focused: h.engine.Focused()})
	}
	s.mu.RUnlock()
	if len(entries) == 0 {
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].rect.Y != entries[j].rect.Y {
			return entries[i].rect.Y < entries[j].rect.Y
		}
		if entries[i].rect.X != entries[j].rect.X {
			return entries[i].rect.X < entries[j].rect.X
		}
		return entries[i].id < entries[j].id
	})
	if reverse {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}

	next := entries[0]
	for i, e := range entries {
		if e.focused {
			next = entries[(i+1)%len(entries)]
			break
		}
	}
	s.bus.Emit(EventWindowSetFocus, NoteRef{ID: next.id})
}

// ResetPositions は開いている付箋を既定位置から斜めに並べ直します
func (s *windowService) ResetPositions() {
	type entry struct {
		id   string
		rect Rect
	}

	s.mu.RLock()
	entries := make([]entry, 0, len(s.handles))
	for id, h := range s.handles {
		entries = append(entries, entry{id: id, rect: h.rect})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].rect.Y != entries[j].rect.Y {
			return entries[i].rect.Y < entries[j].rect.Y
		}
		return entries[i].id < entries[j].id
	})

	for i, e := range entries {
		rect := Rect{
			X:      120 + i*spawnGap,
			Y:      120 + i*spawnGap,
			Width:  e.rect.Width,
			Height: e.rect.Height,
		}
		s.setNoteRect(e.id, rect)

		s.mu.RLock()
		handle, ok := s.handles[e.id]
		s.mu.RUnlock()
		if ok {
			handle.engine.RequestSave(false)
		}
	}
}

// SetAlwaysOnTop は付箋の最前面固定を切り替えて保存します
func (s *windowService) SetAlwaysOnTop(id string, onTop bool) error {
	s.mu.RLock()
	handle, ok := s.handles[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("note %s is not open", id)
	}

	handle.engine.setAlwaysOnTop(onTop)
	s.bus.Emit(EventWindowPinned, PinnedPayload{ID: id, Pinned: onTop})
	s.applyAlwaysOnTop()
	return handle.engine.RequestSave(true)
}

// RequestNoteSave は指定付箋の保存をエンジンに要求します
func (s *windowService) RequestNoteSave(id string, force bool) error {
	s.mu.RLock()
	handle, ok := s.handles[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("note %s is not open", id)
	}
	return handle.engine.RequestSave(force)
}

// MoveNote は付箋を指定座標へ動かします(追従ループなどバックエンド起点の移動)
func (s *windowService) MoveNote(id string, x, y int) {
	s.mu.Lock()
	h, ok := s.handles[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	h.rect.X, h.rect.Y = x, y
	rect := h.rect
	s.mu.Unlock()

	s.bus.Emit(EventWindowSetRect, RectPayload{ID: id, Rect: rect})
}

// ------------------------------------------------------------
// 照会
// ------------------------------------------------------------

// IsOpen は指定ノートのウィンドウが開いているかどうかを返します
func (s *windowService) IsOpen(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.handles[id]
	return ok
}

// NoteRect は開いている付箋の現在矩形を返します
func (s *windowService) NoteRect(id string) (Rect, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.handles[id]; ok {
		return h.rect, true
	}
	return Rect{}, false
}

// FocusedID は現在フォーカスされている付箋のIDを返します
func (s *windowService) FocusedID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, h := range s.handles {
		if h.engine.Focused() {
			return id, true
		}
	}
	return "", false
}

// Count は開いている付箋の枚数を返します
func (s *windowService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// ------------------------------------------------------------
// 内部処理
// ------------------------------------------------------------

// noteWindowHost は付箋1枚分の矩形操作の窓口。台帳の矩形が常に正とする
type noteWindowHost struct {
	svc *windowService
	id  string
}

func (h *noteWindowHost) Size() (int, int) {
	h.svc.mu.RLock()
	defer h.svc.mu.RUnlock()
	if handle, ok := h.svc.handles[h.id]; ok {
		return handle.rect.Width, handle.rect.Height
	}
	return 0, 0
}

func (h *noteWindowHost) SetSize(width, height int) {
	h.svc.mu.Lock()
	handle, ok := h.svc.handles[h.id]
	if !ok {
		h.svc.mu.Unlock()
		return
	}
	handle.rect.Width, handle.rect.Height = width, height
	rect := handle.rect
	h.svc.mu.Unlock()

	h.svc.bus.Emit(EventWindowSetRect, RectPayload{ID: h.id, Rect: rect})
}

func (s *windowService) setNoteRect(id string, rect Rect) {
	s.mu.Lock()
	h, ok := s.handles[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	h.rect = rect
	s.mu.Unlock()

	s.bus.Emit(EventWindowSetRect, RectPayload{ID: id, Rect: rect})
}

// spawnBase は新規付箋の基準位置。フォーカス中の付箋、無ければ任意の1枚からずらす
func (s *windowService) spawnBase() Rect {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var base *Rect
	for _, h := range s.handles {
		if h.engine.Focused() {
			r := h.rect
			base = &r
			break
		}
	}
	if base == nil {
		for _, h := range s.handles {
			r := h.rect
			base = &r
			break
		}
	}
	if base == nil {
		return Rect{X: 120, Y: 120}
	}
	return Rect{X: base.X + spawnGap, Y: base.Y + spawnGap}
}

// ensureVisible は矩形を画面内へ寄せます。
// 横はつかみ代が残る範囲、縦はタイトル帯が画面内に収まる範囲に収める
func (s *windowService) ensureVisible(rect Rect) Rect {
	if s.screens == nil {
		return rect
	}
	screens := s.screens()
	if len(screens) == 0 {
		return rect
	}

	target := screens[0]
	bestOverlap := -1
	for _, sc := range screens {
		if o := rect.OverlapArea(sc); o > bestOverlap {
			bestOverlap = o
			target = sc
		}
	}

	minX := target.X - rect.Width + visiblePadding
	maxX := target.X + target.Width - visiblePadding
	if rect.X < minX {
		rect.X = minX
	}
	if rect.X > maxX {
		rect.X = maxX
	}

	maxY := target.Y + target.Height - visiblePadding
	if rect.Y < target.Y {
		rect.Y = target.Y
	}
	if rect.Y > maxY {
		rect.Y = maxY
	}
	return rect
}

// screenFor は矩形ともっとも重なる画面を返します
func (s *windowService) screenFor(rect Rect) (Rect, bool) {
	if s.screens == nil {
		return Rect{}, false
	}
	screens := s.screens()
	if len(screens) == 0 {
		return Rect{}, false
	}

	target := screens[0]
	bestOverlap := -1
	for _, sc := range screens {
		if o := rect.OverlapArea(sc); o > bestOverlap {
			bestOverlap = o
			target = sc
		}
	}
	return target, true
}

// applyAlwaysOnTop はいずれかの付箋が固定中ならホストウィンドウ全体を最前面に固定します
func (s *windowService) applyAlwaysOnTop() {
	if s.logger.IsTestMode() || s.ctx == nil {
		return
	}

	s.mu.RLock()
	onTop := false
	for _, h := range s.handles {
		if h.engine.AlwaysOnTop() {
			onTop = true
			break
		}
	}
	s.mu.RUnlock()

	wailsRuntime.WindowSetAlwaysOnTop(s.ctx, onTop)
}

// showHostWindow はホストウィンドウを可視化して前面へ出します
func (s *windowService) showHostWindow() {
	if s.logger.IsTestMode() || s.ctx == nil {
		return
	}
	wailsRuntime.WindowUnminimise(s.ctx)
	wailsRuntime.Show(s.ctx)
}

// runtimeScreens はWailsランタイムから画面矩形を取り出します。
// ランタイムは画面の原点座標を公開しないため、現在の画面を原点 (0,0) として扱う
func (s *windowService) runtimeScreens() []Rect {
	if s.logger.IsTestMode() || s.ctx == nil {
		return nil
	}

	screens, err := wailsRuntime.ScreenGetAll(s.ctx)
	if err != nil {
		return nil
	}

	var rects []Rect
	for _, sc := range screens {
		if !sc.IsCurrent {
			continue
		}
		width, height := sc.Size.Width, sc.Size.Height
		if width == 0 || height == 0 {
			width, height = sc.Width, sc.Height
		}
		rects = append(rects, Rect{X: 0, Y: 0, Width: width, Height: height})
	}
	return rects
}
