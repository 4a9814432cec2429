package backend

import (
	"context"
	"encoding/json"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// バックエンドと付箋ウィンドウの間で流れるイベント名。
// snake_case の名前は保存プロトコル由来の既存契約、コロン区切りはアプリ内部の通知。
const (
	EventSaveRequest        = "save_request"         // 全ウィンドウへ: 強制保存要求
	EventExternalNoteUpdate = "external_note_update" // 対象ノートへ: 外部からの本文置き換え
	EventSetColor           = "set_color"            // 対象ノートへ: パレット番号で背景色変更
	EventZoom               = "zoom"                 // 対象ノートへ: "in" | "out" | "reset"
	EventFitText            = "fit_text"             // 対象ノートへ: 本文の高さに合わせてリサイズ
	EventAnchorLost         = "anchor_lost"          // 対象ノートへ: 追従先ウィンドウの消失

	EventWindowOpen           = "window:open"      // フロントエンドへ: 付箋ウィンドウ生成
	EventWindowClose          = "window:close"     // フロントエンドへ: 付箋ウィンドウ破棄
	EventWindowSetRect        = "window:set_rect"  // フロントエンドへ: 矩形の適用
	EventWindowSetFocus       = "window:set_focus" // フロントエンドへ: フォーカス移動
	EventWindowApplyColor     = "window:color"     // フロントエンドへ: 背景色の適用
	EventWindowApplyZoom      = "window:zoom"      // フロントエンドへ: ズーム倍率の適用
	EventWindowFrontAll       = "window:front_all" // フロントエンドへ: 全付箋を前面に
	EventWindowPinned         = "window:pinned"    // フロントエンドへ: 最前面固定の切り替え
	EventWindowFocus          = "window:focus"     // フロントエンドから: フォーカス取得
	EventWindowBlur           = "window:blur"      // フロントエンドから: フォーカス喪失
	EventWindowMoved          = "window:moved"     // フロントエンドから: 移動後の座標
	EventWindowResized        = "window:resized"   // フロントエンドから: リサイズ後の寸法
	EventWindowHidden         = "window:hidden"    // フロントエンドから: 非表示・アンロード直前
	EventEditorReady          = "editor:ready"     // フロントエンドから: エディタ初期化完了
	EventEditorChanged        = "editor:changed"   // フロントエンドから: ローカル編集の反映
	EventEditorApply          = "editor:apply"     // フロントエンドへ: 本文の置き換え
	EventEditorClearSelection = "editor:clear_selection"
	EventEditorMinHeight      = "editor:min_height"

	EventNotesUpdated   = "notes:updated" // マネージャーへ: 一覧の再読込
	EventManagerOpen    = "manager:open"
	EventAppBeforeClose = "app:beforeclose"
	EventBackendReady   = "backend:ready"
)

// NoteRef は対象ノートだけを指すペイロード
type NoteRef struct {
	ID string `json:"id"`
}

// ExternalUpdatePayload は外部からの本文置き換え。
// Color と Zoom は省略可(nil なら現状維持)。
type ExternalUpdatePayload struct {
	ID       string   `json:"id"`
	Contents string   `json:"contents"`
	Color    *string  `json:"color,omitempty"`
	Zoom     *float64 `json:"zoom,omitempty"`
}

// SetColorPayload はパレット番号による背景色変更
type SetColorPayload struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
}

// ZoomPayload はズーム操作("in" | "out" | "reset")
type ZoomPayload struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
}

// MovedPayload はウィンドウ移動後の左上座標
type MovedPayload struct {
	ID string `json:"id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
}

// ResizedPayload はウィンドウリサイズ後の寸法
type ResizedPayload struct {
	ID     string `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ColorAppliedPayload は確定した背景色の通知
type ColorAppliedPayload struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

// ZoomAppliedPayload は確定したズーム倍率の通知
type ZoomAppliedPayload struct {
	ID   string  `json:"id"`
	Zoom float64 `json:"zoom"`
}

// RectPayload は適用すべきウィンドウ矩形
type RectPayload struct {
	ID string `json:"id"`
	Rect
}

// PinnedPayload は最前面固定の切り替え通知
type PinnedPayload struct {
	ID     string `json:"id"`
	Pinned bool   `json:"pinned"`
}

// EditorApplyPayload はエディタへ流し込む直列化済み本文。
// 空文字列はエディタを空にする指示。
type EditorApplyPayload struct {
	ID       string `json:"id"`
	Contents string `json:"contents"`
}

// MinHeightPayload は最小高さ制約の切り替え(Relaxed=true で解除)
type MinHeightPayload struct {
	ID      string `json:"id"`
	Relaxed bool   `json:"relaxed"`
}

// ------------------------------------------------------------
// イベントバス
// ------------------------------------------------------------

// eventBus は Wails のイベント配送を抽象化する。テストではメモリ内実装に差し替える
type eventBus interface {
	Emit(name string, payload ...interface{})
	Subscribe(name string, handler func(payload ...interface{})) func()
}

// wailsEventBus は実行時の Wails ランタイムに委譲する実装
type wailsEventBus struct {
	ctx context.Context
}

func newWailsEventBus(ctx context.Context) *wailsEventBus {
	return &wailsEventBus{ctx: ctx}
}

func (b *wailsEventBus) Emit(name string, payload ...interface{}) {
	wailsRuntime.EventsEmit(b.ctx, name, payload...)
}

func (b *wailsEventBus) Subscribe(name string, handler func(payload ...interface{})) func() {
	return wailsRuntime.EventsOn(b.ctx, name, handler)
}

// subscriptions は購読解除関数をまとめて保持し、破棄時に一括解除する
type subscriptions struct {
	offs []func()
}

func (s *subscriptions) add(off func()) {
	s.offs = append(s.offs, off)
}

func (s *subscriptions) release() {
	for _, off := range s.offs {
		if off != nil {
			off()
		}
	}
	s.offs = nil
}

// decodePayload はイベント引数の先頭要素を v に復元する。
// フロントエンド由来の map と Go 側から渡した構造体の両方を JSON 経由で受ける。
func decodePayload(args []interface{}, v interface{}) bool {
	if len(args) == 0 || args[0] == nil {
		return false
	}
	b, err := json.Marshal(args[0])
	if err != nil {
		return false
	}
	return json.Unmarshal(b, v) == nil
}
