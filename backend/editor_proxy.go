package backend

import (
	"sync"

	"sticky-notes/backend/delta"
)

// EditorMetrics はエディタの計測値(CSS 論理ピクセル)。
// ContentHeight は最小高さ制約なしで測った自然な内容の高さ。
type EditorMetrics struct {
	ScrollHeight  float64 `json:"scrollHeight"`
	ClientHeight  float64 `json:"clientHeight"`
	ContentHeight float64 `json:"contentHeight"`
}

// EditorChangedPayload はフロントエンドからのローカル編集通知
type EditorChangedPayload struct {
	ID       string        `json:"id"`
	Contents string        `json:"contents"`
	Metrics  EditorMetrics `json:"metrics"`
}

// Editor は付箋1枚の編集面。エンジンはこの窓口経由でのみ編集面に触れる。
// プログラムからの置き換え(SetContents / SetText / Clear)でも変更通知が発火する。
type Editor interface {
	Ready() bool
	Contents() *delta.Document
	SetContents(doc *delta.Document)
	SetText(text string)
	Clear()
	ClearSelection()
	Metrics() EditorMetrics
	RelaxMinHeight()
	RestoreMinHeight()
	OnChange(fn func())
}

// editorProxy はフロントエンドのエディタ状態をバックエンド側に鏡映しする実装。
// 編集はイベントで反映され、操作はイベントで送り返す。
type editorProxy struct {
	id  string
	bus eventBus

	mu       sync.RWMutex
	ready    bool
	doc      *delta.Document
	metrics  EditorMetrics
	onChange func()
}

func newEditorProxy(id string, bus eventBus) *editorProxy {
	return &editorProxy{id: id, bus: bus}
}

func (e *editorProxy) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// markReady はエディタ初期化完了の通知を受けた印をつける
func (e *editorProxy) markReady() {
	e.mu.Lock()
	e.ready = true
	if e.doc == nil {
		e.doc = &delta.Document{Ops: []delta.Op{}}
	}
	e.mu.Unlock()
}

// applyFrontendChange はローカル編集の反映。直列化本文と計測値を取り込み、変更通知を発火する
func (e *editorProxy) applyFrontendChange(contents string, m EditorMetrics) {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return
	}
	if d, err := delta.Parse(contents); err == nil {
		e.doc = d
	} else {
		e.doc = delta.FromText(contents)
	}
	e.metrics = m
	fn := e.onChange
	e.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// updateMetrics は計測値のみの更新(変更通知は発火しない)
func (e *editorProxy) updateMetrics(m EditorMetrics) {
	e.mu.Lock()
	e.metrics = m
	e.mu.Unlock()
}

func (e *editorProxy) Contents() *delta.Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.doc
}

// SetContents はドキュメントを全置き換えし、フロントエンドへ流し込む
func (e *editorProxy) SetContents(doc *delta.Document) {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return
	}
	e.doc = doc
	fn := e.onChange
	e.mu.Unlock()

	e.bus.Emit(EventEditorApply, EditorApplyPayload{ID: e.id, Contents: doc.Serialize()})
	if fn != nil {
		fn()
	}
}

// SetText は生テキストを単一挿入として流し込む(非ドキュメント入力のフォールバック)
func (e *editorProxy) SetText(text string) {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return
	}
	e.doc = delta.FromText(text)
	fn := e.onChange
	e.mu.Unlock()

	// フロントエンドは復号に失敗した contents を平文挿入として扱う
	e.bus.Emit(EventEditorApply, EditorApplyPayload{ID: e.id, Contents: text})
	if fn != nil {
		fn()
	}
}

// Clear はエディタを空ドキュメントにする
func (e *editorProxy) Clear() {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return
	}
	e.doc = &delta.Document{Ops: []delta.Op{}}
	fn := e.onChange
	e.mu.Unlock()

	e.bus.Emit(EventEditorApply, EditorApplyPayload{ID: e.id, Contents: ""})
	if fn != nil {
		fn()
	}
}

func (e *editorProxy) ClearSelection() {
	if !e.Ready() {
		return
	}
	e.bus.Emit(EventEditorClearSelection, NoteRef{ID: e.id})
}

func (e *editorProxy) Metrics() EditorMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metrics
}

func (e *editorProxy) RelaxMinHeight() {
	e.bus.Emit(EventEditorMinHeight, MinHeightPayload{ID: e.id, Relaxed: true})
}

func (e *editorProxy) RestoreMinHeight() {
	e.bus.Emit(EventEditorMinHeight, MinHeightPayload{ID: e.id, Relaxed: false})
}

// OnChange はローカル変更通知の受け手を登録する(1個のみ)
func (e *editorProxy) OnChange(fn func()) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// bindEvents はフロントエンドからの編集・初期化イベントを購読する。
// onReady は最初の初期化完了時に一度だけ呼ばれる。返り値は購読解除関数。
func (e *editorProxy) bindEvents(onReady func()) []func() {
	offReady := e.bus.Subscribe(EventEditorReady, func(args ...interface{}) {
		var p NoteRef
		if !decodePayload(args, &p) || p.ID != e.id {
			return
		}
		already := e.Ready()
		e.markReady()
		if !already && onReady != nil {
			onReady()
		}
	})
	offChanged := e.bus.Subscribe(EventEditorChanged, func(args ...interface{}) {
		var p EditorChangedPayload
		if !decodePayload(args, &p) || p.ID != e.id {
			return
		}
		e.applyFrontendChange(p.Contents, p.Metrics)
	})
	return []func(){offReady, offChanged}
}
