package backend

import (
	"fmt"
	"math"
	"sync"

	"github.com/bep/debounce"

	"sticky-notes/backend/delta"
)

// ズーム倍率の可動範囲と1段の刻み
const (
	zoomMin  = 0.5
	zoomMax  = 2.0
	zoomStep = 0.1
)

// NoteSaver は付箋エンジンから見たバックエンド窓口。
// SaveContents は常に全量スナップショットで、ストア側が呼び出し順の後勝ちを保証する。
type NoteSaver interface {
	SaveContents(id string, contents string, color string, zoom float64) error
	BringAllToFront()
}

// NoteWindow は付箋1枚分の同期エンジン。
// 編集面・保存タイマー枠・ジオメトリ調整・イベント購読を1枚分だけ所有し、
// ウィンドウ間で共有する可変状態を持たない。
type NoteWindow struct {
	id       string
	editor   Editor
	host     WindowHost
	saver    NoteSaver
	bus      eventBus
	logger   AppLogger
	palette  func() []string
	sched    *saveScheduler
	geometry *geometryController
	subs     subscriptions
	moveSave func(func()) // 移動・リサイズ通知の一次デバウンス

	initialContents string

	mu               sync.Mutex
	applyingExternal bool // 外部更新の適用中は保存予約を抑止する(インスタンス単位)
	focused          bool
	color            string
	zoom             float64
	alwaysOnTop      bool
}

// NewNoteWindow は付箋1枚分のエンジンを組み立てる。
// エディタの変更通知・保存タイマー・ジオメトリ調整はここで配線される。
func NewNoteWindow(id string, init Note, editor Editor, host WindowHost, saver NoteSaver,
	bus eventBus, clock Clock, palette func() []string, logger AppLogger) *NoteWindow {

	w := &NoteWindow{
		id:              id,
		editor:          editor,
		host:            host,
		saver:           saver,
		bus:             bus,
		logger:          logger,
		palette:         palette,
		initialContents: init.Contents,
		color:           init.Color,
		zoom:            init.Zoom,
		alwaysOnTop:     init.AlwaysOnTop,
		moveSave:        debounce.New(geometrySaveInterval),
	}
	if !isFinitePositive(w.zoom) {
		w.zoom = 1.0
	}
	w.sched = newSaveScheduler(clock, saveDebounceInterval, w.saveSnapshot, func(err error) {
		w.logger.Error(err, "debounced save failed for note %s", w.id)
	})
	w.geometry = newGeometryController(editor, host)
	editor.OnChange(w.handleLocalChange)
	return w
}

// handleLocalChange はエディタの変更通知。外部更新の適用中は保存予約だけを飛ばす。
// ジオメトリ調整は常に行う(新しい内容は高さが違うかもしれない)。
func (w *NoteWindow) handleLocalChange() {
	w.mu.Lock()
	suppressed := w.applyingExternal
	w.mu.Unlock()

	if !suppressed {
		w.RequestSave(false)
	}
	w.geometry.AfterContentChange()
}

// RequestSave は保存要求の入口。エディタ未初期化・ノート未確定なら何もしない。
// force=true は予約を取り消して即時に同期保存し、結果を返す。
// force=false は静止期間後の保存を予約する(既存の予約は取り消される)。
func (w *NoteWindow) RequestSave(force bool) error {
	if w.id == "" || w.editor == nil || !w.editor.Ready() {
		return nil
	}
	if force {
		return w.sched.FireNow()
	}
	w.sched.Schedule()
	return nil
}

// saveSnapshot は発火時点の最新状態を読み取って保存する。
// 予約時点の内容は使わない。
func (w *NoteWindow) saveSnapshot() error {
	contents := ""
	if doc := w.editor.Contents(); doc != nil {
		contents = doc.Serialize()
	}
	w.mu.Lock()
	color, zoom := w.color, w.zoom
	w.mu.Unlock()

	if err := w.saver.SaveContents(w.id, contents, color, zoom); err != nil {
		return fmt.Errorf("save note %s: %w", w.id, err)
	}
	return nil
}

// ApplyExternalUpdate は外部からの本文・見た目の置き換えを適用する。
// 適用中に発火する変更通知からは保存予約が発生しない(保存元への書き戻し防止)。
// エディタが未構築なら全体を取りやめる(最新状態しか意味を持たないので再試行不要)。
func (w *NoteWindow) ApplyExternalUpdate(contents string, color *string, zoom *float64) {
	if w.editor == nil || !w.editor.Ready() {
		return
	}

	w.mu.Lock()
	w.applyingExternal = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.applyingExternal = false
		w.mu.Unlock()
	}()

	if delta.IsMeaningful(contents) {
		if doc, err := delta.Parse(contents); err == nil {
			w.editor.SetContents(doc)
		} else {
			// ドキュメントとして読めない内容は平文として流し込む(旧形式の取り込み)
			w.editor.SetText(contents)
		}
	} else {
		w.editor.Clear()
	}

	if color != nil {
		w.applyColor(*color)
	}
	if zoom != nil && isFinitePositive(*zoom) {
		w.applyZoom(*zoom)
	}
}

// handleEditorReady はエディタ初期化完了後の初期内容の流し込み。
// 意味のある内容のときだけ書き込む(空のドキュメントを一瞬表示させない)。
// 外部更新と同じ経路なので初回描画から保存が予約されることはない。
func (w *NoteWindow) handleEditorReady() {
	if delta.IsMeaningful(w.initialContents) {
		w.ApplyExternalUpdate(w.initialContents, nil, nil)
	}
}

// applyColor は背景色の更新をフロントエンドへ反映する(保存はしない)
func (w *NoteWindow) applyColor(color string) {
	w.mu.Lock()
	w.color = color
	w.mu.Unlock()
	w.bus.Emit(EventWindowApplyColor, ColorAppliedPayload{ID: w.id, Color: color})
}

// applyZoom はズーム倍率の更新をフロントエンドへ反映する(保存はしない)
func (w *NoteWindow) applyZoom(zoom float64) {
	w.mu.Lock()
	w.zoom = zoom
	w.mu.Unlock()
	w.bus.Emit(EventWindowApplyZoom, ZoomAppliedPayload{ID: w.id, Zoom: zoom})
}

// HandleZoom はズーム操作を適用して強制保存する。倍率は [0.5, 2.0] に収める
func (w *NoteWindow) HandleZoom(direction string) error {
	w.mu.Lock()
	z := w.zoom
	switch direction {
	case "in":
		z += zoomStep
	case "out":
		z -= zoomStep
	case "reset":
		z = 1.0
	default:
		w.mu.Unlock()
		w.logger.Console("unknown zoom direction: %q", direction)
		return nil
	}
	z = math.Round(z*10) / 10
	if z < zoomMin {
		z = zoomMin
	}
	if z > zoomMax {
		z = zoomMax
	}
	w.zoom = z
	w.mu.Unlock()

	w.bus.Emit(EventWindowApplyZoom, ZoomAppliedPayload{ID: w.id, Zoom: z})
	return w.RequestSave(true)
}

// SetColorIndex はパレット番号で背景色を変えて強制保存する。範囲外の番号は無視
func (w *NoteWindow) SetColorIndex(index int) error {
	colors := w.palette()
	if index < 0 || index >= len(colors) {
		w.logger.Console("color index out of range: %d", index)
		return nil
	}
	w.applyColor(colors[index])
	return w.RequestSave(true)
}

// FitText は本文の自然な高さにウィンドウを合わせ、新しい寸法の保存を予約する
func (w *NoteWindow) FitText() {
	w.geometry.FitToContent()
	w.RequestSave(false)
}

// Teardown は購読とタイマー枠を破棄する。flush=true なら先に強制保存し、その結果を返す。
// 破棄後の編集通知が保存を予約し直さないよう、変更通知の受け手も外す
func (w *NoteWindow) Teardown(flush bool) error {
	var err error
	if flush {
		err = w.RequestSave(true)
	}
	w.subs.release()
	w.editor.OnChange(nil)
	w.sched.Cancel()
	return err
}

func (w *NoteWindow) ID() string {
	return w.id
}

func (w *NoteWindow) Color() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.color
}

func (w *NoteWindow) Zoom() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.zoom
}

func (w *NoteWindow) Focused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focused
}

func (w *NoteWindow) AlwaysOnTop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alwaysOnTop
}

func (w *NoteWindow) setAlwaysOnTop(onTop bool) {
	w.mu.Lock()
	w.alwaysOnTop = onTop
	w.mu.Unlock()
}

func isFinitePositive(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}
