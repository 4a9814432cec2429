package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
)

// anchorPollInterval は追従先ウィンドウの位置を見に行く間隔
const anchorPollInterval = 150 * time.Millisecond

// ExternalWindow は他アプリのオンスクリーンウィンドウ1枚
type ExternalWindow struct {
	ID    uint32
	Title string
	Owner string
	Rect  Rect
}

// AnchorService は付箋を他アプリのウィンドウに貼り付けて追従させるサービスを提供します
type AnchorService interface {
	AnchorToNearest(id string) (string, error)
	Unanchor(id string)
	Anchored(id string) bool
	StopAll()
}

// anchorState は追従中の付箋1枚分の状態
type anchorState struct {
	window  uint32
	title   string
	dx      int
	dy      int
	timer   ClockTimer
	stopped bool
}

type anchorService struct {
	notes  *windowService
	bus    eventBus
	clock  Clock
	logger AppLogger

	// 外部ウィンドウの列挙。対応しないOSでは nil(テストでは固定値に差し替える)
	windows func() []ExternalWindow

	mu      sync.Mutex
	anchors map[string]*anchorState
}

// NewAnchorService は新しいanchorServiceインスタンスを作成します
func NewAnchorService(notes *windowService, bus eventBus, clock Clock, logger AppLogger) *anchorService {
	return &anchorService{
		notes:   notes,
		bus:     bus,
		clock:   clock,
		logger:  logger,
		windows: platformWindowSource(),
		anchors: make(map[string]*anchorState),
	}
}

// AnchorToNearest は付箋にいちばん近いウィンドウへ貼り付け、そのタイトルを返します。
// 近さはウィンドウ中心同士の距離で測る
func (a *anchorService) AnchorToNearest(id string) (string, error) {
	if a.windows == nil {
		return "", fmt.Errorf("window anchoring is not supported on this platform")
	}

	rect, ok := a.notes.NoteRect(id)
	if !ok {
		return "", fmt.Errorf("note %s is not open", id)
	}

	candidates := a.windows()
	if len(candidates) == 0 {
		return "", fmt.Errorf("no window to anchor to")
	}

	target := lo.MinBy(candidates, func(w ExternalWindow, best ExternalWindow) bool {
		return centerDistance(rect, w.Rect) < centerDistance(rect, best.Rect)
	})

	a.detach(id)

	a.mu.Lock()
	a.anchors[id] = &anchorState{
		window: target.ID,
		title:  target.Title,
		dx:     rect.X - target.Rect.X,
		dy:     rect.Y - target.Rect.Y,
	}
	a.mu.Unlock()
	a.scheduleNextFollow(id)

	a.logger.Console("note %s anchored to window %q (%s)", id, target.Title, target.Owner)
	return target.Title, nil
}

// Unanchor は追従をやめ、その時点の位置を保存します
func (a *anchorService) Unanchor(id string) {
	if !a.detach(id) {
		return
	}
	if err := a.notes.RequestNoteSave(id, true); err != nil {
		a.logger.Error(err, "save after unanchor failed for note %s", id)
	}
	a.logger.Console("note %s unanchored", id)
}

// Anchored は付箋が追従中かどうかを返します
func (a *anchorService) Anchored(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.anchors[id]
	return ok
}

// StopAll は全付箋の追従を止めます(アプリ終了時)
func (a *anchorService) StopAll() {
	a.mu.Lock()
	ids := lo.Keys(a.anchors)
	a.mu.Unlock()

	for _, id := range ids {
		a.detach(id)
	}
}

// ------------------------------------------------------------
// 追従ループ
// ------------------------------------------------------------

func (a *anchorService) scheduleNextFollow(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.anchors[id]
	if !ok || st.stopped {
		return
	}
	st.timer = a.clock.AfterFunc(anchorPollInterval, func() {
		a.followOnce(id)
	})
}

// followOnce は追従先の現在位置を調べ、貼り付けたときの位置関係のまま付箋を動かします
func (a *anchorService) followOnce(id string) {
	a.mu.Lock()
	st, ok := a.anchors[id]
	if !ok || st.stopped {
		a.mu.Unlock()
		return
	}
	window, dx, dy := st.window, st.dx, st.dy
	a.mu.Unlock()

	target, found := lo.Find(a.windows(), func(w ExternalWindow) bool {
		return w.ID == window
	})
	if !found {
		// 追従先が閉じられた。追従をやめてフロントエンドに知らせる
		a.detach(id)
		a.logger.Console("anchor target window closed for note %s", id)
		a.bus.Emit(EventAnchorLost, NoteRef{ID: id})
		return
	}

	rect, open := a.notes.NoteRect(id)
	if !open {
		// 付箋側が閉じられた場合も追従をやめる
		a.detach(id)
		return
	}

	wantX, wantY := target.Rect.X+dx, target.Rect.Y+dy
	if rect.X != wantX || rect.Y != wantY {
		a.notes.MoveNote(id, wantX, wantY)
	}

	a.scheduleNextFollow(id)
}

// detach は追従状態を外す。追従していたら true を返す
func (a *anchorService) detach(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.anchors[id]
	if !ok {
		return false
	}
	st.stopped = true
	if st.timer != nil {
		st.timer.Stop()
	}
	delete(a.anchors, id)
	return true
}

// centerDistance は矩形中心同士の距離の2乗を返す(比較にしか使わないので平方根は取らない)
func centerDistance(a Rect, b Rect) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	dx, dy := ax-bx, ay-by
	return dx*dx + dy*dy
}
