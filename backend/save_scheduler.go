package backend

import (
	"sync"
	"time"
)

// saveDebounceInterval はローカル編集の保存をまとめる静止期間
const saveDebounceInterval = 300 * time.Millisecond

// geometrySaveInterval は移動・リサイズ通知をまとめる短い静止期間
const geometrySaveInterval = 100 * time.Millisecond

// Clock はタイマー生成を抽象化する。テストでは手動クロックに差し替える
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) ClockTimer
}

// ClockTimer は armed タイマーのハンドル
type ClockTimer interface {
	Stop() bool
}

// systemClock は time パッケージをそのまま使う実装
type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, fn func()) ClockTimer {
	return time.AfterFunc(d, fn)
}

// saveScheduler は1ウィンドウ分の保存タイマー枠。
// 枠は常に1つで、新しい要求は必ず既存のタイマーを取り消してから積む。
// 発火時の flush は最新状態を読みに行く(予約時点の内容は持たない)。
type saveScheduler struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	timer    ClockTimer
	armed    bool
	flush    func() error // 発火時に呼ぶ永続化処理
	onError  func(error)  // デバウンス発火時の失敗の報告先
}

func newSaveScheduler(clock Clock, interval time.Duration, flush func() error, onError func(error)) *saveScheduler {
	return &saveScheduler{
		clock:    clock,
		interval: interval,
		flush:    flush,
		onError:  onError,
	}
}

// Schedule は静止期間後の保存を予約する。既存の予約は取り消される
func (s *saveScheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.armed = true
	s.timer = s.clock.AfterFunc(s.interval, s.fire)
}

// Cancel は予約済みの保存を取り消す。予約がなければ何もしない
func (s *saveScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

func (s *saveScheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed = false
}

// FireNow は予約を取り消して今すぐ同期的に保存し、結果を返す
func (s *saveScheduler) FireNow() error {
	s.Cancel()
	return s.flush()
}

// Armed は保存が予約されているかどうかを返す
func (s *saveScheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// fire はタイマー発火時の本体。取り消し済みなら何もしない
func (s *saveScheduler) fire() {
	s.mu.Lock()
	if !s.armed {
		s.mu.Unlock()
		return
	}
	s.armed = false
	s.timer = nil
	s.mu.Unlock()

	if err := s.flush(); err != nil && s.onError != nil {
		s.onError(err)
	}
}
