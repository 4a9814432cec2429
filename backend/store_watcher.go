package backend

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
)

// 連続するファイルイベントをまとめる間隔
const watchDebounceInterval = 100 * time.Millisecond

// storeWatcher はノートディレクトリを監視し、外部ツールによる
// ノートファイルの書き換えを external_note_update として通知します。
// 自前の書き込みはハッシュ指紋の照合で読み飛ばします。
type storeWatcher struct {
	notesDir string
	store    *noteStore
	bus      eventBus
	logger   AppLogger

	ctx     context.Context
	cancel  context.CancelFunc
	watcher *fsnotify.Watcher

	mu           sync.Mutex
	fingerprints map[string]uint64
	timers       map[string]*time.Timer
}

// NewStoreWatcher は新しいstoreWatcherインスタンスを作成します
func NewStoreWatcher(notesDir string, store *noteStore, bus eventBus, logger AppLogger) *storeWatcher {
	return &storeWatcher{
		notesDir:     notesDir,
		store:        store,
		bus:          bus,
		logger:       logger,
		fingerprints: make(map[string]uint64),
		timers:       make(map[string]*time.Timer),
	}
}

// Start は監視を開始します
func (w *storeWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.notesDir); err != nil {
		watcher.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.ctx = runCtx
	w.cancel = cancel
	w.watcher = watcher

	// 自前の書き込みを指紋として記録しておく
	w.store.SetWriteObserver(w.recordOwnWrite)

	go w.run(runCtx)
	return nil
}

// Stop は監視を停止します
func (w *storeWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.watcher != nil {
		w.watcher.Close()
	}

	w.mu.Lock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
}

func (w *storeWatcher) recordOwnWrite(path string, data []byte) {
	w.mu.Lock()
	w.fingerprints[path] = xxhash.Sum64(data)
	w.mu.Unlock()
}

func (w *storeWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error(err, "store watcher error")
		}
	}
}

func (w *storeWatcher) handleEvent(event fsnotify.Event) {
	// 一時ファイル等はここで落ちる
	if !strings.HasSuffix(event.Name, ".json") {
		return
	}
	if event.Op == fsnotify.Chmod {
		return
	}

	// 同じファイルへの連続イベントをまとめる
	w.mu.Lock()
	if timer, ok := w.timers[event.Name]; ok {
		timer.Stop()
	}
	path := event.Name
	w.timers[path] = time.AfterFunc(watchDebounceInterval, func() {
		w.flushPath(path)
	})
	w.mu.Unlock()
}

// flushPath は落ち着いたファイルを読み、外部変更なら通知します
func (w *storeWatcher) flushPath(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	w.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			w.logger.Console("note file removed externally: %s", filepath.Base(path))
		}
		return
	}

	digest := xxhash.Sum64(data)
	w.mu.Lock()
	own := w.fingerprints[path] == digest
	if !own {
		w.fingerprints[path] = digest
	}
	w.mu.Unlock()
	if own {
		return
	}

	id := strings.TrimSuffix(filepath.Base(path), ".json")

	var record NoteRecord
	if err := json.Unmarshal(data, &record); err != nil {
		w.logger.Console("ignoring malformed note file: %s", filepath.Base(path))
		return
	}
	if record.ID == "" {
		record.ID = id
	}

	if err := w.store.RefreshSummary(id); err != nil {
		w.logger.Error(err, "refresh summary for %s", id)
	}
	w.logger.NotifyNotesUpdated(w.ctx)

	payload := ExternalUpdatePayload{ID: id, Contents: record.Contents}
	if record.Color != "" {
		color := record.Color
		payload.Color = &color
	}
	if isFinitePositive(record.Zoom) {
		zoom := record.Zoom
		payload.Zoom = &zoom
	}

	w.logger.Console("external change detected for note %s", id)
	w.bus.Emit(EventExternalNoteUpdate, payload)
}
