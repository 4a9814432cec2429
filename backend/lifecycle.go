package backend

// 付箋ウィンドウ1枚分のシグナル対応:
//   focus          → フォーカス印 + 仲間の付箋を前面へ
//   blur           → 選択解除 + 強制保存(失敗は利用者に通知)
//   moved/resized  → 短いデバウンスの後に通常保存
//   hidden         → 強制保存(プロセス終了間際の最終保証)
//   save_request   → 強制保存
//   external_note_update / set_color / zoom / fit_text → 各ハンドラ

// bindEvents はこの付箋が反応するイベント購読を一括で張る。
// 解除ハンドルはまとめて保持され、Teardown で必ず解放される。
func (w *NoteWindow) bindEvents() {
	w.subs.add(w.bus.Subscribe(EventSaveRequest, func(_ ...interface{}) {
		if err := w.RequestSave(true); err != nil {
			w.logger.Error(err, "forced save failed for note %s", w.id)
		}
	}))

	w.subs.add(w.bus.Subscribe(EventExternalNoteUpdate, func(args ...interface{}) {
		var p ExternalUpdatePayload
		if !decodePayload(args, &p) || p.ID != w.id {
			return
		}
		w.ApplyExternalUpdate(p.Contents, p.Color, p.Zoom)
	}))

	w.subs.add(w.bus.Subscribe(EventSetColor, func(args ...interface{}) {
		var p SetColorPayload
		if !decodePayload(args, &p) || p.ID != w.id {
			return
		}
		if err := w.SetColorIndex(p.Index); err != nil {
			w.logger.Error(err, "save after color change failed for note %s", w.id)
		}
	}))

	w.subs.add(w.bus.Subscribe(EventZoom, func(args ...interface{}) {
		var p ZoomPayload
		if !decodePayload(args, &p) || p.ID != w.id {
			return
		}
		if err := w.HandleZoom(p.Direction); err != nil {
			w.logger.Error(err, "save after zoom change failed for note %s", w.id)
		}
	}))

	w.subs.add(w.bus.Subscribe(EventFitText, func(args ...interface{}) {
		var p NoteRef
		if !decodePayload(args, &p) || p.ID != w.id {
			return
		}
		w.FitText()
	}))

	w.subs.add(w.bus.Subscribe(EventWindowFocus, func(args ...interface{}) {
		var p NoteRef
		if !decodePayload(args, &p) || p.ID != w.id {
			return
		}
		w.handleFocus()
	}))

	w.subs.add(w.bus.Subscribe(EventWindowBlur, func(args ...interface{}) {
		var p NoteRef
		if !decodePayload(args, &p) || p.ID != w.id {
			return
		}
		w.handleBlur()
	}))

	w.subs.add(w.bus.Subscribe(EventWindowMoved, func(args ...interface{}) {
		var p MovedPayload
		if !decodePayload(args, &p) || p.ID != w.id {
			return
		}
		w.handleGeometryChanged()
	}))

	w.subs.add(w.bus.Subscribe(EventWindowResized, func(args ...interface{}) {
		var p ResizedPayload
		if !decodePayload(args, &p) || p.ID != w.id {
			return
		}
		w.handleGeometryChanged()
	}))

	w.subs.add(w.bus.Subscribe(EventWindowHidden, func(args ...interface{}) {
		var p NoteRef
		if !decodePayload(args, &p) || p.ID != w.id {
			return
		}
		w.handleHidden()
	}))
}

// handleFocus はフォーカス取得。仲間の付箋を前に出すかどうかは窓口側の設定に従う
func (w *NoteWindow) handleFocus() {
	w.mu.Lock()
	w.focused = true
	w.mu.Unlock()
	w.saver.BringAllToFront()
}

// handleBlur はフォーカス喪失。選択を解除し、未保存内容を書き切る。
// ここでの保存失敗は未保存データが残る状況なので利用者に通知する。
func (w *NoteWindow) handleBlur() {
	w.mu.Lock()
	w.focused = false
	w.mu.Unlock()

	w.editor.ClearSelection()
	if err := w.RequestSave(true); err != nil {
		w.logger.ErrorWithNotify(err, "save on blur failed for note %s", w.id)
	}
}

// handleGeometryChanged は移動・リサイズの通知。
// ドラッグ中の連続イベントを短くまとめてから通常の保存経路に乗せる
func (w *NoteWindow) handleGeometryChanged() {
	w.moveSave(func() {
		w.RequestSave(false)
	})
}

// handleHidden は非表示・アンロード直前の最終保存
func (w *NoteWindow) handleHidden() {
	if err := w.RequestSave(true); err != nil {
		w.logger.Error(err, "save on hide failed for note %s", w.id)
	}
}
