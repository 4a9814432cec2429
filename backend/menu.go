package backend

import (
	"fmt"
	"runtime"

	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// ApplicationMenu は付箋アプリのネイティブメニューを組み立てる。
// 付箋を対象にする項目はフォーカス中の1枚へ作用し、どの項目も実行後に
// save_request を流して未保存の変更を書き切る。
func (a *App) ApplicationMenu() *menu.Menu {
	root := menu.NewMenu()

	about := root.AddSubmenu("About")
	about.AddText("Quit", keys.CmdOrCtrl("q"), func(_ *menu.CallbackData) {
		wailsRuntime.Quit(a.ctx.ctx)
	})
	about.AddText("Close Note", keys.CmdOrCtrl("w"), a.menuOnFocused(func(id string) {
		if err := a.CloseWindow(id); err != nil {
			a.logger.Error(err, "close note from menu failed")
		}
	}))
	about.AddText("New Note", keys.CmdOrCtrl("n"), a.menuDo(func() {
		if _, err := a.NewNote(); err != nil {
			a.logger.Error(err, "new note from menu failed")
		}
	}))
	about.AddText("Focus Next Note", keys.CmdOrCtrl("/"), a.menuDo(a.FocusNextNote))
	about.AddText("Focus Previous Note", keys.Combo("/", keys.CmdOrCtrlKey, keys.OptionOrAltKey), a.menuDo(a.FocusPreviousNote))
	about.AddSeparator()
	a.menuBringAll = about.AddCheckbox("Bring all notes to front on focus", true, nil, a.menuToggleBringAll)
	about.AddSeparator()
	about.AddText("Note Manager", nil, a.menuDo(a.OpenNoteManagerWindow))

	// undo/redo/cut/copy/paste のロールメニュー
	if runtime.GOOS == "darwin" {
		root.Append(menu.EditMenu())
	}

	note := root.AddSubmenu("Note")
	note.AddText("Resize Note to Text", keys.CmdOrCtrl("f"), a.menuOnFocused(a.FitNoteText))
	note.AddSeparator()
	note.AddText("Zoom In", keys.CmdOrCtrl("="), a.menuOnFocused(func(id string) {
		a.ZoomNote(id, "in")
	}))
	note.AddText("Zoom Out", keys.CmdOrCtrl("-"), a.menuOnFocused(func(id string) {
		a.ZoomNote(id, "out")
	}))
	note.AddText("Reset Zoom", keys.CmdOrCtrl("0"), a.menuOnFocused(func(id string) {
		a.ZoomNote(id, "reset")
	}))
	note.AddSeparator()
	for i := range defaultPalette() {
		index := i
		note.AddText(fmt.Sprintf("Color %d", index+1), nil, a.menuOnFocused(func(id string) {
			a.SetNoteColor(id, index)
		}))
	}

	directions := []struct {
		label string
		dir   string
	}{
		{"Up", "up"},
		{"Down", "down"},
		{"Left", "left"},
		{"Right", "right"},
	}

	snap := root.AddSubmenu("Snap")
	for _, d := range directions {
		direction := d.dir
		snap.AddText(d.label, keys.Combo(direction, keys.CmdOrCtrlKey, keys.OptionOrAltKey), a.menuOnFocused(func(id string) {
			if err := a.SnapNote(id, direction); err != nil {
				a.logger.Error(err, "snap from menu failed")
			}
		}))
	}

	partial := root.AddSubmenu("Partial Snap")
	for _, d := range directions {
		direction := d.dir
		partial.AddText(d.label, keys.Combo(direction, keys.CmdOrCtrlKey, keys.OptionOrAltKey, keys.ShiftKey), a.menuOnFocused(func(id string) {
			if err := a.PartialSnapNote(id, direction); err != nil {
				a.logger.Error(err, "partial snap from menu failed")
			}
		}))
	}

	return root
}

// menuDo はメニュー操作の共通処理。起動完了前の操作は無視し、
// 実行後に全付箋の強制保存を流す
func (a *App) menuDo(action func()) menu.Callback {
	return func(_ *menu.CallbackData) {
		if a.windowService == nil {
			return
		}
		action()
		a.bus.Emit(EventSaveRequest)
	}
}

// menuOnFocused はフォーカス中の付箋があるときだけ作用する項目向け
func (a *App) menuOnFocused(action func(id string)) menu.Callback {
	return a.menuDo(func() {
		if id := a.FocusedNoteID(); id != "" {
			action(id)
		}
	})
}

// menuToggleBringAll は「フォーカス時に全付箋を前面へ」の切り替えを永続化する
func (a *App) menuToggleBringAll(_ *menu.CallbackData) {
	if a.settingsService == nil || a.menuBringAll == nil {
		return
	}
	settings, err := a.settingsService.LoadSettings()
	if err != nil {
		a.logger.Error(err, "failed to load settings for menu toggle")
		return
	}
	settings.BringAllToFront = !settings.BringAllToFront
	if err := a.settingsService.SaveSettings(settings); err != nil {
		a.logger.Error(err, "failed to persist bring-all setting")
		return
	}
	a.menuBringAll.Checked = settings.BringAllToFront
	if !a.logger.IsTestMode() {
		wailsRuntime.MenuUpdateApplicationMenu(a.ctx.ctx)
	}
}

// syncMenuState は設定から復元した値をメニューのチェック状態へ反映する
func (a *App) syncMenuState() {
	if a.menuBringAll == nil {
		return
	}
	a.menuBringAll.Checked = a.settingsService.BringAllEnabled()
	if !a.logger.IsTestMode() {
		wailsRuntime.MenuUpdateApplicationMenu(a.ctx.ctx)
	}
}
