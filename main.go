package main

import (
	"embed"
	"encoding/json"
	"runtime"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"

	"sticky-notes/backend"
)

//go:embed all:frontend/dist
var assets embed.FS

//go:embed wails.json
var wailsJSON []byte

func main() {
	// macOS のウィンドウ挙動パッチを適用する。
	// 実装は backend パッケージに集約し、main は起動シーケンスのみを担当する。
	backend.ApplyMacWindowPatch()

	// Create an instance of the app structure
	app := backend.NewApp()

	var config backend.WailsConfig
	title := "Sticky Notes"
	if err := json.Unmarshal(wailsJSON, &config); err == nil && config.Name != "" {
		title = config.Name
	}

	// Wailsアプリケーションを作成
	err := wails.Run(&options.App{
		Title:  title,
		Width:  1280,
		Height: 800,
		// 付箋はフロントエンドが1枚のWebView内に描画するため、
		// ホストウィンドウは枠なし・透過にする
		Frameless:        true,
		BackgroundColour: &options.RGBA{R: 0, G: 0, B: 0, A: 0},
		// macOSでは閉じるボタンでアプリを終了せず、Dockに残す
		HideWindowOnClose: runtime.GOOS == "darwin",
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		Menu:          app.ApplicationMenu(),
		OnStartup:     app.Startup,
		OnDomReady:    app.DomReady,
		OnBeforeClose: app.BeforeClose,
		LogLevel:      logger.INFO,
		Bind: []interface{}{
			app,
		},
		Mac: &mac.Options{
			TitleBar: &mac.TitleBar{
				TitlebarAppearsTransparent: true,
				HideTitle:                  true,
			},
			WebviewIsTransparent: true,
			WindowIsTranslucent:  true,
		},
		Windows: &windows.Options{
			WebviewIsTransparent: true,
			WindowIsTranslucent:  true,
		},
		Debug: options.Debug{
			OpenInspectorOnStartup: false,
		},
		SingleInstanceLock: &options.SingleInstanceLock{
			UniqueId: "sticky-notes-instance-lock",
			OnSecondInstanceLaunch: func(secondInstanceData options.SecondInstanceData) {
				// 二重起動は既存インスタンスの付箋を前面に出すだけ
				app.BringToFront()
			},
		},
	})

	if err != nil {
		println("Error:", err.Error())
	}
}
