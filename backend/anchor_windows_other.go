//go:build !darwin

package backend

// ウィンドウ追従はCGWindowListに依存するためmacOS専用。
// 他のOSでは列挙元を持たず、AnchorToNearestが未対応エラーを返す。
func platformWindowSource() func() []ExternalWindow {
	return nil
}
