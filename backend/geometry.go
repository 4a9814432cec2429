package backend

import "math"

// overflowThreshold はサブピクセル丸め誤差を吸収する許容値(論理ピクセル)
const overflowThreshold = 2.0

// WindowHost は付箋1枚のウィンドウ矩形操作(論理ピクセル)
type WindowHost interface {
	Size() (width, height int)
	SetSize(width, height int)
}

// geometryController は本文の高さに合わせてウィンドウの高さだけを調整する。
// 幅には一切触れない。
type geometryController struct {
	editor Editor
	host   WindowHost
}

func newGeometryController(editor Editor, host WindowHost) *geometryController {
	return &geometryController{editor: editor, host: host}
}

// AfterContentChange は内容変更後のリフローを観測し、縦のあふれを解消する。
// あふれ量は毎回現在のウィンドウ寸法から計算する(累積しない)。
// 利用者が手でリサイズした直後でも、その寸法を基準に上乗せするだけで上書きしない。
func (g *geometryController) AfterContentChange() {
	if !g.editor.Ready() {
		return
	}
	m := g.editor.Metrics()
	overflow := math.Ceil(m.ScrollHeight - m.ClientHeight)
	if overflow <= overflowThreshold {
		return
	}
	w, h := g.host.Size()
	g.host.SetSize(w, h+int(overflow))
}

// FitToContent は外部要求によるリサイズ。最小高さ制約を一旦外して
// 自然な内容の高さを測り、その高さちょうどにウィンドウを合わせてから制約を戻す。
func (g *geometryController) FitToContent() {
	if !g.editor.Ready() {
		return
	}
	g.editor.RelaxMinHeight()
	m := g.editor.Metrics()
	if m.ContentHeight > 0 {
		w, _ := g.host.Size()
		g.host.SetSize(w, int(math.Ceil(m.ContentHeight)))
	}
	g.editor.RestoreMinHeight()
}
