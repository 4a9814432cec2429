package backend

// このテストファイルは、ジオメトリ調整 (geometryController) を検証します:
// 1. 縦あふれが閾値を超えたときだけ、あふれ量ちょうどの高さ拡張が行われること
// 2. 幅が変更されないこと
// 3. 拡張量が毎回現在の寸法から計算されること(累積しない)
// 4. fit 要求の2段階(制約解除→計測→リサイズ→制約復帰)

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupGeometryTest(t *testing.T) (*fakeEditor, *fakeWindowHost, *geometryController) {
	t.Helper()
	editor := newFakeEditor(true)
	host := &fakeWindowHost{width: 250, height: 300}
	return editor, host, newGeometryController(editor, host)
}

func TestGrowByExactOverflow(t *testing.T) {
	editor, host, g := setupGeometryTest(t)
	editor.setMetrics(EditorMetrics{ScrollHeight: 412.4, ClientHeight: 300})

	g.AfterContentChange()

	// ceil(412.4 - 300) = 113 ピクセルちょうど、幅はそのまま
	w, h := host.Size()
	assert.Equal(t, 250, w)
	assert.Equal(t, 413, h)
	assert.Equal(t, 1, host.resizeCount())
}

func TestSmallOverflowIgnored(t *testing.T) {
	editor, host, g := setupGeometryTest(t)

	for _, scroll := range []float64{300, 301, 302, 299} {
		editor.setMetrics(EditorMetrics{ScrollHeight: scroll, ClientHeight: 300})
		g.AfterContentChange()
	}
	// 2px 以下のあふれ(と負のあふれ)ではリサイズしない
	assert.Equal(t, 0, host.resizeCount())

	// 3px からは反応する
	editor.setMetrics(EditorMetrics{ScrollHeight: 303, ClientHeight: 300})
	g.AfterContentChange()
	assert.Equal(t, 1, host.resizeCount())
	_, h := host.Size()
	assert.Equal(t, 303, h)
}

func TestGrowRecomputedFromCurrentSize(t *testing.T) {
	editor, host, g := setupGeometryTest(t)
	editor.setMetrics(EditorMetrics{ScrollHeight: 400, ClientHeight: 300})

	g.AfterContentChange()
	_, h := host.Size()
	require.Equal(t, 400, h)

	// 利用者が手でリサイズした後も、その寸法を基準に上乗せする
	host.SetSize(250, 350)
	g.AfterContentChange()
	_, h = host.Size()
	assert.Equal(t, 450, h)
}

func TestUnreadyEditorSkipsGeometry(t *testing.T) {
	editor, host, g := setupGeometryTest(t)
	editor.setReady(false)
	editor.setMetrics(EditorMetrics{ScrollHeight: 500, ClientHeight: 300})

	g.AfterContentChange()
	g.FitToContent()
	assert.Equal(t, 0, host.resizeCount())
}

func TestFitToContentTwoPhase(t *testing.T) {
	editor, host, g := setupGeometryTest(t)
	editor.setMetrics(EditorMetrics{ScrollHeight: 300, ClientHeight: 300, ContentHeight: 182.3})

	g.FitToContent()

	// 制約解除 → 計測 → リサイズ → 制約復帰 の順
	assert.Equal(t, []string{"relax", "restore"}, editor.minHeightOps)
	w, h := host.Size()
	assert.Equal(t, 250, w)
	assert.Equal(t, 183, h)
}

func TestFitToContentWithoutMeasurement(t *testing.T) {
	editor, host, g := setupGeometryTest(t)
	editor.setMetrics(EditorMetrics{ContentHeight: 0})

	g.FitToContent()

	// 計測値がないときはリサイズせず、制約だけ元に戻す
	assert.Equal(t, 0, host.resizeCount())
	assert.Equal(t, []string{"relax", "restore"}, editor.minHeightOps)
}
