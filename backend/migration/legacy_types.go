package migration

// 旧形式の保存データ。単一の save_data.json にウィンドウラベルを
// キーとするマップとして全ノートが入っていた。
type legacyStore struct {
	Data map[string]legacyNote `json:"data"`
}

type legacyNote struct {
	Color    string `json:"color"`
	Contents string `json:"contents"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Height   int    `json:"height"`
	Width    int    `json:"width"`
}
