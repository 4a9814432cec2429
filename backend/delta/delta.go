// Package delta はノート本文のリッチテキスト表現を扱う。
// ドキュメントは挿入操作の列で、各操作はテキストか埋め込みオブジェクトのどちらか。
// 直列化形式は JSON 文字列(互換用の生テキストは呼び出し側でフォールバック扱い)。
package delta

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Op はドキュメント内の1つの挿入操作
type Op struct {
	// Insert はテキスト挿入の内容(Embed が nil のときのみ有効)
	Insert string
	// Embed は埋め込みオブジェクト(画像など)。nil ならテキスト挿入
	Embed map[string]interface{}
	// Attributes は書式属性(太字・色など)。なければ nil
	Attributes map[string]interface{}
}

// opJSON はワイヤ形式: insert は文字列かオブジェクト
type opJSON struct {
	Insert     interface{}            `json:"insert"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// MarshalJSON は挿入操作をワイヤ形式に変換する
func (o Op) MarshalJSON() ([]byte, error) {
	j := opJSON{Attributes: o.Attributes}
	if o.Embed != nil {
		j.Insert = o.Embed
	} else {
		j.Insert = o.Insert
	}
	return json.Marshal(j)
}

// UnmarshalJSON はワイヤ形式から挿入操作を復元する。
// insert が文字列でもオブジェクトでもない場合はエラー(不正なドキュメント)。
func (o *Op) UnmarshalJSON(data []byte) error {
	var j opJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	o.Attributes = j.Attributes
	switch v := j.Insert.(type) {
	case string:
		o.Insert = v
		o.Embed = nil
	case map[string]interface{}:
		o.Embed = v
		o.Insert = ""
	default:
		return fmt.Errorf("delta: op insert must be text or embed, got %T", j.Insert)
	}
	return nil
}

// IsEmbed は埋め込み挿入かどうかを返す
func (o Op) IsEmbed() bool {
	return o.Embed != nil
}

// Document は挿入操作の順序付き列
type Document struct {
	Ops []Op `json:"ops"`
}

// FromText は生テキストを単一のテキスト挿入としてドキュメント化する。
// 旧形式・外部由来の非ドキュメント文字列の受け皿。
func FromText(text string) *Document {
	if text == "" {
		return &Document{Ops: []Op{}}
	}
	return &Document{Ops: []Op{{Insert: text}}}
}

// Parse は直列化文字列を構造的に復号する。
// ドキュメントとして成立しない入力(JSON でない、ops 欠落など)はエラーを返し、
// 呼び出し側は生テキストとして扱う。
func Parse(serialized string) (*Document, error) {
	var raw struct {
		Ops *[]Op `json:"ops"`
	}
	if err := json.Unmarshal([]byte(serialized), &raw); err != nil {
		return nil, fmt.Errorf("delta: parse failed: %w", err)
	}
	if raw.Ops == nil {
		return nil, errors.New("delta: missing ops")
	}
	return &Document{Ops: *raw.Ops}, nil
}

// Serialize はドキュメントを JSON 文字列にする。
// 埋め込みが1つもなく可視テキストが空白のみなら空文字列を返す
// (見かけ上空のドキュメントを本文として保存しない)。
func (d *Document) Serialize() string {
	if !d.Meaningful() {
		return ""
	}
	b, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(b)
}

// PlainText は全テキスト挿入を連結して返す。埋め込みは含めない
func (d *Document) PlainText() string {
	var sb strings.Builder
	for _, op := range d.Ops {
		if !op.IsEmbed() {
			sb.WriteString(op.Insert)
		}
	}
	return sb.String()
}

// Meaningful は表示・保存に値する内容を持つかどうか。
// 埋め込みが1つでもあるか、空白以外のテキストが1文字でもあれば真。
func (d *Document) Meaningful() bool {
	for _, op := range d.Ops {
		if op.IsEmbed() {
			return true
		}
		if strings.TrimSpace(op.Insert) != "" {
			return true
		}
	}
	return false
}

// IsMeaningful は直列化文字列の純粋な分類。
// 空・空白のみ → 偽。ドキュメントとして復号できれば Meaningful に従う。
// 復号できない非空文字列は生テキスト挿入として扱われるため真。
func IsMeaningful(serialized string) bool {
	if strings.TrimSpace(serialized) == "" {
		return false
	}
	d, err := Parse(serialized)
	if err != nil {
		return true
	}
	return d.Meaningful()
}

// Preview は先頭 limit 文字の1行テキストを返す(一覧表示用)
func Preview(serialized string, limit int) string {
	if serialized == "" {
		return ""
	}
	text := serialized
	if d, err := Parse(serialized); err == nil {
		text = d.PlainText()
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	runes := []rune(text)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return text
}
