// Package favorite はお気に入り登録のトグル状態を管理する。
//
// トグルは未登録から登録済みへの一方向のみ遷移し、登録解除は存在しない。
// 状態は一覧画面を開くたびにリセットされ、土地はサーバーの登録一覧で初期化される。
package favorite

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hitoshi/estate/internal/model"
)

// Key はBoard上のトグルを識別するキー（例: "land:42"）を返す。
func Key(kind model.Kind, listingID int64) string {
	return string(kind) + ":" + strconv.FormatInt(listingID, 10)
}

// Board は画面ごとのトグルの集合。セッションに保存され、一覧表示と登録操作の間で引き継がれる。
type Board struct {
	mu    sync.Mutex
	saved map[string]bool
}

// NewBoard はセッションに保存された状態からBoardを復元する。
func NewBoard(saved map[string]bool) *Board {
	b := &Board{saved: make(map[string]bool, len(saved))}
	for k, v := range saved {
		if v {
			b.saved[k] = true
		}
	}
	return b
}

// Reset は指定カテゴリのトグルをすべて未登録に戻す。
func (b *Board) Reset(kind model.Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := string(kind) + ":"
	for k := range b.saved {
		if strings.HasPrefix(k, prefix) {
			delete(b.saved, k)
		}
	}
}

// IsSaved はトグルが登録済みかどうかを返す。
func (b *Board) IsSaved(kind model.Kind, listingID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saved[Key(kind, listingID)]
}

// Export はセッション保存用に登録済みのキーを返す。
func (b *Board) Export() map[string]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]bool, len(b.saved))
	for k := range b.saved {
		out[k] = true
	}
	return out
}

func (b *Board) mark(kind model.Kind, listingID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved[Key(kind, listingID)] = true
}

// Toggle はBoard上の1物件分のトグルを返す。
func (b *Board) Toggle(kind model.Kind, listingID int64) *Toggle {
	return &Toggle{board: b, kind: kind, listingID: listingID}
}

// Toggle は1物件のお気に入り状態。
type Toggle struct {
	board     *Board
	kind      model.Kind
	listingID int64
}

// Saved は登録済みかどうかを返す。
func (t *Toggle) Saved() bool {
	return t.board.IsSaved(t.kind, t.listingID)
}

// Save は登録操作を行う。登録済みの場合はリクエストを送らずALREADY_SAVEDを返す。
// 未登録の場合はsendを1回だけ呼び出し、結果にかかわらず登録済みに遷移する。
// send内の前段（CSRFトークン取得など）で失敗し登録リクエストが送られなかった場合も同じく遷移する。
// ボタン表示はリクエストより先に切り替わり、失敗しても戻らない。
// sendのエラーはそのまま呼び出し元に返す。
func (t *Toggle) Save(ctx context.Context, send func(ctx context.Context) error) error {
	if t.Saved() {
		return model.NewAlreadySavedError(t.kind, strconv.FormatInt(t.listingID, 10))
	}
	err := send(ctx)
	t.board.mark(t.kind, t.listingID)
	if err != nil {
		return fmt.Errorf("お気に入り登録に失敗しました: %w", err)
	}
	return nil
}
