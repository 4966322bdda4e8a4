// Package pending は画面のマウント時に一次データと並行して取得する補助データを扱う。
// 一次データが揃った後は猶予時間だけ補助データを待ち、間に合わなければ取り消して空として描画する。
package pending

import (
	"context"
	"errors"
	"time"
)

// DefaultGrace は一次データの取得後に補助データを待つ時間のデフォルト値。
const DefaultGrace = 3 * time.Second

// ErrGraceExpired は猶予時間内に取得が完了しなかったことを示す。
var ErrGraceExpired = errors.New("fetch did not finish within grace period")

// Fetch は実行中の取得。
type Fetch[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc
	val    T
	err    error
}

// Start はfnを別goroutineで開始する。fnにはctxから派生したコンテキストを渡す。
func Start[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Fetch[T] {
	fctx, cancel := context.WithCancel(ctx)
	f := &Fetch[T]{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(f.done)
		f.val, f.err = fn(fctx)
	}()
	return f
}

// Wait は取得の完了まで待つ。
func (f *Fetch[T]) Wait() (T, error) {
	<-f.done
	f.cancel()
	return f.val, f.err
}

// WaitWithin は最大graceだけ完了を待つ。graceが0以下の場合はWaitと同じ。
// 間に合わなかった場合は取得を取り消してErrGraceExpiredを返す。
func (f *Fetch[T]) WaitWithin(grace time.Duration) (T, error) {
	if grace <= 0 {
		return f.Wait()
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-f.done:
		f.cancel()
		return f.val, f.err
	case <-timer.C:
		f.cancel()
		var zero T
		return zero, ErrGraceExpired
	}
}

// Cancel は結果を待たずに取得を取り消す。
func (f *Fetch[T]) Cancel() {
	f.cancel()
}
