package auth

import (
	"context"
	"fmt"
	"io"
)

// Navigator はサインイン時にユーザーをログインURLへ遷移させる手段。
// CLIではURLの表示、ダッシュボードではHTTPリダイレクトとして実装する。
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

// NavigatorFunc は関数をNavigatorとして扱うためのアダプタ。
type NavigatorFunc func(ctx context.Context, target string) error

// Navigate はf(ctx, target)を呼び出す。
func (f NavigatorFunc) Navigate(ctx context.Context, target string) error {
	return f(ctx, target)
}

// WriterNavigator はログインURLをwriterに書き出すNavigator。
type WriterNavigator struct {
	W io.Writer
}

// Navigate はログインURLを1行で書き出す。
func (n WriterNavigator) Navigate(_ context.Context, target string) error {
	_, err := fmt.Fprintln(n.W, target)
	return err
}
