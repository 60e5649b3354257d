package app

import (
	"flag"
	"fmt"
	"io"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はダッシュボードサーバーを起動する。
	CommandServe Command = "serve"
	// CommandSession はセッションを取得して認証状態を表示する。
	CommandSession Command = "session"
	// CommandLogin はログインURLを表示する。
	CommandLogin Command = "login"
	// CommandLogout はバックエンドでログアウトする。
	CommandLogout Command = "logout"
	// CommandMembers はメンバー一覧を表示する。
	CommandMembers Command = "members"
	// CommandOnline はオンライン人数を表示する。
	CommandOnline Command = "online"
	// CommandDiscordUsers はDiscordユーザー一覧を表示する。
	CommandDiscordUsers Command = "discord-users"
	// CommandInit は3つのコレクションを一括取得する。
	CommandInit Command = "init"
	// CommandHealthcheck はヘルスチェックを実行する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返す。
// サポート外のコマンドの場合はエラーを返す。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	switch cmd := Command(args[0]); cmd {
	case CommandServe, CommandSession, CommandLogin, CommandLogout,
		CommandMembers, CommandOnline, CommandDiscordUsers,
		CommandInit, CommandHealthcheck:
		return cmd, nil
	default:
		return "", fmt.Errorf("unknown command: %q", args[0])
	}
}

// initOptions はinitコマンドのオプション。
type initOptions struct {
	// sequential が真の場合は逐次取得し、最初の失敗で中断する。
	sequential bool
}

// parseInitOptions はinitコマンドの引数（サブコマンド名を除く）を解析する。
func parseInitOptions(args []string, stderr io.Writer) (initOptions, error) {
	var opts initOptions

	fs := flag.NewFlagSet(string(CommandInit), flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.sequential, "sequential", false, "fetch collections one by one and stop at the first failure")

	if err := fs.Parse(args); err != nil {
		return initOptions{}, err
	}
	return opts, nil
}
