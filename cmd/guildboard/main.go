// guildboard はコミュニティポータルのバックエンドに接続するCLIとローカルダッシュボード。
//
// 使い方:
//
//	guildboard [serve|session|login|logout|members|online|discord-users|init [--sequential]|healthcheck]
//
// 引数を省略した場合はダッシュボードサーバーを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/guildboard/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "guildboard: %v\n", err)
		os.Exit(1)
	}
}
