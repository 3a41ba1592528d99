// Command ffmesync はクラブ会員の同期ワーカーと料金見積もりAPIを起動する。
//
// 使い方:
//
//	ffmesync [serve|worker|sync|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/ffmesync/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ffmesync: %v\n", err)
		os.Exit(1)
	}
}
