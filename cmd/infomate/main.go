// Command infomate は顧客管理Webアプリケーションのサーバーとワーカーを起動する。
//
//	infomate [serve|worker|migrate|healthcheck]
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/infomate/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("infomate exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
