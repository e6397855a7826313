package app

// Command はinfomateバイナリのサブコマンドを表す。
type Command string

const (
	// CommandServe はWebアプリケーションを起動する。引数なしの場合もこれになる。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションと再設定トークンの掃除を定期実行する。
	CommandWorker Command = "worker"
	// CommandMigrate は未適用のデータベースマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中のserveプロセスの/healthを確認して終了する。
	// シェルのないdistrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// NeedsConfig はサブコマンドが環境変数の設定一式を必要とするかを返す。
func (c Command) NeedsConfig() bool {
	return c != CommandHealthcheck
}
