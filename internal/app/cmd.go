package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は画面APIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandCleanup は期限切れセッションの削除を1回実行することを示す。
	CommandCleanup Command = "cleanup"
	// CommandMigrate はセッションテーブルのマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandCleanup, CommandMigrate, CommandHealthcheck:
		return Command(args[0])
	default:
		return CommandServe
	}
}
