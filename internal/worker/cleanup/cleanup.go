// Package cleanup は期限切れの認証データを削除する定期ジョブを提供する。
// 有効期限を過ぎたセッションと、期限切れのパスワード再設定トークンを対象とする。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	deleteExpiredSessionsQuery = `DELETE FROM sessions WHERE expires_at <= now()`

	clearExpiredResetTokensQuery = `
		UPDATE users
		SET reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = now()
		WHERE reset_token_hash IS NOT NULL AND reset_token_expires_at <= now()`
)

// CleanupJob は期限切れのセッションと再設定トークンを掃除するジョブ。
// 何度実行しても結果が変わらない。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger

	// SweepSessions がfalseの場合、sessionsテーブルを対象にしない。
	// Redisのセッションストアは有効期限で自動的に消えるため。
	SweepSessions bool
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:            db,
		logger:        logger,
		SweepSessions: true,
	}
}

// Run は期限切れデータを1回掃除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	var sessions int64
	if j.SweepSessions {
		n, err := j.exec(ctx, deleteExpiredSessionsQuery)
		if err != nil {
			j.logger.Error("期限切れセッションの削除に失敗しました",
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
		}
		sessions = n
	}

	tokens, err := j.exec(ctx, clearExpiredResetTokensQuery)
	if err != nil {
		j.logger.Error("期限切れ再設定トークンの破棄に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れ再設定トークンの破棄に失敗: %w", err)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", sessions),
		slog.Int64("cleared_reset_tokens", tokens),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後とinterval毎にRunを実行する。
// コンテキストがキャンセルされるまで戻らない。Runの失敗はログに残して次回へ持ち越す。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.Bool("sweep_sessions", j.SweepSessions),
	)

	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップワーカーを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}

func (j *CleanupJob) exec(ctx context.Context, query string) (int64, error) {
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return n, nil
}
