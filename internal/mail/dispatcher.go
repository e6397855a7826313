// Package mail はメール送信を提供する。
package mail

import (
	"context"
	"log/slog"
)

// Dispatcher はメール送信のインターフェース。
type Dispatcher interface {
	// Send はHTML本文のメールを1通送信する。
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// LogDispatcher は送信元アドレス未設定時に使用するDispatcher。
// 実際には送信せず、宛先と件名のみをログに記録する。本文はリセットURLを含むため記録しない。
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher はLogDispatcherを生成する。
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// Send は送信をスキップしてログに記録する。
func (d *LogDispatcher) Send(ctx context.Context, to, subject, _ string) error {
	d.logger.InfoContext(ctx, "mail delivery disabled, skipping send",
		slog.String("to", to),
		slog.String("subject", subject),
	)
	return nil
}

// compile-time interface check
var _ Dispatcher = (*LogDispatcher)(nil)
