// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/infomate/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// callerContextKey は認証ゲートを通過した呼び出し元を格納するキー。
	callerContextKey = contextKey("caller")

	// requestInfoContextKey はログ用に呼び出し元を外側のミドルウェアへ伝えるためのキー。
	requestInfoContextKey = contextKey("request_info")
)

// requestInfo はロギングミドルウェアが作成し、内側のミドルウェアが書き込む。
type requestInfo struct {
	userID string
}

// ContextWithCaller はコンテキストに呼び出し元を注入する。
func ContextWithCaller(ctx context.Context, caller *model.Caller) context.Context {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.userID = caller.UserID
	}
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext はリクエストコンテキストから呼び出し元を取得する。
// 認証ゲートを通過したリクエストでのみ値を持つ。
func CallerFromContext(ctx context.Context) (*model.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(*model.Caller)
	return caller, ok && caller != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok || caller.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return caller.UserID, nil
}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	info := &requestInfo{}
	return context.WithValue(ctx, requestInfoContextKey, info), info
}
