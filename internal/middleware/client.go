package middleware

import (
	"context"
	"net"
	"net/http"
)

// contextKey はコンテキストキーの型。
type contextKey string

const (
	// callerContextKey は認証済み呼び出し元の識別子を格納するキー。
	callerContextKey contextKey = "caller"
	// callerSinkContextKey はアクセスログが呼び出し元を受け取るための格納先のキー。
	callerSinkContextKey contextKey = "caller_sink"
)

// ClientKey はレート制限とアクセスログで使うクライアント識別子を返す。
// RemoteAddrのホスト部分を使う。プロキシ配下ではchiのRealIPミドルウェアを先に適用する。
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// WithCaller は認証済み呼び出し元をコンテキストに格納する。
// 外側にアクセスログミドルウェアがあれば、その格納先にも書き込む。
func WithCaller(ctx context.Context, caller string) context.Context {
	if sink, ok := ctx.Value(callerSinkContextKey).(*string); ok && sink != nil {
		*sink = caller
	}
	return context.WithValue(ctx, callerContextKey, caller)
}

func withCallerSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, callerSinkContextKey, sink)
}

// CallerFromContext はコンテキストから認証済み呼び出し元を取り出す。
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerContextKey).(string)
	return caller, ok && caller != ""
}
