package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/ffmesync/internal/model"
)

// AdminCaller は管理トークンで認証された呼び出し元の識別子。
const AdminCaller = "admin"

// NewAdminTokenMiddleware はAuthorization: Bearer <token> を検証するミドルウェアを返す。
// tokenが空の場合は常に401を返し、管理エンドポイントを無効化する。
func NewAdminTokenMiddleware(token string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := bearerToken(r)
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logger.Warn("管理トークンの検証に失敗しました",
					slog.String("path", r.URL.Path),
					slog.String("client", ClientKey(r)),
				)
				WriteAPIError(w, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), AdminCaller)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}
