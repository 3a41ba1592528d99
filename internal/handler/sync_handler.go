package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/ffmesync/internal/middleware"
	"github.com/hitoshi/ffmesync/internal/model"
	"github.com/hitoshi/ffmesync/internal/storesync"
	"github.com/hitoshi/ffmesync/internal/worker/syncjob"
)

// SyncTrigger は同期処理を1回実行するインターフェース。syncjob.Scheduler が実装する。
type SyncTrigger interface {
	RunOnce(ctx context.Context) (*storesync.Report, error)
}

// SyncHandler は手動同期のHTTPハンドラー。
type SyncHandler struct {
	trigger      SyncTrigger
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewSyncHandler はSyncHandlerを生成する。
// writeTimeoutは同期の完了を待つ間のレスポンス書き込み期限で、サーバー全体のWriteTimeoutより優先する。
func NewSyncHandler(trigger SyncTrigger, writeTimeout time.Duration, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		trigger:      trigger,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// RunSync は同期を1回実行し、結果のReportを返す。
// POST /api/sync
func (h *SyncHandler) RunSync(w http.ResponseWriter, r *http.Request) {
	if h.writeTimeout > 0 {
		// 未対応のResponseWriter（テスト用レコーダーなど）では何もしない
		_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(h.writeTimeout))
	}

	report, err := h.trigger.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, syncjob.ErrAlreadyRunning) {
			middleware.WriteAPIError(w, model.NewSyncInProgressError())
			return
		}
		h.logger.Error("手動同期に失敗しました", slog.String("error", err.Error()))
		middleware.WriteAPIError(w, model.NewSyncFailedError())
		return
	}

	writeJSON(w, http.StatusOK, report)
}
