package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/ffmesync/internal/middleware"
	"github.com/hitoshi/ffmesync/internal/model"
	"github.com/hitoshi/ffmesync/internal/season"
)

// SeasonHandler はシーズン情報のHTTPハンドラー。
type SeasonHandler struct {
	clock season.Clock
}

// NewSeasonHandler はSeasonHandlerを生成する。clockがnilの場合は現在時刻を使う。
func NewSeasonHandler(clock season.Clock) *SeasonHandler {
	if clock == nil {
		clock = time.Now
	}
	return &SeasonHandler{clock: clock}
}

// seasonResponse はシーズン情報のAPIレスポンス。
type seasonResponse struct {
	At             int64 `json:"at"`
	Season         int   `json:"season"`
	DiscountPeriod bool  `json:"discount_period"`
}

// GetSeason は指定時刻（省略時は現在時刻）のシーズンと割引期間かどうかを返す。
// GET /api/season?at=<unix秒>
func (h *SeasonHandler) GetSeason(w http.ResponseWriter, r *http.Request) {
	at, apiErr := parseAt(r, h.clock)
	if apiErr != nil {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	writeJSON(w, http.StatusOK, seasonResponse{
		At:             at,
		Season:         season.Season(at),
		DiscountPeriod: season.IsDiscountPeriod(at),
	})
}

// parseAt はクエリパラメータatをUNIX秒として解釈する。省略時はclockの現在時刻を返す。
func parseAt(r *http.Request, clock season.Clock) (int64, *model.APIError) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return clock().Unix(), nil
	}
	at, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, model.NewInvalidParameterError("at", "UNIX秒の整数で指定してください")
	}
	return at, nil
}
