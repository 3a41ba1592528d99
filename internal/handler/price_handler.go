package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/ffmesync/internal/metrics"
	"github.com/hitoshi/ffmesync/internal/middleware"
	"github.com/hitoshi/ffmesync/internal/model"
	"github.com/hitoshi/ffmesync/internal/pricing"
	"github.com/hitoshi/ffmesync/internal/season"
)

// 見積もり結果のメトリクスラベル。
const (
	quoteOutcomeSuccess           = "success"
	quoteOutcomeInvalid           = "invalid_request"
	quoteOutcomeFeeNotFound       = "fee_not_found"
	quoteOutcomeStructureNotFound = "structure_not_found"
	quoteOutcomeError             = "error"
)

// Quoter は料金見積もりのインターフェース。pricing.Service が実装する。
type Quoter interface {
	Quote(ctx context.Context, req pricing.Request) (pricing.Breakdown, error)
}

// PriceHandler は料金見積もりのHTTPハンドラー。
type PriceHandler struct {
	quoter  Quoter
	metrics metrics.MetricsCollector
	clock   season.Clock
	logger  *slog.Logger
}

// NewPriceHandler はPriceHandlerを生成する。metricsはnilでもよい。
func NewPriceHandler(quoter Quoter, m metrics.MetricsCollector, clock season.Clock, logger *slog.Logger) *PriceHandler {
	if clock == nil {
		clock = time.Now
	}
	return &PriceHandler{
		quoter:  quoter,
		metrics: m,
		clock:   clock,
		logger:  logger,
	}
}

// priceResponse は料金見積もりのAPIレスポンス。金額の単位はセント。
type priceResponse struct {
	ClubID         int                     `json:"club_id"`
	Season         int                     `json:"season"`
	DiscountPeriod bool                    `json:"discount_period"`
	LicenseType    model.LicenseType       `json:"license_type"`
	AgeCategory    string                  `json:"age_category,omitempty"`
	InsuranceLevel string                  `json:"insurance_level"`
	Options        []model.InsuranceOption `json:"options"`
	TotalCents     int64                   `json:"total_cents"`
	Breakdown      pricing.Breakdown       `json:"breakdown"`
}

// priceQuery は解析済みのクエリパラメータ。
type priceQuery struct {
	req         pricing.Request
	ageCategory string
}

// GetPrice はクラブ・ライセンス種別・保険の組み合わせから料金を見積もる。
// GET /api/price?club_id=&license_type=&date_of_birth=&insurance_level=&options=a,b&season=&at=
//
// license_typeを省略した場合はdate_of_birthの年齢区分から決める。
// 未知の表記は400（UNKNOWN_VALUE）、料金表の欠落は422（FEE_NOT_FOUND）を返す。
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	q, apiErr := h.parseQuery(r)
	if apiErr != nil {
		h.record(quoteOutcomeInvalid)
		middleware.WriteAPIError(w, apiErr)
		return
	}

	breakdown, err := h.quoter.Quote(r.Context(), q.req)
	if err != nil {
		h.handleQuoteError(w, q.req, err)
		return
	}

	h.record(quoteOutcomeSuccess)
	options := q.req.Options
	if options == nil {
		options = []model.InsuranceOption{}
	}
	writeJSON(w, http.StatusOK, priceResponse{
		ClubID:         q.req.ClubID,
		Season:         q.req.Season,
		DiscountPeriod: q.req.Discount,
		LicenseType:    q.req.LicenseType,
		AgeCategory:    q.ageCategory,
		InsuranceLevel: q.req.InsuranceLevel.String(),
		Options:        options,
		TotalCents:     breakdown.Total,
		Breakdown:      breakdown,
	})
}

func (h *PriceHandler) parseQuery(r *http.Request) (priceQuery, *model.APIError) {
	values := r.URL.Query()
	var q priceQuery

	clubID, err := strconv.Atoi(values.Get("club_id"))
	if err != nil || clubID <= 0 {
		return q, model.NewInvalidParameterError("club_id", "正の整数で指定してください")
	}
	q.req.ClubID = clubID

	at, apiErr := parseAt(r, h.clock)
	if apiErr != nil {
		return q, apiErr
	}
	q.req.Discount = season.IsDiscountPeriod(at)
	q.req.Season = season.Season(at)
	if raw := values.Get("season"); raw != "" {
		s, err := strconv.Atoi(raw)
		if err != nil {
			return q, model.NewInvalidParameterError("season", "整数で指定してください")
		}
		q.req.Season = s
	}

	rawLevel := values.Get("insurance_level")
	if rawLevel == "" {
		return q, model.NewInvalidParameterError("insurance_level", "必須です")
	}
	if q.req.InsuranceLevel, err = model.ParseInsuranceLevel(rawLevel); err != nil {
		return q, model.NewUnknownValueError("insurance_level", rawLevel)
	}

	if raw := values.Get("options"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			opt, err := model.ParseInsuranceOption(part)
			if err != nil {
				return q, model.NewUnknownValueError("options", part)
			}
			q.req.Options = append(q.req.Options, opt)
		}
	}

	rawType := values.Get("license_type")
	rawBirth := values.Get("date_of_birth")
	switch {
	case rawType != "":
		if q.req.LicenseType, err = model.ParseLicenseType(rawType); err != nil {
			return q, model.NewUnknownValueError("license_type", rawType)
		}
	case rawBirth != "":
		birthDate, err := model.ParseBirthDate(rawBirth)
		if err != nil {
			return q, model.NewInvalidParameterError("date_of_birth", "YYYY-MM-DD形式で指定してください")
		}
		category := season.Category(birthDate, q.req.Season)
		q.req.LicenseType = season.LicenseTypeFor(category)
		q.ageCategory = category.String()
	default:
		return q, model.NewInvalidParameterError("license_type", "license_typeまたはdate_of_birthのいずれかが必須です")
	}

	return q, nil
}

func (h *PriceHandler) handleQuoteError(w http.ResponseWriter, req pricing.Request, err error) {
	switch {
	case errors.Is(err, model.ErrStructureNotFound):
		h.record(quoteOutcomeStructureNotFound)
		middleware.WriteAPIError(w, model.NewStructureNotFoundError(req.ClubID))
	case errors.Is(err, model.ErrFeeNotFound):
		h.record(quoteOutcomeFeeNotFound)
		h.logger.Warn("料金表に該当する料金がありません",
			slog.Int("structure_id", req.ClubID),
			slog.Int("season", req.Season),
			slog.String("license_type", string(req.LicenseType)),
			slog.String("error", err.Error()),
		)
		middleware.WriteAPIError(w, model.NewFeeNotFoundError(err.Error()))
	default:
		h.record(quoteOutcomeError)
		h.logger.Error("料金の見積もりに失敗しました",
			slog.Int("structure_id", req.ClubID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
	}
}

func (h *PriceHandler) record(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordPriceQuote(outcome)
	}
}
