package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/hitoshi/ffmesync/internal/middleware"
	"github.com/hitoshi/ffmesync/internal/model"
	"github.com/hitoshi/ffmesync/internal/pricing"
)

func okQuoter(total int64) *mockQuoter {
	return &mockQuoter{
		quoteFn: func(ctx context.Context, req pricing.Request) (pricing.Breakdown, error) {
			return pricing.Breakdown{Club: 4000, Federal: 4500, License: total - 1000, Insurance: 1000, Total: total}, nil
		},
	}
}

func servePrice(t *testing.T, h *PriceHandler, query string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.GetPrice(w, httptest.NewRequest(http.MethodGet, "/api/price?"+query, nil))
	return w
}

func TestPriceHandler_GetPrice_Success(t *testing.T) {
	var buf bytes.Buffer
	quoter := okQuoter(9500)
	mm := &mockMetrics{}
	h := NewPriceHandler(quoter, mm, fixedClock(testAt), newTestLogger(&buf))

	w := servePrice(t, h, "club_id=10&license_type=Adulte&insurance_level=base%2B&options=ski,VTT,ski")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	if len(quoter.got) != 1 {
		t.Fatalf("Quote calls = %d, want 1", len(quoter.got))
	}
	req := quoter.got[0]
	if req.ClubID != 10 || req.LicenseType != model.LicenseTypeAdult || req.InsuranceLevel != model.InsuranceLevelBasePlus {
		t.Errorf("request = %+v", req)
	}
	if req.Season != 2024 || req.Discount {
		t.Errorf("season = %d, discount = %v, want 2024, false", req.Season, req.Discount)
	}
	wantOptions := []model.InsuranceOption{model.InsuranceOptionSki, model.InsuranceOptionMTB, model.InsuranceOptionSki}
	if fmt.Sprint(req.Options) != fmt.Sprint(wantOptions) {
		t.Errorf("options = %v, want %v", req.Options, wantOptions)
	}

	var body priceResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.TotalCents != 9500 || body.Breakdown.Total != 9500 {
		t.Errorf("total = %d / %d, want 9500", body.TotalCents, body.Breakdown.Total)
	}
	if body.LicenseType != model.LicenseTypeAdult || body.InsuranceLevel != "base_plus" {
		t.Errorf("body = %+v", body)
	}
	if body.AgeCategory != "" {
		t.Errorf("age_category = %q, want empty", body.AgeCategory)
	}

	if len(mm.quotes) != 1 || mm.quotes[0] != quoteOutcomeSuccess {
		t.Errorf("metrics = %v, want [%s]", mm.quotes, quoteOutcomeSuccess)
	}
}

func TestPriceHandler_GetPrice_DerivesLicenseTypeFromBirthDate(t *testing.T) {
	var buf bytes.Buffer
	quoter := okQuoter(5000)
	h := NewPriceHandler(quoter, nil, fixedClock(testAt), newTestLogger(&buf))

	w := servePrice(t, h, "club_id=10&date_of_birth=2010-04-02&insurance_level=rc")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got := quoter.got[0].LicenseType; got != model.LicenseTypeChild {
		t.Errorf("license type = %q, want %q", got, model.LicenseTypeChild)
	}

	var body priceResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.AgeCategory != "u16" {
		t.Errorf("age_category = %q, want u16", body.AgeCategory)
	}
	if body.Options == nil {
		t.Error("options は空配列で返すこと")
	}
}

func TestPriceHandler_GetPrice_DiscountAndSeasonFromAt(t *testing.T) {
	var buf bytes.Buffer
	quoter := okQuoter(5000)
	h := NewPriceHandler(quoter, nil, fixedClock(testAt), newTestLogger(&buf))

	w := servePrice(t, h, "club_id=10&license_type=a&insurance_level=base&at="+strconv.FormatInt(discountAt, 10))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if req := quoter.got[0]; !req.Discount || req.Season != 2024 {
		t.Errorf("discount = %v, season = %d, want true, 2024", req.Discount, req.Season)
	}

	w = servePrice(t, h, "club_id=10&license_type=a&insurance_level=base&season=2026")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if req := quoter.got[1]; req.Season != 2026 {
		t.Errorf("season = %d, want 2026", req.Season)
	}
}

func TestPriceHandler_GetPrice_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode string
	}{
		{"club_id なし", "license_type=a&insurance_level=base", model.ErrCodeInvalidParameter},
		{"club_id が数値でない", "club_id=abc&license_type=a&insurance_level=base", model.ErrCodeInvalidParameter},
		{"insurance_level なし", "club_id=10&license_type=a", model.ErrCodeInvalidParameter},
		{"未知の insurance_level", "club_id=10&license_type=a&insurance_level=gold", model.ErrCodeUnknownValue},
		{"未知の license_type", "club_id=10&license_type=premium&insurance_level=base", model.ErrCodeUnknownValue},
		{"未知の option", "club_id=10&license_type=a&insurance_level=base&options=ski,parapente", model.ErrCodeUnknownValue},
		{"種別も生年月日もなし", "club_id=10&insurance_level=base", model.ErrCodeInvalidParameter},
		{"生年月日の形式", "club_id=10&date_of_birth=02/04/2010&insurance_level=base", model.ErrCodeInvalidParameter},
		{"season が数値でない", "club_id=10&license_type=a&insurance_level=base&season=next", model.ErrCodeInvalidParameter},
		{"at が数値でない", "club_id=10&license_type=a&insurance_level=base&at=now", model.ErrCodeInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			quoter := okQuoter(1)
			mm := &mockMetrics{}
			h := NewPriceHandler(quoter, mm, fixedClock(testAt), newTestLogger(&buf))

			w := servePrice(t, h, tt.query)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			var body middleware.ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if len(quoter.got) != 0 {
				t.Error("不正なリクエストで見積もりが実行された")
			}
			if len(mm.quotes) != 1 || mm.quotes[0] != quoteOutcomeInvalid {
				t.Errorf("metrics = %v, want [%s]", mm.quotes, quoteOutcomeInvalid)
			}
		})
	}
}

func TestPriceHandler_GetPrice_QuoteErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantOutcome string
	}{
		{
			name:        "料金表の欠落",
			err:         fmt.Errorf("structure 10 adult 2024: %w", model.ErrFeeNotFound),
			wantStatus:  http.StatusUnprocessableEntity,
			wantCode:    model.ErrCodeFeeNotFound,
			wantOutcome: quoteOutcomeFeeNotFound,
		},
		{
			name:        "クラブが存在しない",
			err:         fmt.Errorf("club 10: %w", model.ErrStructureNotFound),
			wantStatus:  http.StatusNotFound,
			wantCode:    model.ErrCodeStructureNotFound,
			wantOutcome: quoteOutcomeStructureNotFound,
		},
		{
			name:        "その他のエラー",
			err:         errors.New("connection refused"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "INTERNAL_ERROR",
			wantOutcome: quoteOutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			quoter := &mockQuoter{
				quoteFn: func(ctx context.Context, req pricing.Request) (pricing.Breakdown, error) {
					return pricing.Breakdown{}, tt.err
				},
			}
			mm := &mockMetrics{}
			h := NewPriceHandler(quoter, mm, fixedClock(testAt), newTestLogger(&buf))

			w := servePrice(t, h, "club_id=10&license_type=a&insurance_level=base")

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body middleware.ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if len(mm.quotes) != 1 || mm.quotes[0] != tt.wantOutcome {
				t.Errorf("metrics = %v, want [%s]", mm.quotes, tt.wantOutcome)
			}
		})
	}
}
