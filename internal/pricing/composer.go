package pricing

import (
	"github.com/hitoshi/ffmesync/internal/model"
)

// Quote は料金見積もりの入力。
type Quote struct {
	Tiers          TierChain
	LicenseType    model.LicenseType
	InsuranceLevel model.InsuranceLevel
	Options        []model.InsuranceOption
	Season         int
	Discount       bool
}

// Breakdown は料金の内訳（単位はセント）。
type Breakdown struct {
	Club       int64 `json:"club"`
	Department int64 `json:"department"`
	Region     int64 `json:"region"`
	Federal    int64 `json:"federal"`
	// FederalDiscount は割引期間中に連盟料金から差し引かれた額。
	FederalDiscount int64 `json:"federal_discount"`
	License         int64 `json:"license"`
	Insurance       int64 `json:"insurance"`
	// InsuranceDelta は Base レベルとの差額。表示用。
	InsuranceDelta int64                           `json:"insurance_delta"`
	Options        map[model.InsuranceOption]int64 `json:"options"`
	Total          int64                           `json:"total"`
}

// Composer は料金表から見積もり金額を組み立てる。
type Composer struct {
	book FeeBook
}

// NewComposer はComposerの新しいインスタンスを生成する。
func NewComposer(book FeeBook) *Composer {
	return &Composer{book: book}
}

// PriceInCents は見積もりの合計金額を返す。
// 割引期間中は連盟料金のみ半額（切り捨て分を差し引く）になる。料金が1つでも欠けていればエラーを返す。
func (c *Composer) PriceInCents(q Quote) (int64, error) {
	b, err := c.Breakdown(q)
	if err != nil {
		return 0, err
	}
	return b.Total, nil
}

// Breakdown は見積もりの内訳を返す。
func (c *Composer) Breakdown(q Quote) (Breakdown, error) {
	var b Breakdown
	var err error

	tiers := []struct {
		id  int
		dst *int64
	}{
		{q.Tiers.Club, &b.Club},
		{q.Tiers.Department, &b.Department},
		{q.Tiers.Region, &b.Region},
		{q.Tiers.Federal, &b.Federal},
	}
	for _, tier := range tiers {
		*tier.dst, err = c.book.StructureFee(tier.id, q.LicenseType, q.Season)
		if err != nil {
			return Breakdown{}, err
		}
	}

	if q.Discount {
		b.FederalDiscount = b.Federal / 2
	}
	b.License = b.Club + b.Department + b.Region + b.Federal - b.FederalDiscount

	b.Insurance, err = c.book.InsuranceLevelFee(q.InsuranceLevel, q.Season)
	if err != nil {
		return Breakdown{}, err
	}
	base := b.Insurance
	if q.InsuranceLevel != model.InsuranceLevelBase {
		base, err = c.book.InsuranceLevelFee(model.InsuranceLevelBase, q.Season)
		if err != nil {
			return Breakdown{}, err
		}
	}
	b.InsuranceDelta = b.Insurance - base

	b.Options = make(map[model.InsuranceOption]int64, len(q.Options))
	var options int64
	for _, opt := range q.Options {
		if _, dup := b.Options[opt]; dup {
			continue
		}
		fee, err := c.book.InsuranceOptionFee(opt, q.Season)
		if err != nil {
			return Breakdown{}, err
		}
		b.Options[opt] = fee
		options += fee
	}

	b.Total = b.License + b.Insurance + options
	return b, nil
}
