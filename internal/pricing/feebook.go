// Package pricing はライセンス・保険・追加オプションの料金を組織階層ごとの料金表から算出する。
package pricing

import (
	"fmt"

	"github.com/hitoshi/ffmesync/internal/model"
)

// FeeBook はシーズンごとの料金表を提供する。
// 該当する料金がない場合は model.ErrFeeNotFound をラップしたエラーを返す。0で代用してはならない。
type FeeBook interface {
	StructureFee(structureID int, licenseType model.LicenseType, season int) (int64, error)
	InsuranceLevelFee(level model.InsuranceLevel, season int) (int64, error)
	InsuranceOptionFee(option model.InsuranceOption, season int) (int64, error)
}

type structureFeeKey struct {
	structureID int
	licenseType model.LicenseType
	season      int
}

type levelFeeKey struct {
	level  model.InsuranceLevel
	season int
}

type optionFeeKey struct {
	option model.InsuranceOption
	season int
}

// Schedule はメモリ上の料金表。PostgresFeeRepo が読み込んだ結果もこの形で保持する。
// 構築後は読み取り専用として扱う。
type Schedule struct {
	structureFees map[structureFeeKey]int64
	levelFees     map[levelFeeKey]int64
	optionFees    map[optionFeeKey]int64
}

// NewSchedule は空の料金表を生成する。
func NewSchedule() *Schedule {
	return &Schedule{
		structureFees: make(map[structureFeeKey]int64),
		levelFees:     make(map[levelFeeKey]int64),
		optionFees:    make(map[optionFeeKey]int64),
	}
}

// SetStructureFee は組織・ライセンス種別・シーズンの料金を登録する。
func (s *Schedule) SetStructureFee(structureID int, licenseType model.LicenseType, season int, cents int64) {
	s.structureFees[structureFeeKey{structureID, licenseType, season}] = cents
}

// SetInsuranceLevelFee は補償レベルの料金を登録する。
func (s *Schedule) SetInsuranceLevelFee(level model.InsuranceLevel, season int, cents int64) {
	s.levelFees[levelFeeKey{level, season}] = cents
}

// SetInsuranceOptionFee は追加オプションの料金を登録する。
func (s *Schedule) SetInsuranceOptionFee(option model.InsuranceOption, season int, cents int64) {
	s.optionFees[optionFeeKey{option, season}] = cents
}

// StructureFee は組織の料金を返す。
func (s *Schedule) StructureFee(structureID int, licenseType model.LicenseType, season int) (int64, error) {
	fee, ok := s.structureFees[structureFeeKey{structureID, licenseType, season}]
	if !ok {
		return 0, fmt.Errorf("structure %d, license %s, season %d: %w", structureID, licenseType, season, model.ErrFeeNotFound)
	}
	return fee, nil
}

// InsuranceLevelFee は補償レベルの料金を返す。
func (s *Schedule) InsuranceLevelFee(level model.InsuranceLevel, season int) (int64, error) {
	fee, ok := s.levelFees[levelFeeKey{level, season}]
	if !ok {
		return 0, fmt.Errorf("insurance level %s, season %d: %w", level, season, model.ErrFeeNotFound)
	}
	return fee, nil
}

// InsuranceOptionFee は追加オプションの料金を返す。
func (s *Schedule) InsuranceOptionFee(option model.InsuranceOption, season int) (int64, error) {
	fee, ok := s.optionFees[optionFeeKey{option, season}]
	if !ok {
		return 0, fmt.Errorf("insurance option %s, season %d: %w", option, season, model.ErrFeeNotFound)
	}
	return fee, nil
}

// コンパイル時にインターフェースの実装を検証する。
var _ FeeBook = (*Schedule)(nil)
