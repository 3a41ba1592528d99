package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/ffmesync/internal/model"
	"github.com/hitoshi/ffmesync/internal/pricing"
)

// 保険料金の種別。insurance_fees.kind に対応する。
const (
	insuranceKindLevel  = "level"
	insuranceKindOption = "option"
)

// PostgresFeeRepo はPostgreSQLから料金表と組織階層を読み込むリポジトリ。
type PostgresFeeRepo struct {
	db *sql.DB
}

// NewPostgresFeeRepo はPostgresFeeRepoを生成する。
func NewPostgresFeeRepo(db *sql.DB) *PostgresFeeRepo {
	return &PostgresFeeRepo{db: db}
}

// LoadSchedule は structure_fees と insurance_fees から料金表を構築する。
// 未知のライセンス種別・補償レベル・オプションが登録されている場合はエラーを返す。
func (r *PostgresFeeRepo) LoadSchedule(ctx context.Context) (*pricing.Schedule, error) {
	schedule := pricing.NewSchedule()

	rows, err := r.db.QueryContext(ctx,
		`SELECT structure_id, license_type, season, amount_cents FROM structure_fees`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query structure fees: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var structureID, season int
		var rawType string
		var cents int64
		if err := rows.Scan(&structureID, &rawType, &season, &cents); err != nil {
			return nil, fmt.Errorf("failed to scan structure fee: %w", err)
		}
		licenseType, err := model.ParseLicenseType(rawType)
		if err != nil {
			return nil, fmt.Errorf("structure fee of %d: %w", structureID, err)
		}
		schedule.SetStructureFee(structureID, licenseType, season, cents)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate structure fees: %w", err)
	}

	insRows, err := r.db.QueryContext(ctx,
		`SELECT kind, code, season, amount_cents FROM insurance_fees`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query insurance fees: %w", err)
	}
	defer insRows.Close()

	for insRows.Next() {
		var kind, code string
		var season int
		var cents int64
		if err := insRows.Scan(&kind, &code, &season, &cents); err != nil {
			return nil, fmt.Errorf("failed to scan insurance fee: %w", err)
		}
		switch kind {
		case insuranceKindLevel:
			level, err := model.ParseInsuranceLevel(code)
			if err != nil {
				return nil, err
			}
			schedule.SetInsuranceLevelFee(level, season, cents)
		case insuranceKindOption:
			option, err := model.ParseInsuranceOption(code)
			if err != nil {
				return nil, err
			}
			schedule.SetInsuranceOptionFee(option, season, cents)
		default:
			return nil, fmt.Errorf("unknown insurance fee kind %q", kind)
		}
	}
	if err := insRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate insurance fees: %w", err)
	}

	return schedule, nil
}

// Structures は全組織をIDをキーとして返す。
func (r *PostgresFeeRepo) Structures(ctx context.Context) (map[int]model.Structure, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, code, department, level, parent_id FROM structures`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query structures: %w", err)
	}
	defer rows.Close()

	structures := make(map[int]model.Structure)
	for rows.Next() {
		var s model.Structure
		var code, department sql.NullString
		var parentID sql.NullInt64
		var level string
		if err := rows.Scan(&s.ID, &s.Name, &code, &department, &level, &parentID); err != nil {
			return nil, fmt.Errorf("failed to scan structure: %w", err)
		}
		if code.Valid {
			s.Code = &code.String
		}
		if department.Valid {
			s.Department = &department.String
		}
		if parentID.Valid {
			p := int(parentID.Int64)
			s.ParentID = &p
		}
		if s.Level, err = model.ParseStructureLevel(level); err != nil {
			return nil, fmt.Errorf("structure %d: %w", s.ID, err)
		}
		structures[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate structures: %w", err)
	}

	return structures, nil
}

// compile-time interface check
var _ FeeRepository = (*PostgresFeeRepo)(nil)
