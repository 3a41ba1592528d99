// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Identity は外部会員プラットフォームから取得した会員の本人情報を表す。
// メールアドレスは主アドレスと代替アドレスの2系統を持つ。
type Identity struct {
	UserID         string
	LicenseNumber  string
	FirstName      string
	LastName       string
	Email          *string
	AlternateEmail *string
	BirthDate      int // YYYYMMDD
	Gender         Gender

	// DecodeErr は外部表記の変換に失敗した場合の原因。
	// 設定されている会員は突合時にデータ不整合として報告され、他の会員の同期は継続する。
	DecodeErr error
}

// License は1シーズン分のクラブ所属（ライセンス）を表す。
type License struct {
	UserID        string
	Season        int
	StructureID   int
	NonPracticing bool
	Type          LicenseType

	// DecodeErr はライセンス種別を変換できなかった場合の原因。
	DecodeErr error
}

// Document は医師の診断書や健康質問票などの証明書類を表す。
// UserIDは照合後に取り除かれる。
type Document struct {
	UserID   *string
	Season   int
	Category CertificateCategory
}

// Address は会員の住所を表す。ユーザーごとに最新更新の1件のみ保持する。
type Address struct {
	UserID     *string
	Line1      string
	Line2      string
	InseeCode  string
	ZipCode    string
	City       string
	ModifiedAt time.Time
}

// Structure はクラブ・県委員会・地域委員会・連盟本部などの組織単位を表す。
// ParentIDは料金算出時の階層解決にのみ使用する。
type Structure struct {
	ID         int
	Name       string
	Code       *string
	Department *string
	Level      StructureLevel
	ParentID   *int

	// DecodeErr は組織種別を変換できなかった場合の原因。
	DecodeErr error
}

// Summary は会員レコードに保持するクラブ情報の要約を返す。
func (s Structure) Summary() StructureSummary {
	return StructureSummary{
		ID:         s.ID,
		Name:       s.Name,
		Code:       s.Code,
		Department: s.Department,
	}
}

// StructureSummary は会員メタデータに保存されるクラブ情報。
type StructureSummary struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Code       *string `json:"code"`
	Department *string `json:"department"`
}

// CompetitionResult は公開リザルトページから取得した大会成績の1行を表す。
type CompetitionResult struct {
	Season      int    `json:"season"`
	Date        string `json:"date"`
	Competition string `json:"competition"`
	Discipline  string `json:"discipline"`
	Category    string `json:"category"`
	Rank        int    `json:"rank"`
}

// Member は外部プラットフォームの各データソースを突合した会員1名分のスナップショット。
// 同期のたびに再計算され、生成後に変更されることはない。
type Member struct {
	FirstName string
	LastName  string
	Email     string
	BirthDate int // YYYYMMDD
	Metadata  Metadata
}

// ExternalID は外部プラットフォーム上のユーザーIDを返す。未紐付けの場合は空文字を返す。
func (m Member) ExternalID() string {
	if m.Metadata.MyFFMEUserID == nil {
		return ""
	}
	return *m.Metadata.MyFFMEUserID
}

// Metadata は会員情報のうちローカルアカウントに永続化される部分。
// 任意項目はJSON上も常にキーを出力し、nullと値の区別を往復で保持する。
type Metadata struct {
	MyFFMEUserID             *string                  `json:"myffme_user_id"`
	LicenseNumber            *string                  `json:"license_number"`
	Gender                   Gender                   `json:"gender"`
	InseeCode                *string                  `json:"insee_code"`
	City                     *string                  `json:"city"`
	ZipCode                  *string                  `json:"zip_code"`
	LicenseType              *LicenseType             `json:"license_type"`
	MedicalCertificateStatus MedicalCertificateStatus `json:"medical_certificate_status"`
	LatestLicenseSeason      *int                     `json:"latest_license_season"`
	LatestStructure          *StructureSummary        `json:"latest_structure"`
	CompetitionResults       []CompetitionResult      `json:"competition_results"`
}

// Validate はライセンス番号と外部ユーザーIDが揃っていることを検証する。
// どちらか一方のみが設定されている状態は不整合とみなす。
func (m Metadata) Validate() error {
	if (m.LicenseNumber == nil) != (m.MyFFMEUserID == nil) {
		return fmt.Errorf("license_number と myffme_user_id はどちらも設定するか、どちらも未設定である必要があります: %w", ErrInconsistentMetadata)
	}
	return nil
}

// Linked は外部プラットフォームと紐付け済みかどうかを返す。
func (m Metadata) Linked() bool {
	return m.MyFFMEUserID != nil && m.LicenseNumber != nil
}

// Equal は2つのメタデータの全項目が一致するかを判定する。
// nilと空スライスは区別する。
func (m Metadata) Equal(o Metadata) bool {
	if !equalPtr(m.MyFFMEUserID, o.MyFFMEUserID) ||
		!equalPtr(m.LicenseNumber, o.LicenseNumber) ||
		m.Gender != o.Gender ||
		!equalPtr(m.InseeCode, o.InseeCode) ||
		!equalPtr(m.City, o.City) ||
		!equalPtr(m.ZipCode, o.ZipCode) ||
		!equalPtr(m.LicenseType, o.LicenseType) ||
		m.MedicalCertificateStatus != o.MedicalCertificateStatus ||
		!equalPtr(m.LatestLicenseSeason, o.LatestLicenseSeason) {
		return false
	}

	if (m.LatestStructure == nil) != (o.LatestStructure == nil) {
		return false
	}
	if m.LatestStructure != nil {
		a, b := m.LatestStructure, o.LatestStructure
		if a.ID != b.ID || a.Name != b.Name || !equalPtr(a.Code, b.Code) || !equalPtr(a.Department, b.Department) {
			return false
		}
	}

	if (m.CompetitionResults == nil) != (o.CompetitionResults == nil) {
		return false
	}
	if len(m.CompetitionResults) != len(o.CompetitionResults) {
		return false
	}
	for i := range m.CompetitionResults {
		if m.CompetitionResults[i] != o.CompetitionResults[i] {
			return false
		}
	}
	return true
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// BirthDateFromTime は日付をYYYYMMDD形式の整数に変換する。
func BirthDateFromTime(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// BirthYear はYYYYMMDD形式の生年月日から年を取り出す。
func BirthYear(birthDate int) int {
	return birthDate / 10000
}

// ParseBirthDate は "2006-01-02" 形式の文字列をYYYYMMDD形式に変換する。
func ParseBirthDate(s string) (int, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return 0, fmt.Errorf("生年月日の形式が不正です: %q: %w", s, err)
	}
	return BirthDateFromTime(t), nil
}
