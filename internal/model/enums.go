package model

// Gender は会員の性別を表す。
type Gender string

const (
	// GenderMale は男性。
	GenderMale Gender = "male"
	// GenderFemale は女性。
	GenderFemale Gender = "female"
)

// LicenseType はライセンスの種別を表す。
type LicenseType string

const (
	// LicenseTypeAdult は成人ライセンス。
	LicenseTypeAdult LicenseType = "adult"
	// LicenseTypeChild は青少年ライセンス。
	LicenseTypeChild LicenseType = "child"
	// LicenseTypeFamily は家族ライセンス。
	LicenseTypeFamily LicenseType = "family"
	// LicenseTypeNonPracticing は非実践者ライセンス。商品コードより優先される。
	LicenseTypeNonPracticing LicenseType = "non_practicing"
	// LicenseTypeDiscovery は体験ライセンス。
	LicenseTypeDiscovery LicenseType = "discovery"
)

// MedicalCertificateStatus は診断書に基づく活動資格の状態を表す。
type MedicalCertificateStatus string

const (
	// MedicalStatusRecreational はレジャー活動が可能な状態。
	MedicalStatusRecreational MedicalCertificateStatus = "recreational"
	// MedicalStatusCompetition は競技会参加が可能な状態。
	MedicalStatusCompetition MedicalCertificateStatus = "competition"
	// MedicalStatusHealthQuestionnaire は健康質問票のみが有効な状態。
	MedicalStatusHealthQuestionnaire MedicalCertificateStatus = "health_questionnaire"
	// MedicalStatusWaitingForDocument は書類の提出待ち。
	MedicalStatusWaitingForDocument MedicalCertificateStatus = "waiting_for_document"
)

// CertificateCategory は外部プラットフォームの書類カテゴリコード。
type CertificateCategory int

const (
	// CertificateGeneric はその他の診断書、または診断書なしを表す。
	CertificateGeneric CertificateCategory = 0
	// CertificateRecreational はレジャー用診断書（コード5）。
	CertificateRecreational CertificateCategory = 5
	// CertificateCompetition は競技用診断書（コード9）。
	CertificateCompetition CertificateCategory = 9
	// CertificateHealthQuestionnaire は健康質問票（コード60）。
	CertificateHealthQuestionnaire CertificateCategory = 60
)

// StructureLevel は組織階層の段階を表す。
type StructureLevel string

const (
	StructureLevelClub       StructureLevel = "club"
	StructureLevelDepartment StructureLevel = "department"
	StructureLevelRegion     StructureLevel = "region"
	StructureLevelNational   StructureLevel = "national"
)

// AgeCategory は年齢区分を表す。Baby < U8 < ... < Veterans の全順序を持つ。
type AgeCategory int

const (
	AgeCategoryBaby AgeCategory = iota
	AgeCategoryU8
	AgeCategoryU10
	AgeCategoryU12
	AgeCategoryU14
	AgeCategoryU16
	AgeCategoryU18
	AgeCategoryU20
	AgeCategorySeniors
	AgeCategoryVeterans
)

var ageCategoryNames = [...]string{
	"baby", "u8", "u10", "u12", "u14", "u16", "u18", "u20", "seniors", "veterans",
}

// String は年齢区分の名前を返す。
func (c AgeCategory) String() string {
	if c < 0 || int(c) >= len(ageCategoryNames) {
		return "unknown"
	}
	return ageCategoryNames[c]
}

// InsuranceLevel は保険の基本補償レベル。RC < Base < BasePlus < BasePlusPlus の順。
type InsuranceLevel int

const (
	InsuranceLevelRC InsuranceLevel = iota
	InsuranceLevelBase
	InsuranceLevelBasePlus
	InsuranceLevelBasePlusPlus
)

var insuranceLevelNames = [...]string{"rc", "base", "base_plus", "base_plus_plus"}

// String は補償レベルの名前を返す。
func (l InsuranceLevel) String() string {
	if l < 0 || int(l) >= len(insuranceLevelNames) {
		return "unknown"
	}
	return insuranceLevelNames[l]
}

// InsuranceOption は保険の追加オプション。複数同時に選択できる。
type InsuranceOption string

const (
	InsuranceOptionSki       InsuranceOption = "ski"
	InsuranceOptionSlackline InsuranceOption = "slackline"
	InsuranceOptionTrail     InsuranceOption = "trail"
	InsuranceOptionMTB       InsuranceOption = "mtb"
	InsuranceOptionIJ1       InsuranceOption = "ij1"
	InsuranceOptionIJ2       InsuranceOption = "ij2"
	InsuranceOptionIJ3       InsuranceOption = "ij3"
)
