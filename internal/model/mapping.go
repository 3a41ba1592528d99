package model

import (
	"fmt"
	"strings"
)

// 外部プラットフォームは同じ値を複数の表記（コード、仏語ラベル、旧APIのUUID）で返す。
// 以下の表に既知の表記をすべて列挙し、未知の表記はErrUnknownValueとして扱う。

var genderSpellings = map[string]Gender{
	"m":        GenderMale,
	"h":        GenderMale,
	"male":     GenderMale,
	"homme":    GenderMale,
	"masculin": GenderMale,
	"f":        GenderFemale,
	"female":   GenderFemale,
	"femme":    GenderFemale,
	"feminin":  GenderFemale,
	"féminin":  GenderFemale,
}

var licenseTypeSpellings = map[string]LicenseType{
	"a":               LicenseTypeAdult,
	"adulte":          LicenseTypeAdult,
	"adult":           LicenseTypeAdult,
	"licence_adulte":  LicenseTypeAdult,
	"j":               LicenseTypeChild,
	"jeune":           LicenseTypeChild,
	"child":           LicenseTypeChild,
	"licence_jeune":   LicenseTypeChild,
	"f":               LicenseTypeFamily,
	"famille":         LicenseTypeFamily,
	"family":          LicenseTypeFamily,
	"licence_famille": LicenseTypeFamily,
	"np":              LicenseTypeNonPracticing,
	"non_pratiquant":  LicenseTypeNonPracticing,
	"non pratiquant":  LicenseTypeNonPracticing,
	"non_practicing":  LicenseTypeNonPracticing,
	"d":               LicenseTypeDiscovery,
	"decouverte":      LicenseTypeDiscovery,
	"découverte":      LicenseTypeDiscovery,
	"discovery":       LicenseTypeDiscovery,
}

// legacyLicenseProductIDs は旧APIが返す商品UUIDとライセンス種別の対応表。
var legacyLicenseProductIDs = map[string]LicenseType{
	"8b1a5c1e-2c0d-4a58-9d0e-6f3f2b9a1a01": LicenseTypeAdult,
	"8b1a5c1e-2c0d-4a58-9d0e-6f3f2b9a1a02": LicenseTypeChild,
	"8b1a5c1e-2c0d-4a58-9d0e-6f3f2b9a1a03": LicenseTypeFamily,
	"8b1a5c1e-2c0d-4a58-9d0e-6f3f2b9a1a04": LicenseTypeNonPracticing,
	"8b1a5c1e-2c0d-4a58-9d0e-6f3f2b9a1a05": LicenseTypeDiscovery,
}

var insuranceLevelSpellings = map[string]InsuranceLevel{
	"rc":             InsuranceLevelRC,
	"base":           InsuranceLevelBase,
	"base+":          InsuranceLevelBasePlus,
	"base_plus":      InsuranceLevelBasePlus,
	"baseplus":       InsuranceLevelBasePlus,
	"base++":         InsuranceLevelBasePlusPlus,
	"base_plus_plus": InsuranceLevelBasePlusPlus,
	"baseplusplus":   InsuranceLevelBasePlusPlus,
}

var insuranceOptionSpellings = map[string]InsuranceOption{
	"ski":                InsuranceOptionSki,
	"ski_piste":          InsuranceOptionSki,
	"ski de piste":       InsuranceOptionSki,
	"slackline":          InsuranceOptionSlackline,
	"slackline+highline": InsuranceOptionSlackline,
	"highline":           InsuranceOptionSlackline,
	"trail":              InsuranceOptionTrail,
	"mtb":                InsuranceOptionMTB,
	"vtt":                InsuranceOptionMTB,
	"ij1":                InsuranceOptionIJ1,
	"ij2":                InsuranceOptionIJ2,
	"ij3":                InsuranceOptionIJ3,
}

var medicalStatusSpellings = map[string]MedicalCertificateStatus{
	"recreational":         MedicalStatusRecreational,
	"loisir":               MedicalStatusRecreational,
	"competition":          MedicalStatusCompetition,
	"compétition":          MedicalStatusCompetition,
	"health_questionnaire": MedicalStatusHealthQuestionnaire,
	"questionnaire_sante":  MedicalStatusHealthQuestionnaire,
	"waiting_for_document": MedicalStatusWaitingForDocument,
	"en_attente":           MedicalStatusWaitingForDocument,
}

var structureLevelSpellings = map[string]StructureLevel{
	"club":                 StructureLevelClub,
	"department":           StructureLevelDepartment,
	"cd":                   StructureLevelDepartment,
	"ct":                   StructureLevelDepartment,
	"comite_departemental": StructureLevelDepartment,
	"comité départemental": StructureLevelDepartment,
	"region":               StructureLevelRegion,
	"cr":                   StructureLevelRegion,
	"ligue":                StructureLevelRegion,
	"comite_regional":      StructureLevelRegion,
	"comité régional":      StructureLevelRegion,
	"national":             StructureLevelNational,
	"federation":           StructureLevelNational,
	"fédération":           StructureLevelNational,
	"ffme":                 StructureLevelNational,
}

func normalizeSpelling(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func lookup[T any](table map[string]T, kind, raw string) (T, error) {
	v, ok := table[normalizeSpelling(raw)]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %q: %w", kind, raw, ErrUnknownValue)
	}
	return v, nil
}

// ParseGender は外部表記の性別を正規化する。
func ParseGender(raw string) (Gender, error) {
	return lookup(genderSpellings, "gender", raw)
}

// ParseLicenseType は商品コードやラベルをライセンス種別に変換する。
func ParseLicenseType(raw string) (LicenseType, error) {
	if lt, ok := legacyLicenseProductIDs[normalizeSpelling(raw)]; ok {
		return lt, nil
	}
	return lookup(licenseTypeSpellings, "license type", raw)
}

// ParseInsuranceLevel は保険レベルの表記を変換する。
func ParseInsuranceLevel(raw string) (InsuranceLevel, error) {
	return lookup(insuranceLevelSpellings, "insurance level", raw)
}

// ParseInsuranceOption は保険オプションの表記を変換する。
func ParseInsuranceOption(raw string) (InsuranceOption, error) {
	return lookup(insuranceOptionSpellings, "insurance option", raw)
}

// ParseMedicalCertificateStatus は診断書ステータスの表記を変換する。
func ParseMedicalCertificateStatus(raw string) (MedicalCertificateStatus, error) {
	return lookup(medicalStatusSpellings, "medical certificate status", raw)
}

// ParseStructureLevel は組織種別の表記を変換する。
func ParseStructureLevel(raw string) (StructureLevel, error) {
	return lookup(structureLevelSpellings, "structure level", raw)
}

// ParseCertificateCategory は書類カテゴリコードを変換する。
// 5, 9, 60 以外のコードはその他の診断書として扱う。
func ParseCertificateCategory(code int) CertificateCategory {
	switch CertificateCategory(code) {
	case CertificateRecreational, CertificateCompetition, CertificateHealthQuestionnaire:
		return CertificateCategory(code)
	default:
		return CertificateGeneric
	}
}
