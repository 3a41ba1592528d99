package member

import (
	"errors"
	"fmt"

	"github.com/hitoshi/ffmesync/internal/medical"
	"github.com/hitoshi/ffmesync/internal/model"
)

// ErrMissingLicenseNumber は外部ユーザーにライセンス番号がないことを示す。
// ライセンス番号と外部ユーザーIDは対でのみ保存できるため、会員単位の不整合として扱う。
var ErrMissingLicenseNumber = errors.New("missing license number")

// Input は突合に必要な各データソースの取得結果。
type Input struct {
	Identities     []model.Identity
	Licenses       map[string]model.License
	Addresses      map[string]model.Address
	Certificates   map[string]model.Document
	Questionnaires map[string]model.Document
	Structures     map[int]model.Structure
}

// RecordError は会員1名分のデータ不整合を表す。
// 手動で解消できるよう氏名と外部IDを保持する。
type RecordError struct {
	UserID    string
	FirstName string
	LastName  string
	Err       error
}

// Error はerrorインターフェースを実装する。
func (e *RecordError) Error() string {
	return fmt.Sprintf("member %s %s (%s): %v", e.FirstName, e.LastName, e.UserID, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *RecordError) Unwrap() error {
	return e.Err
}

// Result は突合結果。不整合のあった会員はFailuresに含まれ、Membersには含まれない。
type Result struct {
	Members  []model.Member
	Failures []*RecordError
}

// Reconcile は本人情報ごとに各データソースのレコードを結合し、会員レコードを生成する。
func Reconcile(in Input, season int) Result {
	var res Result
	for _, identity := range in.Identities {
		m, err := reconcileOne(identity, in, season)
		if err != nil {
			res.Failures = append(res.Failures, &RecordError{
				UserID:    identity.UserID,
				FirstName: identity.FirstName,
				LastName:  identity.LastName,
				Err:       err,
			})
			continue
		}
		res.Members = append(res.Members, m)
	}
	return res
}

func reconcileOne(identity model.Identity, in Input, season int) (model.Member, error) {
	if identity.DecodeErr != nil {
		return model.Member{}, identity.DecodeErr
	}
	email, err := usableEmail(identity)
	if err != nil {
		return model.Member{}, err
	}
	if identity.LicenseNumber == "" {
		return model.Member{}, ErrMissingLicenseNumber
	}

	userID := identity.UserID
	licenseNumber := identity.LicenseNumber
	meta := model.Metadata{
		MyFFMEUserID:  &userID,
		LicenseNumber: &licenseNumber,
		Gender:        identity.Gender,
	}

	license, hasLicense := in.Licenses[userID]
	if hasLicense {
		if license.DecodeErr != nil {
			return model.Member{}, fmt.Errorf("license %d: %w", license.Season, license.DecodeErr)
		}
		lt := license.Type
		if license.NonPracticing {
			lt = model.LicenseTypeNonPracticing
		}
		licenseSeason := license.Season
		meta.LicenseType = &lt
		meta.LatestLicenseSeason = &licenseSeason
		if s, ok := in.Structures[license.StructureID]; ok {
			if s.DecodeErr != nil {
				return model.Member{}, fmt.Errorf("structure %d: %w", s.ID, s.DecodeErr)
			}
			summary := s.Summary()
			meta.LatestStructure = &summary
		}
	}

	if addr, ok := in.Addresses[userID]; ok {
		meta.InseeCode = nilIfEmpty(addr.InseeCode)
		meta.City = nilIfEmpty(addr.City)
		meta.ZipCode = nilIfEmpty(addr.ZipCode)
	}

	certificate, ok := in.Certificates[userID]
	if !ok {
		certificate = medical.NoCertificate()
	}

	// 質問票はライセンスと同じシーズンのものだけを採用する
	var questionnaire *model.Document
	if q, ok := in.Questionnaires[userID]; ok && hasLicense && q.Season == license.Season {
		questionnaire = &q
	}

	meta.MedicalCertificateStatus = medical.Status(certificate, questionnaire, season)

	return model.Member{
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		Email:     email,
		BirthDate: identity.BirthDate,
		Metadata:  meta,
	}, nil
}

// usableEmail は主アドレス、なければ代替アドレスを返す。
func usableEmail(identity model.Identity) (string, error) {
	if identity.Email != nil && *identity.Email != "" {
		return *identity.Email, nil
	}
	if identity.AlternateEmail != nil && *identity.AlternateEmail != "" {
		return *identity.AlternateEmail, nil
	}
	return "", model.ErrNoUsableEmail
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
