// Package medical は診断書と健康質問票から活動資格ステータスを導出する。
package medical

import "github.com/hitoshi/ffmesync/internal/model"

// GraceSeasons は健康質問票で診断書の有効期間を延長できるシーズン数。
// 比較は厳密な大なりで行うため、ちょうど3シーズン前の診断書は延長対象外となる。
const GraceSeasons = 3

// NoCertificate は診断書が存在しない場合に使う番兵値を返す。
func NoCertificate() model.Document {
	return model.Document{Season: 0, Category: model.CertificateGeneric}
}

// Status は診断書・健康質問票・対象シーズンから活動資格ステータスを導出する。
// 全入力に対して必ずいずれかのステータスを返す。
//
// 質問票は対象シーズンのものだけが有効。診断書が対象シーズンのものであれば
// カテゴリに応じた有効ステータス、質問票があり猶予期間内であれば同じく有効ステータス、
// 猶予期間切れであれば HealthQuestionnaire、質問票がなければ WaitingForDocument となる。
// その他カテゴリの診断書は猶予延長の対象外。
func Status(certificate model.Document, questionnaire *model.Document, season int) model.MedicalCertificateStatus {
	hasQuestionnaire := questionnaire != nil && questionnaire.Season == season
	withinGrace := certificate.Season+GraceSeasons > season

	switch certificate.Category {
	case model.CertificateCompetition:
		return derive(certificate, hasQuestionnaire, withinGrace, season, model.MedicalStatusCompetition)
	case model.CertificateRecreational:
		return derive(certificate, hasQuestionnaire, withinGrace, season, model.MedicalStatusRecreational)
	default:
		if certificate.Season == season {
			return model.MedicalStatusRecreational
		}
		if hasQuestionnaire {
			return model.MedicalStatusHealthQuestionnaire
		}
		return model.MedicalStatusWaitingForDocument
	}
}

func derive(certificate model.Document, hasQuestionnaire, withinGrace bool, season int, valid model.MedicalCertificateStatus) model.MedicalCertificateStatus {
	switch {
	case certificate.Season == season:
		return valid
	case hasQuestionnaire && withinGrace:
		return valid
	case hasQuestionnaire:
		return model.MedicalStatusHealthQuestionnaire
	default:
		return model.MedicalStatusWaitingForDocument
	}
}
