package myffme

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/ffmesync/internal/member"
	"github.com/hitoshi/ffmesync/internal/model"
)

// maxIDsPerQuery は1クエリで指定するユーザーIDの最大数。
const maxIDsPerQuery = 200

var _ member.DataSource = (*Client)(nil)

const identitiesQuery = `query Members($structureId: Int!) {
  user_licence(where: {structure_id: {_eq: $structureId}}, distinct_on: user_id) {
    user { id licence_number firstname lastname email email2 birthdate gender }
  }
}`

const licencesQuery = `query Licences($userIds: [uuid!]!) {
  user_licence(where: {user_id: {_in: $userIds}}) {
    user_id season structure_id non_practicing product { code }
  }
}`

const addressesQuery = `query Addresses($userIds: [uuid!]!) {
  user_address(where: {user_id: {_in: $userIds}}) {
    user_id line1 line2 insee_code zip_code city updated_at
  }
}`

const certificatesQuery = `query Certificates($userIds: [uuid!]!) {
  user_medical_certificate(where: {user_id: {_in: $userIds}}) {
    user_id season category
  }
}`

const questionnairesQuery = `query Questionnaires($userIds: [uuid!]!) {
  user_health_questionnaire(where: {user_id: {_in: $userIds}}) {
    user_id season
  }
}`

const structuresQuery = `query Structures($ids: [Int!]!) {
  structure(where: {id: {_in: $ids}}) {
    id label code department level parent_id
  }
}`

type userNode struct {
	ID            string  `json:"id"`
	LicenceNumber string  `json:"licence_number"`
	FirstName     string  `json:"firstname"`
	LastName      string  `json:"lastname"`
	Email         *string `json:"email"`
	Email2        *string `json:"email2"`
	BirthDate     string  `json:"birthdate"`
	Gender        string  `json:"gender"`
}

type licenceNode struct {
	UserID        string `json:"user_id"`
	Season        int    `json:"season"`
	StructureID   int    `json:"structure_id"`
	NonPracticing bool   `json:"non_practicing"`
	Product       struct {
		Code string `json:"code"`
	} `json:"product"`
}

type addressNode struct {
	UserID    string    `json:"user_id"`
	Line1     string    `json:"line1"`
	Line2     string    `json:"line2"`
	InseeCode string    `json:"insee_code"`
	ZipCode   string    `json:"zip_code"`
	City      string    `json:"city"`
	UpdatedAt time.Time `json:"updated_at"`
}

type documentNode struct {
	UserID   string `json:"user_id"`
	Season   int    `json:"season"`
	Category int    `json:"category"`
}

type structureNode struct {
	ID         int     `json:"id"`
	Label      string  `json:"label"`
	Code       *string `json:"code"`
	Department *string `json:"department"`
	Level      string  `json:"level"`
	ParentID   *int    `json:"parent_id"`
}

// Identities は指定クラブにライセンスを持つ会員の本人情報を取得する。
func (c *Client) Identities(ctx context.Context, structureID int) ([]model.Identity, error) {
	var data struct {
		Licences []struct {
			User userNode `json:"user"`
		} `json:"user_licence"`
	}
	if err := c.query(ctx, "Members", identitiesQuery, map[string]any{"structureId": structureID}, &data); err != nil {
		return nil, err
	}

	identities := make([]model.Identity, 0, len(data.Licences))
	for _, l := range data.Licences {
		identities = append(identities, toIdentity(l.User))
	}
	return identities, nil
}

// toIdentity は会員ノードを本人情報に変換する。
// 変換できない値はDecodeErrに記録し、会員単位の不整合として突合時に報告させる。
func toIdentity(u userNode) model.Identity {
	identity := model.Identity{
		UserID:         u.ID,
		LicenseNumber:  u.LicenceNumber,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Email:          u.Email,
		AlternateEmail: u.Email2,
	}

	birthDate, err := model.ParseBirthDate(u.BirthDate)
	if err != nil {
		identity.DecodeErr = fmt.Errorf("birthdate: %w", err)
		return identity
	}
	identity.BirthDate = birthDate

	if u.Gender != "" {
		if identity.Gender, err = model.ParseGender(u.Gender); err != nil {
			identity.DecodeErr = err
		}
	}
	return identity
}

// Licenses は各ユーザーについて対象シーズン以前で最新のライセンスを取得する。
func (c *Client) Licenses(ctx context.Context, userIDs []string, season int) (map[string]model.License, error) {
	var licenses []model.License
	err := eachChunk(userIDs, func(ids []string) error {
		var data struct {
			Licences []licenceNode `json:"user_licence"`
		}
		if err := c.query(ctx, "Licences", licencesQuery, map[string]any{"userIds": ids}, &data); err != nil {
			return err
		}
		for _, n := range data.Licences {
			lt, err := model.ParseLicenseType(n.Product.Code)
			licenses = append(licenses, model.License{
				UserID:        n.UserID,
				Season:        n.Season,
				StructureID:   n.StructureID,
				NonPracticing: n.NonPracticing,
				Type:          lt,
				DecodeErr:     err,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return member.LatestLicenses(licenses, season), nil
}

// Addresses は各ユーザーについて最後に更新された住所を取得する。
func (c *Client) Addresses(ctx context.Context, userIDs []string) (map[string]model.Address, error) {
	var addresses []model.Address
	err := eachChunk(userIDs, func(ids []string) error {
		var data struct {
			Addresses []addressNode `json:"user_address"`
		}
		if err := c.query(ctx, "Addresses", addressesQuery, map[string]any{"userIds": ids}, &data); err != nil {
			return err
		}
		for _, n := range data.Addresses {
			userID := n.UserID
			addresses = append(addresses, model.Address{
				UserID:     &userID,
				Line1:      n.Line1,
				Line2:      n.Line2,
				InseeCode:  n.InseeCode,
				ZipCode:    n.ZipCode,
				City:       n.City,
				ModifiedAt: n.UpdatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return member.LatestAddresses(addresses), nil
}

// Certificates は各ユーザーについて対象シーズン以前で最新の診断書を取得する。
func (c *Client) Certificates(ctx context.Context, userIDs []string, season int) (map[string]model.Document, error) {
	docs, err := c.documents(ctx, "Certificates", certificatesQuery, "user_medical_certificate", userIDs)
	if err != nil {
		return nil, err
	}
	return member.LatestDocuments(docs, season), nil
}

// Questionnaires は各ユーザーについて対象シーズン以前で最新の健康質問票を取得する。
func (c *Client) Questionnaires(ctx context.Context, userIDs []string, season int) (map[string]model.Document, error) {
	docs, err := c.documents(ctx, "Questionnaires", questionnairesQuery, "user_health_questionnaire", userIDs)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Category = model.CertificateHealthQuestionnaire
	}
	return member.LatestDocuments(docs, season), nil
}

func (c *Client) documents(ctx context.Context, operation, query, field string, userIDs []string) ([]model.Document, error) {
	var docs []model.Document
	err := eachChunk(userIDs, func(ids []string) error {
		var data map[string][]documentNode
		if err := c.query(ctx, operation, query, map[string]any{"userIds": ids}, &data); err != nil {
			return err
		}
		for _, n := range data[field] {
			userID := n.UserID
			docs = append(docs, model.Document{
				UserID:   &userID,
				Season:   n.Season,
				Category: model.ParseCertificateCategory(n.Category),
			})
		}
		return nil
	})
	return docs, err
}

// Structures は指定IDの組織情報を取得する。
func (c *Client) Structures(ctx context.Context, ids []int) (map[int]model.Structure, error) {
	structures := make(map[int]model.Structure, len(ids))
	if len(ids) == 0 {
		return structures, nil
	}

	var data struct {
		Structures []structureNode `json:"structure"`
	}
	if err := c.query(ctx, "Structures", structuresQuery, map[string]any{"ids": ids}, &data); err != nil {
		return nil, err
	}
	for _, n := range data.Structures {
		level, err := model.ParseStructureLevel(n.Level)
		structures[n.ID] = model.Structure{
			ID:         n.ID,
			Name:       n.Label,
			Code:       n.Code,
			Department: n.Department,
			Level:      level,
			ParentID:   n.ParentID,
			DecodeErr:  err,
		}
	}
	return structures, nil
}

// eachChunk はIDをmaxIDsPerQuery件ずつに分割してfnを順に呼び出す。
func eachChunk(ids []string, fn func([]string) error) error {
	for start := 0; start < len(ids); start += maxIDsPerQuery {
		end := min(start+maxIDsPerQuery, len(ids))
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}
