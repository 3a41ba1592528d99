package extranet

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/hitoshi/ffmesync/internal/member"
	"github.com/hitoshi/ffmesync/internal/model"
)

var _ member.DataSource = (*Client)(nil)

type memberJSON struct {
	ID              string  `json:"id"`
	NumeroLicence   string  `json:"numero_licence"`
	Nom             string  `json:"nom"`
	Prenom          string  `json:"prenom"`
	Email           *string `json:"email"`
	EmailSecondaire *string `json:"email_secondaire"`
	DateNaissance   string  `json:"date_naissance"`
	Sexe            string  `json:"sexe"`
}

type licenceJSON struct {
	UserID        string `json:"user_id"`
	Saison        int    `json:"saison"`
	StructureID   int    `json:"structure_id"`
	Produit       string `json:"produit"`
	NonPratiquant bool   `json:"non_pratiquant"`
}

type adresseJSON struct {
	UserID       string    `json:"user_id"`
	Ligne1       string    `json:"ligne1"`
	Ligne2       string    `json:"ligne2"`
	CodeInsee    string    `json:"code_insee"`
	CodePostal   string    `json:"code_postal"`
	Ville        string    `json:"ville"`
	DateModifiee time.Time `json:"date_modification"`
}

type documentJSON struct {
	UserID    string `json:"user_id"`
	Saison    int    `json:"saison"`
	Categorie int    `json:"categorie"`
}

type structureJSON struct {
	ID          int     `json:"id"`
	Nom         string  `json:"nom"`
	Code        *string `json:"code"`
	Departement *string `json:"departement"`
	Type        string  `json:"type"`
	ParentID    *int    `json:"parent_id"`
}

// Identities は指定クラブの会員一覧を取得する。
func (c *Client) Identities(ctx context.Context, structureID int) ([]model.Identity, error) {
	var members []memberJSON
	path := "structures/" + strconv.Itoa(structureID) + "/membres"
	if err := c.getJSON(ctx, path, url.Values{}, &members); err != nil {
		return nil, err
	}

	identities := make([]model.Identity, 0, len(members))
	for _, m := range members {
		identity := model.Identity{
			UserID:         m.ID,
			LicenseNumber:  m.NumeroLicence,
			FirstName:      m.Prenom,
			LastName:       m.Nom,
			Email:          m.Email,
			AlternateEmail: m.EmailSecondaire,
		}
		// 変換できない会員も一覧に残し、突合時に不整合として報告する
		birthDate, err := model.ParseBirthDate(m.DateNaissance)
		switch {
		case err != nil:
			identity.DecodeErr = fmt.Errorf("date_naissance: %w", err)
		case m.Sexe != "":
			identity.BirthDate = birthDate
			if identity.Gender, err = model.ParseGender(m.Sexe); err != nil {
				identity.DecodeErr = err
			}
		default:
			identity.BirthDate = birthDate
		}
		identities = append(identities, identity)
	}
	return identities, nil
}

// Licenses は各ユーザーについて対象シーズン以前で最新のライセンスを取得する。
// 旧APIは商品UUIDでライセンス種別を返す。
func (c *Client) Licenses(ctx context.Context, userIDs []string, season int) (map[string]model.License, error) {
	var licenses []model.License
	err := getBatched(ctx, c, "licences", "user_id", userIDs, func(page []licenceJSON) error {
		for _, l := range page {
			lt, err := model.ParseLicenseType(l.Produit)
			licenses = append(licenses, model.License{
				UserID:        l.UserID,
				Season:        l.Saison,
				StructureID:   l.StructureID,
				NonPracticing: l.NonPratiquant,
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
	err := getBatched(ctx, c, "adresses", "user_id", userIDs, func(page []adresseJSON) error {
		for _, a := range page {
			userID := a.UserID
			addresses = append(addresses, model.Address{
				UserID:     &userID,
				Line1:      a.Ligne1,
				Line2:      a.Ligne2,
				InseeCode:  a.CodeInsee,
				ZipCode:    a.CodePostal,
				City:       a.Ville,
				ModifiedAt: a.DateModifiee,
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
	docs, err := c.documents(ctx, "certificats", userIDs)
	if err != nil {
		return nil, err
	}
	return member.LatestDocuments(docs, season), nil
}

// Questionnaires は各ユーザーについて対象シーズン以前で最新の健康質問票を取得する。
func (c *Client) Questionnaires(ctx context.Context, userIDs []string, season int) (map[string]model.Document, error) {
	docs, err := c.documents(ctx, "questionnaires", userIDs)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Category = model.CertificateHealthQuestionnaire
	}
	return member.LatestDocuments(docs, season), nil
}

func (c *Client) documents(ctx context.Context, path string, userIDs []string) ([]model.Document, error) {
	var docs []model.Document
	err := getBatched(ctx, c, path, "user_id", userIDs, func(page []documentJSON) error {
		for _, d := range page {
			userID := d.UserID
			docs = append(docs, model.Document{
				UserID:   &userID,
				Season:   d.Saison,
				Category: model.ParseCertificateCategory(d.Categorie),
			})
		}
		return nil
	})
	return docs, err
}

// Structures は指定IDの組織情報を取得する。
func (c *Client) Structures(ctx context.Context, ids []int) (map[int]model.Structure, error) {
	structures := make(map[int]model.Structure, len(ids))
	err := getBatched(ctx, c, "structures", "id", itoaAll(ids), func(page []structureJSON) error {
		for _, s := range page {
			level, err := model.ParseStructureLevel(s.Type)
			structures[s.ID] = model.Structure{
				ID:         s.ID,
				Name:       s.Nom,
				Code:       s.Code,
				Department: s.Departement,
				Level:      level,
				ParentID:   s.ParentID,
				DecodeErr:  err,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return structures, nil
}
