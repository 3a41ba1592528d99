// Package member は外部プラットフォームの各データソースを突合し、会員レコードを生成する。
//
// 外部APIの世代ごとのアダプタ（myffme, extranet）はDataSourceを実装し、
// シーズン・更新日時に基づく最新レコードの選択には本パッケージのセレクタを共通で使用する。
package member

import (
	"context"

	"github.com/hitoshi/ffmesync/internal/model"
)

// DataSource は外部会員プラットフォームからユーザーごとの事実データを取得するインターフェース。
// 戻り値のマップはすべて外部ユーザーIDをキーとし、ストラクチャのみ数値IDをキーとする。
type DataSource interface {
	// Identities は指定クラブに所属する会員の本人情報を取得する。
	Identities(ctx context.Context, structureID int) ([]model.Identity, error)
	// Licenses は各ユーザーについて対象シーズン以前で最新のライセンスを取得する。
	Licenses(ctx context.Context, userIDs []string, season int) (map[string]model.License, error)
	// Addresses は各ユーザーについて最後に更新された住所を取得する。
	Addresses(ctx context.Context, userIDs []string) (map[string]model.Address, error)
	// Certificates は各ユーザーについて対象シーズン以前で最新の診断書を取得する。
	Certificates(ctx context.Context, userIDs []string, season int) (map[string]model.Document, error)
	// Questionnaires は各ユーザーについて対象シーズン以前で最新の健康質問票を取得する。
	Questionnaires(ctx context.Context, userIDs []string, season int) (map[string]model.Document, error)
	// Structures は指定IDの組織情報を取得する。
	Structures(ctx context.Context, ids []int) (map[int]model.Structure, error)
}

// LatestLicenses はユーザーごとに対象シーズン以前で最新のライセンスを選択する。
func LatestLicenses(licenses []model.License, season int) map[string]model.License {
	latest := make(map[string]model.License)
	for _, l := range licenses {
		if l.Season > season {
			continue
		}
		if cur, ok := latest[l.UserID]; !ok || l.Season > cur.Season {
			latest[l.UserID] = l
		}
	}
	return latest
}

// LatestDocuments はユーザーごとに対象シーズン以前で最新の書類を選択する。
// 選択後の書類からはユーザーIDを取り除く。ユーザーIDのない書類は無視する。
func LatestDocuments(docs []model.Document, season int) map[string]model.Document {
	latest := make(map[string]model.Document)
	for _, d := range docs {
		if d.UserID == nil || d.Season > season {
			continue
		}
		userID := *d.UserID
		if cur, ok := latest[userID]; !ok || d.Season > cur.Season {
			d.UserID = nil
			latest[userID] = d
		}
	}
	return latest
}

// LatestAddresses はユーザーごとに最後に更新された住所を選択する。
// 選択後の住所からはユーザーIDを取り除く。
func LatestAddresses(addresses []model.Address) map[string]model.Address {
	latest := make(map[string]model.Address)
	for _, a := range addresses {
		if a.UserID == nil {
			continue
		}
		userID := *a.UserID
		if cur, ok := latest[userID]; !ok || a.ModifiedAt.After(cur.ModifiedAt) {
			a.UserID = nil
			latest[userID] = a
		}
	}
	return latest
}
