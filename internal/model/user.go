// Package model はドメインモデルを定義する。
package model

import "time"

// UserRecord はローカルに保存された利用者アカウントを表す。
// Keyは名前空間プレフィックス付きのストアキー、Versionは楽観的更新に使用する。
type UserRecord struct {
	Key       string
	ID        string
	FirstName string
	LastName  string
	Email     string
	BirthDate int // YYYYMMDD
	Metadata  *Metadata
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExternalID は紐付け済みの外部ユーザーIDを返す。未紐付けの場合は空文字を返す。
func (u *UserRecord) ExternalID() string {
	if u.Metadata == nil || u.Metadata.MyFFMEUserID == nil {
		return ""
	}
	return *u.Metadata.MyFFMEUserID
}
