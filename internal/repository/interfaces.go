// Package repository はデータ永続化のインターフェースと実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/ffmesync/internal/model"
	"github.com/hitoshi/ffmesync/internal/pricing"
)

// UserStore は利用者アカウントのキー・バリューストア。
// キーは名前空間プレフィックス付きで、更新はバージョンによる楽観的排他で行う。
type UserStore interface {
	// ListByPrefix はプレフィックスに一致する全レコードをキー順に返す。
	ListByPrefix(ctx context.Context, prefix string) ([]*model.UserRecord, error)

	// Create はレコードを新規作成する。キーが既に存在する場合は model.ErrVersionConflict を返す。
	Create(ctx context.Context, record *model.UserRecord) error

	// CompareAndSwap は保存済みのバージョンが expectedVersion と一致する場合のみレコードを置き換える。
	// 一致しない場合は model.ErrVersionConflict を返す。成功時は record.Version が更新される。
	CompareAndSwap(ctx context.Context, key string, expectedVersion int64, record *model.UserRecord) error

	// ApplyBatch は複数の作成・更新を1単位で適用する。1件でも失敗した場合は何も書き込まない。
	ApplyBatch(ctx context.Context, ops []WriteOp) error

	// Ping はストアへの疎通を確認する。
	Ping(ctx context.Context) error
}

// OpKind は書き込み操作の種別。
type OpKind int

const (
	// OpCreate は新規作成。
	OpCreate OpKind = iota
	// OpUpdate はバージョン一致時の置き換え。
	OpUpdate
)

// String は操作種別の名前を返す。
func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// WriteOp はバッチ書き込みの1操作。
// OpUpdate の場合、ExpectedVersion が保存済みのバージョンと一致する必要がある。
type WriteOp struct {
	Kind            OpKind
	Record          *model.UserRecord
	ExpectedVersion int64
}

// FeeRepository は料金表と組織階層の読み込みインターフェース。
type FeeRepository interface {
	// LoadSchedule は全シーズンの料金表を読み込む。
	LoadSchedule(ctx context.Context) (*pricing.Schedule, error)

	// Structures は全組織をIDをキーとして返す。
	Structures(ctx context.Context) (map[int]model.Structure, error)
}
