package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/ffmesync/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用した利用者ストア。
// メタデータはJSONBカラムに保存し、versionカラムで楽観的排他を行う。
type PostgresUserRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db, now: time.Now}
}

// execer は *sql.DB と *sql.Tx の共通部分。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const listByPrefixQuery = `SELECT key, id, first_name, last_name, email, birth_date, metadata, version, created_at, updated_at
	 FROM users WHERE left(key, length($1)) = $1 ORDER BY key`

const insertUserQuery = `INSERT INTO users (key, id, first_name, last_name, email, birth_date, metadata, version, created_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $8)`

const casUserQuery = `UPDATE users
	 SET first_name = $3, last_name = $4, email = $5, birth_date = $6, metadata = $7,
	     version = version + 1, updated_at = $8
	 WHERE key = $1 AND version = $2`

// ListByPrefix はプレフィックスに一致する全レコードをキー順に返す。
func (r *PostgresUserRepo) ListByPrefix(ctx context.Context, prefix string) ([]*model.UserRecord, error) {
	rows, err := r.db.QueryContext(ctx, listByPrefixQuery, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var records []*model.UserRecord
	for rows.Next() {
		rec := &model.UserRecord{}
		var metadata []byte
		if err := rows.Scan(&rec.Key, &rec.ID, &rec.FirstName, &rec.LastName, &rec.Email,
			&rec.BirthDate, &metadata, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if metadata != nil {
			rec.Metadata = &model.Metadata{}
			if err := json.Unmarshal(metadata, rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of %s: %w", rec.Key, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return records, nil
}

// Create はレコードを新規作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, record *model.UserRecord) error {
	return r.create(ctx, r.db, record)
}

// CompareAndSwap は保存済みのバージョンが一致する場合のみレコードを置き換える。
func (r *PostgresUserRepo) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, record *model.UserRecord) error {
	record.Key = key
	return r.update(ctx, r.db, expectedVersion, record)
}

// ApplyBatch は全操作を1トランザクションで適用する。
func (r *PostgresUserRepo) ApplyBatch(ctx context.Context, ops []WriteOp) error {
	if len(ops) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		switch op.Kind {
		case OpCreate:
			err = r.create(ctx, tx, op.Record)
		case OpUpdate:
			err = r.update(ctx, tx, op.ExpectedVersion, op.Record)
		default:
			err = fmt.Errorf("unknown write op %d", op.Kind)
		}
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Ping はデータベースへの疎通を確認する。
func (r *PostgresUserRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresUserRepo) create(ctx context.Context, db execer, record *model.UserRecord) error {
	metadata, err := encodeMetadata(record.Metadata)
	if err != nil {
		return err
	}

	now := r.now().UTC()
	_, err = db.ExecContext(ctx, insertUserQuery,
		record.Key, record.ID, record.FirstName, record.LastName, record.Email,
		record.BirthDate, metadata, now,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("user %s already exists: %w", record.Key, model.ErrVersionConflict)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	record.Version = 1
	record.CreatedAt = now
	record.UpdatedAt = now
	return nil
}

func (r *PostgresUserRepo) update(ctx context.Context, db execer, expectedVersion int64, record *model.UserRecord) error {
	metadata, err := encodeMetadata(record.Metadata)
	if err != nil {
		return err
	}

	now := r.now().UTC()
	result, err := db.ExecContext(ctx, casUserQuery,
		record.Key, expectedVersion, record.FirstName, record.LastName, record.Email,
		record.BirthDate, metadata, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %s at version %d: %w", record.Key, expectedVersion, model.ErrVersionConflict)
	}

	record.Version = expectedVersion + 1
	record.UpdatedAt = now
	return nil
}

// encodeMetadata はメタデータをJSONBカラム用の文字列に変換する。nilはNULLとして保存する。
// lib/pqは[]byteをbyteaとして送るため文字列で渡す。
func encodeMetadata(m *model.Metadata) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

// compile-time interface check
var _ UserStore = (*PostgresUserRepo)(nil)
