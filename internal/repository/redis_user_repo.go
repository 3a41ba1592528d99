package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/ffmesync/internal/model"
)

// scanCount はSCAN 1回あたりの取得件数の目安。
const scanCount = 200

// RedisUserRepo はRedisを使用した利用者ストア。
// 1レコードを1キーのJSON文字列として保存し、WATCH/MULTIで楽観的排他を行う。
type RedisUserRepo struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisUserRepo はRedisUserRepoを生成する。
func NewRedisUserRepo(client *redis.Client) *RedisUserRepo {
	return &RedisUserRepo{client: client, now: time.Now}
}

// redisUserValue はRedisに保存する値の形式。キーは値に含めない。
type redisUserValue struct {
	ID        string          `json:"id"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Email     string          `json:"email"`
	BirthDate int             `json:"birth_date"`
	Metadata  *model.Metadata `json:"metadata"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toRedisValue(r *model.UserRecord) redisUserValue {
	return redisUserValue{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		BirthDate: r.BirthDate,
		Metadata:  r.Metadata,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (v redisUserValue) record(key string) *model.UserRecord {
	return &model.UserRecord{
		Key:       key,
		ID:        v.ID,
		FirstName: v.FirstName,
		LastName:  v.LastName,
		Email:     v.Email,
		BirthDate: v.BirthDate,
		Metadata:  v.Metadata,
		Version:   v.Version,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

// ListByPrefix はSCANでプレフィックスに一致するキーを列挙し、MGETで値を取得する。
func (r *RedisUserRepo) ListByPrefix(ctx context.Context, prefix string) ([]*model.UserRecord, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, escapeGlob(prefix)+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}

	records := make([]*model.UserRecord, 0, len(keys))
	for i, raw := range values {
		// SCANとMGETの間に削除されたキー
		if raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected value type for %s", keys[i])
		}
		var v redisUserValue
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("failed to decode user %s: %w", keys[i], err)
		}
		records = append(records, v.record(keys[i]))
	}

	return records, nil
}

// Create はキーが存在しない場合のみレコードを作成する。
func (r *RedisUserRepo) Create(ctx context.Context, record *model.UserRecord) error {
	return r.ApplyBatch(ctx, []WriteOp{{Kind: OpCreate, Record: record}})
}

// CompareAndSwap は保存済みのバージョンが一致する場合のみレコードを置き換える。
func (r *RedisUserRepo) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, record *model.UserRecord) error {
	record.Key = key
	return r.ApplyBatch(ctx, []WriteOp{{Kind: OpUpdate, Record: record, ExpectedVersion: expectedVersion}})
}

// ApplyBatch は対象キーをWATCHして現在のバージョンを検証し、MULTIで全件を書き込む。
// 検証後に他のクライアントがキーを変更した場合は model.ErrVersionConflict を返す。
func (r *RedisUserRepo) ApplyBatch(ctx context.Context, ops []WriteOp) error {
	if len(ops) == 0 {
		return nil
	}

	keys := make([]string, len(ops))
	for i, op := range ops {
		keys[i] = op.Record.Key
	}

	now := r.now().UTC()
	values := make([]redisUserValue, len(ops))

	txf := func(tx *redis.Tx) error {
		current, err := tx.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("failed to read users: %w", err)
		}

		for i, op := range ops {
			v := toRedisValue(op.Record)
			switch op.Kind {
			case OpCreate:
				if current[i] != nil {
					return fmt.Errorf("user %s already exists: %w", op.Record.Key, model.ErrVersionConflict)
				}
				v.Version = 1
				v.CreatedAt = now
			case OpUpdate:
				stored, err := decodeStored(current[i])
				if err != nil {
					return fmt.Errorf("user %s: %w", op.Record.Key, err)
				}
				if stored == nil || stored.Version != op.ExpectedVersion {
					return fmt.Errorf("user %s at version %d: %w", op.Record.Key, op.ExpectedVersion, model.ErrVersionConflict)
				}
				v.Version = op.ExpectedVersion + 1
				v.CreatedAt = stored.CreatedAt
			default:
				return fmt.Errorf("unknown write op %d", op.Kind)
			}
			v.UpdatedAt = now
			values[i] = v
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, v := range values {
				b, err := json.Marshal(v)
				if err != nil {
					return fmt.Errorf("failed to encode user %s: %w", keys[i], err)
				}
				pipe.Set(ctx, keys[i], b, 0)
			}
			return nil
		})
		return err
	}

	if err := r.client.Watch(ctx, txf, keys...); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("users modified concurrently: %w", model.ErrVersionConflict)
		}
		return err
	}

	for i, op := range ops {
		op.Record.Version = values[i].Version
		op.Record.CreatedAt = values[i].CreatedAt
		op.Record.UpdatedAt = values[i].UpdatedAt
	}
	return nil
}

// Ping はRedisへの疎通を確認する。
func (r *RedisUserRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func decodeStored(raw any) (*redisUserValue, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected value type %T", raw)
	}
	var v redisUserValue
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}
	return &v, nil
}

// escapeGlob はSCANのMATCHパターンで特殊文字となる文字をエスケープする。
func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// compile-time interface check
var _ UserStore = (*RedisUserRepo)(nil)
