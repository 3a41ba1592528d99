package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/ffmesync/internal/model"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisUserRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := NewRedisUserRepo(client)
	repo.now = func() time.Time { return fixedNow }
	return mr, repo
}

func TestRedisUserRepo_CreateAndList(t *testing.T) {
	mr, repo := setupRedis(t)
	ctx := context.Background()

	for _, key := range []string{"user:b", "user:a"} {
		if err := repo.Create(ctx, testRecord(key)); err != nil {
			t.Fatalf("Create(%s) がエラーを返した: %v", key, err)
		}
	}
	// 別の名前空間
	mr.Set("session:x", "{}")

	records, err := repo.ListByPrefix(ctx, "user:")
	if err != nil {
		t.Fatalf("ListByPrefix がエラーを返した: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].Key != "user:a" || records[1].Key != "user:b" {
		t.Errorf("keys = %s, %s, want user:a, user:b", records[0].Key, records[1].Key)
	}
	if records[0].Version != 1 || records[0].ExternalID() != "u-1" {
		t.Errorf("records[0] = %+v, want version 1 external id u-1", records[0])
	}
	if records[0].Metadata.MedicalCertificateStatus != model.MedicalStatusCompetition {
		t.Errorf("MedicalCertificateStatus = %q, want competition", records[0].Metadata.MedicalCertificateStatus)
	}
}

func TestRedisUserRepo_Create_DuplicateKey(t *testing.T) {
	_, repo := setupRedis(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testRecord("user:a")); err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}
	err := repo.Create(ctx, testRecord("user:a"))
	if !errors.Is(err, model.ErrVersionConflict) {
		t.Errorf("err = %v, want ErrVersionConflict", err)
	}
}

func TestRedisUserRepo_CompareAndSwap(t *testing.T) {
	_, repo := setupRedis(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testRecord("user:a")); err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}

	updated := testRecord("")
	updated.Email = "new@example.com"
	if err := repo.CompareAndSwap(ctx, "user:a", 1, updated); err != nil {
		t.Fatalf("CompareAndSwap がエラーを返した: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}

	stale := testRecord("")
	err := repo.CompareAndSwap(ctx, "user:a", 1, stale)
	if !errors.Is(err, model.ErrVersionConflict) {
		t.Errorf("古いバージョンでの更新: err = %v, want ErrVersionConflict", err)
	}

	missing := testRecord("")
	err = repo.CompareAndSwap(ctx, "user:missing", 1, missing)
	if !errors.Is(err, model.ErrVersionConflict) {
		t.Errorf("存在しないキーの更新: err = %v, want ErrVersionConflict", err)
	}

	records, err := repo.ListByPrefix(ctx, "user:")
	if err != nil {
		t.Fatalf("ListByPrefix がエラーを返した: %v", err)
	}
	if len(records) != 1 || records[0].Email != "new@example.com" {
		t.Errorf("records = %+v, want one record with new email", records)
	}
}

func TestRedisUserRepo_ApplyBatch_AllOrNothing(t *testing.T) {
	_, repo := setupRedis(t)
	ctx := context.Background()

	if err := repo.Create(ctx, testRecord("user:a")); err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}

	ops := []WriteOp{
		{Kind: OpCreate, Record: testRecord("user:new")},
		{Kind: OpUpdate, Record: testRecord("user:a"), ExpectedVersion: 7},
	}
	err := repo.ApplyBatch(ctx, ops)
	if !errors.Is(err, model.ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}

	records, err := repo.ListByPrefix(ctx, "user:")
	if err != nil {
		t.Fatalf("ListByPrefix がエラーを返した: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want 1 (バッチの一部が書き込まれた)", len(records))
	}
}

func TestRedisUserRepo_Ping(t *testing.T) {
	_, repo := setupRedis(t)

	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("Ping がエラーを返した: %v", err)
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob("user:[a]*?"); got != `user:\[a\]\*\?` {
		t.Errorf("escapeGlob = %q", got)
	}
}
