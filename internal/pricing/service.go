package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/ffmesync/internal/model"
)

// catalogLoadTimeout は料金表と組織階層の読み込みにかける最大時間。
const catalogLoadTimeout = 10 * time.Second

// Catalog は料金表と組織階層の読み込み元。repository.PostgresFeeRepo が実装する。
type Catalog interface {
	LoadSchedule(ctx context.Context) (*Schedule, error)
	Structures(ctx context.Context) (map[int]model.Structure, error)
}

// Request はクラブIDから料金を見積もるための入力。
type Request struct {
	ClubID         int
	LicenseType    model.LicenseType
	InsuranceLevel model.InsuranceLevel
	Options        []model.InsuranceOption
	Season         int
	Discount       bool
}

// snapshot は読み込み済みの料金表と組織階層。
type snapshot struct {
	schedule   *Schedule
	structures map[int]model.Structure
	loadedAt   time.Time
}

// Service は料金表をTTLの間キャッシュし、クラブIDから見積もりを算出する。
type Service struct {
	catalog Catalog
	ttl     time.Duration
	now     func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	current *snapshot
}

// NewService はServiceの新しいインスタンスを生成する。ttlが0以下の場合は毎回読み込む。
func NewService(catalog Catalog, ttl time.Duration) *Service {
	return &Service{
		catalog: catalog,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Quote はクラブの階層を解決し、見積もりの内訳を返す。
// クラブや上位組織が見つからない場合は model.ErrStructureNotFound、
// 料金が欠けている場合は model.ErrFeeNotFound をラップしたエラーを返す。
func (s *Service) Quote(ctx context.Context, req Request) (Breakdown, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return Breakdown{}, err
	}

	tiers, err := ResolveTiers(snap.structures, req.ClubID)
	if err != nil {
		return Breakdown{}, err
	}

	return NewComposer(snap.schedule).Breakdown(Quote{
		Tiers:          tiers,
		LicenseType:    req.LicenseType,
		InsuranceLevel: req.InsuranceLevel,
		Options:        req.Options,
		Season:         req.Season,
		Discount:       req.Discount,
	})
}

// Invalidate はキャッシュを破棄し、次回の見積もりで料金表を読み込み直す。
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

func (s *Service) load(ctx context.Context) (*snapshot, error) {
	s.mu.RLock()
	snap := s.current
	s.mu.RUnlock()
	if snap != nil && s.now().Sub(snap.loadedAt) < s.ttl {
		return snap, nil
	}

	// 同時に期限切れを検知したリクエストは1回の読み込みを共有する。
	// 読み込みは最初の呼び出し元のキャンセルに巻き込まれないよう独立したタイムアウトで行い、
	// 各呼び出し元は自身のctxが終了した時点で待機をやめる。
	ch := s.group.DoChan("catalog", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), catalogLoadTimeout)
		defer cancel()

		schedule, err := s.catalog.LoadSchedule(loadCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to load fee schedule: %w", err)
		}
		structures, err := s.catalog.Structures(loadCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to load structures: %w", err)
		}
		fresh := &snapshot{schedule: schedule, structures: structures, loadedAt: s.now()}
		s.mu.Lock()
		s.current = fresh
		s.mu.Unlock()
		return fresh, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
