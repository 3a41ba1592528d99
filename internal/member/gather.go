package member

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/ffmesync/internal/model"
)

// Gatherer はDataSourceから突合に必要なデータを一括取得する。
// いずれかのデータソースの取得に失敗した場合は全体を中断する。
type Gatherer struct {
	source DataSource
	logger *slog.Logger
}

// NewGatherer はGathererの新しいインスタンスを生成する。
func NewGatherer(source DataSource, logger *slog.Logger) *Gatherer {
	return &Gatherer{
		source: source,
		logger: logger,
	}
}

// Gather は指定クラブ群の会員一覧を取得した後、ライセンス・住所・診断書・質問票を並列に取得し、
// 最後にライセンスが参照するクラブ情報を取得する。
func (g *Gatherer) Gather(ctx context.Context, structureIDs []int, season int) (Input, error) {
	start := time.Now()

	identities, err := g.identities(ctx, structureIDs)
	if err != nil {
		return Input{}, err
	}

	in := Input{Identities: identities}
	if len(identities) == 0 {
		return in, nil
	}

	userIDs := make([]string, 0, len(identities))
	for _, identity := range identities {
		userIDs = append(userIDs, identity.UserID)
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		licenses, err := g.source.Licenses(egCtx, userIDs, season)
		if err != nil {
			return fmt.Errorf("ライセンスの取得に失敗しました: %w", err)
		}
		in.Licenses = licenses
		return nil
	})
	eg.Go(func() error {
		addresses, err := g.source.Addresses(egCtx, userIDs)
		if err != nil {
			return fmt.Errorf("住所の取得に失敗しました: %w", err)
		}
		in.Addresses = addresses
		return nil
	})
	eg.Go(func() error {
		certificates, err := g.source.Certificates(egCtx, userIDs, season)
		if err != nil {
			return fmt.Errorf("診断書の取得に失敗しました: %w", err)
		}
		in.Certificates = certificates
		return nil
	})
	eg.Go(func() error {
		questionnaires, err := g.source.Questionnaires(egCtx, userIDs, season)
		if err != nil {
			return fmt.Errorf("健康質問票の取得に失敗しました: %w", err)
		}
		in.Questionnaires = questionnaires
		return nil
	})

	if err := eg.Wait(); err != nil {
		return Input{}, err
	}

	structures, err := g.source.Structures(ctx, referencedStructures(in.Licenses))
	if err != nil {
		return Input{}, fmt.Errorf("クラブ情報の取得に失敗しました: %w", err)
	}
	in.Structures = structures

	g.logger.Info("会員データの取得が完了しました",
		slog.Int("identity_count", len(identities)),
		slog.Int("license_count", len(in.Licenses)),
		slog.Int("season", season),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return in, nil
}

// identities は全クラブの会員を取得し、外部ユーザーIDで重複を除く。
func (g *Gatherer) identities(ctx context.Context, structureIDs []int) ([]model.Identity, error) {
	seen := make(map[string]bool)
	var all []model.Identity
	for _, id := range structureIDs {
		list, err := g.source.Identities(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("クラブ %d の会員一覧の取得に失敗しました: %w", id, err)
		}
		for _, identity := range list {
			if seen[identity.UserID] {
				continue
			}
			seen[identity.UserID] = true
			all = append(all, identity)
		}
	}
	return all, nil
}

func referencedStructures(licenses map[string]model.License) []int {
	set := make(map[int]bool)
	for _, l := range licenses {
		set[l.StructureID] = true
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
