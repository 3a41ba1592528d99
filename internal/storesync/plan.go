// Package storesync は突合済みの会員レコードをローカルの利用者ストアに反映する。
//
// 全会員の差分を計算してから書き込みを発行するため、途中で失敗した場合に
// 一部の利用者だけメタデータが更新されることはない。
package storesync

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/ffmesync/internal/member"
	"github.com/hitoshi/ffmesync/internal/model"
	"github.com/hitoshi/ffmesync/internal/repository"
)

// MatchError は氏名と生年月日による初回紐付けで対象を一意に決められなかった会員を表す。
// 任意の候補を選ぶことはせず、手動で解消できるよう候補キーを保持する。
type MatchError struct {
	UserID     string
	FirstName  string
	LastName   string
	BirthDate  int
	Candidates []string
}

// Error はerrorインターフェースを実装する。
func (e *MatchError) Error() string {
	return fmt.Sprintf("member %s %s (%s, born %d) matches %d accounts %v: %v",
		e.FirstName, e.LastName, e.UserID, e.BirthDate, len(e.Candidates), e.Candidates, model.ErrAmbiguousMatch)
}

// Unwrap は model.ErrAmbiguousMatch を返す。
func (e *MatchError) Unwrap() error {
	return model.ErrAmbiguousMatch
}

// Plan は1回の同期で発行する書き込みの一覧。
type Plan struct {
	Ops       []repository.WriteOp
	Created   int
	Linked    int
	Updated   int
	Unchanged int
}

// Planner は会員レコードと保存済みレコードを比較して書き込み計画を作る。
type Planner struct {
	prefix string
	newID  func() string
}

// NewPlanner はPlannerを生成する。新規作成するレコードのキーは prefix + UUID となる。
func NewPlanner(prefix string) *Planner {
	return &Planner{prefix: prefix, newID: uuid.NewString}
}

// identityKey は初回紐付けに使う氏名（大文字小文字を区別しない）と生年月日のキー。
func identityKey(firstName, lastName string, birthDate int) string {
	return fmt.Sprintf("%s|%s|%d",
		strings.ToLower(strings.TrimSpace(firstName)),
		strings.ToLower(strings.TrimSpace(lastName)),
		birthDate,
	)
}

// Plan は会員ごとに保存済みレコードを照合し、作成・更新を決定する。
//
// 照合は外部ユーザーIDを優先し、見つからなければ未紐付けのレコードから氏名と生年月日で探す。
// 候補が0件なら新規作成、1件なら紐付け、2件以上なら MatchError とする。
// メタデータに差分がない会員には書き込みを発行しない。
// ライセンス番号と外部ユーザーIDが揃っていない会員は書き込まず、会員単位の不整合として返す。
// 保存済みレコードも両方が揃っているものだけを紐付け済みとして扱う。
func (p *Planner) Plan(members []model.Member, existing []*model.UserRecord) (Plan, []error) {
	byExternalID := make(map[string]*model.UserRecord)
	unlinked := make(map[string][]*model.UserRecord)
	for _, rec := range existing {
		if rec.Metadata != nil && rec.Metadata.Linked() {
			byExternalID[rec.ExternalID()] = rec
			continue
		}
		key := identityKey(rec.FirstName, rec.LastName, rec.BirthDate)
		unlinked[key] = append(unlinked[key], rec)
	}

	var plan Plan
	var errs []error
	claimed := make(map[string]string)

	for _, m := range members {
		meta := m.Metadata
		if err := meta.Validate(); err != nil {
			errs = append(errs, &member.RecordError{
				UserID: m.ExternalID(), FirstName: m.FirstName, LastName: m.LastName, Err: err,
			})
			continue
		}

		if rec, ok := byExternalID[m.ExternalID()]; ok {
			carryOver(&meta, rec.Metadata)
			if rec.Metadata != nil && rec.Metadata.Equal(meta) {
				plan.Unchanged++
				continue
			}
			plan.Ops = append(plan.Ops, updateOp(rec, meta))
			plan.Updated++
			continue
		}

		candidates := unlinked[identityKey(m.FirstName, m.LastName, m.BirthDate)]
		switch len(candidates) {
		case 0:
			plan.Ops = append(plan.Ops, repository.WriteOp{Kind: repository.OpCreate, Record: p.newRecord(m, meta)})
			plan.Created++
		case 1:
			rec := candidates[0]
			if other, dup := claimed[rec.Key]; dup {
				errs = append(errs, &MatchError{
					UserID: m.ExternalID(), FirstName: m.FirstName, LastName: m.LastName, BirthDate: m.BirthDate,
					Candidates: []string{rec.Key + " (claimed by " + other + ")"},
				})
				continue
			}
			claimed[rec.Key] = m.ExternalID()
			carryOver(&meta, rec.Metadata)
			plan.Ops = append(plan.Ops, updateOp(rec, meta))
			plan.Linked++
		default:
			keys := make([]string, len(candidates))
			for i, c := range candidates {
				keys[i] = c.Key
			}
			errs = append(errs, &MatchError{
				UserID: m.ExternalID(), FirstName: m.FirstName, LastName: m.LastName, BirthDate: m.BirthDate,
				Candidates: keys,
			})
		}
	}

	return plan, errs
}

// carryOver は新しいスナップショットに競技成績がない場合、保存済みの成績を引き継ぐ。
func carryOver(meta *model.Metadata, stored *model.Metadata) {
	if meta.CompetitionResults == nil && stored != nil {
		meta.CompetitionResults = stored.CompetitionResults
	}
}

// updateOp は保存済みレコードのメタデータのみを置き換える更新操作を作る。
// 氏名やメールアドレスはローカルアカウント側の値を維持する。
func updateOp(rec *model.UserRecord, meta model.Metadata) repository.WriteOp {
	updated := *rec
	updated.Metadata = &meta
	return repository.WriteOp{Kind: repository.OpUpdate, Record: &updated, ExpectedVersion: rec.Version}
}

func (p *Planner) newRecord(m model.Member, meta model.Metadata) *model.UserRecord {
	id := p.newID()
	return &model.UserRecord{
		Key:       p.prefix + id,
		ID:        id,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Email:     m.Email,
		BirthDate: m.BirthDate,
		Metadata:  &meta,
	}
}

// Apply は計画全体をストアのバッチ操作で適用する。書き込みは全件成功するか、何も書き込まれない。
func Apply(ctx context.Context, store repository.UserStore, plan Plan) error {
	if len(plan.Ops) == 0 {
		return nil
	}
	if err := store.ApplyBatch(ctx, plan.Ops); err != nil {
		return fmt.Errorf("failed to apply %d writes: %w", len(plan.Ops), err)
	}
	return nil
}
