package pricing

import (
	"fmt"

	"github.com/hitoshi/ffmesync/internal/model"
)

// TierChain はクラブから連盟までの料金対象組織のID。
type TierChain struct {
	Club       int
	Department int
	Region     int
	Federal    int
}

// maxDepth は親IDの循環参照に備えた探索上限。
const maxDepth = 8

// ResolveTiers はクラブから親IDを辿り、県・地域・連盟の組織IDを解決する。
// 途中の組織が見つからない場合や、いずれかの階層が欠けている場合は model.ErrStructureNotFound を返す。
func ResolveTiers(structures map[int]model.Structure, clubID int) (TierChain, error) {
	club, ok := structures[clubID]
	if !ok || club.Level != model.StructureLevelClub {
		return TierChain{}, fmt.Errorf("club %d: %w", clubID, model.ErrStructureNotFound)
	}

	chain := TierChain{Club: clubID}
	current := club
	for depth := 0; current.ParentID != nil; depth++ {
		if depth >= maxDepth {
			return TierChain{}, fmt.Errorf("club %d: hierarchy too deep: %w", clubID, model.ErrStructureNotFound)
		}
		parent, ok := structures[*current.ParentID]
		if !ok {
			return TierChain{}, fmt.Errorf("parent %d of structure %d: %w", *current.ParentID, current.ID, model.ErrStructureNotFound)
		}
		switch parent.Level {
		case model.StructureLevelDepartment:
			chain.Department = parent.ID
		case model.StructureLevelRegion:
			chain.Region = parent.ID
		case model.StructureLevelNational:
			chain.Federal = parent.ID
		}
		current = parent
	}

	if chain.Department == 0 || chain.Region == 0 || chain.Federal == 0 {
		return TierChain{}, fmt.Errorf("club %d: incomplete hierarchy %+v: %w", clubID, chain, model.ErrStructureNotFound)
	}
	return chain, nil
}
