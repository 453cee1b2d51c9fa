package loyalty

import (
	"github.com/shopspring/decimal"
)

// ===========================
// Tier 會員等級
// ===========================

// TierID 會員等級識別碼（設定檔中的 key，例如 "bronze"）
type TierID string

// Tier 會員等級（不可變設定資料）
type Tier struct {
	ID         TierID
	Name       string
	MinPoints  int
	Multiplier decimal.Decimal
	Benefits   []string
}

// IsZero 是否為零值（等級表為空時 ResolveTier 的返回值）
func (t Tier) IsZero() bool {
	return t.ID == ""
}

// ===========================
// TierTable 會員等級表
// ===========================

// TierTable 依 MinPoints 遞增排列的會員等級表
//
// 設定約束（由 Validate 檢查，設定載入時與測試中執行）：
// 1. 至少一個等級，且第一個等級 MinPoints = 0（每個帳戶都有等級）
// 2. MinPoints 嚴格遞增
// 3. Multiplier > 0，ID 不重複
//
// ResolveTier 不做防禦性檢查：設定錯誤屬於程式錯誤，應由測試發現。
type TierTable struct {
	tiers []Tier
}

// NewTierTable 建立等級表（複製輸入，呼叫者後續修改不影響等級表）
func NewTierTable(tiers ...Tier) TierTable {
	copied := make([]Tier, len(tiers))
	for i, tier := range tiers {
		tier.Benefits = append([]string(nil), tier.Benefits...)
		copied[i] = tier
	}
	return TierTable{tiers: copied}
}

// Validate 檢查等級表設定
func (t TierTable) Validate() error {
	if len(t.tiers) == 0 {
		return ErrInvalidTierTable.WithContext("reason", "tier table is empty")
	}
	if t.tiers[0].MinPoints != 0 {
		return ErrInvalidTierTable.WithContext(
			"reason", "lowest tier must start at 0 points",
			"tier", string(t.tiers[0].ID),
			"min_points", t.tiers[0].MinPoints,
		)
	}

	seen := make(map[TierID]struct{}, len(t.tiers))
	for i, tier := range t.tiers {
		if tier.ID == "" {
			return ErrInvalidTierTable.WithContext("reason", "tier id is empty", "index", i)
		}
		if _, dup := seen[tier.ID]; dup {
			return ErrInvalidTierTable.WithContext("reason", "duplicate tier id", "tier", string(tier.ID))
		}
		seen[tier.ID] = struct{}{}

		if !tier.Multiplier.IsPositive() {
			return ErrInvalidTierTable.WithContext(
				"reason", "multiplier must be positive",
				"tier", string(tier.ID),
				"multiplier", tier.Multiplier.String(),
			)
		}
		if i > 0 && tier.MinPoints <= t.tiers[i-1].MinPoints {
			return ErrInvalidTierTable.WithContext(
				"reason", "thresholds must be strictly increasing",
				"tier", string(tier.ID),
				"min_points", tier.MinPoints,
				"previous_min_points", t.tiers[i-1].MinPoints,
			)
		}
	}
	return nil
}

// Tiers 返回所有等級（遞增順序，複本）
func (t TierTable) Tiers() []Tier {
	return append([]Tier(nil), t.tiers...)
}

// Len 等級數量
func (t TierTable) Len() int {
	return len(t.tiers)
}

// Lowest 最低等級（新帳戶的初始等級）
func (t TierTable) Lowest() Tier {
	if len(t.tiers) == 0 {
		return Tier{}
	}
	return t.tiers[0]
}

// ByID 依 ID 查找等級
func (t TierTable) ByID(id TierID) (Tier, bool) {
	if i := t.rank(id); i >= 0 {
		return t.tiers[i], true
	}
	return Tier{}, false
}

// Next 返回下一個更高等級；已是最高等級時返回 false
func (t TierTable) Next(id TierID) (Tier, bool) {
	i := t.rank(id)
	if i < 0 || i+1 >= len(t.tiers) {
		return Tier{}, false
	}
	return t.tiers[i+1], true
}

// PointsToNext 距離下一個等級還差多少積分；已是最高等級時返回 (0, false)
func (t TierTable) PointsToNext(balance int, id TierID) (int, bool) {
	next, ok := t.Next(id)
	if !ok {
		return 0, false
	}
	remaining := next.MinPoints - balance
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Compare 比較兩個等級的順序：-1 較低、0 相同、1 較高
func (t TierTable) Compare(a, b TierID) int {
	ra, rb := t.rank(a), t.rank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}

// Resolve 等同 ResolveTier(balance, t)
func (t TierTable) Resolve(balance int) Tier {
	return ResolveTier(balance, t)
}

// rank 返回等級在表中的位置；相同 ID 重複時取最後一個（與 ResolveTier 一致）
func (t TierTable) rank(id TierID) int {
	for i := len(t.tiers) - 1; i >= 0; i-- {
		if t.tiers[i].ID == id {
			return i
		}
	}
	return -1
}

// ===========================
// Tier Resolver
// ===========================

// ResolveTier 依積分餘額決定會員等級
//
// 由最高門檻往最低掃描，返回第一個 MinPoints <= balance 的等級。
// 門檻相同（設定錯誤）時，排序較後（較高）的等級優先。
// 最低等級 MinPoints = 0，因此必定有結果；等級表為空時返回零值 Tier。
func ResolveTier(balance int, tiers TierTable) Tier {
	for i := len(tiers.tiers) - 1; i >= 0; i-- {
		if tiers.tiers[i].MinPoints <= balance {
			return tiers.tiers[i]
		}
	}
	return tiers.Lowest()
}
