package loyalty

import (
	"time"
)

// RedemptionValidity 兌換後的有效期限
const RedemptionValidity = 30 * 24 * time.Hour

// ===========================
// Reward 獎勵目錄
// ===========================

// RewardID 獎勵識別碼（目錄設定中的 key）
type RewardID string

// RewardType 獎勵類型
type RewardType string

const (
	RewardTypeDiscount     RewardType = "discount"
	RewardTypeFreeShipping RewardType = "free_shipping"
	RewardTypeProduct      RewardType = "product"
	RewardTypeVoucher      RewardType = "voucher"
)

// Reward 可兌換的獎勵（目錄資料，不屬於任何帳戶）
type Reward struct {
	ID          RewardID
	Name        string
	PointCost   int
	Type        RewardType
	Value       string
	Description string
}

// Validate 檢查獎勵設定
func (r Reward) Validate() error {
	switch {
	case r.ID == "":
		return ErrInvalidReward.WithContext("reason", "reward id is empty")
	case r.PointCost <= 0:
		return ErrInvalidReward.WithContext("reason", "point cost must be positive", "reward", string(r.ID), "point_cost", r.PointCost)
	case r.Type == "":
		return ErrInvalidReward.WithContext("reason", "reward type is empty", "reward", string(r.ID))
	}
	return nil
}

// IsAffordable 餘額是否足以兌換
func (r Reward) IsAffordable(balance int) bool {
	return balance >= r.PointCost
}

// RewardCatalog 獎勵目錄（保持設定順序）
type RewardCatalog struct {
	rewards []Reward
}

// NewRewardCatalog 建立獎勵目錄
func NewRewardCatalog(rewards ...Reward) RewardCatalog {
	return RewardCatalog{rewards: append([]Reward(nil), rewards...)}
}

// Validate 檢查目錄內每個獎勵與 ID 唯一性
func (c RewardCatalog) Validate() error {
	seen := make(map[RewardID]struct{}, len(c.rewards))
	for _, reward := range c.rewards {
		if err := reward.Validate(); err != nil {
			return err
		}
		if _, dup := seen[reward.ID]; dup {
			return ErrInvalidReward.WithContext("reason", "duplicate reward id", "reward", string(reward.ID))
		}
		seen[reward.ID] = struct{}{}
	}
	return nil
}

// All 返回所有獎勵（複本）
func (c RewardCatalog) All() []Reward {
	return append([]Reward(nil), c.rewards...)
}

// Find 依 ID 查找獎勵
func (c RewardCatalog) Find(id RewardID) (Reward, bool) {
	for _, reward := range c.rewards {
		if reward.ID == id {
			return reward, true
		}
	}
	return Reward{}, false
}

// ===========================
// RedeemedReward 兌換紀錄
// ===========================

// RedeemedReward 成功兌換後產生的紀錄
//
// 建立後只有 used / usedAt 會改變，且 used 只會由 false 變為 true 一次。
type RedeemedReward struct {
	redemptionID RedemptionID
	rewardID     RewardID
	redeemedAt   time.Time
	expiresAt    time.Time
	used         bool
	usedAt       *time.Time
}

func newRedeemedReward(rewardID RewardID, now time.Time) RedeemedReward {
	return RedeemedReward{
		redemptionID: NewRedemptionID(),
		rewardID:     rewardID,
		redeemedAt:   now,
		expiresAt:    now.Add(RedemptionValidity),
	}
}

// ReconstructRedeemedReward 從持久化存儲重建兌換紀錄
func ReconstructRedeemedReward(
	redemptionID RedemptionID,
	rewardID RewardID,
	redeemedAt time.Time,
	expiresAt time.Time,
	used bool,
	usedAt *time.Time,
) (RedeemedReward, error) {
	if redemptionID.IsEmpty() {
		return RedeemedReward{}, ErrInvalidRedemptionID.WithContext("reason", "empty redemption id")
	}
	if used != (usedAt != nil) {
		return RedeemedReward{}, ErrCorruptedSnapshot.WithContext(
			"redemption_id", redemptionID.String(),
			"reason", "used flag and used_at disagree",
		)
	}

	var usedAtCopy *time.Time
	if usedAt != nil {
		t := *usedAt
		usedAtCopy = &t
	}
	return RedeemedReward{
		redemptionID: redemptionID,
		rewardID:     rewardID,
		redeemedAt:   redeemedAt,
		expiresAt:    expiresAt,
		used:         used,
		usedAt:       usedAtCopy,
	}, nil
}

// RedemptionID 兌換 ID
func (r RedeemedReward) RedemptionID() RedemptionID { return r.redemptionID }

// RewardID 兌換的獎勵
func (r RedeemedReward) RewardID() RewardID { return r.rewardID }

// RedeemedAt 兌換時間
func (r RedeemedReward) RedeemedAt() time.Time { return r.redeemedAt }

// ExpiresAt 到期時間
func (r RedeemedReward) ExpiresAt() time.Time { return r.expiresAt }

// Used 是否已使用
func (r RedeemedReward) Used() bool { return r.used }

// UsedAt 使用時間（未使用時為 nil）
func (r RedeemedReward) UsedAt() *time.Time {
	if r.usedAt == nil {
		return nil
	}
	t := *r.usedAt
	return &t
}

// IsExpired 在 now 時是否已過期
func (r RedeemedReward) IsExpired(now time.Time) bool {
	return now.After(r.expiresAt)
}

// IsUsable 未使用且未過期
func (r RedeemedReward) IsUsable(now time.Time) bool {
	return !r.used && !r.IsExpired(now)
}

func (r RedeemedReward) markUsed(now time.Time) RedeemedReward {
	usedAt := now
	r.used = true
	r.usedAt = &usedAt
	return r
}
