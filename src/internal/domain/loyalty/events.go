package loyalty

import (
	"time"

	"github.com/google/uuid"
)

// 事件類型
const (
	EventTypeAccountOpened  = "loyalty.account_opened"
	EventTypePointsEarned   = "loyalty.points_earned"
	EventTypePointsDeducted = "loyalty.points_deducted"
	EventTypeTierChanged    = "loyalty.tier_changed"
	EventTypeRewardRedeemed = "loyalty.reward_redeemed"
	EventTypeRewardUsed     = "loyalty.reward_used"
)

// eventBase 所有 loyalty 事件共用的欄位
type eventBase struct {
	eventID    string
	ownerID    OwnerID
	occurredAt time.Time
}

func newEventBase(ownerID OwnerID, now time.Time) eventBase {
	return eventBase{eventID: uuid.New().String(), ownerID: ownerID, occurredAt: now}
}

// EventID 實現 DomainEvent 介面
func (e eventBase) EventID() string { return e.eventID }

// OccurredAt 實現 DomainEvent 介面
func (e eventBase) OccurredAt() time.Time { return e.occurredAt }

// AggregateID 實現 DomainEvent 介面
func (e eventBase) AggregateID() string { return e.ownerID.String() }

// OwnerID 帳戶擁有者
func (e eventBase) OwnerID() OwnerID { return e.ownerID }

// AccountOpenedEvent 帳戶建立
type AccountOpenedEvent struct {
	eventBase
	TierID TierID
}

// EventType 實現 DomainEvent 介面
func (e *AccountOpenedEvent) EventType() string { return EventTypeAccountOpened }

// PointsEarnedEvent 獲得積分
type PointsEarnedEvent struct {
	eventBase
	Points  int
	Source  PointsSource
	Balance int
}

// EventType 實現 DomainEvent 介面
func (e *PointsEarnedEvent) EventType() string { return EventTypePointsEarned }

// PointsDeductedEvent 扣減積分
type PointsDeductedEvent struct {
	eventBase
	Points  int
	Reason  PointsSource
	Balance int
}

// EventType 實現 DomainEvent 介面
func (e *PointsDeductedEvent) EventType() string { return EventTypePointsDeducted }

// TierChangedEvent 等級變更
type TierChangedEvent struct {
	eventBase
	From     Tier
	To       Tier
	Upgraded bool
}

// EventType 實現 DomainEvent 介面
func (e *TierChangedEvent) EventType() string { return EventTypeTierChanged }

// RewardRedeemedEvent 兌換獎勵
type RewardRedeemedEvent struct {
	eventBase
	Reward     Reward
	Redemption RedeemedReward
}

// EventType 實現 DomainEvent 介面
func (e *RewardRedeemedEvent) EventType() string { return EventTypeRewardRedeemed }

// RewardUsedEvent 兌換的獎勵已使用
type RewardUsedEvent struct {
	eventBase
	Redemption RedeemedReward
}

// EventType 實現 DomainEvent 介面
func (e *RewardUsedEvent) EventType() string { return EventTypeRewardUsed }
