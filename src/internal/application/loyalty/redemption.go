package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
)

// ===========================
// Redemption Service
// ===========================

// RedeemRewardCommand 兌換獎勵命令
type RedeemRewardCommand struct {
	OwnerID  string
	RewardID string
}

// RedeemRewardResult 兌換結果
type RedeemRewardResult struct {
	RedemptionID string
	RewardID     string
	PointsSpent  int
	Balance      int
	TierID       loyalty.TierID
	TierChanged  bool
	RedeemedAt   time.Time
	ExpiresAt    time.Time
}

// RedemptionService 兌換服務
//
// 檢查可負擔性、透過引擎扣點並建立兌換紀錄。
// 扣點與兌換紀錄套用在同一個快照複本上、以一次寫入提交，不會只發生其中之一。
type RedemptionService struct {
	engine *Engine
}

// NewRedemptionService 建立兌換服務
func NewRedemptionService(engine *Engine) *RedemptionService {
	return &RedemptionService{engine: engine}
}

// Redeem 兌換獎勵
//
// 錯誤處理：
// - ErrRewardNotFound: 獎勵不存在
// - ErrInsufficientPoints: 餘額不足（攜帶差額），同時推送「積分不足」通知
// - ErrPersistenceFailed: 寫入失敗，沒有扣點也沒有兌換紀錄
func (s *RedemptionService) Redeem(ctx context.Context, cmd RedeemRewardCommand) (*RedeemRewardResult, error) {
	e := s.engine

	ownerID, err := parseOwnerID(cmd.OwnerID)
	if err != nil {
		return nil, e.rejectInput(opRedeem, err)
	}
	reward, ok := e.catalog.Find(loyalty.RewardID(cmd.RewardID))
	if !ok {
		return nil, e.rejectInput(opRedeem, loyalty.ErrRewardNotFound.WithContext("reward_id", cmd.RewardID))
	}

	var (
		redemption loyalty.RedeemedReward
		outcome    loyalty.TransitionOutcome
	)
	_, err = e.mutate(ctx, opRedeem, ownerID, func(account *loyalty.LoyaltyAccount, now time.Time) error {
		var err error
		redemption, outcome, err = account.RedeemReward(reward, e.tiers, now)
		return err
	})
	if err != nil {
		if shortfall, ok := loyalty.ShortfallOf(err); ok {
			e.notifier.Notify(insufficientPointsNotification(ownerID, reward, shortfall))
		}
		return nil, fmt.Errorf("failed to redeem reward: %w", err)
	}

	return &RedeemRewardResult{
		RedemptionID: redemption.RedemptionID().String(),
		RewardID:     string(redemption.RewardID()),
		PointsSpent:  reward.PointCost,
		Balance:      outcome.Balance,
		TierID:       outcome.Tier.To.ID,
		TierChanged:  outcome.Tier.Changed,
		RedeemedAt:   redemption.RedeemedAt(),
		ExpiresAt:    redemption.ExpiresAt(),
	}, nil
}

// ===========================
// MarkRewardUsed
// ===========================

// MarkRewardUsedCommand 標記兌換的獎勵已使用
type MarkRewardUsedCommand struct {
	OwnerID      string
	RedemptionID string
}

// MarkRewardUsedResult 標記結果
type MarkRewardUsedResult struct {
	RedemptionID string
	RewardID     string
	UsedAt       time.Time
}

// MarkRewardUsed 標記兌換的獎勵已使用
//
// 錯誤處理：
// - ErrRedemptionNotFound: 帳戶沒有這筆兌換紀錄
// - ErrRedemptionAlreadyUsed: 已使用過（usedAt 保持第一次的時間）
// - ErrRedemptionExpired: 已過期
func (e *Engine) MarkRewardUsed(ctx context.Context, cmd MarkRewardUsedCommand) (*MarkRewardUsedResult, error) {
	ownerID, err := parseOwnerID(cmd.OwnerID)
	if err != nil {
		return nil, e.rejectInput(opMarkUsed, err)
	}
	redemptionID, err := loyalty.RedemptionIDFromString(cmd.RedemptionID)
	if err != nil {
		return nil, e.rejectInput(opMarkUsed, fmt.Errorf("failed to parse redemption ID: %w", err))
	}

	var used loyalty.RedeemedReward
	_, err = e.mutate(ctx, opMarkUsed, ownerID, func(account *loyalty.LoyaltyAccount, now time.Time) error {
		var err error
		used, err = account.MarkRedemptionUsed(redemptionID, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark reward used: %w", err)
	}

	return &MarkRewardUsedResult{
		RedemptionID: used.RedemptionID().String(),
		RewardID:     string(used.RewardID()),
		UsedAt:       *used.UsedAt(),
	}, nil
}
