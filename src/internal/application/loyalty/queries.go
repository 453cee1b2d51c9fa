package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
)

// ===========================
// 查詢（供畫面使用）
// ===========================

// AccountSummary 帳戶摘要
type AccountSummary struct {
	OwnerID          string
	Balance          int
	Tier             loyalty.Tier
	NextTier         *loyalty.Tier // 已是最高等級時為 nil
	PointsToNextTier int
	Version          int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RewardAvailability 單一獎勵對某帳戶的可兌換狀態
type RewardAvailability struct {
	Reward    loyalty.Reward
	Available bool // balance >= PointCost
	Shortfall int
}

// OpenAccount 建立帳戶（已存在時直接返回目前狀態）
func (e *Engine) OpenAccount(ctx context.Context, ownerID string) (*AccountSummary, error) {
	account, err := e.snapshot(ctx, opOpen, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to open account: %w", err)
	}
	return e.summarize(account), nil
}

// Summary 目前餘額、等級、下一等級與距離下一等級的點數
func (e *Engine) Summary(ctx context.Context, ownerID string) (*AccountSummary, error) {
	account, err := e.snapshot(ctx, opQuery, ownerID)
	if err != nil {
		return nil, err
	}
	return e.summarize(account), nil
}

// History 交易紀錄（新 → 舊）
func (e *Engine) History(ctx context.Context, ownerID string) ([]loyalty.LedgerEntry, error) {
	account, err := e.snapshot(ctx, opQuery, ownerID)
	if err != nil {
		return nil, err
	}
	return account.Ledger().NewestFirst(), nil
}

// Redemptions 帳戶的兌換紀錄
func (e *Engine) Redemptions(ctx context.Context, ownerID string) ([]loyalty.RedeemedReward, error) {
	account, err := e.snapshot(ctx, opQuery, ownerID)
	if err != nil {
		return nil, err
	}
	return account.Redemptions(), nil
}

// RewardAvailability 每個獎勵對該帳戶是否可兌換
func (e *Engine) RewardAvailability(ctx context.Context, ownerID string) ([]RewardAvailability, error) {
	account, err := e.snapshot(ctx, opQuery, ownerID)
	if err != nil {
		return nil, err
	}

	balance := account.Balance().Value()
	rewards := e.catalog.All()
	out := make([]RewardAvailability, len(rewards))
	for i, reward := range rewards {
		shortfall := reward.PointCost - balance
		if shortfall < 0 {
			shortfall = 0
		}
		out[i] = RewardAvailability{
			Reward:    reward,
			Available: reward.IsAffordable(balance),
			Shortfall: shortfall,
		}
	}
	return out, nil
}

// Catalog 獎勵目錄
func (e *Engine) Catalog() []loyalty.Reward {
	return e.catalog.All()
}

// Reward 依 ID 查找獎勵
func (e *Engine) Reward(id loyalty.RewardID) (loyalty.Reward, bool) {
	return e.catalog.Find(id)
}

// Tiers 等級表（遞增）
func (e *Engine) Tiers() []loyalty.Tier {
	return e.tiers.Tiers()
}

// snapshot 讀取已提交的快照（不取鎖；快取中的快照只會被整個替換，不會被就地修改）
func (e *Engine) snapshot(ctx context.Context, op, ownerIDStr string) (*loyalty.LoyaltyAccount, error) {
	ownerID, err := parseOwnerID(ownerIDStr)
	if err != nil {
		return nil, e.rejectInput(op, err)
	}
	account, err := e.load(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}

func (e *Engine) summarize(account *loyalty.LoyaltyAccount) *AccountSummary {
	balance := account.Balance().Value()
	tier, ok := e.tiers.ByID(account.CurrentTierID())
	if !ok {
		tier = e.tiers.Resolve(balance)
	}

	summary := &AccountSummary{
		OwnerID:   account.OwnerID().String(),
		Balance:   balance,
		Tier:      tier,
		Version:   account.Version(),
		CreatedAt: account.CreatedAt(),
		UpdatedAt: account.UpdatedAt(),
	}
	if next, ok := e.tiers.Next(tier.ID); ok {
		summary.NextTier = &next
		summary.PointsToNextTier, _ = e.tiers.PointsToNext(balance, tier.ID)
	}
	return summary
}
