package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
)

// ===========================
// Earn / Deduct
// ===========================

// EarnPointsCommand 獲得積分命令
type EarnPointsCommand struct {
	OwnerID string
	Points  int
	Source  string // purchase | review | referral
	Details map[string]string
}

// EarnPointsResult 獲得積分結果
type EarnPointsResult struct {
	OwnerID        string
	PointsEarned   int
	Balance        int
	TierID         loyalty.TierID
	PreviousTierID loyalty.TierID
	TierChanged    bool
	TierUpgraded   bool
	Entries        []loyalty.LedgerEntry
	OccurredAt     time.Time
}

// DeductPointsCommand 扣減積分命令
type DeductPointsCommand struct {
	OwnerID string
	Points  int
	Reason  string // reward_redemption
	Details map[string]string
}

// DeductPointsResult 扣減積分結果
type DeductPointsResult struct {
	OwnerID        string
	PointsDeducted int
	Balance        int
	TierID         loyalty.TierID
	PreviousTierID loyalty.TierID
	TierChanged    bool
	Entries        []loyalty.LedgerEntry
	OccurredAt     time.Time
}

// Earn 獲得積分
//
// 錯誤處理：
// - ErrInvalidOwnerID / ErrInvalidPointsSource: 輸入格式錯誤
// - ErrNonPositivePoints: points <= 0，帳戶不變
// - ErrPersistenceFailed: 寫入失敗，帳戶不變
func (e *Engine) Earn(ctx context.Context, cmd EarnPointsCommand) (*EarnPointsResult, error) {
	ownerID, err := parseOwnerID(cmd.OwnerID)
	if err != nil {
		return nil, e.rejectInput(opEarn, err)
	}
	source, err := loyalty.ParsePointsSource(cmd.Source)
	if err != nil {
		return nil, e.rejectInput(opEarn, fmt.Errorf("failed to parse points source: %w", err))
	}

	return e.earn(ctx, ownerID, source, cmd.Details, func(*loyalty.LoyaltyAccount) (int, error) {
		return cmd.Points, nil
	})
}

// earn 在臨界區內計算點數並入帳；pointsFor 讀到的是入帳「之前」的帳戶狀態
func (e *Engine) earn(
	ctx context.Context,
	ownerID loyalty.OwnerID,
	source loyalty.PointsSource,
	details map[string]string,
	pointsFor func(account *loyalty.LoyaltyAccount) (int, error),
) (*EarnPointsResult, error) {
	var (
		points  int
		outcome loyalty.TransitionOutcome
		at      time.Time
	)
	_, err := e.mutate(ctx, opEarn, ownerID, func(account *loyalty.LoyaltyAccount, now time.Time) error {
		var err error
		if points, err = pointsFor(account); err != nil {
			return err
		}
		outcome, err = account.Earn(points, source, details, e.tiers, now)
		at = now
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to earn points: %w", err)
	}

	return &EarnPointsResult{
		OwnerID:        ownerID.String(),
		PointsEarned:   points,
		Balance:        outcome.Balance,
		TierID:         outcome.Tier.To.ID,
		PreviousTierID: outcome.Tier.From.ID,
		TierChanged:    outcome.Tier.Changed,
		TierUpgraded:   outcome.Tier.Upgraded,
		Entries:        outcome.Entries,
		OccurredAt:     at,
	}, nil
}

// Deduct 扣減積分
//
// 錯誤處理：
// - ErrNonPositivePoints: points <= 0
// - ErrInsufficientPoints: 餘額不足（*InsufficientPointsError 攜帶差額）
// - ErrPersistenceFailed: 寫入失敗，帳戶不變
func (e *Engine) Deduct(ctx context.Context, cmd DeductPointsCommand) (*DeductPointsResult, error) {
	ownerID, err := parseOwnerID(cmd.OwnerID)
	if err != nil {
		return nil, e.rejectInput(opDeduct, err)
	}
	reason, err := loyalty.ParsePointsSource(cmd.Reason)
	if err != nil {
		return nil, e.rejectInput(opDeduct, fmt.Errorf("failed to parse deduction reason: %w", err))
	}

	var (
		outcome loyalty.TransitionOutcome
		at      time.Time
	)
	_, err = e.mutate(ctx, opDeduct, ownerID, func(account *loyalty.LoyaltyAccount, now time.Time) error {
		var err error
		outcome, err = account.Deduct(cmd.Points, reason, cmd.Details, e.tiers, now)
		at = now
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deduct points: %w", err)
	}

	return &DeductPointsResult{
		OwnerID:        ownerID.String(),
		PointsDeducted: cmd.Points,
		Balance:        outcome.Balance,
		TierID:         outcome.Tier.To.ID,
		PreviousTierID: outcome.Tier.From.ID,
		TierChanged:    outcome.Tier.Changed,
		Entries:        outcome.Entries,
		OccurredAt:     at,
	}, nil
}
