package loyalty

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
)

// 固定點數來源
const (
	ReviewPoints   = 50
	ReferralPoints = 200
)

// PurchaseCommand 訂單完成後的積分入帳
type PurchaseCommand struct {
	OwnerID string
	OrderID string
	Amount  decimal.Decimal
}

// EarnFromPurchase 依消費金額入帳
//
// 倍率取自入帳「之前」的等級：同一筆消費跨越門檻不使用混合倍率。
// 金額為 0（或換算後不足 1 點）時以 ErrNonPositivePoints 拒絕，帳戶不變。
func (e *Engine) EarnFromPurchase(ctx context.Context, cmd PurchaseCommand) (*EarnPointsResult, error) {
	ownerID, err := parseOwnerID(cmd.OwnerID)
	if err != nil {
		return nil, e.rejectInput(opEarn, err)
	}
	if cmd.Amount.IsNegative() {
		return nil, e.rejectInput(opEarn, loyalty.ErrInvalidPurchaseAmount.WithContext(
			"order_id", cmd.OrderID,
			"amount", cmd.Amount.String(),
		))
	}

	details := map[string]string{
		loyalty.DetailOrderID: cmd.OrderID,
		loyalty.DetailAmount:  cmd.Amount.String(),
	}
	return e.earn(ctx, ownerID, loyalty.SourcePurchase, details, func(account *loyalty.LoyaltyAccount) (int, error) {
		tier := e.tiers.Resolve(account.Balance().Value())
		points, err := loyalty.CalculateEarnedPoints(cmd.Amount, tier)
		if err != nil {
			return 0, err
		}
		return points.Value(), nil
	})
}

// EarnFromReview 商品評論獎勵（固定 50 點）
func (e *Engine) EarnFromReview(ctx context.Context, ownerID, reviewID string) (*EarnPointsResult, error) {
	return e.earnFixed(ctx, ownerID, loyalty.SourceReview, ReviewPoints, loyalty.DetailReviewID, reviewID)
}

// EarnFromReferral 推薦新顧客獎勵（固定 200 點）
func (e *Engine) EarnFromReferral(ctx context.Context, ownerID, referredID string) (*EarnPointsResult, error) {
	return e.earnFixed(ctx, ownerID, loyalty.SourceReferral, ReferralPoints, loyalty.DetailReferredID, referredID)
}

func (e *Engine) earnFixed(
	ctx context.Context,
	ownerIDStr string,
	source loyalty.PointsSource,
	points int,
	detailKey, detailValue string,
) (*EarnPointsResult, error) {
	ownerID, err := parseOwnerID(ownerIDStr)
	if err != nil {
		return nil, e.rejectInput(opEarn, err)
	}

	details := map[string]string{}
	if detailValue != "" {
		details[detailKey] = detailValue
	}
	result, err := e.earn(ctx, ownerID, source, details, func(*loyalty.LoyaltyAccount) (int, error) {
		return points, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s reward: %w", source, err)
	}
	return result, nil
}
