package loyalty

import (
	"math"

	"github.com/shopspring/decimal"
)

// maxEarnedPoints 單筆可獲得積分的上限（int 的最大值）
var maxEarnedPoints = decimal.NewFromInt(math.MaxInt)

// CalculateEarnedPoints 依消費金額與等級倍率計算可獲得積分
//
// 業務規則：
// - 積分 = floor(金額 × 倍率)
// - 金額 <= 0 返回 0 積分，不視為錯誤
// - 換算結果超過 int 範圍返回 ErrInvalidPurchaseAmount，不截斷
// - tier 必須是賺取事件發生「之前」的等級；同一筆消費跨越門檻不使用混合倍率
func CalculateEarnedPoints(amount decimal.Decimal, tier Tier) (PointsAmount, error) {
	if !amount.IsPositive() {
		return newPointsAmountUnchecked(0), nil
	}

	product := amount.Mul(tier.Multiplier).Floor()
	if product.GreaterThan(maxEarnedPoints) {
		return PointsAmount{}, ErrInvalidPurchaseAmount.WithContext(
			"amount", amount.String(),
			"tier", string(tier.ID),
			"reason", "earned points exceed the maximum",
		)
	}

	points := product.IntPart()
	if points < 0 {
		points = 0
	}
	return newPointsAmountUnchecked(int(points)), nil
}
