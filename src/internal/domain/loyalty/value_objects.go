package loyalty

import (
	"fmt"
	"math"
)

// PointsAmount 積分數量值對象
// 設計原則：值對象不可變、自我驗證（>= 0）
type PointsAmount struct {
	value int
}

// NewPointsAmount 建構函數（checked 版本）
func NewPointsAmount(value int) (PointsAmount, error) {
	if value < 0 {
		return PointsAmount{}, fmt.Errorf(
			"%w: attempted to create PointsAmount with value %d",
			ErrNegativePointsAmount,
			value,
		)
	}
	return PointsAmount{value: value}, nil
}

// NewPositivePointsAmount 建構函數（要求 > 0，用於賺取與扣減）
func NewPositivePointsAmount(value int) (PointsAmount, error) {
	if value <= 0 {
		return PointsAmount{}, ErrNonPositivePoints.WithContext("points", value)
	}
	return PointsAmount{value: value}, nil
}

// newPointsAmountUnchecked 內部建構函數，調用者保證 value >= 0
func newPointsAmountUnchecked(value int) PointsAmount {
	return PointsAmount{value: value}
}

// Value 獲取積分數量
func (p PointsAmount) Value() int {
	return p.value
}

// IsZero 是否為 0
func (p PointsAmount) IsZero() bool {
	return p.value == 0
}

// Add 相加，結果超過 int 範圍時返回 ErrPointsOverflow
func (p PointsAmount) Add(other PointsAmount) (PointsAmount, error) {
	if other.value > math.MaxInt-p.value {
		return PointsAmount{}, ErrPointsOverflow.WithContext(
			"balance", p.value,
			"points", other.value,
		)
	}
	return newPointsAmountUnchecked(p.value + other.value), nil
}

// Subtract 相減，餘額不足時返回 InsufficientPointsError
func (p PointsAmount) Subtract(other PointsAmount) (PointsAmount, error) {
	if p.value < other.value {
		return PointsAmount{}, NewInsufficientPointsError(other.value, p.value)
	}
	return newPointsAmountUnchecked(p.value - other.value), nil
}

// Equals 比較兩個 PointsAmount 是否相等
func (p PointsAmount) Equals(other PointsAmount) bool {
	return p.value == other.value
}

// GreaterThan 判斷是否大於另一個 PointsAmount
func (p PointsAmount) GreaterThan(other PointsAmount) bool {
	return p.value > other.value
}

// LessThan 判斷是否小於另一個 PointsAmount
func (p PointsAmount) LessThan(other PointsAmount) bool {
	return p.value < other.value
}
