package loyalty

import (
	"errors"
	"fmt"
)

// ===========================
// 錯誤代碼定義
// ===========================

// ErrorCode 錯誤代碼類型
type ErrorCode string

// 錯誤代碼常量
const (
	// 積分數量相關
	ErrCodeNegativePointsAmount ErrorCode = "POINTS_NEGATIVE"
	ErrCodeNonPositivePoints    ErrorCode = "POINTS_NON_POSITIVE"
	ErrCodeInsufficientPoints   ErrorCode = "POINTS_INSUFFICIENT"
	ErrCodeInvalidPointsSource  ErrorCode = "POINTS_SOURCE_INVALID"
	ErrCodePointsOverflow       ErrorCode = "POINTS_OVERFLOW"

	// 兌換相關
	ErrCodeRewardNotFound        ErrorCode = "REWARD_NOT_FOUND"
	ErrCodeRedemptionNotFound    ErrorCode = "REDEMPTION_NOT_FOUND"
	ErrCodeRedemptionAlreadyUsed ErrorCode = "REDEMPTION_ALREADY_USED"
	ErrCodeRedemptionExpired     ErrorCode = "REDEMPTION_EXPIRED"
	ErrCodeInvalidRedemptionID   ErrorCode = "REDEMPTION_ID_INVALID"
	ErrCodeInvalidLedgerEntryID  ErrorCode = "LEDGER_ENTRY_ID_INVALID"
	ErrCodeInvalidLedgerEntry    ErrorCode = "LEDGER_ENTRY_INVALID"
	ErrCodeInvalidOwnerID        ErrorCode = "OWNER_ID_INVALID"
	ErrCodeCorruptedSnapshot     ErrorCode = "SNAPSHOT_CORRUPTED"
	ErrCodeInvalidTierTable      ErrorCode = "TIER_TABLE_INVALID"
	ErrCodeInvalidReward         ErrorCode = "REWARD_INVALID"
	ErrCodeInvalidPurchaseAmount ErrorCode = "PURCHASE_AMOUNT_INVALID"
)

// ===========================
// DomainError 結構
// ===========================

// DomainError 領域錯誤
//
// Code 用於 errors.Is 比較與 HTTP 狀態碼映射，Context 用於日誌。
type DomainError struct {
	Code    ErrorCode
	Message string
	Context map[string]interface{}
}

// Error 實現 error 接口
func (e *DomainError) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s (context: %+v)", e.Code, e.Message, e.Context)
}

// WithContext 添加上下文信息（返回新的錯誤實例，保持不可變性）
func (e *DomainError) WithContext(keyValues ...interface{}) error {
	if len(keyValues)%2 != 0 {
		panic("WithContext requires even number of arguments (key-value pairs)")
	}

	ctx := make(map[string]interface{}, len(e.Context)+len(keyValues)/2)
	for k, v := range e.Context {
		ctx[k] = v
	}
	for i := 0; i < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			panic(fmt.Sprintf("context key must be string, got %T", keyValues[i]))
		}
		ctx[key] = keyValues[i+1]
	}

	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Context: ctx,
	}
}

// Is 實現 errors.Is 接口（以錯誤代碼判斷）
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// ===========================
// 預定義錯誤
// ===========================

// 積分數量相關錯誤
var (
	ErrNegativePointsAmount = &DomainError{
		Code:    ErrCodeNegativePointsAmount,
		Message: "積分數量不能為負數",
	}

	ErrNonPositivePoints = &DomainError{
		Code:    ErrCodeNonPositivePoints,
		Message: "積分數量必須大於 0",
	}

	ErrInsufficientPoints = &DomainError{
		Code:    ErrCodeInsufficientPoints,
		Message: "積分餘額不足",
	}

	ErrInvalidPointsSource = &DomainError{
		Code:    ErrCodeInvalidPointsSource,
		Message: "無效的積分來源",
	}

	ErrPointsOverflow = &DomainError{
		Code:    ErrCodePointsOverflow,
		Message: "積分餘額超過上限",
	}

	ErrInvalidPurchaseAmount = &DomainError{
		Code:    ErrCodeInvalidPurchaseAmount,
		Message: "無效的消費金額",
	}
)

// 兌換相關錯誤
var (
	ErrRewardNotFound = &DomainError{
		Code:    ErrCodeRewardNotFound,
		Message: "獎勵不存在",
	}

	ErrRedemptionNotFound = &DomainError{
		Code:    ErrCodeRedemptionNotFound,
		Message: "兌換紀錄不存在",
	}

	ErrRedemptionAlreadyUsed = &DomainError{
		Code:    ErrCodeRedemptionAlreadyUsed,
		Message: "兌換的獎勵已使用",
	}

	ErrRedemptionExpired = &DomainError{
		Code:    ErrCodeRedemptionExpired,
		Message: "兌換的獎勵已過期",
	}
)

// 識別符與資料完整性相關錯誤
var (
	ErrInvalidOwnerID = &DomainError{
		Code:    ErrCodeInvalidOwnerID,
		Message: "無效的會員 ID",
	}

	ErrInvalidRedemptionID = &DomainError{
		Code:    ErrCodeInvalidRedemptionID,
		Message: "無效的兌換 ID",
	}

	ErrInvalidLedgerEntryID = &DomainError{
		Code:    ErrCodeInvalidLedgerEntryID,
		Message: "無效的交易紀錄 ID",
	}

	ErrInvalidLedgerEntry = &DomainError{
		Code:    ErrCodeInvalidLedgerEntry,
		Message: "無效的交易紀錄",
	}

	ErrCorruptedSnapshot = &DomainError{
		Code:    ErrCodeCorruptedSnapshot,
		Message: "帳戶快照資料損壞",
	}
)

// 設定相關錯誤
var (
	ErrInvalidTierTable = &DomainError{
		Code:    ErrCodeInvalidTierTable,
		Message: "會員等級表設定錯誤",
	}

	ErrInvalidReward = &DomainError{
		Code:    ErrCodeInvalidReward,
		Message: "獎勵設定錯誤",
	}
)

// ===========================
// InsufficientPointsError
// ===========================

// InsufficientPointsError 積分不足（攜帶差額，供畫面顯示「還需要 N 點」）
//
// errors.Is(err, ErrInsufficientPoints) 成立。
type InsufficientPointsError struct {
	Required  int
	Available int
}

// NewInsufficientPointsError 建立積分不足錯誤
func NewInsufficientPointsError(required, available int) *InsufficientPointsError {
	return &InsufficientPointsError{Required: required, Available: available}
}

// Shortfall 返回差額（Required - Available）
func (e *InsufficientPointsError) Shortfall() int {
	return e.Required - e.Available
}

// Error 實現 error 接口
func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("[%s] %s，還需要 %d 點 (required=%d, available=%d)",
		ErrCodeInsufficientPoints, ErrInsufficientPoints.Message, e.Shortfall(), e.Required, e.Available)
}

// Is 實現 errors.Is 接口
func (e *InsufficientPointsError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == ErrCodeInsufficientPoints
}

// ShortfallOf 從錯誤鏈中取出積分差額
func ShortfallOf(err error) (int, bool) {
	var insufficient *InsufficientPointsError
	if errors.As(err, &insufficient) {
		return insufficient.Shortfall(), true
	}
	return 0, false
}

// ===========================
// 錯誤分類
// ===========================

// rejectionCodes 前置條件不滿足的一般性拒絕（非系統錯誤）
var rejectionCodes = map[ErrorCode]struct{}{
	ErrCodeNonPositivePoints:     {},
	ErrCodeInsufficientPoints:    {},
	ErrCodeInvalidPointsSource:   {},
	ErrCodePointsOverflow:        {},
	ErrCodeInvalidPurchaseAmount: {},
	ErrCodeRewardNotFound:        {},
	ErrCodeRedemptionNotFound:    {},
	ErrCodeRedemptionAlreadyUsed: {},
	ErrCodeRedemptionExpired:     {},
	ErrCodeInvalidOwnerID:        {},
	ErrCodeInvalidRedemptionID:   {},
}

// CodeOf 取出錯誤鏈中的錯誤代碼
func CodeOf(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var insufficient *InsufficientPointsError
	if errors.As(err, &insufficient) {
		return ErrCodeInsufficientPoints, true
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code, true
	}
	return "", false
}

// IsRejection 判斷錯誤是否為前置條件拒絕
//
// 拒絕不會造成任何狀態變更；其他錯誤（持久化失敗、資料損壞）代表操作未提交。
func IsRejection(err error) bool {
	code, ok := CodeOf(err)
	if !ok {
		return false
	}
	_, rejected := rejectionCodes[code]
	return rejected
}
