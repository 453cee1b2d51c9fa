package loyalty

import (
	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/shared"
)

// ===========================
// 實體 ID 類型定義
// ===========================

// OwnerMarker 是 OwnerID 的標記類型
type OwnerMarker struct{}

// OwnerID 積分帳戶擁有者（顧客）的唯一標識符，由身分提供者發放
type OwnerID = shared.EntityID[OwnerMarker]

// NewOwnerID 生成新的 OwnerID（UUID v4）
func NewOwnerID() OwnerID {
	return shared.NewEntityID[OwnerMarker]()
}

// OwnerIDFromString 從字串解析 OwnerID
func OwnerIDFromString(s string) (OwnerID, error) {
	return shared.EntityIDFromString[OwnerMarker](s, ErrInvalidOwnerID)
}

// LedgerEntryMarker 是 LedgerEntryID 的標記類型
type LedgerEntryMarker struct{}

// LedgerEntryID 交易紀錄 ID
type LedgerEntryID = shared.EntityID[LedgerEntryMarker]

// NewLedgerEntryID 生成新的 LedgerEntryID
func NewLedgerEntryID() LedgerEntryID {
	return shared.NewEntityID[LedgerEntryMarker]()
}

// LedgerEntryIDFromString 從字串解析 LedgerEntryID
func LedgerEntryIDFromString(s string) (LedgerEntryID, error) {
	return shared.EntityIDFromString[LedgerEntryMarker](s, ErrInvalidLedgerEntryID)
}

// RedemptionMarker 是 RedemptionID 的標記類型
type RedemptionMarker struct{}

// RedemptionID 兌換紀錄 ID
type RedemptionID = shared.EntityID[RedemptionMarker]

// NewRedemptionID 生成新的 RedemptionID
func NewRedemptionID() RedemptionID {
	return shared.NewEntityID[RedemptionMarker]()
}

// RedemptionIDFromString 從字串解析 RedemptionID
func RedemptionIDFromString(s string) (RedemptionID, error) {
	return shared.EntityIDFromString[RedemptionMarker](s, ErrInvalidRedemptionID)
}
