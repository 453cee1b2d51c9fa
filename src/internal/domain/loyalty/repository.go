package loyalty

import (
	"time"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/shared"
)

// ===========================
// AccountRepository 介面
// ===========================

// AccountRepository 積分帳戶快照倉儲介面
//
// Domain Layer 定義介面，Infrastructure Layer 實作。
// 快照是唯一的事實來源；記憶體中的帳戶只是它的快取。
//
// 事務使用範例：
//
//	txManager.InTransaction(ctx, func(tx shared.TransactionContext) error {
//	    account, _ := repo.FindByOwnerID(tx, ownerID)
//	    next := account.Clone()
//	    next.Earn(points, SourcePurchase, details, tiers, now)
//	    return repo.Update(tx, next)
//	})
type AccountRepository interface {
	// Save 保存新帳戶
	// 錯誤：ErrAccountAlreadyExists（ownerID 已存在）
	Save(ctx shared.TransactionContext, account *LoyaltyAccount) error

	// FindByOwnerID 依擁有者查找帳戶（含完整帳本與兌換紀錄）
	// 錯誤：ErrAccountNotFound
	FindByOwnerID(ctx shared.TransactionContext, ownerID OwnerID) (*LoyaltyAccount, error)

	// Update 以版本號 compare-and-swap 寫入完整快照
	// 前置條件：資料庫中的版本 == account.PersistedVersion()
	// 後置條件：版本更新為 account.Version()，新增的交易紀錄與兌換紀錄已寫入
	// 錯誤：ErrConcurrentModification（版本不符）、ErrAccountNotFound
	Update(ctx shared.TransactionContext, account *LoyaltyAccount) error
}

// ExpiringRedemption 即將到期且尚未使用的兌換紀錄
type ExpiringRedemption struct {
	OwnerID    OwnerID
	Redemption RedeemedReward
}

// RedemptionQueryRepository 到期提醒排程使用的查詢介面
type RedemptionQueryRepository interface {
	// FindRedemptionsExpiringBetween 查找 expiresAt 落在 (from, to] 且未使用的兌換紀錄
	FindRedemptionsExpiringBetween(ctx shared.TransactionContext, from, to time.Time) ([]ExpiringRedemption, error)
}

// ===========================
// Repository 錯誤定義
// ===========================

// Repository 相關錯誤代碼
const (
	ErrCodeAccountNotFound        ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrCodeAccountAlreadyExists   ErrorCode = "ACCOUNT_ALREADY_EXISTS"
	ErrCodeConcurrentModification ErrorCode = "ACCOUNT_CONCURRENT_MODIFICATION"
	ErrCodePersistenceFailed      ErrorCode = "PERSISTENCE_FAILED"
)

// Repository 錯誤實例
var (
	// ErrAccountNotFound 帳戶不存在
	ErrAccountNotFound = &DomainError{
		Code:    ErrCodeAccountNotFound,
		Message: "積分帳戶不存在",
	}

	// ErrAccountAlreadyExists 帳戶已存在
	ErrAccountAlreadyExists = &DomainError{
		Code:    ErrCodeAccountAlreadyExists,
		Message: "積分帳戶已存在",
	}

	// ErrConcurrentModification 快照版本已被其他寫入者更新
	ErrConcurrentModification = &DomainError{
		Code:    ErrCodeConcurrentModification,
		Message: "積分帳戶已被同時修改",
	}

	// ErrPersistenceFailed 快照寫入失敗（操作未提交）
	ErrPersistenceFailed = &DomainError{
		Code:    ErrCodePersistenceFailed,
		Message: "積分帳戶儲存失敗",
	}
)
