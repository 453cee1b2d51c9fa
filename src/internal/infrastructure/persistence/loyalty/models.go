package loyalty

import (
	"time"
)

// ===========================
// GORM Models
// ===========================

// AccountGORM 積分帳戶資料表模型
//
// 資料庫約束：
// - owner_id: 主鍵（UUID）
// - balance: 目前餘額（>= 0，等於帳本總和）
// - version: 樂觀鎖版本號，每次成功寫入遞增
type AccountGORM struct {
	OwnerID string `gorm:"column:owner_id;type:varchar(36);primaryKey"`

	Balance int    `gorm:"column:balance;not null;default:0;check:balance >= 0"`
	TierID  string `gorm:"column:tier_id;type:varchar(64);not null"`
	Version int    `gorm:"column:version;not null"`

	// 審計欄位（由 Domain 決定，不使用 GORM 自動時間戳）
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName 指定資料表名稱
func (AccountGORM) TableName() string {
	return "loyalty_accounts"
}

// LedgerEntryGORM 帳本紀錄資料表模型（只增不改）
//
// (owner_id, sequence) 唯一：sequence 為該帳戶帳本中的位置，從 0 開始。
type LedgerEntryGORM struct {
	EntryID     string            `gorm:"column:entry_id;type:varchar(36);primaryKey"`
	OwnerID     string            `gorm:"column:owner_id;type:varchar(36);not null;uniqueIndex:idx_ledger_owner_sequence,priority:1"`
	Sequence    int               `gorm:"column:sequence;not null;uniqueIndex:idx_ledger_owner_sequence,priority:2"`
	Kind        string            `gorm:"column:kind;type:varchar(32);not null"`
	PointsDelta int               `gorm:"column:points_delta;not null"`
	Source      string            `gorm:"column:source;type:varchar(32);not null"`
	Details     map[string]string `gorm:"column:details;type:text;serializer:json"`
	OccurredAt  time.Time         `gorm:"column:occurred_at;not null"`
}

// TableName 指定資料表名稱
func (LedgerEntryGORM) TableName() string {
	return "loyalty_ledger_entries"
}

// RedemptionGORM 兌換紀錄資料表模型
type RedemptionGORM struct {
	RedemptionID string     `gorm:"column:redemption_id;type:varchar(36);primaryKey"`
	OwnerID      string     `gorm:"column:owner_id;type:varchar(36);not null;index"`
	Position     int        `gorm:"column:position;not null"`
	RewardID     string     `gorm:"column:reward_id;type:varchar(64);not null"`
	RedeemedAt   time.Time  `gorm:"column:redeemed_at;not null"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null;index"`
	Used         bool       `gorm:"column:used;not null;default:false"`
	UsedAt       *time.Time `gorm:"column:used_at"`
}

// TableName 指定資料表名稱
func (RedemptionGORM) TableName() string {
	return "loyalty_redemptions"
}

// Models 返回本套件所有需要遷移的模型
func Models() []interface{} {
	return []interface{}{&AccountGORM{}, &LedgerEntryGORM{}, &RedemptionGORM{}}
}
