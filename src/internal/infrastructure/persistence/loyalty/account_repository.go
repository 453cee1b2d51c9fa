package loyalty

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/shared"
	"github.com/jackyeh168/storefront_loyalty/src/internal/infrastructure/persistence"
)

// ===========================
// AccountRepository
// ===========================

// AccountRepository 積分帳戶倉儲實現（GORM）
//
// 一個聚合對應三張表：帳戶本身、只增不改的帳本、兌換紀錄。
// Update 以 version 做比較並交換，版本不符時返回 loyalty.ErrConcurrentModification。
type AccountRepository struct {
	db    *gorm.DB
	tiers loyalty.TierTable
}

var (
	_ loyalty.AccountRepository         = (*AccountRepository)(nil)
	_ loyalty.RedemptionQueryRepository = (*AccountRepository)(nil)
)

// NewAccountRepository 創建積分帳戶倉儲
//
// tiers 用於重建聚合時重新解析等級。
func NewAccountRepository(db *gorm.DB, tiers loyalty.TierTable) *AccountRepository {
	return &AccountRepository{db: db, tiers: tiers}
}

// Save 保存新的積分帳戶（含已存在的帳本與兌換紀錄）
//
// owner_id 重複 → loyalty.ErrAccountAlreadyExists
func (r *AccountRepository) Save(ctx shared.TransactionContext, account *loyalty.LoyaltyAccount) error {
	owner := account.OwnerID().String()

	err := persistence.DBFrom(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(accountToGORM(account)).Error; err != nil {
			return err
		}
		if entries := account.Ledger().Entries(); len(entries) > 0 {
			models := entriesToGORM(account.OwnerID(), entries, 0)
			if err := tx.Create(&models).Error; err != nil {
				return err
			}
		}
		if redemptions := account.Redemptions(); len(redemptions) > 0 {
			models := redemptionsToGORM(account.OwnerID(), redemptions)
			if err := tx.Create(&models).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return mapError(err, "owner_id", owner)
}

// FindByOwnerID 根據會員 ID 查找積分帳戶
//
// gorm.ErrRecordNotFound → loyalty.ErrAccountNotFound
func (r *AccountRepository) FindByOwnerID(ctx shared.TransactionContext, ownerID loyalty.OwnerID) (*loyalty.LoyaltyAccount, error) {
	db := persistence.DBFrom(ctx, r.db)
	owner := ownerID.String()

	var account AccountGORM
	if err := db.Where("owner_id = ?", owner).First(&account).Error; err != nil {
		return nil, mapError(err, "owner_id", owner)
	}

	var entries []LedgerEntryGORM
	if err := db.Where("owner_id = ?", owner).Order("sequence").Find(&entries).Error; err != nil {
		return nil, mapError(err, "owner_id", owner)
	}

	var redemptions []RedemptionGORM
	if err := db.Where("owner_id = ?", owner).Order("position").Find(&redemptions).Error; err != nil {
		return nil, mapError(err, "owner_id", owner)
	}

	return accountToDomain(&account, entries, redemptions, r.tiers)
}

// Update 寫入聚合的最新狀態
//
// 1. 以 PersistedVersion 做比較並交換更新帳戶列
// 2. 補寫資料庫中尚未存在的帳本紀錄
// 3. upsert 兌換紀錄（僅 used / used_at 可變）
func (r *AccountRepository) Update(ctx shared.TransactionContext, account *loyalty.LoyaltyAccount) error {
	owner := account.OwnerID().String()

	err := persistence.DBFrom(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&AccountGORM{}).
			Where("owner_id = ? AND version = ?", owner, account.PersistedVersion()).
			Updates(map[string]interface{}{
				"balance":    account.Balance().Value(),
				"tier_id":    string(account.CurrentTierID()),
				"version":    account.Version(),
				"updated_at": account.UpdatedAt().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return missingOrConflict(tx, owner, account.PersistedVersion())
		}

		var persisted int64
		if err := tx.Model(&LedgerEntryGORM{}).Where("owner_id = ?", owner).Count(&persisted).Error; err != nil {
			return err
		}
		if fresh := account.Ledger().Since(int(persisted)); len(fresh) > 0 {
			models := entriesToGORM(account.OwnerID(), fresh, int(persisted))
			if err := tx.Create(&models).Error; err != nil {
				return err
			}
		}

		if redemptions := account.Redemptions(); len(redemptions) > 0 {
			models := redemptionsToGORM(account.OwnerID(), redemptions)
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "redemption_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"used", "used_at"}),
			}).Create(&models).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	return mapError(err, "owner_id", owner)
}

// missingOrConflict 區分「帳戶不存在」與「版本已被其他寫入者推進」
func missingOrConflict(tx *gorm.DB, owner string, expectedVersion int) error {
	var count int64
	if err := tx.Model(&AccountGORM{}).Where("owner_id = ?", owner).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return loyalty.ErrAccountNotFound.WithContext("owner_id", owner)
	}
	return loyalty.ErrConcurrentModification.WithContext(
		"owner_id", owner,
		"expected_version", expectedVersion,
	)
}

// ===========================
// RedemptionQueryRepository
// ===========================

// FindRedemptionsExpiringBetween 查詢到期時間落在 (from, to] 且尚未使用的兌換
func (r *AccountRepository) FindRedemptionsExpiringBetween(ctx shared.TransactionContext, from, to time.Time) ([]loyalty.ExpiringRedemption, error) {
	var models []RedemptionGORM
	err := persistence.DBFrom(ctx, r.db).
		Where("used = ? AND expires_at > ? AND expires_at <= ?", false, from.UTC(), to.UTC()).
		Order("expires_at, redemption_id").
		Find(&models).Error
	if err != nil {
		return nil, mapError(err, "from", from, "to", to)
	}

	expiring := make([]loyalty.ExpiringRedemption, 0, len(models))
	for i := range models {
		ownerID, err := loyalty.OwnerIDFromString(models[i].OwnerID)
		if err != nil {
			return nil, err
		}
		redemption, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		expiring = append(expiring, loyalty.ExpiringRedemption{OwnerID: ownerID, Redemption: redemption})
	}
	return expiring, nil
}

// ===========================
// 錯誤映射
// ===========================

// mapError 將 GORM / driver 錯誤轉換為 Domain 錯誤
//
// - 已是 DomainError：原樣返回
// - gorm.ErrRecordNotFound → ErrAccountNotFound
// - 唯一約束 → ErrAccountAlreadyExists
// - 其他（含 ctx 取消）→ ErrPersistenceFailed
func mapError(err error, keyValues ...interface{}) error {
	if err == nil {
		return nil
	}

	var domainErr *loyalty.DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	switch {
	case persistence.IsNotFound(err):
		return loyalty.ErrAccountNotFound.WithContext(keyValues...)
	case persistence.IsUniqueConstraintError(err):
		return loyalty.ErrAccountAlreadyExists.WithContext(keyValues...)
	}
	return loyalty.ErrPersistenceFailed.WithContext(append(keyValues, "database_error", err.Error())...)
}
