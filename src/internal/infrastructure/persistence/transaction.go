package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/shared"
)

// ===========================
// GORM TransactionContext 實作
// ===========================

// gormTransactionContext GORM 事務上下文實作
//
// 封裝 *gorm.DB，Domain Layer 只看到 shared.TransactionContext 標記介面。
type gormTransactionContext struct {
	db *gorm.DB
}

// NewGORMTransactionContext 創建 GORM 事務上下文
func NewGORMTransactionContext(db *gorm.DB) shared.TransactionContext {
	return &gormTransactionContext{db: db}
}

// GetDB 獲取 GORM DB 連接（僅供 Infrastructure Layer 內部使用）
func (ctx *gormTransactionContext) GetDB() *gorm.DB {
	return ctx.db
}

// DBFrom 從 TransactionContext 取出 *gorm.DB
//
// - tx 是 GORM 事務上下文：返回事務中的 DB
// - tx 為 nil 或其他實作：返回 fallback（auto-commit 模式）
func DBFrom(tx shared.TransactionContext, fallback *gorm.DB) *gorm.DB {
	if gormCtx, ok := tx.(interface{ GetDB() *gorm.DB }); ok && gormCtx != nil {
		return gormCtx.GetDB()
	}
	return fallback
}

// ===========================
// GORM TransactionManager 實作
// ===========================

// GORMTransactionManager 以 gorm.DB.Transaction 實作 shared.TransactionManager
//
// fn 返回錯誤時回滾；fn panic 時回滾後重新 panic；ctx 取消時資料庫調用中止。
type GORMTransactionManager struct {
	db *gorm.DB
}

// NewGORMTransactionManager 創建事務管理器
func NewGORMTransactionManager(db *gorm.DB) *GORMTransactionManager {
	return &GORMTransactionManager{db: db}
}

// InTransaction 在事務中執行 fn
func (m *GORMTransactionManager) InTransaction(ctx context.Context, fn func(tx shared.TransactionContext) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGORMTransactionContext(tx))
	})
}
