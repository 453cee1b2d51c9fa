package persistence

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsUniqueConstraintError 判斷是否為唯一約束錯誤
//
// 支持的資料庫：
// - PostgreSQL: "duplicate key value violates unique constraint"
// - SQLite: "UNIQUE constraint failed"
// - MySQL: "Duplicate entry"
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "duplicate key value violates unique constraint") ||
		strings.Contains(errMsg, "unique constraint failed") ||
		strings.Contains(errMsg, "duplicate entry")
}

// IsNotFound 判斷是否為查無資料
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
