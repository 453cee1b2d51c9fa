package shared

import (
	"github.com/google/uuid"
)

// ===========================
// EntityID[T] 泛型實體 ID
// ===========================

// EntityID 泛型實體 ID 值對象
//
// 泛型參數 T 只是標記類型，用於讓不同實體的 ID 在編譯期無法混用：
//   type OwnerMarker struct{}
//   type OwnerID = shared.EntityID[OwnerMarker]
type EntityID[T any] struct {
	value uuid.UUID
}

// NewEntityID 生成新的實體 ID（UUID v4）
func NewEntityID[T any]() EntityID[T] {
	return EntityID[T]{value: uuid.New()}
}

// EntityIDFromString 從字串解析實體 ID
//
// errTemplate 由各 bounded context 提供（例如 loyalty.ErrInvalidOwnerID），
// 若支援 WithContext 則附帶輸入值與解析錯誤。
func EntityIDFromString[T any](s string, errTemplate error) (EntityID[T], error) {
	id, err := uuid.Parse(s)
	if err != nil {
		if domainErr, ok := errTemplate.(interface {
			WithContext(keyValues ...interface{}) error
		}); ok {
			return EntityID[T]{}, domainErr.WithContext(
				"input", s,
				"parse_error", err.Error(),
			)
		}
		return EntityID[T]{}, errTemplate
	}
	if id == uuid.Nil {
		return EntityID[T]{}, errTemplate
	}
	return EntityID[T]{value: id}, nil
}

// String 轉換為小寫 UUID 字串
func (e EntityID[T]) String() string {
	return e.value.String()
}

// Equals 比較兩個同類型 ID
func (e EntityID[T]) Equals(other EntityID[T]) bool {
	return e.value == other.value
}

// IsEmpty 判斷是否為零值 ID
func (e EntityID[T]) IsEmpty() bool {
	return e.value == uuid.Nil
}
