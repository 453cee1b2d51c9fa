package shared

import "time"

// Clock 時間來源
//
// 聚合根的時間戳、兌換有效期、提醒排程都從 Clock 取得，測試時可替換為固定時間。
type Clock interface {
	Now() time.Time
}

// SystemClock 使用系統時間（UTC）
type SystemClock struct{}

// Now 實作 Clock
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ClockFunc 讓普通函數滿足 Clock 介面
type ClockFunc func() time.Time

// Now 實作 Clock
func (f ClockFunc) Now() time.Time {
	return f()
}
