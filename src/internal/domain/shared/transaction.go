package shared

import "context"

// TransactionContext 事務上下文介面
//
// 行為約定（沿用可選事務參與模式）：
// - tx != nil: 在調用者的事務中執行
// - tx == nil: auto-commit 模式，只適用於單一讀操作
//
// 修改狀態的 Repository 方法（Save / Update）必須在 InTransaction 中調用。
//
// 這是一個標記介面，Infrastructure Layer 負責實作具體的事務封裝。
type TransactionContext interface{}

// TransactionManager 事務管理器介面
//
// fn 返回錯誤或 panic 時整個事務回滾；ctx 取消時資料庫調用中止。
type TransactionManager interface {
	InTransaction(ctx context.Context, fn func(tx TransactionContext) error) error
}
