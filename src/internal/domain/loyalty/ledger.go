package loyalty

import (
	"time"
)

// ===========================
// 列舉：交易類型與積分來源
// ===========================

// EntryKind 交易紀錄類型
type EntryKind string

const (
	EntryKindEarned     EntryKind = "earned"
	EntryKindRedeemed   EntryKind = "redeemed"
	EntryKindTierChange EntryKind = "tier_change"
)

// IsValid 是否為已知類型
func (k EntryKind) IsValid() bool {
	switch k {
	case EntryKindEarned, EntryKindRedeemed, EntryKindTierChange:
		return true
	}
	return false
}

// PointsSource 積分來源（交易原因）
type PointsSource string

const (
	SourcePurchase         PointsSource = "purchase"
	SourceReview           PointsSource = "review"
	SourceReferral         PointsSource = "referral"
	SourceRewardRedemption PointsSource = "reward_redemption"
	SourceTierUpgrade      PointsSource = "tier_upgrade"
	SourceTierDowngrade    PointsSource = "tier_downgrade"
)

// ParsePointsSource 從字串解析積分來源
func ParsePointsSource(s string) (PointsSource, error) {
	source := PointsSource(s)
	switch source {
	case SourcePurchase, SourceReview, SourceReferral,
		SourceRewardRedemption, SourceTierUpgrade, SourceTierDowngrade:
		return source, nil
	}
	return "", ErrInvalidPointsSource.WithContext("source", s)
}

// IsEarning 是否為可賺取積分的來源
func (s PointsSource) IsEarning() bool {
	return s == SourcePurchase || s == SourceReview || s == SourceReferral
}

// IsDeduction 是否為扣減積分的原因
func (s PointsSource) IsDeduction() bool {
	return s == SourceRewardRedemption
}

// Detail keys 使用於 LedgerEntry.Details
const (
	DetailFromTier     = "fromTier"
	DetailToTier       = "toTier"
	DetailRewardID     = "rewardId"
	DetailRedemptionID = "redemptionId"
	DetailOrderID      = "orderId"
	DetailAmount       = "amount"
	DetailReviewID     = "reviewId"
	DetailReferredID   = "referredId"
)

// ===========================
// LedgerEntry 交易紀錄
// ===========================

// LedgerEntry 單筆積分交易（寫入後不可變）
type LedgerEntry struct {
	id          LedgerEntryID
	timestamp   time.Time
	kind        EntryKind
	pointsDelta int
	source      PointsSource
	details     map[string]string
}

func newLedgerEntry(kind EntryKind, delta int, source PointsSource, details map[string]string, now time.Time) LedgerEntry {
	return LedgerEntry{
		id:          NewLedgerEntryID(),
		timestamp:   now,
		kind:        kind,
		pointsDelta: delta,
		source:      source,
		details:     copyDetails(details),
	}
}

// ReconstructLedgerEntry 從持久化存儲重建交易紀錄（驗證類型與正負號）
func ReconstructLedgerEntry(
	id LedgerEntryID,
	timestamp time.Time,
	kind EntryKind,
	pointsDelta int,
	source PointsSource,
	details map[string]string,
) (LedgerEntry, error) {
	if id.IsEmpty() {
		return LedgerEntry{}, ErrInvalidLedgerEntryID.WithContext("reason", "empty ledger entry id")
	}
	if _, err := ParsePointsSource(string(source)); err != nil {
		return LedgerEntry{}, err
	}

	valid := false
	switch kind {
	case EntryKindEarned:
		valid = pointsDelta > 0 && source.IsEarning()
	case EntryKindRedeemed:
		valid = pointsDelta < 0 && source.IsDeduction()
	case EntryKindTierChange:
		valid = pointsDelta == 0 && (source == SourceTierUpgrade || source == SourceTierDowngrade)
	}
	if !valid {
		return LedgerEntry{}, ErrInvalidLedgerEntry.WithContext(
			"entry_id", id.String(),
			"kind", string(kind),
			"delta", pointsDelta,
			"source", string(source),
		)
	}

	return LedgerEntry{
		id:          id,
		timestamp:   timestamp,
		kind:        kind,
		pointsDelta: pointsDelta,
		source:      source,
		details:     copyDetails(details),
	}, nil
}

// ID 交易紀錄 ID
func (e LedgerEntry) ID() LedgerEntryID { return e.id }

// Timestamp 發生時間
func (e LedgerEntry) Timestamp() time.Time { return e.timestamp }

// Kind 交易類型
func (e LedgerEntry) Kind() EntryKind { return e.kind }

// PointsDelta 積分變動（有號；tier_change 為 0）
func (e LedgerEntry) PointsDelta() int { return e.pointsDelta }

// Source 積分來源
func (e LedgerEntry) Source() PointsSource { return e.source }

// Details 附加資料（複本）
func (e LedgerEntry) Details() map[string]string { return copyDetails(e.details) }

// Detail 取得單一附加資料
func (e LedgerEntry) Detail(key string) string { return e.details[key] }

func copyDetails(details map[string]string) map[string]string {
	copied := make(map[string]string, len(details))
	for k, v := range details {
		copied[k] = v
	}
	return copied
}

// ===========================
// Ledger 交易帳本
// ===========================

// Ledger 只可追加的交易帳本
//
// 內部以時間順序（重播順序）保存；畫面顯示使用 NewestFirst。
// append 一律產生新的底層陣列，帳戶複本之間不共享寫入。
type Ledger struct {
	entries []LedgerEntry
}

// NewLedger 以時間順序的交易紀錄建立帳本
func NewLedger(entries ...LedgerEntry) Ledger {
	return Ledger{entries: append([]LedgerEntry(nil), entries...)}
}

// Entries 時間順序（舊 → 新）
func (l Ledger) Entries() []LedgerEntry {
	return append([]LedgerEntry(nil), l.entries...)
}

// NewestFirst 顯示順序（新 → 舊）
func (l Ledger) NewestFirst() []LedgerEntry {
	out := make([]LedgerEntry, len(l.entries))
	for i, entry := range l.entries {
		out[len(l.entries)-1-i] = entry
	}
	return out
}

// Len 交易筆數
func (l Ledger) Len() int {
	return len(l.entries)
}

// Sum 所有交易的積分變動總和（必須等於帳戶餘額）
func (l Ledger) Sum() int {
	total := 0
	for _, entry := range l.entries {
		total += entry.pointsDelta
	}
	return total
}

// Since 返回第 n 筆之後新增的交易（Repository 只需寫入新增部分）
func (l Ledger) Since(n int) []LedgerEntry {
	if n >= len(l.entries) {
		return nil
	}
	if n < 0 {
		n = 0
	}
	return append([]LedgerEntry(nil), l.entries[n:]...)
}

func (l Ledger) append(entries ...LedgerEntry) Ledger {
	next := make([]LedgerEntry, 0, len(l.entries)+len(entries))
	next = append(next, l.entries...)
	next = append(next, entries...)
	return Ledger{entries: next}
}
