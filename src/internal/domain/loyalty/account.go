package loyalty

import (
	"fmt"
	"time"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/shared"
)

// ===========================
// LoyaltyAccount 聚合根
// ===========================

// LoyaltyAccount 顧客積分帳戶聚合根
//
// 業務不變條件：
// - balance >= 0
// - balance == ledger.Sum()
// - currentTierID == ResolveTier(balance).ID
//
// 所有變更只能透過命令方法（Earn / Deduct / RedeemReward / MarkRedemptionUsed）。
// 每個命令在改變餘額後立即重新解析等級，兩者不會分離。
//
// 版本號：
// - version: 目前快照的版本（每個命令 +1）
// - persistedVersion: 最後一次成功寫入時的版本，Repository 以此做 compare-and-swap
type LoyaltyAccount struct {
	ownerID       OwnerID
	balance       PointsAmount
	currentTierID TierID
	ledger        Ledger
	redemptions   []RedeemedReward

	version          int
	persistedVersion int

	createdAt time.Time
	updatedAt time.Time

	events []shared.DomainEvent
}

// TierTransition 一次命令造成的等級變化
type TierTransition struct {
	From     Tier
	To       Tier
	Changed  bool
	Upgraded bool // 只有在 Changed 且 To 高於 From 時為 true
}

// TransitionOutcome 命令執行結果
type TransitionOutcome struct {
	Entries []LedgerEntry // 本次新增的交易紀錄（時間順序）
	Balance int
	Tier    TierTransition
}

// NewLoyaltyAccount 建立新帳戶：餘額 0、最低等級、空帳本
func NewLoyaltyAccount(ownerID OwnerID, tiers TierTable, now time.Time) (*LoyaltyAccount, error) {
	if ownerID.IsEmpty() {
		return nil, ErrInvalidOwnerID.WithContext("reason", "ownerID cannot be empty")
	}

	base := ResolveTier(0, tiers)
	account := &LoyaltyAccount{
		ownerID:       ownerID,
		balance:       newPointsAmountUnchecked(0),
		currentTierID: base.ID,
		ledger:        NewLedger(),
		redemptions:   make([]RedeemedReward, 0),
		version:       1,
		createdAt:     now,
		updatedAt:     now,
	}
	account.addEvent(&AccountOpenedEvent{eventBase: newEventBase(ownerID, now), TierID: base.ID})
	return account, nil
}

// ===========================
// 查詢方法
// ===========================

// OwnerID 帳戶擁有者
func (a *LoyaltyAccount) OwnerID() OwnerID { return a.ownerID }

// Balance 目前積分餘額
func (a *LoyaltyAccount) Balance() PointsAmount { return a.balance }

// CurrentTierID 目前等級
func (a *LoyaltyAccount) CurrentTierID() TierID { return a.currentTierID }

// Ledger 交易帳本（值類型，外部無法追加）
func (a *LoyaltyAccount) Ledger() Ledger { return a.ledger }

// Redemptions 兌換紀錄（複本，依兌換順序）
func (a *LoyaltyAccount) Redemptions() []RedeemedReward {
	return append([]RedeemedReward(nil), a.redemptions...)
}

// FindRedemption 依 ID 查找兌換紀錄
func (a *LoyaltyAccount) FindRedemption(id RedemptionID) (RedeemedReward, bool) {
	if i := a.redemptionIndex(id); i >= 0 {
		return a.redemptions[i], true
	}
	return RedeemedReward{}, false
}

// Version 目前快照版本
func (a *LoyaltyAccount) Version() int { return a.version }

// PersistedVersion 最後一次寫入成功的版本（新帳戶為 0）
func (a *LoyaltyAccount) PersistedVersion() int { return a.persistedVersion }

// CreatedAt 建立時間
func (a *LoyaltyAccount) CreatedAt() time.Time { return a.createdAt }

// UpdatedAt 最後更新時間
func (a *LoyaltyAccount) UpdatedAt() time.Time { return a.updatedAt }

// CanAfford 餘額是否足以兌換獎勵
func (a *LoyaltyAccount) CanAfford(reward Reward) bool {
	return reward.IsAffordable(a.balance.Value())
}

// ===========================
// 事件與快照管理
// ===========================

func (a *LoyaltyAccount) addEvent(event shared.DomainEvent) {
	a.events = append(a.events, event)
}

// PullEvents 取出並清空待發布事件（寫入成功後由應用層調用）
func (a *LoyaltyAccount) PullEvents() []shared.DomainEvent {
	events := a.events
	a.events = nil
	return events
}

// Clone 產生可獨立修改的複本
//
// 應用層在臨界區內修改複本、寫入成功後才替換快取，
// 因此寫入失敗時記憶體中的快照不會被改動。
func (a *LoyaltyAccount) Clone() *LoyaltyAccount {
	clone := *a
	clone.redemptions = append([]RedeemedReward(nil), a.redemptions...)
	clone.events = nil
	return &clone
}

// MarkPersisted 記錄目前版本已寫入
func (a *LoyaltyAccount) MarkPersisted() {
	a.persistedVersion = a.version
}

// ===========================
// 命令方法
// ===========================

// Earn 獲得積分
//
// points <= 0 返回 ErrNonPositivePoints，餘額超過上限返回 ErrPointsOverflow，帳戶不變。
// 追加 earned 紀錄、增加餘額、重新解析等級；等級改變時緊接著追加 tier_change 紀錄。
func (a *LoyaltyAccount) Earn(
	points int,
	source PointsSource,
	details map[string]string,
	tiers TierTable,
	now time.Time,
) (TransitionOutcome, error) {
	amount, err := NewPositivePointsAmount(points)
	if err != nil {
		return TransitionOutcome{}, err
	}
	if !source.IsEarning() {
		return TransitionOutcome{}, ErrInvalidPointsSource.WithContext(
			"source", string(source),
			"reason", "source cannot earn points",
		)
	}

	balance, err := a.balance.Add(amount)
	if err != nil {
		return TransitionOutcome{}, err
	}

	earned := newLedgerEntry(EntryKindEarned, amount.Value(), source, details, now)
	a.balance = balance
	outcome := a.commit(tiers, now, earned)

	a.addEvent(&PointsEarnedEvent{
		eventBase: newEventBase(a.ownerID, now),
		Points:    amount.Value(),
		Source:    source,
		Balance:   a.balance.Value(),
	})
	a.addTierEvent(outcome.Tier, now)
	return outcome, nil
}

// Deduct 扣減積分
//
// points <= 0 或餘額不足時返回錯誤，帳戶不變。
// 追加 redeemed 紀錄（負數）、減少餘額、重新解析等級；降級時追加 tier_change 紀錄。
func (a *LoyaltyAccount) Deduct(
	points int,
	reason PointsSource,
	details map[string]string,
	tiers TierTable,
	now time.Time,
) (TransitionOutcome, error) {
	outcome, err := a.deduct(points, reason, details, tiers, now)
	if err != nil {
		return TransitionOutcome{}, err
	}
	a.addTierEvent(outcome.Tier, now)
	return outcome, nil
}

func (a *LoyaltyAccount) deduct(
	points int,
	reason PointsSource,
	details map[string]string,
	tiers TierTable,
	now time.Time,
) (TransitionOutcome, error) {
	amount, err := NewPositivePointsAmount(points)
	if err != nil {
		return TransitionOutcome{}, err
	}
	if !reason.IsDeduction() {
		return TransitionOutcome{}, ErrInvalidPointsSource.WithContext(
			"source", string(reason),
			"reason", "source cannot deduct points",
		)
	}
	remaining, err := a.balance.Subtract(amount)
	if err != nil {
		return TransitionOutcome{}, err
	}

	redeemed := newLedgerEntry(EntryKindRedeemed, -amount.Value(), reason, details, now)
	a.balance = remaining
	outcome := a.commit(tiers, now, redeemed)

	a.addEvent(&PointsDeductedEvent{
		eventBase: newEventBase(a.ownerID, now),
		Points:    amount.Value(),
		Reason:    reason,
		Balance:   a.balance.Value(),
	})
	return outcome, nil
}

// RedeemReward 以積分兌換獎勵
//
// 扣減積分與建立兌換紀錄在同一個快照上完成，兩者一起寫入或都不寫入。
func (a *LoyaltyAccount) RedeemReward(reward Reward, tiers TierTable, now time.Time) (RedeemedReward, TransitionOutcome, error) {
	if !a.CanAfford(reward) {
		return RedeemedReward{}, TransitionOutcome{}, NewInsufficientPointsError(reward.PointCost, a.balance.Value())
	}

	redemption := newRedeemedReward(reward.ID, now)
	details := map[string]string{
		DetailRewardID:     string(reward.ID),
		DetailRedemptionID: redemption.RedemptionID().String(),
	}
	outcome, err := a.deduct(reward.PointCost, SourceRewardRedemption, details, tiers, now)
	if err != nil {
		return RedeemedReward{}, TransitionOutcome{}, err
	}

	a.redemptions = append(a.redemptions, redemption)
	a.addTierEvent(outcome.Tier, now)
	a.addEvent(&RewardRedeemedEvent{
		eventBase:  newEventBase(a.ownerID, now),
		Reward:     reward,
		Redemption: redemption,
	})
	return redemption, outcome, nil
}

// MarkRedemptionUsed 標記兌換的獎勵已使用
//
// 已使用的紀錄再次標記會失敗，usedAt 保持第一次的時間；過期的紀錄不可使用。
func (a *LoyaltyAccount) MarkRedemptionUsed(id RedemptionID, now time.Time) (RedeemedReward, error) {
	i := a.redemptionIndex(id)
	if i < 0 {
		return RedeemedReward{}, ErrRedemptionNotFound.WithContext("redemption_id", id.String())
	}

	current := a.redemptions[i]
	if current.Used() {
		return RedeemedReward{}, ErrRedemptionAlreadyUsed.WithContext(
			"redemption_id", id.String(),
			"used_at", current.usedAt.Format(time.RFC3339),
		)
	}
	if current.IsExpired(now) {
		return RedeemedReward{}, ErrRedemptionExpired.WithContext(
			"redemption_id", id.String(),
			"expires_at", current.ExpiresAt().Format(time.RFC3339),
		)
	}

	used := current.markUsed(now)
	a.redemptions[i] = used
	a.version++
	a.updatedAt = now
	a.addEvent(&RewardUsedEvent{eventBase: newEventBase(a.ownerID, now), Redemption: used})
	return used, nil
}

// commit 追加交易、重新解析等級，等級改變時追加 tier_change 紀錄
func (a *LoyaltyAccount) commit(tiers TierTable, now time.Time, entry LedgerEntry) TransitionOutcome {
	from, _ := tiers.ByID(a.currentTierID)
	to := ResolveTier(a.balance.Value(), tiers)

	entries := []LedgerEntry{entry}
	transition := TierTransition{From: from, To: to}
	if to.ID != a.currentTierID {
		transition.Changed = true
		transition.Upgraded = tiers.Compare(to.ID, a.currentTierID) > 0

		source := SourceTierDowngrade
		if transition.Upgraded {
			source = SourceTierUpgrade
		}
		entries = append(entries, newLedgerEntry(EntryKindTierChange, 0, source, map[string]string{
			DetailFromTier: string(a.currentTierID),
			DetailToTier:   string(to.ID),
		}, now))
		a.currentTierID = to.ID
	}

	a.ledger = a.ledger.append(entries...)
	a.version++
	a.updatedAt = now

	return TransitionOutcome{
		Entries: entries,
		Balance: a.balance.Value(),
		Tier:    transition,
	}
}

func (a *LoyaltyAccount) addTierEvent(transition TierTransition, now time.Time) {
	if !transition.Changed {
		return
	}
	a.addEvent(&TierChangedEvent{
		eventBase: newEventBase(a.ownerID, now),
		From:      transition.From,
		To:        transition.To,
		Upgraded:  transition.Upgraded,
	})
}

func (a *LoyaltyAccount) redemptionIndex(id RedemptionID) int {
	for i, redemption := range a.redemptions {
		if redemption.RedemptionID().Equals(id) {
			return i
		}
	}
	return -1
}

// ===========================
// 不變條件
// ===========================

// CheckInvariants 檢查 balance >= 0、balance == sum(ledger) 與 currentTier == ResolveTier(balance)
func (a *LoyaltyAccount) CheckInvariants(tiers TierTable) error {
	if a.balance.Value() < 0 {
		return ErrCorruptedSnapshot.WithContext(
			"owner_id", a.ownerID.String(),
			"reason", fmt.Sprintf("negative balance %d", a.balance.Value()),
		)
	}
	if sum := a.ledger.Sum(); sum != a.balance.Value() {
		return ErrCorruptedSnapshot.WithContext(
			"owner_id", a.ownerID.String(),
			"reason", fmt.Sprintf("balance %d != ledger sum %d", a.balance.Value(), sum),
		)
	}
	if resolved := ResolveTier(a.balance.Value(), tiers); resolved.ID != a.currentTierID {
		return ErrCorruptedSnapshot.WithContext(
			"owner_id", a.ownerID.String(),
			"reason", fmt.Sprintf("tier %s != resolved %s", a.currentTierID, resolved.ID),
		)
	}
	return nil
}

// ===========================
// 聚合重建（僅供 Infrastructure Layer 使用）
// ===========================

// ReconstructLoyaltyAccount 從持久化快照重建聚合根
//
// 餘額必須等於帳本總和，否則視為資料損壞。
// 等級一律依目前的等級表重新解析：等級表調整後，帳戶在下一次載入時採用新等級，
// 歷史 tier_change 紀錄不回溯修改。
func ReconstructLoyaltyAccount(
	ownerID OwnerID,
	balance int,
	entries []LedgerEntry,
	redemptions []RedeemedReward,
	version int,
	createdAt time.Time,
	updatedAt time.Time,
	tiers TierTable,
) (*LoyaltyAccount, error) {
	if ownerID.IsEmpty() {
		return nil, ErrInvalidOwnerID.WithContext("reason", "invalid owner ID in database")
	}

	amount, err := NewPointsAmount(balance)
	if err != nil {
		return nil, ErrCorruptedSnapshot.WithContext(
			"owner_id", ownerID.String(),
			"balance", balance,
			"underlying_error", err.Error(),
		)
	}

	ledger := NewLedger(entries...)
	if ledger.Sum() != balance {
		return nil, ErrCorruptedSnapshot.WithContext(
			"owner_id", ownerID.String(),
			"balance", balance,
			"ledger_sum", ledger.Sum(),
		)
	}

	return &LoyaltyAccount{
		ownerID:          ownerID,
		balance:          amount,
		currentTierID:    ResolveTier(balance, tiers).ID,
		ledger:           ledger,
		redemptions:      append(make([]RedeemedReward, 0, len(redemptions)), redemptions...),
		version:          version,
		persistedVersion: version,
		createdAt:        createdAt,
		updatedAt:        updatedAt,
	}, nil
}
