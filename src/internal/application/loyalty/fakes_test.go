package loyalty

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/shared"
)

// ===========================
// Mock Repository（記憶體版，模擬版本 compare-and-swap）
// ===========================

type MockAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*loyalty.LoyaltyAccount
	tiers    loyalty.TierTable

	UpdateErr        error // 非 nil 時每次 Update 都返回此錯誤
	PendingConflicts int   // 接下來幾次 Update 直接返回版本衝突

	SaveCallCount   int
	FindCallCount   int
	UpdateCallCount int
}

func NewMockAccountRepository(tiers loyalty.TierTable) *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[string]*loyalty.LoyaltyAccount),
		tiers:    tiers,
	}
}

func (m *MockAccountRepository) Save(_ shared.TransactionContext, account *loyalty.LoyaltyAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCallCount++

	key := account.OwnerID().String()
	if _, exists := m.accounts[key]; exists {
		return loyalty.ErrAccountAlreadyExists
	}
	m.accounts[key] = m.copyOf(account)
	return nil
}

func (m *MockAccountRepository) FindByOwnerID(_ shared.TransactionContext, ownerID loyalty.OwnerID) (*loyalty.LoyaltyAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindCallCount++

	stored, ok := m.accounts[ownerID.String()]
	if !ok {
		return nil, loyalty.ErrAccountNotFound
	}
	return m.copyOf(stored), nil
}

func (m *MockAccountRepository) Update(_ shared.TransactionContext, account *loyalty.LoyaltyAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCallCount++

	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	if m.PendingConflicts > 0 {
		m.PendingConflicts--
		return loyalty.ErrConcurrentModification
	}

	key := account.OwnerID().String()
	stored, ok := m.accounts[key]
	if !ok {
		return loyalty.ErrAccountNotFound
	}
	if stored.Version() != account.PersistedVersion() {
		return loyalty.ErrConcurrentModification
	}
	m.accounts[key] = m.copyOf(account)
	return nil
}

// Stored 資料庫中的快照
func (m *MockAccountRepository) Stored(ownerID loyalty.OwnerID) (*loyalty.LoyaltyAccount, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.accounts[ownerID.String()]
	if !ok {
		return nil, false
	}
	return m.copyOf(stored), true
}

// ExternalEarn 模擬另一個程序直接寫入資料庫
func (m *MockAccountRepository) ExternalEarn(ownerID loyalty.OwnerID, points int, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.copyOf(m.accounts[ownerID.String()])
	if _, err := next.Earn(points, loyalty.SourceReview, nil, m.tiers, now); err != nil {
		panic(err)
	}
	m.accounts[ownerID.String()] = m.copyOf(next)
}

// copyOf 以重建的方式複製，模擬序列化邊界（不共享任何記憶體）
func (m *MockAccountRepository) copyOf(account *loyalty.LoyaltyAccount) *loyalty.LoyaltyAccount {
	copied, err := loyalty.ReconstructLoyaltyAccount(
		account.OwnerID(),
		account.Balance().Value(),
		account.Ledger().Entries(),
		account.Redemptions(),
		account.Version(),
		account.CreatedAt(),
		account.UpdatedAt(),
		m.tiers,
	)
	if err != nil {
		panic(err)
	}
	return copied
}

// ===========================
// Mock TransactionManager
// ===========================

type MockTransactionManager struct {
	mu                     sync.Mutex
	InTransactionCallCount int

	gate    chan struct{}
	entered chan struct{}
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

// Hold 讓之後的交易在 gate 關閉前停住；每個停住的交易會通知 entered 一次
func (m *MockTransactionManager) Hold(gate, entered chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
	m.entered = entered
}

func (m *MockTransactionManager) InTransaction(ctx context.Context, fn func(tx shared.TransactionContext) error) error {
	m.mu.Lock()
	m.InTransactionCallCount++
	gate, entered := m.gate, m.entered
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
		// 模擬資料庫驅動在等待期間因 context 結束而中止
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fn(nil)
}

// ===========================
// 通知收集與時間
// ===========================

type recordingSink struct {
	mu            sync.Mutex
	notifications []Notification
}

func (s *recordingSink) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
}

func (s *recordingSink) Titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	titles := make([]string, len(s.notifications))
	for i, n := range s.notifications {
		titles[i] = n.Title
	}
	return titles
}

func (s *recordingSink) Last() Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifications[len(s.notifications)-1]
}

func (s *recordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ===========================
// 測試設定
// ===========================

func testTiers() loyalty.TierTable {
	return loyalty.NewTierTable(
		loyalty.Tier{ID: "bronze", Name: "Bronze", MinPoints: 0, Multiplier: decimal.NewFromInt(1)},
		loyalty.Tier{ID: "silver", Name: "Silver", MinPoints: 500, Multiplier: decimal.RequireFromString("1.5")},
		loyalty.Tier{ID: "gold", Name: "Gold", MinPoints: 1000, Multiplier: decimal.NewFromInt(2)},
	)
}

func testCatalog() loyalty.RewardCatalog {
	return loyalty.NewRewardCatalog(
		loyalty.Reward{ID: "free-shipping", Name: "免運券", PointCost: 100, Type: loyalty.RewardTypeFreeShipping},
		loyalty.Reward{ID: "tote-bag", Name: "帆布袋", PointCost: 200, Type: loyalty.RewardTypeProduct},
		loyalty.Reward{ID: "ten-off", Name: "折價 10 元", PointCost: 500, Type: loyalty.RewardTypeDiscount, Value: "10"},
	)
}

type engineFixture struct {
	engine  *Engine
	repo    *MockAccountRepository
	tx      *MockTransactionManager
	sink    *recordingSink
	clock   *testClock
	metrics *Metrics
}
