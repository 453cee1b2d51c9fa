package loyalty

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/shared"
)

const (
	// DefaultCacheSize 記憶體中快取的帳戶快照數量
	DefaultCacheSize = 1024
	// DefaultMaxConflictRetries 版本衝突時最多重試次數
	DefaultMaxConflictRetries = 3
)

// 操作名稱（日誌與指標標籤）
const (
	opOpen     = "open"
	opEarn     = "earn"
	opDeduct   = "deduct"
	opRedeem   = "redeem"
	opMarkUsed = "mark_used"
	opQuery    = "query"
)

// ===========================
// Account Engine
// ===========================

// Engine 積分帳戶引擎：所有改變積分狀態的操作的唯一入口
//
// 每個修改操作都是一個臨界區：
// 1. 取得該帳戶的鎖（同一程序內序列化）
// 2. 讀取目前快照（快取，缺少時從 Repository 載入）
// 3. 在快照複本上套用領域轉換
// 4. 以版本號 compare-and-swap 寫入（跨程序的並發控制）
// 5. 寫入成功才替換快取並發送通知；版本衝突時重新載入重試
//
// 寫入失敗時記憶體中的快照保持不變，呼叫者重試整個操作。
type Engine struct {
	repo      loyalty.AccountRepository
	txManager shared.TransactionManager
	tiers     loyalty.TierTable
	catalog   loyalty.RewardCatalog

	notifier NotificationSink
	clock    shared.Clock
	logger   *zap.Logger
	metrics  *Metrics

	cache              *lru.Cache[string, *loyalty.LoyaltyAccount]
	cacheMu            sync.Mutex    // 快取的比較後寫入
	commits            atomic.Uint64 // 本程序已提交的修改次數
	cacheSize          int
	locks              *ownerLocks
	loads              singleflight.Group
	maxConflictRetries int
}

// Option 自訂引擎
type Option func(*Engine)

// WithClock 替換時間來源（測試使用固定時間）
func WithClock(clock shared.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLogger 設定 logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics 設定 Prometheus 指標
func WithMetrics(metrics *Metrics) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithNotificationSink 設定通知收件匣
func WithNotificationSink(sink NotificationSink) Option {
	return func(e *Engine) {
		e.notifier = sink
	}
}

// WithCacheSize 設定快取容量（<= 0 使用預設值）
func WithCacheSize(size int) Option {
	return func(e *Engine) {
		e.cacheSize = size
	}
}

// WithMaxConflictRetries 設定版本衝突重試次數（< 0 使用預設值）
func WithMaxConflictRetries(n int) Option {
	return func(e *Engine) {
		e.maxConflictRetries = n
	}
}

// NewEngine 建立引擎
//
// 等級表與獎勵目錄在這裡驗證；設定錯誤直接返回，不在執行期防禦。
func NewEngine(
	repo loyalty.AccountRepository,
	txManager shared.TransactionManager,
	tiers loyalty.TierTable,
	catalog loyalty.RewardCatalog,
	opts ...Option,
) (*Engine, error) {
	if err := tiers.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tier table: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reward catalog: %w", err)
	}

	e := &Engine{
		repo:               repo,
		txManager:          txManager,
		tiers:              tiers,
		catalog:            catalog,
		notifier:           discardSink{},
		clock:              shared.SystemClock{},
		logger:             zap.NewNop(),
		cacheSize:          DefaultCacheSize,
		locks:              newOwnerLocks(),
		maxConflictRetries: DefaultMaxConflictRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cacheSize <= 0 {
		e.cacheSize = DefaultCacheSize
	}
	if e.maxConflictRetries < 0 {
		e.maxConflictRetries = DefaultMaxConflictRetries
	}
	if e.notifier == nil {
		e.notifier = discardSink{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}

	cache, err := lru.New[string, *loyalty.LoyaltyAccount](e.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create account cache: %w", err)
	}
	e.cache = cache
	return e, nil
}

// TierTable 目前使用的等級表
func (e *Engine) TierTable() loyalty.TierTable {
	return e.tiers
}

// ===========================
// 臨界區
// ===========================

// transition 在帳戶複本上套用的領域轉換；重試時會以新的複本再次調用
type transition func(account *loyalty.LoyaltyAccount, now time.Time) error

// mutate 執行一次完整的修改操作，返回已提交的快照
func (e *Engine) mutate(
	ctx context.Context,
	op string,
	ownerID loyalty.OwnerID,
	apply transition,
) (*loyalty.LoyaltyAccount, error) {
	key := ownerID.String()
	logger := e.logger.With(zap.String("operation", op), zap.String("owner_id", key))

	release, err := e.locks.acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire account lock: %w", err)
	}
	defer release()

	for attempt := 0; ; attempt++ {
		current, err := e.loadLocked(ctx, ownerID)
		if err != nil {
			e.metrics.observeFailure(op)
			logger.Error("failed to load account", zap.Error(err))
			return nil, fmt.Errorf("failed to load account: %w", err)
		}

		next := current.Clone()
		if err := apply(next, e.clock.Now()); err != nil {
			return nil, e.reject(op, ownerID, err)
		}

		err = e.txManager.InTransaction(ctx, func(tx shared.TransactionContext) error {
			return e.repo.Update(tx, next)
		})
		if err == nil {
			next.MarkPersisted()
			events := next.PullEvents()
			e.cacheCommitted(key, next)
			e.publish(events)
			return next, nil
		}

		if errors.Is(err, loyalty.ErrConcurrentModification) {
			e.evict(key)
			if attempt < e.maxConflictRetries {
				e.metrics.observeConflictRetry()
				logger.Warn("snapshot version conflict, reloading", zap.Int("attempt", attempt+1))
				continue
			}
		}

		e.metrics.observeFailure(op)
		logger.Error("failed to persist account snapshot", zap.Int("attempt", attempt+1), zap.Error(err))
		e.notifier.Notify(persistenceFailedNotification(ownerID))
		if errors.Is(err, loyalty.ErrPersistenceFailed) {
			return nil, fmt.Errorf("failed to persist account: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", loyalty.ErrPersistenceFailed, err)
	}
}

// reject 記錄前置條件拒絕；非拒絕類錯誤原樣返回
func (e *Engine) reject(op string, ownerID loyalty.OwnerID, err error) error {
	if code, ok := loyalty.CodeOf(err); ok && loyalty.IsRejection(err) {
		e.metrics.observeRejection(op, string(code))
		e.logger.Debug("operation rejected",
			zap.String("operation", op),
			zap.String("owner_id", ownerID.String()),
			zap.String("code", string(code)),
			zap.Error(err),
		)
	}
	return err
}

// rejectInput 記錄輸入解析失敗（尚未取得帳戶）
func (e *Engine) rejectInput(op string, err error) error {
	if code, ok := loyalty.CodeOf(err); ok {
		e.metrics.observeRejection(op, string(code))
	}
	e.logger.Debug("operation rejected", zap.String("operation", op), zap.Error(err))
	return err
}

// ===========================
// 快照載入
// ===========================

// load 讀取快取中的快照；缺少時從 Repository 載入（同一帳戶的並發查詢合併為一次）
//
// 第一次見到的擁有者會建立新帳戶。返回的快照不可修改，修改前必須 Clone。
// 合併後的載入不跟隨任何單一呼叫者的 context；每個呼叫者各自在 ctx 結束時返回。
func (e *Engine) load(ctx context.Context, ownerID loyalty.OwnerID) (*loyalty.LoyaltyAccount, error) {
	key := ownerID.String()
	if account, ok := e.cache.Get(key); ok {
		return account, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	results := e.loads.DoChan(key, func() (interface{}, error) {
		since := e.commits.Load()
		account, err := e.fetchOrOpen(loadCtx, ownerID)
		if err != nil {
			return nil, err
		}
		return e.cacheLoaded(key, account, since), nil
	})

	select {
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*loyalty.LoyaltyAccount), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// loadLocked 修改操作使用的載入；呼叫者已持有帳戶鎖，不加入查詢的合併載入
func (e *Engine) loadLocked(ctx context.Context, ownerID loyalty.OwnerID) (*loyalty.LoyaltyAccount, error) {
	key := ownerID.String()
	if account, ok := e.cache.Get(key); ok {
		return account, nil
	}

	account, err := e.fetchOrOpen(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if cached, ok := e.cache.Peek(key); ok && cached.Version() >= account.Version() {
		return cached, nil
	}
	e.cache.Add(key, account)
	return account, nil
}

// cacheCommitted 寫入剛提交的快照（呼叫者持有帳戶鎖，一定是本程序最新的版本）
func (e *Engine) cacheCommitted(key string, account *loyalty.LoyaltyAccount) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache.Add(key, account)
	e.commits.Add(1)
}

// cacheLoaded 寫入查詢載入的快照，返回應交給呼叫者的版本
//
// since 是開始載入前的提交次數。載入期間若有提交且快取中已沒有該帳戶
// （被 LRU 淘汰），讀到的快照可能比淘汰掉的版本舊，只返回不寫入。
func (e *Engine) cacheLoaded(key string, account *loyalty.LoyaltyAccount, since uint64) *loyalty.LoyaltyAccount {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	cached, ok := e.cache.Peek(key)
	switch {
	case ok && cached.Version() >= account.Version():
		return cached
	case !ok && e.commits.Load() != since:
		return account
	}
	e.cache.Add(key, account)
	return account
}

func (e *Engine) evict(key string) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache.Remove(key)
}

func (e *Engine) fetchOrOpen(ctx context.Context, ownerID loyalty.OwnerID) (*loyalty.LoyaltyAccount, error) {
	account, err := e.fetch(ctx, ownerID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, loyalty.ErrAccountNotFound) {
		return nil, err
	}

	created, err := loyalty.NewLoyaltyAccount(ownerID, e.tiers, e.clock.Now())
	if err != nil {
		return nil, err
	}
	err = e.txManager.InTransaction(ctx, func(tx shared.TransactionContext) error {
		return e.repo.Save(tx, created)
	})
	if errors.Is(err, loyalty.ErrAccountAlreadyExists) {
		// 另一個程序剛建立了同一個帳戶
		return e.fetch(ctx, ownerID)
	}
	if err != nil {
		return nil, err
	}

	created.MarkPersisted()
	e.publish(created.PullEvents())
	return created, nil
}

func (e *Engine) fetch(ctx context.Context, ownerID loyalty.OwnerID) (*loyalty.LoyaltyAccount, error) {
	var account *loyalty.LoyaltyAccount
	err := e.txManager.InTransaction(ctx, func(tx shared.TransactionContext) error {
		found, err := e.repo.FindByOwnerID(tx, ownerID)
		if err != nil {
			return err
		}
		account = found
		return nil
	})
	return account, err
}

// ===========================
// 事件 → 指標 / 日誌 / 通知
// ===========================

func (e *Engine) publish(events []shared.DomainEvent) {
	for _, event := range events {
		switch ev := event.(type) {
		case *loyalty.AccountOpenedEvent:
			e.logger.Info("loyalty account opened",
				zap.String("owner_id", ev.AggregateID()),
				zap.String("tier", string(ev.TierID)),
			)

		case *loyalty.PointsEarnedEvent:
			e.metrics.observeEarned(string(ev.Source), ev.Points)
			e.logger.Info("points earned",
				zap.String("owner_id", ev.AggregateID()),
				zap.Int("points", ev.Points),
				zap.String("source", string(ev.Source)),
				zap.Int("balance", ev.Balance),
			)
			e.notifier.Notify(pointsEarnedNotification(ev.OwnerID(), ev.Points, ev.Balance))

		case *loyalty.PointsDeductedEvent:
			e.metrics.observeDeducted(string(ev.Reason), ev.Points)
			e.logger.Info("points deducted",
				zap.String("owner_id", ev.AggregateID()),
				zap.Int("points", ev.Points),
				zap.String("source", string(ev.Reason)),
				zap.Int("balance", ev.Balance),
			)

		case *loyalty.TierChangedEvent:
			e.metrics.observeTierChange(ev.Upgraded)
			e.logger.Info("tier changed",
				zap.String("owner_id", ev.AggregateID()),
				zap.String("from_tier", string(ev.From.ID)),
				zap.String("to_tier", string(ev.To.ID)),
				zap.Bool("upgraded", ev.Upgraded),
			)
			if ev.Upgraded {
				e.notifier.Notify(tierUpgradedNotification(ev.OwnerID(), ev.To))
			}

		case *loyalty.RewardRedeemedEvent:
			e.metrics.observeRedemption()
			e.logger.Info("reward redeemed",
				zap.String("owner_id", ev.AggregateID()),
				zap.String("reward_id", string(ev.Reward.ID)),
				zap.String("redemption_id", ev.Redemption.RedemptionID().String()),
			)
			e.notifier.Notify(rewardRedeemedNotification(ev.OwnerID(), ev.Reward, ev.Redemption))

		case *loyalty.RewardUsedEvent:
			e.logger.Info("reward used",
				zap.String("owner_id", ev.AggregateID()),
				zap.String("redemption_id", ev.Redemption.RedemptionID().String()),
			)
		}
	}
}

func parseOwnerID(s string) (loyalty.OwnerID, error) {
	ownerID, err := loyalty.OwnerIDFromString(s)
	if err != nil {
		return loyalty.OwnerID{}, fmt.Errorf("failed to parse owner ID: %w", err)
	}
	return ownerID, nil
}
