package loyalty

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
)

func newEngineFixture(t *testing.T, opts ...Option) *engineFixture {
	t.Helper()

	f := &engineFixture{
		repo:    NewMockAccountRepository(testTiers()),
		tx:      NewMockTransactionManager(),
		sink:    &recordingSink{},
		clock:   &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		metrics: MustNewMetrics(prometheus.NewRegistry()),
	}
	base := []Option{
		WithClock(f.clock),
		WithNotificationSink(f.sink),
		WithMetrics(f.metrics),
		WithLogger(zap.NewNop()),
	}
	engine, err := NewEngine(f.repo, f.tx, testTiers(), testCatalog(), append(base, opts...)...)
	require.NoError(t, err)
	f.engine = engine
	return f
}

// seed 透過引擎把帳戶加到指定餘額，並清空通知
func (f *engineFixture) seed(t *testing.T, ownerID string, balance int) {
	t.Helper()
	_, err := f.engine.Earn(context.Background(), EarnPointsCommand{
		OwnerID: ownerID, Points: balance, Source: "purchase",
	})
	require.NoError(t, err)
	f.sink.Reset()
}

// ===========================
// NewEngine
// ===========================

func TestNewEngine_InvalidTierTable_ReturnsError(t *testing.T) {
	broken := loyalty.NewTierTable(
		loyalty.Tier{ID: "bronze", MinPoints: 0, Multiplier: decimal.NewFromInt(1)},
		loyalty.Tier{ID: "silver", MinPoints: 0, Multiplier: decimal.NewFromInt(2)},
	)

	engine, err := NewEngine(NewMockAccountRepository(broken), NewMockTransactionManager(), broken, testCatalog())

	assert.Nil(t, engine)
	assert.ErrorIs(t, err, loyalty.ErrInvalidTierTable)
}

func TestNewEngine_InvalidCatalog_ReturnsError(t *testing.T) {
	catalog := loyalty.NewRewardCatalog(loyalty.Reward{ID: "free", PointCost: 0, Type: loyalty.RewardTypeVoucher})

	_, err := NewEngine(NewMockAccountRepository(testTiers()), NewMockTransactionManager(), testTiers(), catalog)

	assert.ErrorIs(t, err, loyalty.ErrInvalidReward)
}

// ===========================
// 情境測試
// ===========================

// 消費 400（Bronze）→ 餘額 400，仍為 Bronze，一筆交易
func TestEngine_PurchaseWithinTier(t *testing.T) {
	// Arrange
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID()

	// Act
	result, err := f.engine.EarnFromPurchase(context.Background(), PurchaseCommand{
		OwnerID: ownerID.String(), OrderID: "order-1", Amount: decimal.NewFromInt(400),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 400, result.PointsEarned)
	assert.Equal(t, 400, result.Balance)
	assert.Equal(t, loyalty.TierID("bronze"), result.TierID)
	assert.False(t, result.TierChanged)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "order-1", result.Entries[0].Detail(loyalty.DetailOrderID))
	assert.Equal(t, "400", result.Entries[0].Detail(loyalty.DetailAmount))

	stored, ok := f.repo.Stored(ownerID)
	require.True(t, ok)
	assert.Equal(t, 400, stored.Balance().Value())
	assert.Equal(t, 1, stored.Ledger().Len())
	assert.Equal(t, []string{"獲得積分"}, f.sink.Titles())
}

// 接續上一情境，消費 100 → 升級 Silver，推送「獲得積分」與「會員等級提升」
func TestEngine_PurchaseCrossesThreshold_UpgradeNotification(t *testing.T) {
	// Arrange
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID().String()
	f.seed(t, ownerID, 400)

	// Act
	result, err := f.engine.EarnFromPurchase(context.Background(), PurchaseCommand{
		OwnerID: ownerID, OrderID: "order-2", Amount: decimal.NewFromInt(100),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 100, result.PointsEarned, "使用入帳前的 Bronze 倍率")
	assert.Equal(t, 500, result.Balance)
	assert.Equal(t, loyalty.TierID("silver"), result.TierID)
	assert.Equal(t, loyalty.TierID("bronze"), result.PreviousTierID)
	assert.True(t, result.TierUpgraded)
	assert.Equal(t, []string{"獲得積分", "會員等級提升"}, f.sink.Titles())

	history, err := f.engine.History(context.Background(), ownerID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, loyalty.EntryKindTierChange, history[0].Kind())
	assert.Equal(t, loyalty.EntryKindEarned, history[1].Kind())
	assert.Equal(t, 100, history[1].PointsDelta())
}

// 餘額 500（Silver）扣 300 → Bronze，降級不推送通知
func TestEngine_DeductDowngrade_NoNotification(t *testing.T) {
	// Arrange
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID().String()
	f.seed(t, ownerID, 500)

	// Act
	result, err := f.engine.Deduct(context.Background(), DeductPointsCommand{
		OwnerID: ownerID, Points: 300, Reason: "reward_redemption",
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 200, result.Balance)
	assert.Equal(t, loyalty.TierID("bronze"), result.TierID)
	assert.True(t, result.TierChanged)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, -300, result.Entries[0].PointsDelta())
	assert.Equal(t, loyalty.SourceTierDowngrade, result.Entries[1].Source())
	assert.Empty(t, f.sink.Titles())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.tierChanges.WithLabelValues("down")))
}

// 獎勵 200 點、餘額 150 → 失敗，差額 50，沒有寫入
func TestRedemptionService_InsufficientPoints_ShortfallAndNoWrite(t *testing.T) {
	// Arrange
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID().String()
	f.seed(t, ownerID, 150)
	updates := f.repo.UpdateCallCount
	service := NewRedemptionService(f.engine)

	// Act
	result, err := service.Redeem(context.Background(), RedeemRewardCommand{OwnerID: ownerID, RewardID: "tote-bag"})

	// Assert
	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, loyalty.ErrInsufficientPoints)
	shortfall, ok := loyalty.ShortfallOf(err)
	require.True(t, ok)
	assert.Equal(t, 50, shortfall)

	assert.Equal(t, updates, f.repo.UpdateCallCount)
	summary, err := f.engine.Summary(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Equal(t, 150, summary.Balance)
	redemptions, _ := f.engine.Redemptions(context.Background(), ownerID)
	assert.Empty(t, redemptions)

	last := f.sink.Last()
	assert.Equal(t, "積分不足", last.Title)
	assert.Contains(t, last.Message, "還需要 50 點")
	assert.Equal(t, SeverityWarning, last.Severity)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.rejections.WithLabelValues(opRedeem, string(loyalty.ErrCodeInsufficientPoints))))
}

// 餘額 1000（Gold ×2）消費 $50 → 100 點
func TestEngine_GoldPurchase_DoubleMultiplier(t *testing.T) {
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID().String()
	f.seed(t, ownerID, 1000)

	result, err := f.engine.EarnFromPurchase(context.Background(), PurchaseCommand{
		OwnerID: ownerID, OrderID: "order-3", Amount: decimal.NewFromInt(50),
	})

	require.NoError(t, err)
	assert.Equal(t, 100, result.PointsEarned)
	assert.Equal(t, 1100, result.Balance)
}

// ===========================
// 拒絕條件
// ===========================

func TestEngine_Earn_NonPositivePoints_NoWrite(t *testing.T) {
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID().String()
	f.seed(t, ownerID, 100)
	updates := f.repo.UpdateCallCount

	for _, points := range []int{0, -10} {
		_, err := f.engine.Earn(context.Background(), EarnPointsCommand{OwnerID: ownerID, Points: points, Source: "review"})

		assert.ErrorIs(t, err, loyalty.ErrNonPositivePoints)
		assert.True(t, loyalty.IsRejection(err))
	}
	assert.Equal(t, updates, f.repo.UpdateCallCount)
	assert.Empty(t, f.sink.Titles())
}

func TestEngine_Purchase_ZeroAndNegativeAmount(t *testing.T) {
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID().String()

	_, err := f.engine.EarnFromPurchase(context.Background(), PurchaseCommand{OwnerID: ownerID, Amount: decimal.Zero})
	assert.ErrorIs(t, err, loyalty.ErrNonPositivePoints)

	_, err = f.engine.EarnFromPurchase(context.Background(), PurchaseCommand{OwnerID: ownerID, Amount: decimal.NewFromInt(-5)})
	assert.ErrorIs(t, err, loyalty.ErrInvalidPurchaseAmount)
}

func TestEngine_Purchase_AmountBeyondPointRange_Rejected(t *testing.T) {
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID().String()
	f.seed(t, ownerID, 100)
	updates := f.repo.UpdateCallCount

	for _, amount := range []string{"18446744073709551617", "10000000000000000000000000"} {
		_, err := f.engine.EarnFromPurchase(context.Background(), PurchaseCommand{
			OwnerID: ownerID,
			OrderID: "A-huge",
			Amount:  decimal.RequireFromString(amount),
		})

		assert.ErrorIs(t, err, loyalty.ErrInvalidPurchaseAmount)
		assert.True(t, loyalty.IsRejection(err))
	}

	summary, err := f.engine.Summary(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Equal(t, 100, summary.Balance)
	assert.Equal(t, updates, f.repo.UpdateCallCount)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.rejections.WithLabelValues(opEarn, string(loyalty.ErrCodeInvalidPurchaseAmount))))
	assert.Empty(t, f.sink.Titles())
}

func TestEngine_Earn_BalanceOverflow_Rejected(t *testing.T) {
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID().String()
	f.seed(t, ownerID, math.MaxInt)
	updates := f.repo.UpdateCallCount

	_, err := f.engine.EarnFromReview(context.Background(), ownerID, "R-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, loyalty.ErrPointsOverflow)
	assert.True(t, loyalty.IsRejection(err))
	assert.NotErrorIs(t, err, loyalty.ErrPersistenceFailed)

	summary, err := f.engine.Summary(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, summary.Balance)
	assert.Equal(t, updates, f.repo.UpdateCallCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.rejections.WithLabelValues(opEarn, string(loyalty.ErrCodePointsOverflow))))
}

func TestEngine_Deduct_Insufficient(t *testing.T) {
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID().String()
	f.seed(t, ownerID, 100)

	_, err := f.engine.Deduct(context.Background(), DeductPointsCommand{OwnerID: ownerID, Points: 101, Reason: "reward_redemption"})

	assert.ErrorIs(t, err, loyalty.ErrInsufficientPoints)
	shortfall, _ := loyalty.ShortfallOf(err)
	assert.Equal(t, 1, shortfall)
}

func TestEngine_InvalidInput(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Earn(context.Background(), EarnPointsCommand{OwnerID: "not-a-uuid", Points: 10, Source: "purchase"})
	assert.ErrorIs(t, err, loyalty.ErrInvalidOwnerID)

	_, err = f.engine.Earn(context.Background(), EarnPointsCommand{OwnerID: loyalty.NewOwnerID().String(), Points: 10, Source: "lottery"})
	assert.ErrorIs(t, err, loyalty.ErrInvalidPointsSource)

	_, err = f.engine.Summary(context.Background(), "")
	assert.ErrorIs(t, err, loyalty.ErrInvalidOwnerID)
}

// ===========================
// 持久化失敗與版本衝突
// ===========================

func TestEngine_PersistenceFailure_StateUnchanged(t *testing.T) {
	// Arrange
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID().String()
	f.seed(t, ownerID, 300)
	f.repo.UpdateErr = errors.New("connection reset")

	// Act
	_, err := f.engine.Earn(context.Background(), EarnPointsCommand{OwnerID: ownerID, Points: 300, Source: "purchase"})

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, loyalty.ErrPersistenceFailed)
	assert.False(t, loyalty.IsRejection(err))

	summary, err := f.engine.Summary(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Equal(t, 300, summary.Balance)
	assert.Equal(t, loyalty.TierID("bronze"), summary.Tier.ID)

	assert.Equal(t, []string{"積分更新失敗"}, f.sink.Titles())
	assert.Equal(t, SeverityError, f.sink.Last().Severity)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.failures.WithLabelValues(opEarn)))

	// 恢復後重試整個操作
	f.repo.UpdateErr = nil
	result, err := f.engine.Earn(context.Background(), EarnPointsCommand{OwnerID: ownerID, Points: 300, Source: "purchase"})
	require.NoError(t, err)
	assert.Equal(t, 600, result.Balance)
}

func TestEngine_VersionConflict_ReloadsAndRetries(t *testing.T) {
	// Arrange
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID()
	f.seed(t, ownerID.String(), 300)
	f.repo.ExternalEarn(ownerID, 250, f.clock.Now())

	// Act
	result, err := f.engine.Earn(context.Background(), EarnPointsCommand{OwnerID: ownerID.String(), Points: 100, Source: "purchase"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 650, result.Balance, "重新載入後包含另一個程序的寫入")
	assert.Equal(t, loyalty.TierID("silver"), result.TierID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.conflictRetries))

	stored, _ := f.repo.Stored(ownerID)
	assert.Equal(t, 650, stored.Balance().Value())
	assert.NoError(t, stored.CheckInvariants(testTiers()))
}

func TestEngine_VersionConflict_RetriesExhausted(t *testing.T) {
	// Arrange
	f := newEngineFixture(t, WithMaxConflictRetries(2))
	ownerID := loyalty.NewOwnerID().String()
	f.seed(t, ownerID, 300)
	f.repo.PendingConflicts = 10
	updates := f.repo.UpdateCallCount

	// Act
	_, err := f.engine.Earn(context.Background(), EarnPointsCommand{OwnerID: ownerID, Points: 100, Source: "purchase"})

	// Assert
	assert.ErrorIs(t, err, loyalty.ErrPersistenceFailed)
	assert.ErrorIs(t, err, loyalty.ErrConcurrentModification)
	assert.Equal(t, updates+3, f.repo.UpdateCallCount)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.conflictRetries))
}

// ===========================
// 並發
// ===========================

func TestEngine_ConcurrentEarn_SerializedPerOwner(t *testing.T) {
	// Arrange
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID()
	const workers = 50

	// Act
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Earn(context.Background(), EarnPointsCommand{
				OwnerID: ownerID.String(), Points: 10, Source: "review",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	// Assert
	for err := range errs {
		require.NoError(t, err)
	}
	stored, ok := f.repo.Stored(ownerID)
	require.True(t, ok)
	assert.Equal(t, 500, stored.Balance().Value())
	assert.Equal(t, workers+1, stored.Ledger().Len(), "50 筆 earned + 1 筆 tier_change")
	assert.NoError(t, stored.CheckInvariants(testTiers()))
	assert.Equal(t, 1, f.repo.SaveCallCount, "並發載入只建立一次帳戶")
	assert.Equal(t, 0, f.engine.locks.size())
}

func TestEngine_LockWait_CancelledByContext(t *testing.T) {
	// Arrange
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID().String()
	release, err := f.engine.locks.acquire(context.Background(), ownerID)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Act
	_, err = f.engine.Earn(ctx, EarnPointsCommand{OwnerID: ownerID, Points: 10, Source: "review"})

	// Assert
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, f.repo.UpdateCallCount)
}

func TestEngine_CancelledQuery_DoesNotFailConcurrentEarn(t *testing.T) {
	// Arrange：快取中沒有帳戶，查詢的載入停在資料庫
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID()
	f.seed(t, ownerID.String(), 100)
	f.engine.evict(ownerID.String())

	gate := make(chan struct{})
	entered := make(chan struct{}, 2)
	f.tx.Hold(gate, entered)

	queryCtx, cancel := context.WithCancel(context.Background())
	queryErr := make(chan error, 1)
	go func() {
		_, err := f.engine.Summary(queryCtx, ownerID.String())
		queryErr <- err
	}()
	<-entered

	earnErr := make(chan error, 1)
	go func() {
		_, err := f.engine.EarnFromReview(context.Background(), ownerID.String(), "review-1")
		earnErr <- err
	}()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("修改操作應自行載入帳戶，不等待查詢的載入")
	}

	// Act：取消查詢後才放行資料庫
	cancel()
	err := <-queryErr
	close(gate)

	// Assert
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, <-earnErr)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.failures.WithLabelValues(opEarn)))

	summary, err := f.engine.Summary(context.Background(), ownerID.String())
	require.NoError(t, err)
	assert.Equal(t, 150, summary.Balance)
}

func TestEngine_CancelledQuery_SharedLoadStillCachesSnapshot(t *testing.T) {
	// Arrange
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID()
	f.seed(t, ownerID.String(), 100)
	f.engine.evict(ownerID.String())

	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.tx.Hold(gate, entered)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.engine.Summary(first, ownerID.String())
		firstErr <- err
	}()
	<-entered

	secondResult := make(chan *AccountSummary, 1)
	go func() {
		summary, err := f.engine.Summary(context.Background(), ownerID.String())
		assert.NoError(t, err)
		secondResult <- summary
	}()

	// Act
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(gate)
	second := <-secondResult

	// Assert：第二個呼叫者拿到合併載入的結果，快照也寫回快取
	require.NotNil(t, second)
	assert.Equal(t, 100, second.Balance)
	_, cached := f.engine.cache.Peek(ownerID.String())
	assert.True(t, cached)
}

func TestEngine_StaleLoad_NotCachedAfterCommitEvicted(t *testing.T) {
	// Arrange：快取只容納一個帳戶
	f := newEngineFixture(t, WithCacheSize(1))
	ownerID := loyalty.NewOwnerID()
	f.seed(t, ownerID.String(), 100)

	// 查詢在這個時間點讀到版本 1
	stale, ok := f.repo.Stored(ownerID)
	require.True(t, ok)
	since := f.engine.commits.Load()

	// 查詢還沒寫回前：提交新版本，接著被另一個帳戶擠出快取
	_, err := f.engine.EarnFromReview(context.Background(), ownerID.String(), "review-1")
	require.NoError(t, err)
	f.seed(t, loyalty.NewOwnerID().String(), 10)
	_, present := f.engine.cache.Peek(ownerID.String())
	require.False(t, present)

	// Act
	got := f.engine.cacheLoaded(ownerID.String(), stale, since)

	// Assert：舊快照只交給當次查詢，不寫入快取
	assert.Equal(t, 100, got.Balance().Value())
	_, present = f.engine.cache.Peek(ownerID.String())
	assert.False(t, present)

	summary, err := f.engine.Summary(context.Background(), ownerID.String())
	require.NoError(t, err)
	assert.Equal(t, 150, summary.Balance)
}

func TestEngine_StaleLoad_KeepsNewerCachedSnapshot(t *testing.T) {
	// Arrange
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID()
	f.seed(t, ownerID.String(), 100)
	stale, ok := f.repo.Stored(ownerID)
	require.True(t, ok)
	since := f.engine.commits.Load()

	_, err := f.engine.EarnFromReview(context.Background(), ownerID.String(), "review-1")
	require.NoError(t, err)

	// Act
	got := f.engine.cacheLoaded(ownerID.String(), stale, since)

	// Assert：快取中較新的版本勝出
	assert.Equal(t, 150, got.Balance().Value())
	assert.Greater(t, got.Version(), stale.Version())
	cached, present := f.engine.cache.Peek(ownerID.String())
	require.True(t, present)
	assert.Same(t, got, cached)
}

// ===========================
// 固定點數來源
// ===========================

func TestEngine_ReviewAndReferralPoints(t *testing.T) {
	f := newEngineFixture(t)
	ownerID := loyalty.NewOwnerID().String()

	review, err := f.engine.EarnFromReview(context.Background(), ownerID, "review-9")
	require.NoError(t, err)
	referral, err := f.engine.EarnFromReferral(context.Background(), ownerID, "friend-1")
	require.NoError(t, err)

	assert.Equal(t, 50, review.PointsEarned)
	assert.Equal(t, "review-9", review.Entries[0].Detail(loyalty.DetailReviewID))
	assert.Equal(t, loyalty.SourceReview, review.Entries[0].Source())
	assert.Equal(t, 200, referral.PointsEarned)
	assert.Equal(t, "friend-1", referral.Entries[0].Detail(loyalty.DetailReferredID))
	assert.Equal(t, 250, referral.Balance)
	assert.Equal(t, 250.0, testutil.ToFloat64(f.metrics.pointsEarned.WithLabelValues("review"))+
		testutil.ToFloat64(f.metrics.pointsEarned.WithLabelValues("referral")))
}
