package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apployalty "github.com/jackyeh168/storefront_loyalty/src/internal/application/loyalty"
	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/shared"
)

// DefaultReminderWindow 到期前多久開始提醒
const DefaultReminderWindow = 72 * time.Hour

// ExpiryReminder 提醒顧客兌換的獎勵即將到期
//
// 每次執行掃描 (上次掃描的上界, now+window]，同一筆兌換在同一個程序中只提醒一次。
type ExpiryReminder struct {
	repo      loyalty.RedemptionQueryRepository
	txManager shared.TransactionManager
	catalog   loyalty.RewardCatalog
	notifier  apployalty.NotificationSink
	clock     shared.Clock
	logger    *zap.Logger
	window    time.Duration

	mu        sync.Mutex
	scannedTo time.Time
}

// NewExpiryReminder 創建到期提醒
func NewExpiryReminder(
	repo loyalty.RedemptionQueryRepository,
	txManager shared.TransactionManager,
	catalog loyalty.RewardCatalog,
	notifier apployalty.NotificationSink,
	clock shared.Clock,
	logger *zap.Logger,
	window time.Duration,
) *ExpiryReminder {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = DefaultReminderWindow
	}
	return &ExpiryReminder{
		repo:      repo,
		txManager: txManager,
		catalog:   catalog,
		notifier:  notifier,
		clock:     clock,
		logger:    logger,
		window:    window,
	}
}

// RunOnce 執行一次掃描，返回發出的提醒數量
func (r *ExpiryReminder) RunOnce(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	from := r.scannedTo
	if from.Before(now) {
		// 已過期的不提醒
		from = now
	}
	to := now.Add(r.window)
	if !to.After(from) {
		return 0, nil
	}

	var expiring []loyalty.ExpiringRedemption
	err := r.txManager.InTransaction(ctx, func(tx shared.TransactionContext) error {
		found, err := r.repo.FindRedemptionsExpiringBetween(tx, from, to)
		if err != nil {
			return err
		}
		expiring = found
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query expiring redemptions: %w", err)
	}

	for _, item := range expiring {
		reward, ok := r.catalog.Find(item.Redemption.RewardID())
		if !ok {
			// 獎勵已下架，仍以 ID 提醒
			reward = loyalty.Reward{ID: item.Redemption.RewardID()}
		}
		r.notifier.Notify(apployalty.RedemptionExpiringNotification(item.OwnerID, reward, item.Redemption))
	}

	r.scannedTo = to
	r.logger.Info("expiry reminders sent",
		zap.Int("count", len(expiring)),
		zap.Time("from", from),
		zap.Time("to", to),
	)
	return len(expiring), nil
}
