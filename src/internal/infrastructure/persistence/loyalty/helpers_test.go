package loyalty

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
	"github.com/jackyeh168/storefront_loyalty/src/internal/infrastructure/persistence"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// setupTestDB 創建測試資料庫（in-memory SQLite，單一連線）
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := persistence.Open(":memory:", zap.NewNop())
	require.NoError(t, err, "failed to connect to test database")
	require.NoError(t, persistence.Migrate(db, Models()...), "failed to migrate database schema")

	t.Cleanup(func() { _ = persistence.Close(db) })
	return db
}

func standardTiers() loyalty.TierTable {
	return loyalty.NewTierTable(
		loyalty.Tier{ID: "bronze", Name: "Bronze", MinPoints: 0, Multiplier: decimal.NewFromInt(1)},
		loyalty.Tier{ID: "silver", Name: "Silver", MinPoints: 500, Multiplier: decimal.RequireFromString("1.5")},
		loyalty.Tier{ID: "gold", Name: "Gold", MinPoints: 1000, Multiplier: decimal.NewFromInt(2)},
	)
}

// createTestAccount 創建尚未寫入的新帳戶
func createTestAccount(t *testing.T) *loyalty.LoyaltyAccount {
	t.Helper()
	account, err := loyalty.NewLoyaltyAccount(loyalty.NewOwnerID(), standardTiers(), fixedNow)
	require.NoError(t, err)
	account.PullEvents()
	return account
}

// saveTestAccount 創建並寫入新帳戶，返回已標記寫入的快照
func saveTestAccount(t *testing.T, repo *AccountRepository) *loyalty.LoyaltyAccount {
	t.Helper()
	account := createTestAccount(t)
	require.NoError(t, repo.Save(nil, account))
	account.MarkPersisted()
	return account
}

func earn(t *testing.T, account *loyalty.LoyaltyAccount, points int) {
	t.Helper()
	_, err := account.Earn(points, loyalty.SourcePurchase, map[string]string{loyalty.DetailOrderID: "A-1"}, standardTiers(), fixedNow)
	require.NoError(t, err)
}
