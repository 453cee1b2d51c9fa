package loyalty_test

import (
	"testing"
	"time"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// standardTiers Bronze / Silver / Gold（×1 / ×1.5 / ×2）
func standardTiers() loyalty.TierTable {
	return loyalty.NewTierTable(
		loyalty.Tier{ID: "bronze", Name: "Bronze", MinPoints: 0, Multiplier: decimal.NewFromInt(1)},
		loyalty.Tier{ID: "silver", Name: "Silver", MinPoints: 500, Multiplier: decimal.RequireFromString("1.5")},
		loyalty.Tier{ID: "gold", Name: "Gold", MinPoints: 1000, Multiplier: decimal.NewFromInt(2)},
	)
}

func newAccount(t *testing.T) *loyalty.LoyaltyAccount {
	t.Helper()
	account, err := loyalty.NewLoyaltyAccount(loyalty.NewOwnerID(), standardTiers(), fixedNow)
	require.NoError(t, err)
	account.PullEvents()
	return account
}

// accountWithBalance 以一筆 purchase 建立指定餘額的帳戶
func accountWithBalance(t *testing.T, balance int) *loyalty.LoyaltyAccount {
	t.Helper()
	account := newAccount(t)
	if balance > 0 {
		_, err := account.Earn(balance, loyalty.SourcePurchase, nil, standardTiers(), fixedNow)
		require.NoError(t, err)
	}
	account.PullEvents()
	return account
}

func eventTypes(account *loyalty.LoyaltyAccount) []string {
	events := account.PullEvents()
	types := make([]string, len(events))
	for i, event := range events {
		types[i] = event.EventType()
	}
	return types
}
