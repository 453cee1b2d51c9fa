package loyalty

import (
	"time"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
)

// ===========================
// Domain → GORM
// ===========================

func accountToGORM(account *loyalty.LoyaltyAccount) *AccountGORM {
	return &AccountGORM{
		OwnerID:   account.OwnerID().String(),
		Balance:   account.Balance().Value(),
		TierID:    string(account.CurrentTierID()),
		Version:   account.Version(),
		CreatedAt: account.CreatedAt().UTC(),
		UpdatedAt: account.UpdatedAt().UTC(),
	}
}

// entriesToGORM 轉換帳本紀錄，sequence 從 offset 開始編號
func entriesToGORM(ownerID loyalty.OwnerID, entries []loyalty.LedgerEntry, offset int) []LedgerEntryGORM {
	models := make([]LedgerEntryGORM, len(entries))
	for i, entry := range entries {
		models[i] = LedgerEntryGORM{
			EntryID:     entry.ID().String(),
			OwnerID:     ownerID.String(),
			Sequence:    offset + i,
			Kind:        string(entry.Kind()),
			PointsDelta: entry.PointsDelta(),
			Source:      string(entry.Source()),
			Details:     entry.Details(),
			OccurredAt:  entry.Timestamp().UTC(),
		}
	}
	return models
}

func redemptionsToGORM(ownerID loyalty.OwnerID, redemptions []loyalty.RedeemedReward) []RedemptionGORM {
	models := make([]RedemptionGORM, len(redemptions))
	for i, redemption := range redemptions {
		var usedAt *time.Time
		if t := redemption.UsedAt(); t != nil {
			utc := t.UTC()
			usedAt = &utc
		}
		models[i] = RedemptionGORM{
			RedemptionID: redemption.RedemptionID().String(),
			OwnerID:      ownerID.String(),
			Position:     i,
			RewardID:     string(redemption.RewardID()),
			RedeemedAt:   redemption.RedeemedAt().UTC(),
			ExpiresAt:    redemption.ExpiresAt().UTC(),
			Used:         redemption.Used(),
			UsedAt:       usedAt,
		}
	}
	return models
}

// ===========================
// GORM → Domain
// ===========================

func (g *LedgerEntryGORM) toDomain() (loyalty.LedgerEntry, error) {
	id, err := loyalty.LedgerEntryIDFromString(g.EntryID)
	if err != nil {
		return loyalty.LedgerEntry{}, err
	}
	return loyalty.ReconstructLedgerEntry(
		id,
		g.OccurredAt.UTC(),
		loyalty.EntryKind(g.Kind),
		g.PointsDelta,
		loyalty.PointsSource(g.Source),
		g.Details,
	)
}

func (g *RedemptionGORM) toDomain() (loyalty.RedeemedReward, error) {
	id, err := loyalty.RedemptionIDFromString(g.RedemptionID)
	if err != nil {
		return loyalty.RedeemedReward{}, err
	}

	var usedAt *time.Time
	if g.UsedAt != nil {
		utc := g.UsedAt.UTC()
		usedAt = &utc
	}
	return loyalty.ReconstructRedeemedReward(
		id,
		loyalty.RewardID(g.RewardID),
		g.RedeemedAt.UTC(),
		g.ExpiresAt.UTC(),
		g.Used,
		usedAt,
	)
}

// accountToDomain 由三張表的資料重建聚合
//
// 等級不採用 tier_id 欄位，而是依傳入的等級表重新解析。
func accountToDomain(
	g *AccountGORM,
	entries []LedgerEntryGORM,
	redemptions []RedemptionGORM,
	tiers loyalty.TierTable,
) (*loyalty.LoyaltyAccount, error) {
	ownerID, err := loyalty.OwnerIDFromString(g.OwnerID)
	if err != nil {
		return nil, err
	}

	domainEntries := make([]loyalty.LedgerEntry, 0, len(entries))
	for i := range entries {
		entry, err := entries[i].toDomain()
		if err != nil {
			return nil, err
		}
		domainEntries = append(domainEntries, entry)
	}

	domainRedemptions := make([]loyalty.RedeemedReward, 0, len(redemptions))
	for i := range redemptions {
		redemption, err := redemptions[i].toDomain()
		if err != nil {
			return nil, err
		}
		domainRedemptions = append(domainRedemptions, redemption)
	}

	return loyalty.ReconstructLoyaltyAccount(
		ownerID,
		g.Balance,
		domainEntries,
		domainRedemptions,
		g.Version,
		g.CreatedAt.UTC(),
		g.UpdatedAt.UTC(),
		tiers,
	)
}
