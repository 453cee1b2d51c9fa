package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	apployalty "github.com/jackyeh168/storefront_loyalty/src/internal/application/loyalty"
	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
)

// ===========================
// Request
// ===========================

// purchaseRequest amount 可為數字或字串（"12.50"）
type purchaseRequest struct {
	OrderID string          `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
}

type reviewRequest struct {
	ReviewID string `json:"reviewId" binding:"required"`
}

type referralRequest struct {
	ReferredID string `json:"referredId" binding:"required"`
}

type redeemRequest struct {
	RewardID string `json:"rewardId" binding:"required"`
}

// ===========================
// Response
// ===========================

type tierDTO struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	MinPoints  int      `json:"minPoints"`
	Multiplier string   `json:"multiplier"`
	Benefits   []string `json:"benefits,omitempty"`
}

func toTierDTO(tier loyalty.Tier) tierDTO {
	return tierDTO{
		ID:         string(tier.ID),
		Name:       tier.Name,
		MinPoints:  tier.MinPoints,
		Multiplier: tier.Multiplier.String(),
		Benefits:   tier.Benefits,
	}
}

type accountDTO struct {
	OwnerID          string    `json:"ownerId"`
	Balance          int       `json:"balance"`
	Tier             tierDTO   `json:"tier"`
	NextTier         *tierDTO  `json:"nextTier,omitempty"`
	PointsToNextTier int       `json:"pointsToNextTier"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toAccountDTO(summary *apployalty.AccountSummary) accountDTO {
	dto := accountDTO{
		OwnerID:          summary.OwnerID,
		Balance:          summary.Balance,
		Tier:             toTierDTO(summary.Tier),
		PointsToNextTier: summary.PointsToNextTier,
		UpdatedAt:        summary.UpdatedAt,
	}
	if summary.NextTier != nil {
		next := toTierDTO(*summary.NextTier)
		dto.NextTier = &next
	}
	return dto
}

type ledgerEntryDTO struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Kind        string            `json:"kind"`
	PointsDelta int               `json:"pointsDelta"`
	Source      string            `json:"source"`
	Details     map[string]string `json:"details,omitempty"`
}

func toLedgerDTOs(entries []loyalty.LedgerEntry) []ledgerEntryDTO {
	out := make([]ledgerEntryDTO, len(entries))
	for i, entry := range entries {
		out[i] = ledgerEntryDTO{
			ID:          entry.ID().String(),
			Timestamp:   entry.Timestamp(),
			Kind:        string(entry.Kind()),
			PointsDelta: entry.PointsDelta(),
			Source:      string(entry.Source()),
			Details:     entry.Details(),
		}
	}
	return out
}

type redemptionDTO struct {
	RedemptionID string     `json:"redemptionId"`
	RewardID     string     `json:"rewardId"`
	RedeemedAt   time.Time  `json:"redeemedAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	Used         bool       `json:"used"`
	UsedAt       *time.Time `json:"usedAt,omitempty"`
}

func toRedemptionDTOs(redemptions []loyalty.RedeemedReward) []redemptionDTO {
	out := make([]redemptionDTO, len(redemptions))
	for i, r := range redemptions {
		out[i] = redemptionDTO{
			RedemptionID: r.RedemptionID().String(),
			RewardID:     string(r.RewardID()),
			RedeemedAt:   r.RedeemedAt(),
			ExpiresAt:    r.ExpiresAt(),
			Used:         r.Used(),
			UsedAt:       r.UsedAt(),
		}
	}
	return out
}

type rewardDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PointCost   int    `json:"pointCost"`
	Type        string `json:"type"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

func toRewardDTO(reward loyalty.Reward) rewardDTO {
	return rewardDTO{
		ID:          string(reward.ID),
		Name:        reward.Name,
		PointCost:   reward.PointCost,
		Type:        string(reward.Type),
		Value:       reward.Value,
		Description: reward.Description,
	}
}

type availabilityDTO struct {
	Reward    rewardDTO `json:"reward"`
	Available bool      `json:"available"`
	Shortfall int       `json:"shortfall"`
}

type earnResultDTO struct {
	PointsEarned   int    `json:"pointsEarned"`
	Balance        int    `json:"balance"`
	TierID         string `json:"tierId"`
	PreviousTierID string `json:"previousTierId"`
	TierChanged    bool   `json:"tierChanged"`
	TierUpgraded   bool   `json:"tierUpgraded"`
}

func toEarnResultDTO(result *apployalty.EarnPointsResult) earnResultDTO {
	return earnResultDTO{
		PointsEarned:   result.PointsEarned,
		Balance:        result.Balance,
		TierID:         string(result.TierID),
		PreviousTierID: string(result.PreviousTierID),
		TierChanged:    result.TierChanged,
		TierUpgraded:   result.TierUpgraded,
	}
}

type redeemResultDTO struct {
	RedemptionID string    `json:"redemptionId"`
	RewardID     string    `json:"rewardId"`
	PointsSpent  int       `json:"pointsSpent"`
	Balance      int       `json:"balance"`
	TierID       string    `json:"tierId"`
	TierChanged  bool      `json:"tierChanged"`
	RedeemedAt   time.Time `json:"redeemedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type usedResultDTO struct {
	RedemptionID string    `json:"redemptionId"`
	RewardID     string    `json:"rewardId"`
	UsedAt       time.Time `json:"usedAt"`
}
