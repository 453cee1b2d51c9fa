package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apployalty "github.com/jackyeh168/storefront_loyalty/src/internal/application/loyalty"
	"github.com/jackyeh168/storefront_loyalty/src/internal/infrastructure/persistence/notification"
)

// Inbox 通知收件匣的讀取介面
type Inbox interface {
	List(ctx context.Context, ownerID string, limit int) ([]notification.Entry, error)
	MarkRead(ctx context.Context, ownerID string, id uint) error
}

// Handler 積分 API 處理器
type Handler struct {
	engine      *apployalty.Engine
	redemptions *apployalty.RedemptionService
	inbox       Inbox
}

// NewHandler 創建處理器；inbox 可為 nil（通知 API 返回空列表）
func NewHandler(engine *apployalty.Engine, redemptions *apployalty.RedemptionService, inbox Inbox) *Handler {
	return &Handler{engine: engine, redemptions: redemptions, inbox: inbox}
}

// ===========================
// 查詢
// ===========================

// GetAccount GET /accounts/:owner
func (h *Handler) GetAccount(c *gin.Context) {
	summary, err := h.engine.Summary(c.Request.Context(), c.Param("owner"))
	if err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, http.StatusOK, toAccountDTO(summary))
}

// GetLedger GET /accounts/:owner/ledger（新的在前）
func (h *Handler) GetLedger(c *gin.Context) {
	entries, err := h.engine.History(c.Request.Context(), c.Param("owner"))
	if err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, http.StatusOK, toLedgerDTOs(entries))
}

// GetRedemptions GET /accounts/:owner/redemptions
func (h *Handler) GetRedemptions(c *gin.Context) {
	redemptions, err := h.engine.Redemptions(c.Request.Context(), c.Param("owner"))
	if err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, http.StatusOK, toRedemptionDTOs(redemptions))
}

// GetRewardAvailability GET /accounts/:owner/rewards
func (h *Handler) GetRewardAvailability(c *gin.Context) {
	availability, err := h.engine.RewardAvailability(c.Request.Context(), c.Param("owner"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]availabilityDTO, len(availability))
	for i, a := range availability {
		out[i] = availabilityDTO{Reward: toRewardDTO(a.Reward), Available: a.Available, Shortfall: a.Shortfall}
	}
	respondOK(c, http.StatusOK, out)
}

// GetCatalog GET /rewards
func (h *Handler) GetCatalog(c *gin.Context) {
	rewards := h.engine.Catalog()
	out := make([]rewardDTO, len(rewards))
	for i, reward := range rewards {
		out[i] = toRewardDTO(reward)
	}
	respondOK(c, http.StatusOK, out)
}

// GetTiers GET /tiers
func (h *Handler) GetTiers(c *gin.Context) {
	tiers := h.engine.Tiers()
	out := make([]tierDTO, len(tiers))
	for i, tier := range tiers {
		out[i] = toTierDTO(tier)
	}
	respondOK(c, http.StatusOK, out)
}

// ===========================
// 入帳
// ===========================

// PostPurchase POST /accounts/:owner/purchases
func (h *Handler) PostPurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.engine.EarnFromPurchase(c.Request.Context(), apployalty.PurchaseCommand{
		OwnerID: c.Param("owner"),
		OrderID: req.OrderID,
		Amount:  req.Amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, toEarnResultDTO(result))
}

// PostReview POST /accounts/:owner/reviews
func (h *Handler) PostReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.engine.EarnFromReview(c.Request.Context(), c.Param("owner"), req.ReviewID)
	if err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, toEarnResultDTO(result))
}

// PostReferral POST /accounts/:owner/referrals
func (h *Handler) PostReferral(c *gin.Context) {
	var req referralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.engine.EarnFromReferral(c.Request.Context(), c.Param("owner"), req.ReferredID)
	if err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, toEarnResultDTO(result))
}

// ===========================
// 兌換
// ===========================

// PostRedemption POST /accounts/:owner/redemptions
func (h *Handler) PostRedemption(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.redemptions.Redeem(c.Request.Context(), apployalty.RedeemRewardCommand{
		OwnerID:  c.Param("owner"),
		RewardID: req.RewardID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, redeemResultDTO{
		RedemptionID: result.RedemptionID,
		RewardID:     result.RewardID,
		PointsSpent:  result.PointsSpent,
		Balance:      result.Balance,
		TierID:       string(result.TierID),
		TierChanged:  result.TierChanged,
		RedeemedAt:   result.RedeemedAt,
		ExpiresAt:    result.ExpiresAt,
	})
}

// PostRedemptionUse POST /accounts/:owner/redemptions/:id/use
func (h *Handler) PostRedemptionUse(c *gin.Context) {
	result, err := h.engine.MarkRewardUsed(c.Request.Context(), apployalty.MarkRewardUsedCommand{
		OwnerID:      c.Param("owner"),
		RedemptionID: c.Param("id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, http.StatusOK, usedResultDTO{
		RedemptionID: result.RedemptionID,
		RewardID:     result.RewardID,
		UsedAt:       result.UsedAt,
	})
}

// ===========================
// 通知
// ===========================

// GetNotifications GET /accounts/:owner/notifications?limit=N
func (h *Handler) GetNotifications(c *gin.Context) {
	if h.inbox == nil {
		respondOK(c, http.StatusOK, []notification.Entry{})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := h.inbox.List(c.Request.Context(), c.Param("owner"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	respondOK(c, http.StatusOK, entries)
}

// PostNotificationRead POST /accounts/:owner/notifications/:id/read
func (h *Handler) PostNotificationRead(c *gin.Context) {
	if h.inbox == nil {
		respondError(c, http.StatusNotFound, "NOTIFICATION_NOT_FOUND", "通知不存在")
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "notification id must be numeric")
		return
	}

	err = h.inbox.MarkRead(c.Request.Context(), c.Param("owner"), uint(id))
	if errors.Is(err, notification.ErrNotificationNotFound) {
		respondError(c, http.StatusNotFound, "NOTIFICATION_NOT_FOUND", "通知不存在")
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
