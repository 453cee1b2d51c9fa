package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
)

// APIResponse 統一回應格式
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody 錯誤內容；積分不足時攜帶 shortfall
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Shortfall *int   `json:"shortfall,omitempty"`
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, APIResponse{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, APIResponse{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
	})
}

// statusByCode 前置條件拒絕的 HTTP 狀態碼
var statusByCode = map[loyalty.ErrorCode]int{
	loyalty.ErrCodeInsufficientPoints:    http.StatusConflict,
	loyalty.ErrCodeRedemptionAlreadyUsed: http.StatusConflict,
	loyalty.ErrCodeRedemptionExpired:     http.StatusConflict,
	loyalty.ErrCodePointsOverflow:        http.StatusConflict,
	loyalty.ErrCodeRewardNotFound:        http.StatusNotFound,
	loyalty.ErrCodeRedemptionNotFound:    http.StatusNotFound,
	loyalty.ErrCodeNonPositivePoints:     http.StatusUnprocessableEntity,
	loyalty.ErrCodeInvalidPointsSource:   http.StatusUnprocessableEntity,
	loyalty.ErrCodeInvalidPurchaseAmount: http.StatusUnprocessableEntity,
	loyalty.ErrCodeInvalidOwnerID:        http.StatusUnprocessableEntity,
	loyalty.ErrCodeInvalidRedemptionID:   http.StatusUnprocessableEntity,
}

// writeError 將應用層錯誤映射為 HTTP 回應
//
// - 前置條件拒絕 → 409 / 404 / 422（積分不足附帶 shortfall）
// - 寫入失敗、ctx 取消 → 503
// - 其他 → 500
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, loyalty.ErrPersistenceFailed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		respondError(c, http.StatusServiceUnavailable, string(loyalty.ErrCodePersistenceFailed), "服務暫時無法使用，請稍後再試")
		return
	}

	code, ok := loyalty.CodeOf(err)
	if !ok || !loyalty.IsRejection(err) {
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "系統錯誤")
		return
	}

	body := &ErrorBody{Code: string(code), Message: messageOf(err)}
	if shortfall, ok := loyalty.ShortfallOf(err); ok {
		body.Shortfall = &shortfall
	}
	c.AbortWithStatusJSON(statusByCode[code], APIResponse{Success: false, Error: body})
}

func messageOf(err error) string {
	var insufficient *loyalty.InsufficientPointsError
	if errors.As(err, &insufficient) {
		return loyalty.ErrInsufficientPoints.Message
	}
	var domainErr *loyalty.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}
