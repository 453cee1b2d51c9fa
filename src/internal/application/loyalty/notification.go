package loyalty

import (
	"fmt"

	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
)

// ===========================
// Notification Sink
// ===========================

// Severity 通知等級
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification 推送給顧客的訊息
type Notification struct {
	OwnerID  string
	Title    string
	Message  string
	Severity Severity
}

// NotificationSink 通知收件匣
//
// Fire-and-forget：引擎不等待、也不依據通知結果分支，實作不應阻塞太久。
type NotificationSink interface {
	Notify(n Notification)
}

// NotificationSinkFunc 讓普通函數滿足 NotificationSink
type NotificationSinkFunc func(n Notification)

// Notify 實作 NotificationSink
func (f NotificationSinkFunc) Notify(n Notification) { f(n) }

type discardSink struct{}

func (discardSink) Notify(Notification) {}

// ===========================
// 訊息內容
// ===========================

func pointsEarnedNotification(ownerID loyalty.OwnerID, points, balance int) Notification {
	return Notification{
		OwnerID:  ownerID.String(),
		Title:    "獲得積分",
		Message:  fmt.Sprintf("您獲得了 %d 點，目前共有 %d 點", points, balance),
		Severity: SeveritySuccess,
	}
}

func tierUpgradedNotification(ownerID loyalty.OwnerID, tier loyalty.Tier) Notification {
	return Notification{
		OwnerID:  ownerID.String(),
		Title:    "會員等級提升",
		Message:  fmt.Sprintf("恭喜升級為 %s 會員，積分倍率 ×%s", tierName(tier), tier.Multiplier.String()),
		Severity: SeveritySuccess,
	}
}

func rewardRedeemedNotification(ownerID loyalty.OwnerID, reward loyalty.Reward, redemption loyalty.RedeemedReward) Notification {
	return Notification{
		OwnerID: ownerID.String(),
		Title:   "兌換成功",
		Message: fmt.Sprintf("已兌換「%s」，請於 %s 前使用",
			rewardName(reward), redemption.ExpiresAt().Format("2006-01-02")),
		Severity: SeveritySuccess,
	}
}

func insufficientPointsNotification(ownerID loyalty.OwnerID, reward loyalty.Reward, shortfall int) Notification {
	return Notification{
		OwnerID:  ownerID.String(),
		Title:    "積分不足",
		Message:  fmt.Sprintf("兌換「%s」還需要 %d 點", rewardName(reward), shortfall),
		Severity: SeverityWarning,
	}
}

func persistenceFailedNotification(ownerID loyalty.OwnerID) Notification {
	return Notification{
		OwnerID:  ownerID.String(),
		Title:    "積分更新失敗",
		Message:  "系統暫時無法儲存您的積分變更，請稍後再試",
		Severity: SeverityError,
	}
}

// RedemptionExpiringNotification 兌換的獎勵即將到期提醒（排程使用）
func RedemptionExpiringNotification(ownerID loyalty.OwnerID, reward loyalty.Reward, redemption loyalty.RedeemedReward) Notification {
	return Notification{
		OwnerID: ownerID.String(),
		Title:   "獎勵即將到期",
		Message: fmt.Sprintf("您兌換的「%s」將於 %s 到期，請盡快使用",
			rewardName(reward), redemption.ExpiresAt().Format("2006-01-02 15:04")),
		Severity: SeverityWarning,
	}
}

func tierName(tier loyalty.Tier) string {
	if tier.Name != "" {
		return tier.Name
	}
	return string(tier.ID)
}

func rewardName(reward loyalty.Reward) string {
	if reward.Name != "" {
		return reward.Name
	}
	return string(reward.ID)
}
