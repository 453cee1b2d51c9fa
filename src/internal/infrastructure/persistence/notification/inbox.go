package notification

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	apployalty "github.com/jackyeh168/storefront_loyalty/src/internal/application/loyalty"
	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/shared"
)

// DefaultListLimit List 未指定數量時返回的筆數
const DefaultListLimit = 50

// ErrNotificationNotFound 通知不存在（或不屬於該擁有者）
var ErrNotificationNotFound = errors.New("notification not found")

// ===========================
// GORM Model
// ===========================

// NotificationGORM 通知收件匣資料表模型
type NotificationGORM struct {
	ID        uint       `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerID   string     `gorm:"column:owner_id;type:varchar(36);not null;index:idx_notifications_owner_created,priority:1"`
	Title     string     `gorm:"column:title;type:varchar(128);not null"`
	Message   string     `gorm:"column:message;type:text;not null"`
	Severity  string     `gorm:"column:severity;type:varchar(16);not null"`
	CreatedAt time.Time  `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_notifications_owner_created,priority:2"`
	ReadAt    *time.Time `gorm:"column:read_at"`
}

// TableName 指定資料表名稱
func (NotificationGORM) TableName() string {
	return "notifications"
}

// Models 返回本套件所有需要遷移的模型
func Models() []interface{} {
	return []interface{}{&NotificationGORM{}}
}

// Entry 收件匣中的一則通知
type Entry struct {
	ID        uint       `json:"id"`
	OwnerID   string     `json:"ownerId"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Severity  string     `json:"severity"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

func (g *NotificationGORM) toEntry() Entry {
	return Entry{
		ID:        g.ID,
		OwnerID:   g.OwnerID,
		Title:     g.Title,
		Message:   g.Message,
		Severity:  g.Severity,
		CreatedAt: g.CreatedAt,
		ReadAt:    g.ReadAt,
	}
}

// ===========================
// Inbox
// ===========================

// Inbox 以資料表保存的通知收件匣，實作 apployalty.NotificationSink
//
// Notify 是 fire-and-forget：寫入失敗只記錄日誌，不回報給引擎。
type Inbox struct {
	db      *gorm.DB
	logger  *zap.Logger
	clock   shared.Clock
	timeout time.Duration
}

var _ apployalty.NotificationSink = (*Inbox)(nil)

// NewInbox 創建通知收件匣
func NewInbox(db *gorm.DB, logger *zap.Logger, clock shared.Clock) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &Inbox{db: db, logger: logger, clock: clock, timeout: 5 * time.Second}
}

// Notify 寫入一則通知
func (i *Inbox) Notify(n apployalty.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	model := &NotificationGORM{
		OwnerID:   n.OwnerID,
		Title:     n.Title,
		Message:   n.Message,
		Severity:  string(n.Severity),
		CreatedAt: i.clock.Now().UTC(),
	}
	if err := i.db.WithContext(ctx).Create(model).Error; err != nil {
		i.logger.Warn("failed to store notification",
			zap.String("owner_id", n.OwnerID),
			zap.String("title", n.Title),
			zap.Error(err),
		)
	}
}

// List 返回擁有者的通知（新的在前）
func (i *Inbox) List(ctx context.Context, ownerID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var models []NotificationGORM
	err := i.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(models))
	for idx := range models {
		entries[idx] = models[idx].toEntry()
	}
	return entries, nil
}

// MarkRead 標記通知已讀（重複標記保持第一次的時間）
func (i *Inbox) MarkRead(ctx context.Context, ownerID string, id uint) error {
	result := i.db.WithContext(ctx).
		Model(&NotificationGORM{}).
		Where("id = ? AND owner_id = ? AND read_at IS NULL", id, ownerID).
		Update("read_at", i.clock.Now().UTC())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := i.db.WithContext(ctx).Model(&NotificationGORM{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
