package notify

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apployalty "github.com/jackyeh168/storefront_loyalty/src/internal/application/loyalty"
)

// ===========================
// LogSink
// ===========================

// LogSink 把通知寫進結構化日誌（開發環境 / 尚未接上推播時使用）
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink 創建日誌通知
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("notification")}
}

// Notify 實作 apployalty.NotificationSink
func (s *LogSink) Notify(n apployalty.Notification) {
	s.logger.Log(levelFor(n.Severity), n.Title,
		zap.String("owner_id", n.OwnerID),
		zap.String("message", n.Message),
		zap.String("severity", string(n.Severity)),
	)
}

func levelFor(severity apployalty.Severity) zapcore.Level {
	switch severity {
	case apployalty.SeverityError:
		return zapcore.ErrorLevel
	case apployalty.SeverityWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// ===========================
// FanOut
// ===========================

// FanOut 依序把通知送到每個收件匣
type FanOut []apployalty.NotificationSink

// NewFanOut 過濾 nil 後組合多個收件匣
func NewFanOut(sinks ...apployalty.NotificationSink) FanOut {
	out := make(FanOut, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			out = append(out, sink)
		}
	}
	return out
}

// Notify 實作 apployalty.NotificationSink
func (f FanOut) Notify(n apployalty.Notification) {
	for _, sink := range f {
		sink.Notify(n)
	}
}
