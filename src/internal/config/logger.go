package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger 依設定建立 zap logger
//
// encoding: json（預設）或 console；development 模式會輸出 caller 與 stacktrace。
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zapCfg.Level = level
	}

	switch cfg.Encoding {
	case "":
	case "json", "console":
		zapCfg.Encoding = cfg.Encoding
	default:
		return nil, fmt.Errorf("invalid log encoding %q", cfg.Encoding)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Named("loyalty"), nil
}
