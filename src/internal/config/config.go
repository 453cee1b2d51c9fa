package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 環境變數前綴，例如 LOYALTY_DATABASE_DSN
const EnvPrefix = "LOYALTY"

// ===========================
// Config
// ===========================

// Config 應用程式設定
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Program   ProgramConfig   `mapstructure:"program"`
}

// DatabaseConfig 資料庫設定
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig 日誌設定
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Encoding    string `mapstructure:"encoding"`
	Development bool   `mapstructure:"development"`
}

// HTTPConfig HTTP 服務設定
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"` // 空白表示不啟用 CORS
}

// CacheConfig 帳戶快照快取設定
type CacheConfig struct {
	Size int `mapstructure:"size"`
}

// EngineConfig 引擎設定
type EngineConfig struct {
	MaxConflictRetries int `mapstructure:"max_conflict_retries"`
}

// SchedulerConfig 到期提醒排程設定
type SchedulerConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Spec    string        `mapstructure:"spec"`
	Window  time.Duration `mapstructure:"window"`
}

// ProgramConfig 會員方案設定（空字串使用內建方案）
type ProgramConfig struct {
	File string `mapstructure:"file"`
}

// ===========================
// Viper
// ===========================

// NewViper 建立已設定預設值、搜尋路徑與環境變數的 viper 實例
//
// 搜尋 loyalty.yaml：目前目錄、$HOME、/etc/loyalty。
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("database.dsn", "file:loyalty.db?_foreign_keys=on")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.development", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.cors_origins", []string{})
	v.SetDefault("cache.size", 1024)
	v.SetDefault("engine.max_conflict_retries", 3)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.spec", "@daily")
	v.SetDefault("scheduler.window", "72h")
	v.SetDefault("program.file", "")

	v.SetConfigName("loyalty")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")
	v.AddConfigPath("/etc/loyalty")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load 讀取設定檔（可選）並解析為 Config
//
// configFile 非空時只讀取該檔案，檔案不存在視為錯誤；
// 否則在搜尋路徑中找不到 loyalty.yaml 時使用預設值與環境變數。
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 檢查設定值
func (c *Config) Validate() error {
	switch {
	case c.Database.DSN == "":
		return errors.New("database.dsn is required")
	case c.Cache.Size < 0:
		return fmt.Errorf("cache.size must not be negative, got %d", c.Cache.Size)
	case c.Engine.MaxConflictRetries < 0:
		return fmt.Errorf("engine.max_conflict_retries must not be negative, got %d", c.Engine.MaxConflictRetries)
	case c.Scheduler.Enabled && c.Scheduler.Window <= 0:
		return fmt.Errorf("scheduler.window must be positive, got %s", c.Scheduler.Window)
	}
	return nil
}
