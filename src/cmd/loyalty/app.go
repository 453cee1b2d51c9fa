package main

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apployalty "github.com/jackyeh168/storefront_loyalty/src/internal/application/loyalty"
	"github.com/jackyeh168/storefront_loyalty/src/internal/config"
	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/shared"
	"github.com/jackyeh168/storefront_loyalty/src/internal/infrastructure/notify"
	"github.com/jackyeh168/storefront_loyalty/src/internal/infrastructure/persistence"
	persistenceloyalty "github.com/jackyeh168/storefront_loyalty/src/internal/infrastructure/persistence/loyalty"
	"github.com/jackyeh168/storefront_loyalty/src/internal/infrastructure/persistence/notification"
	"github.com/jackyeh168/storefront_loyalty/src/internal/infrastructure/scheduler"
)

// app 組裝好的應用程式元件
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	db          *gorm.DB
	program     config.Program
	txManager   *persistence.GORMTransactionManager
	accounts    *persistenceloyalty.AccountRepository
	inbox       *notification.Inbox
	engine      *apployalty.Engine
	redemptions *apployalty.RedemptionService
}

// newApp 讀取設定、開啟資料庫並組裝引擎
func newApp(v *viper.Viper, configFile string) (*app, error) {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	program, err := config.LoadProgram(cfg.Program.File)
	if err != nil {
		return nil, err
	}

	db, err := persistence.Open(cfg.Database.DSN, logger)
	if err != nil {
		return nil, err
	}
	models := append(persistenceloyalty.Models(), notification.Models()...)
	if err := persistence.Migrate(db, models...); err != nil {
		_ = persistence.Close(db)
		return nil, err
	}

	clock := shared.SystemClock{}
	txManager := persistence.NewGORMTransactionManager(db)
	accounts := persistenceloyalty.NewAccountRepository(db, program.Tiers)
	inbox := notification.NewInbox(db, logger, clock)

	engine, err := apployalty.NewEngine(
		accounts,
		txManager,
		program.Tiers,
		program.Catalog,
		apployalty.WithClock(clock),
		apployalty.WithLogger(logger.Named("engine")),
		apployalty.WithMetrics(apployalty.DefaultMetrics()),
		apployalty.WithNotificationSink(notify.NewFanOut(notify.NewLogSink(logger), inbox)),
		apployalty.WithCacheSize(cfg.Cache.Size),
		apployalty.WithMaxConflictRetries(cfg.Engine.MaxConflictRetries),
	)
	if err != nil {
		_ = persistence.Close(db)
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		program:     program,
		txManager:   txManager,
		accounts:    accounts,
		inbox:       inbox,
		engine:      engine,
		redemptions: apployalty.NewRedemptionService(engine),
	}, nil
}

// expiryReminder 到期提醒工作
func (a *app) expiryReminder() *scheduler.ExpiryReminder {
	return scheduler.NewExpiryReminder(
		a.accounts,
		a.txManager,
		a.program.Catalog,
		notify.NewFanOut(notify.NewLogSink(a.logger), a.inbox),
		shared.SystemClock{},
		a.logger.Named("reminder"),
		a.cfg.Scheduler.Window,
	)
}

func (a *app) Close() {
	_ = a.logger.Sync()
	_ = persistence.Close(a.db)
}
