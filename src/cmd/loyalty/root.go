package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jackyeh168/storefront_loyalty/src/internal/config"
	"github.com/jackyeh168/storefront_loyalty/src/internal/domain/loyalty"
)

// cli 命令列共用狀態
type cli struct {
	v          *viper.Viper
	configFile string
	envFile    string
}

// newRootCommand 建立 loyalty 根命令
func newRootCommand() *cobra.Command {
	c := &cli{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "loyalty",
		Short:         "Storefront loyalty points and membership tiers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.loadEnvFile(cmd.Flags().Changed("env-file"))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configFile, "config", "c", "", "config file (default: loyalty.yaml in ., $HOME, /etc/loyalty)")
	flags.StringVar(&c.envFile, "env-file", ".env", "file with LOYALTY_* variables for local runs")
	flags.String("db", "", "database DSN")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("program", "", "program file with tiers and rewards")
	_ = c.v.BindPFlag("database.dsn", flags.Lookup("db"))
	_ = c.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("program.file", flags.Lookup("program"))

	root.AddCommand(
		newServeCommand(c),
		newEarnCommand(c),
		newRedeemCommand(c),
		newUseCommand(c),
		newBalanceCommand(c),
		newHistoryCommand(c),
		newTiersCommand(c),
		newRemindCommand(c),
	)
	return root
}

// loadEnvFile 載入 .env；預設路徑不存在時略過，明確指定的檔案必須存在
//
// 已存在的環境變數不會被覆寫。
func (c *cli) loadEnvFile(explicit bool) error {
	if c.envFile == "" {
		return nil
	}
	if err := godotenv.Load(c.envFile); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", c.envFile, err)
	}
	return nil
}

// withApp 組裝應用程式後執行 fn，結束時釋放資源
func (c *cli) withApp(fn func(a *app) error) error {
	a, err := newApp(c.v, c.configFile)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// describeError 將拒絕原因轉為使用者看得懂的訊息
func describeError(err error) string {
	if shortfall, ok := loyalty.ShortfallOf(err); ok {
		return fmt.Sprintf("積分不足，還需要 %d 點", shortfall)
	}
	var domainErr *loyalty.DomainError
	if loyalty.IsRejection(err) && errors.As(err, &domainErr) {
		return fmt.Sprintf("%s (%s)", domainErr.Message, domainErr.Code)
	}
	return fmt.Sprintf("error: %v", err)
}
