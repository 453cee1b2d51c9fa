package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter 建立 gin 路由
//
// gatherer 為 nil 時使用 prometheus.DefaultGatherer；
// corsOrigins 非空時允許這些來源的前端直接呼叫 API。
func NewRouter(h *Handler, gatherer prometheus.Gatherer, logger *zap.Logger, corsOrigins ...string) *gin.Engine {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger.Named("http")))
	if len(corsOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = corsOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
		router.Use(cors.New(corsConfig))
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/rewards", h.GetCatalog)
	router.GET("/tiers", h.GetTiers)

	accounts := router.Group("/accounts/:owner")
	{
		accounts.GET("", h.GetAccount)
		accounts.GET("/ledger", h.GetLedger)
		accounts.GET("/redemptions", h.GetRedemptions)
		accounts.GET("/rewards", h.GetRewardAvailability)
		accounts.GET("/notifications", h.GetNotifications)

		accounts.POST("/purchases", h.PostPurchase)
		accounts.POST("/reviews", h.PostReview)
		accounts.POST("/referrals", h.PostReferral)
		accounts.POST("/redemptions", h.PostRedemption)
		accounts.POST("/redemptions/:id/use", h.PostRedemptionUse)
		accounts.POST("/notifications/:id/read", h.PostNotificationRead)
	}

	return router
}

// requestLogger 以 zap 記錄每個請求
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("http request", fields...)
		case status >= 400:
			logger.Info("http request", fields...)
		default:
			logger.Debug("http request", fields...)
		}
	}
}
