package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paymind-next/internal/authz"
	"github.com/paymind-next/internal/cache"
	"github.com/paymind-next/internal/config"
	adminhandlers "github.com/paymind-next/internal/http/handlers/admin"
	publichandlers "github.com/paymind-next/internal/http/handlers/public"
	"github.com/paymind-next/internal/http/response"
	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按公开/管理端分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "pm"
	}
	redisClient := cache.Client()
	paymentRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:payment", redisPrefix),
		WindowSeconds: cfg.Security.PaymentRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.PaymentRateLimit.MaxRequests,
		BlockSeconds:  cfg.Security.PaymentRateLimit.BlockSeconds,
		MessageKey:    "error.payment_too_many",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 结算接口
		payments := apiV1.Group("/payments")
		{
			payments.POST("", RateLimitMiddleware(redisClient, paymentRule, KeyByIP), publicHandler.ProcessPayment)
			payments.POST("/routing", publicHandler.GetPaymentRouting)
			payments.GET("/fee", publicHandler.EstimateFee)
			payments.GET("", publicHandler.ListPayments)
			payments.GET("/:id", publicHandler.GetPayment)
			payments.GET("/by-session/:session_id", publicHandler.GetPaymentBySession)
		}

		// 汇率与锁价
		fx := apiV1.Group("/fx")
		{
			fx.GET("/rate", publicHandler.GetExchangeRate)
			fx.POST("/locks", publicHandler.CreateRateLock)
			fx.GET("/locks/:lock_id", publicHandler.GetRateLock)
		}

		// 自动扣款授权
		quota := apiV1.Group("/quota")
		{
			quota.POST("/authorizations", publicHandler.CreateQuotaAuthorization)
			quota.GET("/authorizations", publicHandler.GetQuotaAuthorization)
		}

		// 提供方会话
		sessions := apiV1.Group("/sessions")
		{
			sessions.GET("/:session_id", publicHandler.GetProviderSession)
			sessions.POST("/:session_id/confirm", publicHandler.ConfirmProviderSession)
		}

		// 回调入口（验签在 handler 内完成）
		webhooks := apiV1.Group("/webhooks")
		{
			webhooks.POST("/card", publicHandler.CardWebhook)
			webhooks.POST("/provider", publicHandler.ProviderWebhook)
			webhooks.POST("/relayer", publicHandler.RelayerWebhook)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			// 登录接口（无需鉴权）
			admin.POST("/login", adminHandler.AdminLogin)

			// 需要鉴权的接口
			authorized := admin.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo), AdminRBACMiddleware(c.AuthzService))
			{
				authorized.PUT("/password", adminHandler.UpdateAdminPassword) // 修改密码

				// 权限管理
				authorized.GET("/authz/me", adminHandler.GetAuthzMe)
				authorized.GET("/authz/roles", adminHandler.ListAuthzRoles)
				authorized.GET("/authz/admins", adminHandler.ListAuthzAdmins)
				authorized.GET("/authz/audit-logs", adminHandler.ListAuthzAuditLogs)
				authorized.POST("/authz/admins", adminHandler.CreateAuthzAdmin)
				authorized.PUT("/authz/admins/:id", adminHandler.UpdateAuthzAdmin)
				authorized.DELETE("/authz/admins/:id", adminHandler.DeleteAuthzAdmin)
				authorized.GET("/authz/permissions/catalog", func(ctx *gin.Context) {
					response.Success(ctx, buildAdminPermissionCatalog(r))
				})
				authorized.POST("/authz/roles", adminHandler.CreateAuthzRole)
				authorized.DELETE("/authz/roles/:role", adminHandler.DeleteAuthzRole)
				authorized.GET("/authz/roles/:role/policies", adminHandler.GetAuthzRolePolicies)
				authorized.POST("/authz/policies", adminHandler.GrantAuthzPolicy)
				authorized.DELETE("/authz/policies", adminHandler.RevokeAuthzPolicy)
				authorized.GET("/authz/admins/:id/roles", adminHandler.GetAuthzAdminRoles)
				authorized.PUT("/authz/admins/:id/roles", adminHandler.SetAuthzAdminRoles)

				// 结算渠道与结算记录
				authorized.GET("/channels", adminHandler.GetAdminChannels)
				authorized.PUT("/channels/:method/availability", adminHandler.SetAdminChannelAvailability)
				authorized.GET("/payments", adminHandler.GetAdminPayments)
				authorized.GET("/payments/export", adminHandler.ExportAdminPayments)
				authorized.GET("/payments/:id", adminHandler.GetAdminPayment)

				// 托管账户
				authorized.GET("/escrows", adminHandler.GetAdminEscrows)
				authorized.GET("/escrows/:payment_id", adminHandler.GetAdminEscrow)
				authorized.POST("/escrows/:payment_id/release", adminHandler.ReleaseAdminEscrow)
				authorized.POST("/escrows/:payment_id/refund", adminHandler.RefundAdminEscrow)

				// 出入金提供方
				authorized.GET("/ramp/health", adminHandler.GetAdminRampHealth)
				authorized.GET("/provider-sessions", adminHandler.GetAdminProviderSessions)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") {
			continue
		}
		if item.Path == "/api/v1/admin/login" {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func deriveAdminPermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 {
		return segments[0]
	}
	if segments[0] != "admin" {
		return segments[0]
	}
	if segments[1] == "authz" {
		return "authz"
	}
	return segments[1]
}
