package provider

import (
	"time"

	"github.com/paymind-next/internal/authz"
	"github.com/paymind-next/internal/cache"
	"github.com/paymind-next/internal/cardproc"
	"github.com/paymind-next/internal/config"
	"github.com/paymind-next/internal/fx"
	"github.com/paymind-next/internal/fx/binance"
	"github.com/paymind-next/internal/fx/coingecko"
	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/queue"
	"github.com/paymind-next/internal/ramp"
	"github.com/paymind-next/internal/ramp/mockpay"
	"github.com/paymind-next/internal/ramp/transak"
	"github.com/paymind-next/internal/relayer"
	"github.com/paymind-next/internal/repository"
	"github.com/paymind-next/internal/routing"
	"github.com/paymind-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config *config.Config
	Queue  *queue.Client

	// Repositories
	AdminRepo         repository.AdminRepository
	PaymentRepo       repository.PaymentRepository
	ChannelRepo       repository.PaymentChannelRepository
	QuotaGrantRepo    repository.QuotaGrantRepository
	SessionRepo       repository.ProviderSessionRepository
	EscrowRepo        repository.EscrowRepository
	CommissionRepo    repository.CommissionRepository
	AuthzAuditLogRepo repository.AuthzAuditLogRepository

	// 外部网关客户端
	FXManager     *fx.Manager
	RampManager   *ramp.Manager
	CardClient    *cardproc.Client
	RelayerClient *relayer.Client

	// Services
	AuthzService      *authz.Service
	AuthService       *service.AuthService
	AuthzAuditService *service.AuthzAuditService
	ChannelService    *service.ChannelService
	PolicyService     *service.PolicyService
	RiskService       *service.RiskService
	QuotaService      *service.QuotaService
	EscrowService     *service.EscrowService
	CommissionService *service.CommissionService
	PaymentService    *service.PaymentService

	Registry *routing.Registry
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config: cfg,
		Queue:  queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化外部网关客户端
	c.initGateways()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.ChannelRepo = repository.NewPaymentChannelRepository(db)
	c.QuotaGrantRepo = repository.NewQuotaGrantRepository(db)
	c.SessionRepo = repository.NewProviderSessionRepository(db)
	c.EscrowRepo = repository.NewEscrowRepository(db)
	c.CommissionRepo = repository.NewCommissionRepository(db)
	c.AuthzAuditLogRepo = repository.NewAuthzAuditLogRepository(db)
}

func (c *Container) initGateways() {
	fxCfg := c.Config.FX
	sourceTimeout := time.Duration(fxCfg.SourceTimeoutMS) * time.Millisecond
	var sources []fx.Source
	if fxCfg.CoinGecko.Enabled {
		sources = append(sources, coingecko.NewClient(fxCfg.CoinGecko.BaseURL, fxCfg.CoinGecko.APIKey, sourceTimeout))
	}
	if fxCfg.Binance.Enabled {
		sources = append(sources, binance.NewClient(fxCfg.Binance.BaseURL, sourceTimeout))
	}
	c.FXManager = fx.NewManager(fx.ManagerOptions{
		CacheTTL:      time.Duration(fxCfg.CacheTTLSeconds) * time.Second,
		LockTTL:       time.Duration(fxCfg.LockTTLSeconds) * time.Second,
		SourceTimeout: sourceTimeout,
	}, sources...)

	rampCfg := c.Config.Ramp
	var providers []ramp.Provider
	if rampCfg.Transak.Enabled {
		providers = append(providers, transak.NewClient(transak.Config{
			APIKey:        rampCfg.Transak.APIKey,
			WebhookSecret: rampCfg.Transak.WebhookSecret,
			BaseURL:       rampCfg.Transak.BaseURL,
			Timeout:       time.Duration(rampCfg.Transak.TimeoutMS) * time.Millisecond,
		}))
	}
	if rampCfg.Mockpay.Enabled {
		providers = append(providers, mockpay.NewProvider())
	}
	// 没有任何可用提供方时退回模拟提供方，保证出入金链路可用
	if len(providers) == 0 {
		providers = append(providers, mockpay.NewProvider())
	}
	c.RampManager = ramp.NewManager(providers...)

	cardCfg := c.Config.Card
	c.CardClient = cardproc.NewClient(cardproc.Config{
		SecretKey:     cardCfg.SecretKey,
		WebhookSecret: cardCfg.WebhookSecret,
		SuccessURL:    cardCfg.SuccessURL,
		CancelURL:     cardCfg.CancelURL,
		APIBaseURL:    cardCfg.APIBaseURL,
		Timeout:       time.Duration(cardCfg.TimeoutMS) * time.Millisecond,
	})

	relayerCfg := c.Config.Relayer
	c.RelayerClient = relayer.NewClient(relayer.Config{
		BaseURL: relayerCfg.BaseURL,
		APIKey:  relayerCfg.APIKey,
		ChainID: relayerCfg.ChainID,
		Timeout: time.Duration(relayerCfg.TimeoutMS) * time.Millisecond,
	})
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.AuthzAuditService = service.NewAuthzAuditService(c.AuthzAuditLogRepo)

	c.Registry = routing.NewRegistry(routing.DefaultChannels()...)
	c.ChannelService = service.NewChannelService(c.ChannelRepo, c.Registry)
	if err := c.ChannelService.Bootstrap(); err != nil {
		logger.Warnw("provider_bootstrap_channels_failed", "error", err)
	}

	c.PolicyService = service.NewPolicyService(c.Config.Risk)
	c.RiskService = service.NewRiskService(c.Config.Risk)
	c.QuotaService = service.NewQuotaService(c.QuotaGrantRepo)
	c.EscrowService = service.NewEscrowService(c.EscrowRepo, c.Queue, c.Config.Escrow)
	c.CommissionService = service.NewCommissionService(c.CommissionRepo)

	c.PaymentService = service.NewPaymentService(service.PaymentServiceDeps{
		PaymentRepo:   c.PaymentRepo,
		SessionRepo:   c.SessionRepo,
		Registry:      c.Registry,
		FXManager:     c.FXManager,
		Policy:        c.PolicyService,
		Risk:          c.RiskService,
		Quota:         c.QuotaService,
		Escrow:        c.EscrowService,
		Commission:    c.CommissionService,
		RampManager:   c.RampManager,
		CardClient:    c.CardClient,
		Relayer:       c.RelayerClient,
		SessionExpire: time.Duration(c.Config.Ramp.SessionExpireMinutes) * time.Minute,
	})
}
