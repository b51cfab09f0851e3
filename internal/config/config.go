package config

import (
	"fmt"
	"strings"

	"github.com/paymind-next/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Security SecurityConfig `mapstructure:"security"`
	FX       FXConfig       `mapstructure:"fx"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Escrow   EscrowConfig   `mapstructure:"escrow"`
	Card     CardConfig     `mapstructure:"card"`
	Relayer  RelayerConfig  `mapstructure:"relayer"`
	Ramp     RampConfig     `mapstructure:"ramp"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 管理端 JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	PaymentRateLimit RateLimitConfig      `mapstructure:"payment_rate_limit"`
	PasswordPolicy   PasswordPolicyConfig `mapstructure:"password_policy"`
}

// PasswordPolicyConfig 管理端密码策略
type PasswordPolicyConfig struct {
	MinLength      int  `mapstructure:"min_length"`
	RequireUpper   bool `mapstructure:"require_upper"`
	RequireLower   bool `mapstructure:"require_lower"`
	RequireNumber  bool `mapstructure:"require_number"`
	RequireSpecial bool `mapstructure:"require_special"`
}

// RateLimitConfig 接口限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
	BlockSeconds  int `mapstructure:"block_seconds"`
}

// FXConfig 汇率与锁价配置
type FXConfig struct {
	CacheTTLSeconds  int              `mapstructure:"cache_ttl_seconds"`
	LockTTLSeconds   int              `mapstructure:"lock_ttl_seconds"`
	SourceTimeoutMS  int              `mapstructure:"source_timeout_ms"`
	SweepIntervalSec int              `mapstructure:"sweep_interval_seconds"`
	CoinGecko        RateSourceConfig `mapstructure:"coingecko"`
	Binance          RateSourceConfig `mapstructure:"binance"`
}

// RateSourceConfig 单个汇率来源配置
type RateSourceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// QuotaConfig 自动扣款授权配置
type QuotaConfig struct {
	DefaultDurationDays int    `mapstructure:"default_duration_days"`
	QuickPayMaxAmount   string `mapstructure:"quick_pay_max_amount"`
}

// RiskConfig 风控配置
type RiskConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	ReviewThreshold  string   `mapstructure:"review_threshold"`
	RejectThreshold  string   `mapstructure:"reject_threshold"`
	MaxSingleAmount  string   `mapstructure:"max_single_amount"`
	BlockedCountries []string `mapstructure:"blocked_countries"`
}

// EscrowConfig 托管配置
type EscrowConfig struct {
	AutoReleaseHours     int    `mapstructure:"auto_release_hours"`
	LargeAmountThreshold string `mapstructure:"large_amount_threshold"`
}

// CardConfig 银行卡收单配置
type CardConfig struct {
	APIBaseURL    string `mapstructure:"api_base_url"`
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	SuccessURL    string `mapstructure:"success_url"`
	CancelURL     string `mapstructure:"cancel_url"`
	TimeoutMS     int    `mapstructure:"timeout_ms"`
}

// RelayerConfig 链上中继配置
type RelayerConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	ChainID       int64  `mapstructure:"chain_id"`
	TimeoutMS     int    `mapstructure:"timeout_ms"`
}

// RampConfig 出入金提供方配置
type RampConfig struct {
	SessionExpireMinutes int                `mapstructure:"session_expire_minutes"`
	HealthIntervalSec    int                `mapstructure:"health_interval_seconds"`
	Transak              RampProviderConfig `mapstructure:"transak"`
	Mockpay              RampProviderConfig `mapstructure:"mockpay"`
}

// RampProviderConfig 单个提供方配置
type RampProviderConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	TimeoutMS     int    `mapstructure:"timeout_ms"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")     // 从当前目录查找
	viper.AddConfigPath("./")    // 备用路径
	viper.AddConfigPath("../")   // 如果从 cmd/server 运行
	viper.AddConfigPath("./etc") // etc 文件夹

	// 设置默认值（可选）
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "app.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/paymind.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expire_hours", 24)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "pm")
	viper.SetDefault("queue.enabled", true)
	viper.SetDefault("queue.host", "127.0.0.1")
	viper.SetDefault("queue.port", 6379)
	viper.SetDefault("queue.password", "")
	viper.SetDefault("queue.db", 1)
	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-CSRF-Token",
	})
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 600)
	viper.SetDefault("security.payment_rate_limit.window_seconds", 60)
	viper.SetDefault("security.payment_rate_limit.max_requests", 30)
	viper.SetDefault("security.payment_rate_limit.block_seconds", 300)
	viper.SetDefault("security.password_policy.min_length", 8)
	viper.SetDefault("security.password_policy.require_upper", false)
	viper.SetDefault("security.password_policy.require_lower", false)
	viper.SetDefault("security.password_policy.require_number", true)
	viper.SetDefault("security.password_policy.require_special", false)
	viper.SetDefault("fx.cache_ttl_seconds", 60)
	viper.SetDefault("fx.lock_ttl_seconds", 600)
	viper.SetDefault("fx.source_timeout_ms", 3000)
	viper.SetDefault("fx.sweep_interval_seconds", 60)
	viper.SetDefault("fx.coingecko.enabled", true)
	viper.SetDefault("fx.coingecko.base_url", "https://api.coingecko.com")
	viper.SetDefault("fx.coingecko.api_key", "")
	viper.SetDefault("fx.binance.enabled", true)
	viper.SetDefault("fx.binance.base_url", "https://api.binance.com")
	viper.SetDefault("fx.binance.api_key", "")
	viper.SetDefault("quota.default_duration_days", 30)
	viper.SetDefault("quota.quick_pay_max_amount", "20")
	viper.SetDefault("risk.enabled", true)
	viper.SetDefault("risk.review_threshold", "5000")
	viper.SetDefault("risk.reject_threshold", "50000")
	viper.SetDefault("risk.max_single_amount", "100000")
	viper.SetDefault("risk.blocked_countries", []string{})
	viper.SetDefault("escrow.auto_release_hours", 72)
	viper.SetDefault("escrow.large_amount_threshold", "1000")
	viper.SetDefault("card.api_base_url", "")
	viper.SetDefault("card.secret_key", "")
	viper.SetDefault("card.webhook_secret", "")
	viper.SetDefault("card.success_url", "")
	viper.SetDefault("card.cancel_url", "")
	viper.SetDefault("card.timeout_ms", 12000)
	viper.SetDefault("relayer.base_url", "")
	viper.SetDefault("relayer.api_key", "")
	viper.SetDefault("relayer.webhook_secret", "")
	viper.SetDefault("relayer.chain_id", 8453)
	viper.SetDefault("relayer.timeout_ms", 15000)
	viper.SetDefault("ramp.session_expire_minutes", 30)
	viper.SetDefault("ramp.health_interval_seconds", 60)
	viper.SetDefault("ramp.transak.enabled", false)
	viper.SetDefault("ramp.transak.base_url", "https://api.transak.com")
	viper.SetDefault("ramp.transak.api_key", "")
	viper.SetDefault("ramp.transak.webhook_secret", "")
	viper.SetDefault("ramp.transak.timeout_ms", 8000)
	viper.SetDefault("ramp.mockpay.enabled", true)
	viper.SetDefault("ramp.mockpay.base_url", "")
	viper.SetDefault("ramp.mockpay.api_key", "")
	viper.SetDefault("ramp.mockpay.webhook_secret", "")
	viper.SetDefault("ramp.mockpay.timeout_ms", 1000)

	// 环境变量支持
	viper.AutomaticEnv()                                   // 自动读取环境变量
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 将 . 替换为 _ (例如 server.port -> SERVER_PORT)

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}

	return &cfg
}
