package main

import (
	"fmt"
	"time"

	"github.com/paymind-next/internal/config"
	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/repository"
	"github.com/paymind-next/internal/routing"
	"github.com/paymind-next/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 默认管理员
	if err := models.InitDefaultAdmin("", ""); err != nil {
		stdLog.Printf("Failed to init default admin: %v", err)
	}

	// 结算渠道（从内置渠道目录落库）
	registry := routing.NewRegistry(routing.DefaultChannels()...)
	channelService := service.NewChannelService(repository.NewPaymentChannelRepository(models.DB), registry)
	if err := channelService.Bootstrap(); err != nil {
		stdLog.Printf("Failed to bootstrap channels: %v", err)
	} else {
		stdLog.Println("Bootstrapped payment channels")
	}

	// 演示结算记录（覆盖各渠道与状态，供管理端列表展示）
	now := time.Now()
	completedAt := now.Add(-2 * time.Hour)
	payments := []models.Payment{
		{
			UserID:       1001,
			SessionID:    "seed-demo-card-completed",
			Amount:       models.NewMoneyFromDecimal(decimal.NewFromFloat(129.50)),
			Currency:     "USD",
			Method:       constants.MethodCard,
			Status:       constants.PaymentStatusCompleted,
			EscrowStatus: constants.EscrowStatusNone,
			CompletedAt:  &completedAt,
		},
		{
			UserID:          1001,
			SessionID:       "seed-demo-wallet-completed",
			Amount:          models.NewMoneyFromDecimal(decimal.NewFromFloat(42.00)),
			Currency:        "USDC",
			Method:          constants.MethodWallet,
			Status:          constants.PaymentStatusCompleted,
			TransactionHash: "0x" + uuid.NewString()[:8] + "seedwallet",
			EscrowStatus:    constants.EscrowStatusNone,
			CompletedAt:     &completedAt,
		},
		{
			UserID:       1002,
			SessionID:    "seed-demo-ramp-pending",
			Amount:       models.NewMoneyFromDecimal(decimal.NewFromFloat(300.00)),
			Currency:     "EUR",
			Method:       constants.MethodRamp,
			Status:       constants.PaymentStatusProcessing,
			EscrowStatus: constants.EscrowStatusNone,
		},
		{
			UserID:       1003,
			SessionID:    "seed-demo-multisig-held",
			Amount:       models.NewMoneyFromDecimal(decimal.NewFromFloat(5200.00)),
			Currency:     "USD",
			Method:       constants.MethodMultisig,
			Status:       constants.PaymentStatusCompleted,
			EscrowStatus: constants.EscrowStatusHeld,
			EscrowRef:    "seed-escrow-multisig",
			CompletedAt:  &completedAt,
		},
		{
			UserID:       1004,
			SessionID:    "seed-demo-card-failed",
			Amount:       models.NewMoneyFromDecimal(decimal.NewFromFloat(18.90)),
			Currency:     "GBP",
			Method:       constants.MethodCard,
			Status:       constants.PaymentStatusFailed,
			EscrowStatus: constants.EscrowStatusNone,
		},
	}

	for i := range payments {
		p := payments[i]
		var existing models.Payment
		if err := models.DB.Where("session_id = ?", p.SessionID).First(&existing).Error; err != nil {
			if err := models.DB.Create(&p).Error; err != nil {
				stdLog.Printf("Failed to create payment %s: %v", p.SessionID, err)
			} else {
				stdLog.Printf("Created payment: %s", p.SessionID)
			}
		} else {
			stdLog.Printf("Payment already exists: %s", p.SessionID)
		}
	}

	// 托管账户（对应多签大额演示结算）
	var heldPayment models.Payment
	if err := models.DB.Where("session_id = ?", "seed-demo-multisig-held").First(&heldPayment).Error; err == nil {
		var escrow models.EscrowAccount
		if err := models.DB.Where("escrow_ref = ?", "seed-escrow-multisig").First(&escrow).Error; err != nil {
			heldAt := heldPayment.CreatedAt
			escrow = models.EscrowAccount{
				EscrowRef: "seed-escrow-multisig",
				PaymentID: heldPayment.ID,
				Amount:    heldPayment.Amount,
				Currency:  heldPayment.Currency,
				OrderType: constants.OrderTypePhysical,
				Status:    constants.EscrowStatusHeld,
				HeldAt:    &heldAt,
			}
			if err := models.DB.Create(&escrow).Error; err != nil {
				stdLog.Printf("Failed to create escrow account: %v", err)
			} else {
				stdLog.Println("Created escrow account: seed-escrow-multisig")
			}
		} else {
			stdLog.Println("Escrow account already exists: seed-escrow-multisig")
		}
	}

	// 自动扣款授权（供小额快捷渠道演示）
	var grant models.QuotaGrant
	if err := models.DB.Where("user_id = ? AND is_active = ?", uint(1001), true).First(&grant).Error; err != nil {
		grant = models.QuotaGrant{
			UserID:      1001,
			SingleLimit: models.NewMoneyFromDecimal(decimal.NewFromFloat(50)),
			DailyLimit:  models.NewMoneyFromDecimal(decimal.NewFromFloat(200)),
			IsActive:    true,
			ExpiresAt:   now.AddDate(0, 0, 30),
		}
		if err := models.DB.Create(&grant).Error; err != nil {
			stdLog.Printf("Failed to create quota grant: %v", err)
		} else {
			stdLog.Println("Created quota grant for user 1001")
		}
	} else {
		stdLog.Println("Quota grant already exists for user 1001")
	}

	fmt.Println("\n✅ Seed data created successfully!")
	fmt.Println("Summary:")
	fmt.Println("- Default admin account")
	fmt.Println("- Payment channels from builtin catalog")
	fmt.Println("- 5 Demo payments (card/wallet/ramp/multisig)")
	fmt.Println("- 1 Escrow account (held)")
	fmt.Println("- 1 Quota grant (user 1001)")
}
