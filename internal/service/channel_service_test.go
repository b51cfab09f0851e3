package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/repository"
	"github.com/paymind-next/internal/routing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupChannelServiceTest(t *testing.T) (*ChannelService, *routing.Registry, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:channel_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.PaymentChannel{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	registry := routing.NewRegistry(routing.DefaultChannels()...)
	svc := NewChannelService(repository.NewPaymentChannelRepository(db), registry)
	return svc, registry, db
}

func TestChannelBootstrapSeedsDefaults(t *testing.T) {
	svc, _, _ := setupChannelServiceTest(t)

	if err := svc.Bootstrap(); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	rows, err := svc.List()
	if err != nil {
		t.Fatalf("list channels failed: %v", err)
	}
	if len(rows) != len(routing.DefaultChannels()) {
		t.Fatalf("expected %d seeded channels, got %d", len(routing.DefaultChannels()), len(rows))
	}
}

func TestChannelBootstrapRestoresPersistedState(t *testing.T) {
	svc, registry, db := setupChannelServiceTest(t)

	if err := svc.Bootstrap(); err != nil {
		t.Fatalf("seed bootstrap failed: %v", err)
	}
	// 库里停用 card，模拟上次运行留下的状态
	if err := db.Model(&models.PaymentChannel{}).
		Where("method = ?", constants.MethodCard).
		Update("available", false).Error; err != nil {
		t.Fatalf("update channel failed: %v", err)
	}

	if err := svc.Bootstrap(); err != nil {
		t.Fatalf("restore bootstrap failed: %v", err)
	}
	channel, ok := registry.Get(constants.MethodCard)
	if !ok {
		t.Fatalf("card channel missing from registry")
	}
	if channel.Available {
		t.Fatalf("expected card channel restored as unavailable")
	}
}

func TestChannelSetAvailability(t *testing.T) {
	svc, registry, db := setupChannelServiceTest(t)

	if err := svc.Bootstrap(); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if err := svc.SetAvailability(constants.MethodWallet, false); err != nil {
		t.Fatalf("set availability failed: %v", err)
	}

	channel, ok := registry.Get(constants.MethodWallet)
	if !ok || channel.Available {
		t.Fatalf("expected wallet channel disabled in registry, got %+v", channel)
	}
	var row models.PaymentChannel
	if err := db.Where("method = ?", constants.MethodWallet).First(&row).Error; err != nil {
		t.Fatalf("load channel row failed: %v", err)
	}
	if row.Available {
		t.Fatalf("expected wallet channel disabled in storage")
	}

	if err := svc.SetAvailability("nonexistent", true); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}
