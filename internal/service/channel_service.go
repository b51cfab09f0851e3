package service

import (
	"strconv"
	"strings"

	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/repository"
	"github.com/paymind-next/internal/routing"
)

// ChannelService 结算渠道管理。
// 内存注册表是路由的唯一读源，启停先落库再更新注册表，
// 启动时从持久化状态恢复注册表。
type ChannelService struct {
	channelRepo repository.PaymentChannelRepository
	registry    *routing.Registry
}

// NewChannelService 创建渠道服务
func NewChannelService(channelRepo repository.PaymentChannelRepository, registry *routing.Registry) *ChannelService {
	return &ChannelService{
		channelRepo: channelRepo,
		registry:    registry,
	}
}

// Bootstrap 启动时同步渠道配置。
// 表为空时按默认渠道建表，否则以持久化状态覆盖注册表。
func (s *ChannelService) Bootstrap() error {
	rows, err := s.channelRepo.List()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		for _, channel := range s.registry.Snapshot() {
			row := channelToModel(channel)
			if err := s.channelRepo.Create(row); err != nil {
				return err
			}
		}
		logger.Infow("payment_channels_seeded", "count", len(s.registry.Snapshot()))
		return nil
	}

	channels := make([]routing.Channel, 0, len(rows))
	for _, row := range rows {
		channels = append(channels, modelToChannel(row))
	}
	s.registry.Replace(channels)
	logger.Infow("payment_channels_restored", "count", len(channels))
	return nil
}

// List 结算渠道列表
func (s *ChannelService) List() ([]models.PaymentChannel, error) {
	return s.channelRepo.List()
}

// SetAvailability 切换渠道可用状态，先落库再更新注册表
func (s *ChannelService) SetAvailability(method string, available bool) error {
	method = strings.TrimSpace(method)
	hit, err := s.channelRepo.SetAvailability(method, available)
	if err != nil {
		return err
	}
	if !hit {
		return ErrChannelNotFound
	}
	s.registry.SetAvailable(method, available)
	logger.Infow("payment_channel_availability_changed", "method", method, "available", available)
	return nil
}

func channelToModel(channel routing.Channel) *models.PaymentChannel {
	return &models.PaymentChannel{
		Method:              channel.Method,
		Name:                channel.Name,
		Priority:            channel.Priority,
		MinAmount:           models.NewMoneyFromDecimal(channel.MinAmount),
		MaxAmount:           models.NewMoneyFromDecimal(channel.MaxAmount),
		Cost:                strconv.FormatFloat(channel.Cost, 'f', -1, 64),
		Speed:               channel.Speed,
		Available:           channel.Available,
		KYCRequired:         channel.KYCRequired,
		CrossBorder:         channel.CrossBorder,
		SupportedCurrencies: models.StringArray(channel.SupportedCurrencies),
	}
}

func modelToChannel(row models.PaymentChannel) routing.Channel {
	cost, err := strconv.ParseFloat(strings.TrimSpace(row.Cost), 64)
	if err != nil {
		cost = 0
	}
	return routing.Channel{
		Method:              row.Method,
		Name:                row.Name,
		Priority:            row.Priority,
		MinAmount:           row.MinAmount.Decimal,
		MaxAmount:           row.MaxAmount.Decimal,
		Cost:                cost,
		Speed:               row.Speed,
		Available:           row.Available,
		KYCRequired:         row.KYCRequired,
		CrossBorder:         row.CrossBorder,
		SupportedCurrencies: []string(row.SupportedCurrencies),
	}
}
