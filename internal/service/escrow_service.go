package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paymind-next/internal/config"
	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/queue"
	"github.com/paymind-next/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EscrowService 托管账户生命周期。
// 托管在结算记录落库前开立，完成后注资并按订单类型决定释放节奏。
type EscrowService struct {
	escrowRepo           repository.EscrowRepository
	queueClient          *queue.Client
	autoReleaseDelay     time.Duration
	largeAmountThreshold decimal.Decimal
	now                  func() time.Time
}

// NewEscrowService 创建托管服务
func NewEscrowService(escrowRepo repository.EscrowRepository, queueClient *queue.Client, cfg config.EscrowConfig) *EscrowService {
	autoReleaseHours := cfg.AutoReleaseHours
	if autoReleaseHours <= 0 {
		autoReleaseHours = 7 * 24
	}
	threshold, err := decimal.NewFromString(strings.TrimSpace(cfg.LargeAmountThreshold))
	if err != nil || !threshold.IsPositive() {
		threshold = decimal.NewFromInt(1000)
	}
	return &EscrowService{
		escrowRepo:           escrowRepo,
		queueClient:          queueClient,
		autoReleaseDelay:     time.Duration(autoReleaseHours) * time.Hour,
		largeAmountThreshold: threshold,
		now:                  time.Now,
	}
}

// EscrowPolicyInput 托管判定输入
type EscrowPolicyInput struct {
	OrderType             string
	Category              string
	MerchantEscrowEnabled bool
	Amount                models.Money
	Override              *bool
}

// ShouldUseEscrow 判定交易是否需要托管。
// 显式指定优先；实物与商品订单需要确认收货，NFT/虚拟资产走合约分润，
// 服务订单按商户配置，大额订单强制托管。
func (s *EscrowService) ShouldUseEscrow(input EscrowPolicyInput) bool {
	if input.Override != nil {
		return *input.Override
	}

	orderType := strings.ToLower(strings.TrimSpace(input.OrderType))
	if orderType == "" {
		orderType = constants.OrderTypeProduct
	}
	category := strings.ToLower(strings.TrimSpace(input.Category))

	if orderType == constants.OrderTypeProduct || orderType == constants.OrderTypePhysical {
		return true
	}
	if orderType == constants.OrderTypeNFT || orderType == constants.OrderTypeVirtual ||
		category == constants.OrderTypeNFT || category == constants.OrderTypeVirtual {
		return true
	}
	if orderType == constants.OrderTypeService {
		return input.MerchantEscrowEnabled
	}
	if input.Amount.GreaterThanOrEqual(s.largeAmountThreshold) {
		return true
	}
	return false
}

// OpenHoldInput 开立托管输入
type OpenHoldInput struct {
	Amount    models.Money
	Currency  string
	OrderType string
}

// OpenHold 开立托管，先于结算记录创建，落库后再回填关联。
func (s *EscrowService) OpenHold(input OpenHoldInput) (*models.EscrowAccount, error) {
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: escrow amount must be positive", ErrAmountInvalid)
	}
	orderType := strings.ToLower(strings.TrimSpace(input.OrderType))
	if orderType == "" {
		orderType = constants.OrderTypeProduct
	}
	account := &models.EscrowAccount{
		EscrowRef: newEscrowRef(),
		Amount:    input.Amount,
		Currency:  strings.ToUpper(strings.TrimSpace(input.Currency)),
		OrderType: orderType,
		Status:    constants.EscrowStatusHeld,
	}
	if err := s.escrowRepo.Create(account); err != nil {
		return nil, err
	}
	logger.Infow("escrow_hold_opened",
		"escrow_ref", account.EscrowRef,
		"amount", account.Amount.String(),
		"currency", account.Currency,
		"order_type", account.OrderType,
	)
	return account, nil
}

// AttachPayment 回填托管与结算记录的关联
func (s *EscrowService) AttachPayment(escrowRef string, paymentID uint) error {
	_, err := s.escrowRepo.UpdateStatusLocked(escrowRef, func(account *models.EscrowAccount) error {
		account.PaymentID = paymentID
		return nil
	})
	return escrowLookupError(err)
}

// escrowLookupError 将行锁查询的未命中映射为领域错误
func escrowLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrEscrowNotFound
	}
	return err
}

// Fund 托管注资。完成后按订单类型安排释放：
// NFT/虚拟资产即时释放，商品与实物到期自动释放，服务订单等待手动释放。
func (s *EscrowService) Fund(escrowRef string) (*models.EscrowAccount, error) {
	now := s.now()
	account, err := s.escrowRepo.UpdateStatusLocked(escrowRef, func(account *models.EscrowAccount) error {
		if account.Status != constants.EscrowStatusHeld {
			return fmt.Errorf("%w: status %s", ErrEscrowStateInvalid, account.Status)
		}
		if account.HeldAt == nil {
			account.HeldAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, escrowLookupError(err)
	}

	logger.Infow("escrow_funded", "escrow_ref", account.EscrowRef, "payment_id", account.PaymentID)

	switch account.OrderType {
	case constants.OrderTypeNFT, constants.OrderTypeVirtual:
		return s.Release(escrowRef)
	case constants.OrderTypeService:
		// 等待服务完成后手动释放
		return account, nil
	default:
		if err := s.queueClient.EnqueueEscrowAutoRelease(queue.EscrowAutoReleasePayload{EscrowRef: escrowRef}, s.autoReleaseDelay); err != nil {
			logger.Errorw("escrow_auto_release_enqueue_failed", "escrow_ref", escrowRef, "error", err)
		}
		return account, nil
	}
}

// Release 释放托管。重复释放是幂等空操作。
func (s *EscrowService) Release(escrowRef string) (*models.EscrowAccount, error) {
	now := s.now()
	released := false
	account, err := s.escrowRepo.UpdateStatusLocked(escrowRef, func(account *models.EscrowAccount) error {
		switch account.Status {
		case constants.EscrowStatusReleased:
			return nil
		case constants.EscrowStatusHeld:
			account.Status = constants.EscrowStatusReleased
			account.ReleasedAt = &now
			released = true
			return nil
		default:
			return fmt.Errorf("%w: status %s", ErrEscrowStateInvalid, account.Status)
		}
	})
	if err != nil {
		return nil, escrowLookupError(err)
	}
	if released {
		logger.Infow("escrow_released",
			"escrow_ref", account.EscrowRef,
			"payment_id", account.PaymentID,
			"amount", account.Amount.String(),
		)
	}
	return account, nil
}

// Refund 托管退回，仅允许 held 状态
func (s *EscrowService) Refund(escrowRef string) (*models.EscrowAccount, error) {
	account, err := s.escrowRepo.UpdateStatusLocked(escrowRef, func(account *models.EscrowAccount) error {
		if account.Status != constants.EscrowStatusHeld {
			return fmt.Errorf("%w: status %s", ErrEscrowStateInvalid, account.Status)
		}
		account.Status = constants.EscrowStatusRefunded
		return nil
	})
	if err != nil {
		return nil, escrowLookupError(err)
	}
	logger.Infow("escrow_refunded", "escrow_ref", account.EscrowRef, "payment_id", account.PaymentID)
	return account, nil
}

// GetByPaymentID 根据结算记录获取托管账户
func (s *EscrowService) GetByPaymentID(paymentID uint) (*models.EscrowAccount, error) {
	account, err := s.escrowRepo.GetByPaymentID(paymentID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrEscrowNotFound
	}
	return account, nil
}

// ReleaseByPaymentID 按结算记录释放托管（管理端入口）
func (s *EscrowService) ReleaseByPaymentID(paymentID uint) (*models.EscrowAccount, error) {
	account, err := s.GetByPaymentID(paymentID)
	if err != nil {
		return nil, err
	}
	return s.Release(account.EscrowRef)
}

func newEscrowRef() string {
	return fmt.Sprintf("esc_%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:20])
}
