package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/provider"
	"github.com/paymind-next/internal/queue"
	"github.com/paymind-next/internal/service"

	"github.com/hibiken/asynq"
)

const defaultSessionSweepLimit = 100

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskEscrowAutoRelease, c.handleEscrowAutoRelease)
	mux.HandleFunc(queue.TaskProviderSessionSweep, c.handleProviderSessionSweep)
	mux.HandleFunc(queue.TaskSettlementNotify, c.handleSettlementNotify)
}

// 托管期满自动放款。非 held 状态（已人工放款/退款）是幂等空操作。
func (c *Consumer) handleEscrowAutoRelease(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_escrow_auto_release_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.EscrowAutoReleasePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_escrow_auto_release_unmarshal_failed", "error", err)
		return err
	}
	if payload.EscrowRef == "" {
		logger.Debugw("worker_escrow_auto_release_skip_invalid_payload")
		return nil
	}
	if c.EscrowService == nil {
		logger.Warnw("worker_escrow_auto_release_skip_escrow_service_nil", "escrow_ref", payload.EscrowRef)
		return nil
	}
	account, err := c.EscrowService.Release(payload.EscrowRef)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEscrowNotFound):
			logger.Debugw("worker_escrow_auto_release_skip_not_found", "escrow_ref", payload.EscrowRef)
			return nil
		case errors.Is(err, service.ErrEscrowStateInvalid):
			logger.Debugw("worker_escrow_auto_release_skip_state", "escrow_ref", payload.EscrowRef)
			return nil
		default:
			logger.Warnw("worker_escrow_auto_release_failed", "escrow_ref", payload.EscrowRef, "error", err)
			return err
		}
	}
	logger.Infow("worker_escrow_auto_released",
		"escrow_ref", account.EscrowRef,
		"payment_id", account.PaymentID,
	)
	return nil
}

func (c *Consumer) handleProviderSessionSweep(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_session_sweep_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ProviderSessionSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_session_sweep_unmarshal_failed", "error", err)
		return err
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultSessionSweepLimit
	}
	if c.PaymentService == nil {
		logger.Warnw("worker_session_sweep_skip_payment_service_nil")
		return nil
	}
	swept, err := c.PaymentService.SweepExpiredSessions(limit)
	if err != nil {
		logger.Warnw("worker_session_sweep_failed", "error", err)
		return err
	}
	if swept > 0 {
		logger.Infow("worker_sessions_swept", "count", swept)
	}
	return nil
}

// 结算结果通知。通知是尽力而为的旁路，找不到记录不重试。
func (c *Consumer) handleSettlementNotify(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_settlement_notify_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.SettlementNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_settlement_notify_unmarshal_failed", "error", err)
		return err
	}
	if payload.PaymentID == 0 {
		logger.Debugw("worker_settlement_notify_skip_invalid_payload", "payment_id", payload.PaymentID)
		return nil
	}
	if c.PaymentService == nil {
		logger.Warnw("worker_settlement_notify_skip_payment_service_nil", "payment_id", payload.PaymentID)
		return nil
	}
	payment, err := c.PaymentService.GetPayment(payload.PaymentID)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			logger.Debugw("worker_settlement_notify_skip_payment_not_found", "payment_id", payload.PaymentID)
			return nil
		}
		logger.Warnw("worker_settlement_notify_fetch_failed", "payment_id", payload.PaymentID, "error", err)
		return err
	}
	logger.Infow("worker_settlement_notified",
		"payment_id", payment.ID,
		"user_id", payment.UserID,
		"method", payment.Method,
		"status", payment.Status,
		"notified_status", payload.Status,
	)
	return nil
}
