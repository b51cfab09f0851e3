package service

import (
	"fmt"
	"strings"

	"github.com/paymind-next/internal/cardproc"
	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/models"
)

// HandleCardWebhook 处理收单回调。
// 回调在 handler 层完成验签，这里只做状态推进。
// 已完成记录的重复回调是幂等空操作。
func (s *PaymentService) HandleCardWebhook(event *cardproc.WebhookEvent) (*models.Payment, error) {
	payment, err := s.locateCardPayment(event)
	if err != nil {
		return nil, err
	}
	if payment.IsTerminal() {
		logger.Debugw("card_webhook_ignored_terminal",
			"payment_id", payment.ID,
			"status", payment.Status,
			"event_id", event.EventID,
		)
		return payment, nil
	}

	switch event.Status {
	case cardproc.StatusSuccess:
		s.markCompleted(payment, event.ProviderRef)
		payment.Metadata = mergeJSON(payment.Metadata, models.JSON{
			"card_event_id": event.EventID,
			"card_paid_at":  event.PaidAt,
		})
		if err := s.paymentRepo.Update(payment); err != nil {
			return nil, err
		}
		s.postProcess(payment, metadataString(payment.Metadata, "order_type"), metadataUint(payment.Metadata, "ref_user_id"))
		logger.Infow("card_webhook_completed", "payment_id", payment.ID, "event_id", event.EventID)
	case cardproc.StatusFailed, cardproc.StatusExpired:
		payment.Status = constants.PaymentStatusFailed
		payment.Metadata = mergeJSON(payment.Metadata, models.JSON{"card_event_id": event.EventID})
		if err := s.paymentRepo.Update(payment); err != nil {
			return nil, err
		}
		logger.Warnw("card_webhook_failed", "payment_id", payment.ID, "event_id", event.EventID)
	default:
		// pending 回调不推进状态
	}
	return payment, nil
}

func (s *PaymentService) locateCardPayment(event *cardproc.WebhookEvent) (*models.Payment, error) {
	if event.SessionRef != "" {
		payment, err := s.paymentRepo.GetBySessionID(event.SessionRef)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return payment, nil
		}
	}
	if event.PaymentID != 0 {
		payment, err := s.paymentRepo.GetByID(uint(event.PaymentID))
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return payment, nil
		}
	}
	return nil, fmt.Errorf("%w: session_ref=%s payment_id=%d", ErrPaymentNotFound, event.SessionRef, event.PaymentID)
}

// ProviderWebhookInput 出入金提供方回调
type ProviderWebhookInput struct {
	SessionID   string
	Status      string
	TxHash      string
	ProviderRef string
}

// HandleProviderWebhook 处理提供方回调，推进会话与结算记录。
// 已完成会话的重复 completed 回调是幂等空操作。
func (s *PaymentService) HandleProviderWebhook(input ProviderWebhookInput) (*models.Payment, error) {
	session, err := s.sessionRepo.GetBySessionID(input.SessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, input.SessionID)
	}

	payment, err := s.paymentRepo.GetByID(session.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: session %s", ErrPaymentNotFound, input.SessionID)
	}

	status := strings.ToLower(strings.TrimSpace(input.Status))
	if session.Status == constants.SessionStatusCompleted {
		logger.Debugw("provider_webhook_ignored_completed", "session_id", session.SessionID, "status", status)
		return payment, nil
	}

	switch status {
	case constants.SessionStatusCompleted:
		now := s.now()
		session.Status = constants.SessionStatusCompleted
		session.CompletedAt = &now
		if input.ProviderRef != "" {
			session.ProviderRef = input.ProviderRef
		}
		if err := s.sessionRepo.Update(session); err != nil {
			return nil, err
		}
		if !payment.IsTerminal() {
			txHash := input.TxHash
			if txHash == "" {
				txHash = session.ProviderRef
			}
			s.markCompleted(payment, txHash)
			if err := s.paymentRepo.Update(payment); err != nil {
				return nil, err
			}
			s.postProcess(payment, metadataString(payment.Metadata, "order_type"), metadataUint(payment.Metadata, "ref_user_id"))
		}
		logger.Infow("provider_webhook_completed",
			"session_id", session.SessionID,
			"payment_id", payment.ID,
			"provider_id", session.ProviderID,
		)
	case constants.SessionStatusFailed:
		session.Status = constants.SessionStatusFailed
		if err := s.sessionRepo.Update(session); err != nil {
			return nil, err
		}
		if !payment.IsTerminal() {
			payment.Status = constants.PaymentStatusFailed
			if err := s.paymentRepo.Update(payment); err != nil {
				return nil, err
			}
		}
		logger.Warnw("provider_webhook_failed", "session_id", session.SessionID, "payment_id", payment.ID)
	default:
		logger.Debugw("provider_webhook_ignored", "session_id", session.SessionID, "status", status)
	}
	return payment, nil
}

// ConfirmProviderSession 客户端显式确认会话完成，与 completed 回调等价
func (s *PaymentService) ConfirmProviderSession(sessionID, txHash string) (*models.Payment, error) {
	return s.HandleProviderWebhook(ProviderWebhookInput{
		SessionID: sessionID,
		Status:    constants.SessionStatusCompleted,
		TxHash:    txHash,
	})
}

// GetProviderSession 查询提供方会话
func (s *PaymentService) GetProviderSession(sessionID string) (*models.ProviderSession, error) {
	session, err := s.sessionRepo.GetBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return session, nil
}

// UpdatePaymentStatusByHash 根据链上交易哈希推进结算状态（中继回报）
func (s *PaymentService) UpdatePaymentStatusByHash(txHash, status string) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetLatestByTransactionHash(txHash)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: tx_hash=%s", ErrPaymentNotFound, txHash)
	}
	if payment.IsTerminal() {
		return payment, nil
	}
	switch status {
	case constants.PaymentStatusCompleted:
		s.markCompleted(payment, txHash)
		if err := s.paymentRepo.Update(payment); err != nil {
			return nil, err
		}
		s.postProcess(payment, metadataString(payment.Metadata, "order_type"), metadataUint(payment.Metadata, "ref_user_id"))
	case constants.PaymentStatusFailed:
		payment.Status = constants.PaymentStatusFailed
		if err := s.paymentRepo.Update(payment); err != nil {
			return nil, err
		}
	}
	return payment, nil
}

// SweepExpiredSessions 清理超时会话：会话置为 expired，未终态结算记录置为 FAILED
func (s *PaymentService) SweepExpiredSessions(limit int) (int, error) {
	sessions, err := s.sessionRepo.ListExpired(s.now(), limit)
	if err != nil {
		return 0, err
	}
	swept := 0
	for i := range sessions {
		session := &sessions[i]
		session.Status = constants.SessionStatusExpired
		if err := s.sessionRepo.Update(session); err != nil {
			logger.Warnw("session_expire_update_failed", "session_id", session.SessionID, "error", err)
			continue
		}
		payment, err := s.paymentRepo.GetByID(session.PaymentID)
		if err != nil || payment == nil {
			logger.Warnw("session_expire_payment_missing", "session_id", session.SessionID, "error", err)
			continue
		}
		if !payment.IsTerminal() {
			payment.Status = constants.PaymentStatusFailed
			if err := s.paymentRepo.Update(payment); err != nil {
				logger.Warnw("session_expire_payment_update_failed", "payment_id", payment.ID, "error", err)
				continue
			}
		}
		swept++
	}
	if swept > 0 {
		logger.Infow("provider_sessions_swept", "count", swept)
	}
	return swept, nil
}

func mergeJSON(base, patch models.JSON) models.JSON {
	merged := make(models.JSON, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

func metadataString(metadata models.JSON, key string) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}

func metadataUint(metadata models.JSON, key string) uint {
	if metadata == nil {
		return 0
	}
	switch v := metadata[key].(type) {
	case uint:
		return v
	case int:
		if v > 0 {
			return uint(v)
		}
	case float64:
		if v > 0 {
			return uint(v)
		}
	}
	return 0
}
