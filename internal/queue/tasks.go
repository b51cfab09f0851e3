package queue

import (
	"encoding/json"

	"github.com/paymind-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskEscrowAutoRelease 托管到期自动释放任务
	TaskEscrowAutoRelease = constants.TaskEscrowAutoRelease
	// TaskProviderSessionSweep 提供方会话超时清理任务
	TaskProviderSessionSweep = constants.TaskProviderSessionSweep
	// TaskSettlementNotify 结算结果通知任务
	TaskSettlementNotify = constants.TaskSettlementNotify
)

// EscrowAutoReleasePayload 托管自动释放任务载荷
type EscrowAutoReleasePayload struct {
	EscrowRef string `json:"escrow_ref"`
}

// ProviderSessionSweepPayload 会话超时清理任务载荷
type ProviderSessionSweepPayload struct {
	Limit int `json:"limit"`
}

// SettlementNotifyPayload 结算结果通知任务载荷
type SettlementNotifyPayload struct {
	PaymentID uint   `json:"payment_id"`
	Status    string `json:"status"`
}

// NewEscrowAutoReleaseTask 创建托管自动释放任务
func NewEscrowAutoReleaseTask(payload EscrowAutoReleasePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEscrowAutoRelease, body), nil
}

// NewProviderSessionSweepTask 创建会话超时清理任务
func NewProviderSessionSweepTask(payload ProviderSessionSweepPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProviderSessionSweep, body), nil
}

// NewSettlementNotifyTask 创建结算结果通知任务
func NewSettlementNotifyTask(payload SettlementNotifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementNotify, body), nil
}
