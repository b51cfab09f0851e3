package worker

import (
	"context"
	"errors"
	"time"

	"github.com/paymind-next/internal/config"
	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	defaultFXSweepInterval     = time.Minute
	defaultRampHealthInterval  = time.Minute
	defaultSessionSweepEnqueue = time.Minute
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil {
		if s.consumer.FXManager != nil {
			go s.runFXSweepLoop(ctx)
		}
		if s.consumer.RampManager != nil {
			go s.runRampHealthLoop(ctx)
		}
		if s.consumer.Queue.Enabled() {
			go s.runSessionSweepLoop(ctx)
		}
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

func (s *Service) runFXSweepLoop(ctx context.Context) {
	interval := defaultFXSweepInterval
	if s.consumer.Config != nil && s.consumer.Config.FX.SweepIntervalSec > 0 {
		interval = time.Duration(s.consumer.Config.FX.SweepIntervalSec) * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if purged := s.consumer.FXManager.PurgeExpiredLocks(); purged > 0 {
				logger.Debugw("worker_fx_locks_purged", "count", purged)
			}
		}
	}
}

func (s *Service) runRampHealthLoop(ctx context.Context) {
	interval := defaultRampHealthInterval
	if s.consumer.Config != nil && s.consumer.Config.Ramp.HealthIntervalSec > 0 {
		interval = time.Duration(s.consumer.Config.Ramp.HealthIntervalSec) * time.Second
	}
	runOnce := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		s.consumer.RampManager.CheckAllHealth(checkCtx)
		cancel()
	}
	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

func (s *Service) runSessionSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(defaultSessionSweepEnqueue)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload := queue.ProviderSessionSweepPayload{Limit: defaultSessionSweepLimit}
			if err := s.consumer.Queue.EnqueueProviderSessionSweep(payload); err != nil {
				logger.Warnw("worker_session_sweep_enqueue_failed", "error", err)
			}
		}
	}
}
