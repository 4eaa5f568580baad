package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/taskchase/backend/internal/infrastructure/outbox"
	"github.com/taskchase/backend/internal/infrastructure/sink"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// OutboxConfig controls how frequently the calendar outbox is drained.
type OutboxConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

// OutboxProcessor replays buffered calendar operations against the sink.
// Calendar ops are best-effort: after MaxRetries failed attempts an item is
// dropped with a warning rather than blocking the queue forever.
type OutboxProcessor struct {
	store   *outbox.Store
	monitor ConnectionHealth
	sink    SinkDispatcher
	logger  *zap.Logger
	cron    *cron.Cron
	cfg     OutboxConfig
}

func NewOutboxProcessor(
	store *outbox.Store,
	monitor ConnectionHealth,
	sinkClient SinkDispatcher,
	logger *zap.Logger,
	cfg OutboxConfig,
) *OutboxProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &OutboxProcessor{
		store:   store,
		monitor: monitor,
		sink:    sinkClient,
		logger:  logger,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
	}

	if _, err := p.cron.AddFunc(everySchedule(cfg.Interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := p.Drain(ctx); err != nil {
			p.logger.Error("outbox drain failed", zap.Error(err))
		}
	}); err != nil {
		logger.Error("failed to register outbox schedule", zap.Error(err))
	}

	return p
}

// Start launches the cron scheduler.
func (p *OutboxProcessor) Start() {
	if p == nil || p.cron == nil {
		return
	}
	p.cron.Start()
	p.logger.Info("outbox processor started")
}

// Stop gracefully stops the scheduler.
func (p *OutboxProcessor) Stop(ctx context.Context) {
	if p == nil || p.cron == nil {
		return
	}
	stopCtx := p.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	p.logger.Info("outbox processor stopped")
}

// Drain replays buffered items synchronously.
func (p *OutboxProcessor) Drain(ctx context.Context) error {
	if p == nil || p.store == nil {
		return nil
	}
	if p.monitor != nil && !p.monitor.IsOnline() {
		p.logger.Debug("skipping outbox drain (offline)")
		return nil
	}

	items, err := p.store.GetBatch(p.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := p.replay(ctx, item); err != nil {
			p.logger.Warn("outbox replay failed",
				zap.String("item_id", item.ID),
				zap.String("task_id", item.TaskID),
				zap.String("action", item.Action),
				zap.Error(err))

			item.Retries++
			if item.Retries >= p.cfg.MaxRetries {
				p.logger.Warn("dropping outbox item (max retries reached)",
					zap.String("item_id", item.ID),
					zap.String("action", item.Action))
				_ = p.store.Remove(item)
				continue
			}

			if err := p.store.Remove(item); err != nil {
				p.logger.Warn("failed to remove outbox item", zap.Error(err))
			}
			if err := p.store.Requeue(item); err != nil {
				p.logger.Error("failed to requeue outbox item", zap.Error(err))
			}
			continue
		}

		if err := p.store.Remove(item); err != nil {
			p.logger.Warn("failed to purge replayed outbox item", zap.Error(err))
		}
	}
	return nil
}

// Send attempts the operation immediately and falls back to persisting it.
func (p *OutboxProcessor) Send(ctx context.Context, payload sink.Payload) error {
	if p == nil || p.store == nil {
		return fmt.Errorf("outbox processor not configured")
	}

	err := p.sink.Dispatch(ctx, payload)
	if err == nil {
		return nil
	}
	p.logger.Warn("immediate calendar call failed, buffering",
		zap.String("task_id", payload.TaskID),
		zap.String("action", payload.ActionType),
		zap.Error(err))

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.store.Enqueue(outbox.Item{
		TaskID:  payload.TaskID,
		Action:  payload.ActionType,
		Payload: data,
	})
}

// Size returns the number of buffered items.
func (p *OutboxProcessor) Size() int {
	if p == nil || p.store == nil {
		return 0
	}
	size, err := p.store.Size()
	if err != nil {
		return 0
	}
	return size
}

func (p *OutboxProcessor) replay(ctx context.Context, item outbox.Item) error {
	var payload sink.Payload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return err
	}
	return p.sink.Dispatch(ctx, payload)
}
