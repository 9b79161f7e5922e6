package main

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-hooks/adapters/gocommand"
	hookcommand "github.com/goliatone/go-hooks/command"
	"github.com/goliatone/go-hooks/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/robfig/cron/v3"
)

// cronLogger routes robfig/cron's logging into glog.
type cronLogger struct {
	logger glog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}

var _ cron.Logger = cronLogger{}

// newPruneScheduler runs PruneDeliveriesMessage through the command bus on
// spec. Overlapping runs are skipped.
func newPruneScheduler(spec string, logger glog.Logger) (*cron.Cron, error) {
	clog := cronLogger{logger: logger}
	scheduler := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	if _, err := scheduler.AddFunc(spec, func() {
		ctx := context.Background()
		deleted, err := pruneDeliveries(ctx)
		if err != nil {
			logger.Error("prune deliveries failed", "error", err)
			return
		}
		logger.Info("pruned deliveries", "deleted", deleted)
	}); err != nil {
		return nil, fmt.Errorf("schedule prune %q: %w", spec, err)
	}
	return scheduler, nil
}

func pruneDeliveries(ctx context.Context) (int, error) {
	collector := command.NewResult[int]()
	ctx = command.ContextWithResult(ctx, collector)
	if err := gocommand.Dispatch(ctx, hookcommand.PruneDeliveriesMessage{}); err != nil {
		return 0, err
	}
	deleted, _ := collector.Load()
	return deleted, nil
}

// runDispatchLoop hands committed jobs to the queue every interval until
// ctx is cancelled.
func runDispatchLoop(
	ctx context.Context,
	dispatcher core.DeliveryDispatcher,
	interval time.Duration,
	batch int,
	logger glog.Logger,
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := dispatcher.DispatchPending(ctx, batch); err != nil && ctx.Err() == nil {
			logger.Error("dispatch pending deliveries failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
