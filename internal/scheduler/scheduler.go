package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/affiliora/internal/clock"
	obscontext "github.com/smallbiznis/affiliora/internal/observability/context"
	obslogger "github.com/smallbiznis/affiliora/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/affiliora/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/affiliora/internal/order/domain"
	"github.com/smallbiznis/affiliora/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobExpirePendingOrders = "expire_pending_orders"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Orders     orderdomain.Service
	Config     Config              `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	orders     orderdomain.Service
	obsMetrics *obsmetrics.Metrics
}

type job struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Orders == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		orders:     p.Orders,
		obsMetrics: p.ObsMetrics,
	}, nil
}

func (s *Scheduler) jobs() []job {
	return []job{
		{name: JobExpirePendingOrders, timeout: 30 * time.Second, run: s.ExpirePendingOrdersJob},
	}
}

// RunOnce runs every enabled job once. A job that times out is logged and
// skipped; other failures are joined into the returned error.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runJob(parent context.Context, j job) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, j.timeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	ctx, runID := correlation.EnsureCorrelationID(ctx)
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("job", j.name),
		zap.String("run_id", runID),
	)

	err := j.run(ctx)
	elapsed := s.clock.Now().Sub(start)
	switch {
	case err == nil:
		s.obsMetrics.RecordJobRun(ctx, j.name, "ok", elapsed)
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		// Soft timeout: the next tick picks up where this run stopped.
		s.obsMetrics.RecordJobRun(ctx, j.name, "timeout", elapsed)
		log.Warn("job timed out", zap.Duration("timeout", j.timeout), zap.Error(err))
		return nil
	default:
		s.obsMetrics.RecordJobRun(ctx, j.name, "error", elapsed)
		return fmt.Errorf("%s: %w", j.name, err)
	}
}

func (s *Scheduler) isJobEnabled(name string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), name) {
			return true
		}
	}
	return false
}

// ExpirePendingOrdersJob cancels orders whose payment never arrived within
// the payment TTL.
func (s *Scheduler) ExpirePendingOrdersJob(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.OrderPaymentTTL)
	expired, err := s.orders.ExpirePending(ctx, cutoff, s.cfg.BatchSize)
	if expired > 0 {
		obslogger.WithContext(ctx, s.log).Info("expired unpaid orders",
			zap.Int("count", expired),
			zap.Time("cutoff", cutoff),
		)
	}
	return err
}
