package worker

import (
	"context"
	"time"

	syncsvc "replyflow_server/core/service/sync"

	"replyflow_server/core/port/out"
	"replyflow_server/core/service/dispatch"
	"replyflow_server/pkg/health"
	"replyflow_server/pkg/logger"
)

const dueSweepBatch = 100

// SchedulerConfig holds the interval knobs.
type SchedulerConfig struct {
	SyncInterval  time.Duration
	DispatchSweep time.Duration
	StaleRunAge   time.Duration
}

// Scheduler is the heartbeat of the pipeline. Every SyncInterval it fans
// one tenant pass job per active tenant out to the sync stream, every
// DispatchSweep it re-publishes due dispatch jobs, and once a minute it
// releases sync locks held by crashed workers.
type Scheduler struct {
	syncService     *syncsvc.Service
	dispatchService *dispatch.Service
	producer        out.SyncProducer
	registry        *health.Registry
	cfg             SchedulerConfig
	log             *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(
	syncService *syncsvc.Service,
	dispatchService *dispatch.Service,
	producer out.SyncProducer,
	registry *health.Registry,
	cfg SchedulerConfig,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		syncService:     syncService,
		dispatchService: dispatchService,
		producer:        producer,
		registry:        registry,
		cfg:             cfg,
		log:             logger.WithField("component", "scheduler"),
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
	}
}

// Start starts the scheduler loops.
func (s *Scheduler) Start() {
	s.log.Info("scheduler starting: sync every %s, sweep every %s", s.cfg.SyncInterval, s.cfg.DispatchSweep)
	s.registry.MarkUp(health.ComponentScheduler)
	go s.run()
}

// Stop stops the scheduler and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.done
	s.registry.MarkDown(health.ComponentScheduler)
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer close(s.done)

	syncTicker := time.NewTicker(s.cfg.SyncInterval)
	defer syncTicker.Stop()
	sweepTicker := time.NewTicker(s.cfg.DispatchSweep)
	defer sweepTicker.Stop()
	staleTicker := time.NewTicker(time.Minute)
	defer staleTicker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-syncTicker.C:
			s.registry.Beat(health.ComponentScheduler)
			s.tickSync()
		case <-sweepTicker.C:
			s.tickSweep()
		case <-staleTicker.C:
			s.tickStaleRuns()
		}
	}
}

// tickSync publishes one tenant pass job per active tenant. A tenant whose
// previous pass is still running will bounce off the sync run lock, so
// overlapping ticks are harmless.
func (s *Scheduler) tickSync() {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	tenants, err := s.syncService.ListActiveTenants(ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to list active tenants")
		return
	}

	for _, t := range tenants {
		if err := s.producer.PublishTenantSync(ctx, t.ID); err != nil {
			s.log.WithTenant(t.ID).WithError(err).Error("failed to publish tenant sync")
		}
	}
}

func (s *Scheduler) tickSweep() {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	n, err := s.dispatchService.SweepDue(ctx, dueSweepBatch)
	if err != nil {
		s.log.WithError(err).Error("due sweep failed")
		return
	}
	if n > 0 {
		s.log.WithField("count", n).Info("re-published due dispatch jobs")
	}
}

func (s *Scheduler) tickStaleRuns() {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	n, err := s.syncService.ReleaseStaleRuns(ctx, s.cfg.StaleRunAge)
	if err != nil {
		s.log.WithError(err).Error("stale run release failed")
		return
	}
	if n > 0 {
		s.log.WithField("count", n).Warn("released stale sync runs")
	}
}
