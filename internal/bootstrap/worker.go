package bootstrap

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"replyflow_server/adapter/in/worker"
	"replyflow_server/adapter/out/messaging"
	"replyflow_server/config"
	"replyflow_server/infra/database"
	"replyflow_server/pkg/health"
	"replyflow_server/pkg/logger"
)

type Worker struct {
	pool      *worker.Pool
	consumer  *messaging.Consumer
	scheduler *worker.Scheduler
	deps      *Dependencies
	workerID  string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	zlog   zerolog.Logger
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "replyflow-worker",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	if err := database.Migrate(context.Background(), deps.DB); err != nil {
		cleanup()
		return nil, nil, err
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	syncProcessor := worker.NewSyncProcessor(deps.SyncService)
	dispatchProcessor := worker.NewDispatchProcessor(deps.DispatchService)
	handler := worker.NewHandler(syncProcessor, dispatchProcessor)

	defaultConfig := worker.DefaultPoolConfig()
	poolConfig := &worker.PoolConfig{
		MinWorkers:       cfg.WorkerMin,
		MaxWorkers:       cfg.WorkerMax,
		QueueSize:        cfg.WorkerQueueSize,
		JobTimeout:       defaultConfig.JobTimeout,
		JobTimeoutByType: defaultConfig.JobTimeoutByType,
		BatchSize:        defaultConfig.BatchSize,
		WorkerChanSize:   defaultConfig.WorkerChanSize,
		MaxRetries:       defaultConfig.MaxRetries,
	}
	if poolConfig.MinWorkers == 0 {
		poolConfig.MinWorkers = 2
	}
	if poolConfig.MaxWorkers == 0 {
		poolConfig.MaxWorkers = 10
	}

	pool := worker.NewPool(handler, poolConfig, zlog)

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		pool:     pool,
		deps:     deps,
		workerID: cfg.WorkerID,
		ctx:      ctx,
		zlog:     zlog,
	}
	w.cancel = cancel

	w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
		Group:    "replyflow-workers",
		Consumer: cfg.WorkerID,
		Streams: []string{
			messaging.StreamTenantSync,
			messaging.StreamDispatchSend,
		},
		Handler:              worker.NewStreamBridge(pool),
		Logger:               zlog,
		BatchSize:            cfg.ConsumerBatchSize,
		BlockTime:            time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
		PendingCheckInterval: time.Duration(cfg.ConsumerPendingCheckSec) * time.Second,
		MaxRetries:           cfg.ConsumerMaxRetries,
	})

	if cfg.SchedulerEnabled {
		w.scheduler = worker.NewScheduler(
			deps.SyncService,
			deps.DispatchService,
			deps.Producer,
			deps.Health,
			worker.SchedulerConfig{
				SyncInterval:  cfg.SyncInterval,
				DispatchSweep: cfg.DispatchSweep,
				StaleRunAge:   cfg.StaleRunAge,
			},
		)
	}

	return w, cleanup, nil
}

// Start runs the pool, the stream consumer and the scheduler. Blocks until
// Stop is called.
func (w *Worker) Start() {
	w.pool.Start()
	w.deps.Health.MarkUp(health.ComponentSyncWorker)
	w.deps.Health.MarkUp(health.ComponentDispatchWorker)

	if w.scheduler != nil {
		w.scheduler.Start()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Run(w.ctx); err != nil && w.ctx.Err() == nil {
			logger.WithError(err).Error("stream consumer exited")
		}
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.heartbeat()
	}()

	logger.Info("worker started")
	w.wg.Wait()
}

// heartbeat publishes this worker's liveness and pool counters to Redis on
// an interval. The key expires on its own when the process dies, so the API
// side reports only workers that beat recently.
func (w *Worker) heartbeat() {
	ticker := time.NewTicker(health.WorkerBeatInterval)
	defer ticker.Stop()

	key := health.WorkerKey(w.workerID)
	beat := func() {
		payload, err := json.Marshal(map[string]any{
			"worker_id": w.workerID,
			"beat_at":   time.Now().UTC().Format(time.RFC3339),
			"pool":      w.pool.Metrics(),
		})
		if err != nil {
			return
		}
		if err := w.deps.Redis.Set(w.ctx, key, payload, health.WorkerBeatTTL).Err(); err != nil && w.ctx.Err() == nil {
			w.zlog.Warn().Err(err).Msg("worker heartbeat failed")
		}
	}

	beat()
	for {
		select {
		case <-w.ctx.Done():
			w.deps.Redis.Del(context.Background(), key)
			return
		case <-ticker.C:
			beat()
		}
	}
}

// Stop shuts everything down in dependency order: stop producing, drain
// the pool, then release the consumer.
func (w *Worker) Stop() {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	w.cancel()
	w.wg.Wait()

	w.pool.Stop()

	w.deps.Health.MarkDown(health.ComponentSyncWorker)
	w.deps.Health.MarkDown(health.ComponentDispatchWorker)
}
