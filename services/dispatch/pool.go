package dispatch

import (
	"context"
	"errors"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arre-ops/arre_server/cmd/types"
)

var (
	// ErrQueueFull indicates the routing backlog is at capacity; the HTTP
	// layer maps it to 503 so senders back off.
	ErrQueueFull = errors.New("routing queue is full")

	// ErrPoolStopped rejects submissions that arrive during or after
	// shutdown.
	ErrPoolStopped = errors.New("routing pool has been shut down")
)

// Pool runs routing engines over a bounded work queue: many alerts in
// flight at once, each sequential inside its own worker, with backpressure
// when the backlog fills.
type Pool struct {
	workQueue chan *routeJob
	workers   int
	wg        sync.WaitGroup
	engine    *Engine
	started   bool
	closed    bool
	mu        sync.Mutex

	// Metrics
	processedCount int64
	errorCount     int64
	droppedCount   int64
	activeWorkers  int64
}

type routeJob struct {
	ctx         context.Context
	alert       *types.NormalizedAlert
	routingHint string
	resultCh    chan<- RouteResult
}

// RouteResult is the outcome of routing one alert.
type RouteResult struct {
	Record   *types.AlertRecord
	Err      error
	Duration time.Duration
}

// PoolConfig holds worker pool sizing.
type PoolConfig struct {
	// Workers is the number of worker goroutines. Default: GOMAXPROCS.
	Workers int

	// QueueSize is the work queue buffer. Default: Workers * 2.
	QueueSize int
}

// NewPool creates a routing pool around the engine
func NewPool(engine *Engine, config PoolConfig) *Pool {
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.Workers * 2
	}
	return &Pool{
		workQueue: make(chan *routeJob, config.QueueSize),
		workers:   config.Workers,
		engine:    engine,
	}
}

// Start launches the worker pool
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		log.Println("[POOL] Already started")
		return
	}

	log.Printf("[POOL] Starting with %d workers, queue size %d", p.workers, cap(p.workQueue))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.started = true
}

// SubmitWithResult queues one alert for routing and returns the channel
// its result will arrive on. Returns ErrQueueFull under backpressure and
// ErrPoolStopped once shutdown has begun. The send happens under the pool
// mutex so it can never race Shutdown's close of the queue.
func (p *Pool) SubmitWithResult(ctx context.Context, alert *types.NormalizedAlert, routingHint string) (<-chan RouteResult, error) {
	resultCh := make(chan RouteResult, 1)
	job := &routeJob{
		ctx:         ctx,
		alert:       alert,
		routingHint: routingHint,
		resultCh:    resultCh,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolStopped
	}

	select {
	case p.workQueue <- job:
		return resultCh, nil
	default:
		atomic.AddInt64(&p.droppedCount, 1)
		log.Printf("[POOL] Queue full, rejecting alert %s/%s", alert.Source, alert.AlertName)
		return nil, ErrQueueFull
	}
}

// Shutdown stops all workers after draining the queue
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.workQueue)
	p.mu.Unlock()

	log.Println("[POOL] Initiating shutdown...")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[POOL] All workers stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Println("[POOL] Shutdown timeout, some workers may not have completed")
	}

	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
}

// Stats returns current pool metrics
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		QueueSize:      len(p.workQueue),
		QueueCapacity:  cap(p.workQueue),
		ActiveWorkers:  int(atomic.LoadInt64(&p.activeWorkers)),
		TotalWorkers:   p.workers,
		ProcessedCount: atomic.LoadInt64(&p.processedCount),
		ErrorCount:     atomic.LoadInt64(&p.errorCount),
		DroppedCount:   atomic.LoadInt64(&p.droppedCount),
	}
}

// PoolStats holds routing pool metrics
type PoolStats struct {
	QueueSize      int   `json:"queue_size"`
	QueueCapacity  int   `json:"queue_capacity"`
	ActiveWorkers  int   `json:"active_workers"`
	TotalWorkers   int   `json:"total_workers"`
	ProcessedCount int64 `json:"processed_count"`
	ErrorCount     int64 `json:"error_count"`
	DroppedCount   int64 `json:"dropped_count"`
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.workQueue {
		atomic.AddInt64(&p.activeWorkers, 1)
		start := time.Now()

		record, err := p.engine.Process(job.ctx, job.alert, job.routingHint)

		atomic.AddInt64(&p.activeWorkers, -1)
		atomic.AddInt64(&p.processedCount, 1)
		if err != nil {
			atomic.AddInt64(&p.errorCount, 1)
		}

		result := RouteResult{Record: record, Err: err, Duration: time.Since(start)}
		select {
		case job.resultCh <- result:
		default:
			log.Printf("[POOL] Worker %d: result channel full for %s/%s",
				id, job.alert.Source, job.alert.AlertName)
		}
		close(job.resultCh)
	}
}
