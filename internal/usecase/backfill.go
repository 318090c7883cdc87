package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gonghuaze999-design/QuantAgrify/internal/connection"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
	domrepo "github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
	applogger "github.com/gonghuaze999-design/QuantAgrify/pkg/logger"
)

// BackfillProcessor collects intraday gap-fill bars off the request
// path and routes them to the configured backend: "kafka" hands them
// to the broker, "warehouse" writes them directly. Either way the
// serving request never waits on the write.
type BackfillProcessor struct {
	backend string
	pub     domrepo.BackfillPublisher
	manager *connection.Manager
	metrics domrepo.Metrics
	l       *applogger.Logger

	buf     chan models.Bar
	batchSz int
	batchTO time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// BackfillConfig sizes the processor.
type BackfillConfig struct {
	Backend      string
	BufferSize   int
	BatchSize    int
	BatchTimeout time.Duration
}

func NewBackfillProcessor(cfg BackfillConfig, pub domrepo.BackfillPublisher, manager *connection.Manager, metrics domrepo.Metrics, l *applogger.Logger) (*BackfillProcessor, error) {
	switch cfg.Backend {
	case "kafka":
		if pub == nil {
			return nil, fmt.Errorf("kafka backfill needs a publisher")
		}
	case "warehouse":
		if manager == nil {
			return nil, fmt.Errorf("warehouse backfill needs a connection manager")
		}
	default:
		return nil, fmt.Errorf("unknown backfill backend: %s", cfg.Backend)
	}

	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 2 * time.Second
	}

	return &BackfillProcessor{
		backend: cfg.Backend,
		pub:     pub,
		manager: manager,
		metrics: metrics,
		l:       l,
		buf:     make(chan models.Bar, cfg.BufferSize),
		batchSz: cfg.BatchSize,
		batchTO: cfg.BatchTimeout,
	}, nil
}

// Start launches the flush worker.
func (p *BackfillProcessor) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.worker(ctx)
}

// Enqueue hands bars to the worker without blocking. A full buffer
// drops the overflow: backfill is opportunistic, the serving path must
// not stall on it.
func (p *BackfillProcessor) Enqueue(bars []models.Bar) {
	dropped := 0
	for _, b := range bars {
		select {
		case p.buf <- b:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		if p.l != nil {
			p.l.Warn("backfill buffer full, dropping bars",
				applogger.Int("dropped", dropped),
			)
		}
		if p.metrics != nil {
			p.metrics.RecordError(p.backend, "backfill_overflow")
		}
	}
}

func (p *BackfillProcessor) worker(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.batchTO)
	defer ticker.Stop()

	batch := make([]models.Bar, 0, p.batchSz)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.flush(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case b := <-p.buf:
			batch = append(batch, b)
			if len(batch) >= p.batchSz {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// drain what is already buffered, then stop
			for {
				select {
				case b := <-p.buf:
					batch = append(batch, b)
					if len(batch) >= p.batchSz {
						p.flush(context.Background(), batch)
						batch = batch[:0]
					}
				default:
					if len(batch) > 0 {
						p.flush(context.Background(), batch)
					}
					return
				}
			}
		}
	}
}

// flush writes one batch with bounded retries and backoff.
func (p *BackfillProcessor) flush(ctx context.Context, batch []models.Bar) {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = p.write(ctx, batch)
		if err == nil {
			if p.metrics != nil {
				p.metrics.RecordBackfill(p.backend, len(batch))
			}
			return
		}
		if attempt < maxAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
		}
	}

	if p.l != nil {
		p.l.Error("backfill flush failed, batch lost",
			applogger.String("backend", p.backend),
			applogger.Int("rows", len(batch)),
			applogger.Error(err),
		)
	}
	if p.metrics != nil {
		p.metrics.RecordError(p.backend, "backfill_flush")
	}
}

func (p *BackfillProcessor) write(ctx context.Context, batch []models.Bar) error {
	switch p.backend {
	case "kafka":
		return p.pub.Publish(ctx, batch)
	case "warehouse":
		store, err := p.manager.Warehouse()
		if err != nil {
			return err
		}
		return store.StoreBars(ctx, batch)
	default:
		return fmt.Errorf("unknown backfill backend: %s", p.backend)
	}
}

// Close stops the worker after draining the buffer.
func (p *BackfillProcessor) Close() {
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
		if p.pub != nil {
			_ = p.pub.Close()
		}
	})
}
