package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonghuaze999-design/QuantAgrify/internal/connection"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
	domrepo "github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
)

type capturePublisher struct {
	mu    sync.Mutex
	bars  []models.Bar
	fails int // fail this many Publish calls before succeeding
}

func (p *capturePublisher) Publish(ctx context.Context, bars []models.Bar) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fails > 0 {
		p.fails--
		return errors.New("broker unavailable")
	}
	p.bars = append(p.bars, bars...)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bars)
}

func minuteBar(minute int) models.Bar {
	return models.Bar{
		Symbol: "C9999.XDCE",
		Date:   time.Date(2025, 3, 15, 9, 30+minute, 0, 0, time.UTC),
		Open:   10, High: 11, Low: 9, Close: 10.5, Volume: 5,
	}
}

func TestBackfillFlushOnBatchSize(t *testing.T) {
	pub := &capturePublisher{}
	p, err := NewBackfillProcessor(BackfillConfig{Backend: "kafka", BatchSize: 3, BatchTimeout: time.Hour}, pub, nil, nil, nil)
	require.NoError(t, err)
	p.Start(context.Background())
	defer p.Close()

	p.Enqueue([]models.Bar{minuteBar(0), minuteBar(1), minuteBar(2)})

	assert.Eventually(t, func() bool { return pub.count() == 3 }, time.Second, 10*time.Millisecond)
}

func TestBackfillFlushOnTimeout(t *testing.T) {
	pub := &capturePublisher{}
	p, err := NewBackfillProcessor(BackfillConfig{Backend: "kafka", BatchSize: 100, BatchTimeout: 20 * time.Millisecond}, pub, nil, nil, nil)
	require.NoError(t, err)
	p.Start(context.Background())
	defer p.Close()

	p.Enqueue([]models.Bar{minuteBar(0)})

	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestBackfillRetriesTransientFailure(t *testing.T) {
	pub := &capturePublisher{fails: 1}
	p, err := NewBackfillProcessor(BackfillConfig{Backend: "kafka", BatchSize: 1, BatchTimeout: time.Hour}, pub, nil, nil, nil)
	require.NoError(t, err)
	p.Start(context.Background())
	defer p.Close()

	p.Enqueue([]models.Bar{minuteBar(0)})

	assert.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestBackfillDrainsOnClose(t *testing.T) {
	pub := &capturePublisher{}
	p, err := NewBackfillProcessor(BackfillConfig{Backend: "kafka", BatchSize: 100, BatchTimeout: time.Hour}, pub, nil, nil, nil)
	require.NoError(t, err)
	p.Start(context.Background())

	p.Enqueue([]models.Bar{minuteBar(0), minuteBar(1)})
	p.Close()

	assert.Equal(t, 2, pub.count())
}

func TestBackfillWarehouseRoute(t *testing.T) {
	stored := &storingStore{}
	m := connection.NewManager(
		func(cred *connection.ServiceCredential) (domrepo.ArchiveStore, error) { return stored, nil },
		nil, "", "", nil,
	)
	require.NoError(t, m.Connect(context.Background(), nil))

	p, err := NewBackfillProcessor(BackfillConfig{Backend: "warehouse", BatchSize: 2, BatchTimeout: time.Hour}, nil, m, nil, nil)
	require.NoError(t, err)
	p.Start(context.Background())
	defer p.Close()

	p.Enqueue([]models.Bar{minuteBar(0), minuteBar(1)})

	assert.Eventually(t, func() bool { return stored.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestBackfillRejectsUnknownBackend(t *testing.T) {
	_, err := NewBackfillProcessor(BackfillConfig{Backend: "carrier-pigeon"}, nil, nil, nil, nil)
	assert.Error(t, err)
}

type storingStore struct {
	mu   sync.Mutex
	bars []models.Bar
}

func (s *storingStore) FetchBars(ctx context.Context, symbol string, from, to time.Time, g domrepo.Granularity) (*domrepo.FetchResult, error) {
	return &domrepo.FetchResult{}, nil
}
func (s *storingStore) StoreBars(ctx context.Context, bars []models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars = append(s.bars, bars...)
	return nil
}
func (s *storingStore) Health(ctx context.Context) error { return nil }
func (s *storingStore) Close() error                     { return nil }

func (s *storingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bars)
}
