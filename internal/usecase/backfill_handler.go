package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gonghuaze999-design/QuantAgrify/internal/connection"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
	domrepo "github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
	"github.com/gonghuaze999-design/QuantAgrify/internal/repository"
	pkgkafka "github.com/gonghuaze999-design/QuantAgrify/pkg/kafka"
)

// BackfillHandler consumes broker-routed backfill bars and lands them
// in the warehouse. It resolves the store through the manager on every
// message so credential swaps take effect mid-stream.
type BackfillHandler struct {
	topic   string
	manager *connection.Manager
	metrics domrepo.Metrics
}

func NewBackfillHandler(topic string, manager *connection.Manager, metrics domrepo.Metrics) *BackfillHandler {
	return &BackfillHandler{topic: topic, manager: manager, metrics: metrics}
}

func (h *BackfillHandler) Topic() string { return h.topic }

func (h *BackfillHandler) Handle(ctx context.Context, b []byte) error {
	var m repository.BarMessage
	if err := json.Unmarshal(b, &m); err != nil {
		if h.metrics != nil {
			h.metrics.RecordError("archive", "consumer_unmarshal")
		}
		return err
	}

	bar := m.ToBar()
	if err := bar.Validate(); err != nil {
		// poison rows go to the DLQ via the consumer's retry budget
		if h.metrics != nil {
			h.metrics.RecordError("archive", "consumer_malformed")
		}
		return err
	}

	store, err := h.manager.Warehouse()
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordError("archive", "consumer_unavailable")
		}
		return err
	}

	start := time.Now()
	if err := store.StoreBars(ctx, []models.Bar{bar}); err != nil {
		if h.metrics != nil {
			h.metrics.RecordError("archive", "consumer_store")
		}
		return err
	}
	if h.metrics != nil {
		h.metrics.RecordLatency("backfill_insert", time.Since(start).Seconds())
		h.metrics.RecordBackfill("consumer", 1)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*BackfillHandler)(nil)
