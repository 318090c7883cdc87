package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonghuaze999-design/QuantAgrify/internal/connection"
	domrepo "github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
	"github.com/gonghuaze999-design/QuantAgrify/internal/repository"
)

func TestBackfillHandlerStoresBar(t *testing.T) {
	stored := &storingStore{}
	m := connection.NewManager(
		func(cred *connection.ServiceCredential) (domrepo.ArchiveStore, error) { return stored, nil },
		nil, "", "", nil,
	)
	require.NoError(t, m.Connect(context.Background(), nil))

	h := NewBackfillHandler("quant.backfill", m, nil)
	assert.Equal(t, "quant.backfill", h.Topic())

	msg := repository.NewBarMessage(minuteBar(0))
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), raw))
	require.Equal(t, 1, stored.count())
	assert.Equal(t, "C9999.XDCE", stored.bars[0].Symbol)
	assert.Equal(t, time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC), stored.bars[0].Date)
}

func TestBackfillHandlerRejectsGarbage(t *testing.T) {
	stored := &storingStore{}
	m := connection.NewManager(
		func(cred *connection.ServiceCredential) (domrepo.ArchiveStore, error) { return stored, nil },
		nil, "", "", nil,
	)
	require.NoError(t, m.Connect(context.Background(), nil))

	h := NewBackfillHandler("quant.backfill", m, nil)
	assert.Error(t, h.Handle(context.Background(), []byte("{malformed")))
	assert.Equal(t, 0, stored.count())
}

func TestBackfillHandlerRejectsInvalidBar(t *testing.T) {
	stored := &storingStore{}
	m := connection.NewManager(
		func(cred *connection.ServiceCredential) (domrepo.ArchiveStore, error) { return stored, nil },
		nil, "", "", nil,
	)
	require.NoError(t, m.Connect(context.Background(), nil))

	h := NewBackfillHandler("quant.backfill", m, nil)
	msg := repository.BarMessage{Symbol: "C9999.XDCE", TS: time.Now().Unix(), Open: 10, High: 5, Low: 9, Close: 10, Volume: 1}
	raw, _ := json.Marshal(msg)

	assert.Error(t, h.Handle(context.Background(), raw))
	assert.Equal(t, 0, stored.count())
}
