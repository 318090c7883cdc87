package connection

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/errs"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
)

type fakeStore struct {
	id     string
	closed bool
}

func (f *fakeStore) FetchBars(ctx context.Context, symbol string, from, to time.Time, g repository.Granularity) (*repository.FetchResult, error) {
	return &repository.FetchResult{}, nil
}
func (f *fakeStore) StoreBars(ctx context.Context, bars []models.Bar) error { return nil }
func (f *fakeStore) Health(ctx context.Context) error                       { return nil }
func (f *fakeStore) Close() error                                           { f.closed = true; return nil }

type fakeOracle struct {
	closed bool
}

func (f *fakeOracle) Analyze(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}
func (f *fakeOracle) Close() error { f.closed = true; return nil }

func okFactories() (WarehouseFactory, OracleFactory, *[]*fakeStore) {
	var stores []*fakeStore
	wf := func(cred *ServiceCredential) (repository.ArchiveStore, error) {
		id := "ambient"
		if cred != nil {
			id = cred.ProjectID
		}
		s := &fakeStore{id: id}
		stores = append(stores, s)
		return s, nil
	}
	of := func(cred *ServiceCredential) (OracleAnalyzer, error) {
		return &fakeOracle{}, nil
	}
	return wf, of, &stores
}

func TestConnectAmbient(t *testing.T) {
	wf, of, _ := okFactories()
	m := NewManager(wf, of, "", "", nil)

	require.NoError(t, m.Connect(context.Background(), nil))

	st := m.State()
	assert.True(t, st.WarehouseReady)
	assert.True(t, st.OracleReady)
	assert.Equal(t, SourceAmbient, st.ResolvedFrom)
	assert.Empty(t, st.ActiveProject)

	_, err := m.Warehouse()
	assert.NoError(t, err)
}

func TestConnectRequestPayloadSwapsWholesale(t *testing.T) {
	wf, of, stores := okFactories()
	m := NewManager(wf, of, "", "", nil)
	require.NoError(t, m.Connect(context.Background(), nil))

	payload := json.RawMessage(`{"project_id":"proj-b"}`)
	require.NoError(t, m.Connect(context.Background(), payload))

	st := m.State()
	assert.Equal(t, "proj-b", st.ActiveProject)
	assert.Equal(t, SourceRequest, st.ResolvedFrom)

	// the first store must be closed after the swap
	require.Len(t, *stores, 2)
	assert.True(t, (*stores)[0].closed)
	assert.False(t, (*stores)[1].closed)
}

func TestConnectMalformedPayloadNoFallThrough(t *testing.T) {
	wf, of, stores := okFactories()
	m := NewManager(wf, of, "", "", nil)

	err := m.Connect(context.Background(), json.RawMessage(`{not json`))
	require.Error(t, err)
	assert.True(t, errs.IsAuth(err))
	// no factory ran: a broken explicit credential never falls back
	assert.Empty(t, *stores)

	_, werr := m.Warehouse()
	assert.ErrorIs(t, werr, errs.ErrBackendUnavailable)
	assert.NotEmpty(t, m.State().LastError)
}

func TestConnectMalformedSwapKeepsPriorState(t *testing.T) {
	wf, of, stores := okFactories()
	m := NewManager(wf, of, "", "", nil)

	payload := json.RawMessage(`{"project_id":"proj-a"}`)
	require.NoError(t, m.Connect(context.Background(), payload))

	err := m.Connect(context.Background(), json.RawMessage(`{not json`))
	require.Error(t, err)
	assert.True(t, errs.IsAuth(err))

	// the rejected swap never touches the established state
	st := m.State()
	assert.True(t, st.WarehouseReady)
	assert.True(t, st.OracleReady)
	assert.Equal(t, "proj-a", st.ActiveProject)
	assert.Equal(t, SourceRequest, st.ResolvedFrom)

	// the original backend handles keep serving
	require.Len(t, *stores, 1)
	assert.False(t, (*stores)[0].closed)
	store, werr := m.Warehouse()
	require.NoError(t, werr)
	assert.Same(t, (*stores)[0], store)

	_, oerr := m.Oracle()
	assert.NoError(t, oerr)
}

func TestConnectMissingProjectIDIsAuthError(t *testing.T) {
	wf, of, _ := okFactories()
	m := NewManager(wf, of, "", "", nil)

	err := m.Connect(context.Background(), json.RawMessage(`{"host":"x"}`))
	require.Error(t, err)
	assert.True(t, errs.IsAuth(err))
}

func TestConnectEnvTier(t *testing.T) {
	t.Setenv("TEST_QUANT_CRED", `{"project_id":"proj-env"}`)

	wf, of, _ := okFactories()
	m := NewManager(wf, of, "TEST_QUANT_CRED", "", nil)
	require.NoError(t, m.Connect(context.Background(), nil))

	st := m.State()
	assert.Equal(t, SourceEnv, st.ResolvedFrom)
	assert.Equal(t, "proj-env", st.ActiveProject)
}

func TestConnectFileTier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cred.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"project_id":"proj-file"}`), 0o600))

	wf, of, _ := okFactories()
	m := NewManager(wf, of, "UNSET_QUANT_CRED", path, nil)
	require.NoError(t, m.Connect(context.Background(), nil))

	st := m.State()
	assert.Equal(t, SourceFile, st.ResolvedFrom)
	assert.Equal(t, "proj-file", st.ActiveProject)
}

func TestConnectMalformedFileNoFallThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cred.json")
	require.NoError(t, os.WriteFile(path, []byte(`garbage`), 0o600))

	wf, of, _ := okFactories()
	m := NewManager(wf, of, "", path, nil)

	err := m.Connect(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errs.IsAuth(err))
}

func TestConnectDegradedWarehouse(t *testing.T) {
	wf := func(cred *ServiceCredential) (repository.ArchiveStore, error) {
		return nil, errors.New("dial refused")
	}
	_, of, _ := okFactories()
	m := NewManager(wf, of, "", "", nil)

	// degraded init is not an error: the oracle still comes up
	require.NoError(t, m.Connect(context.Background(), nil))

	st := m.State()
	assert.False(t, st.WarehouseReady)
	assert.True(t, st.OracleReady)
	assert.Contains(t, st.LastError, "dial refused")

	_, err := m.Warehouse()
	assert.ErrorIs(t, err, errs.ErrBackendUnavailable)
	_, err = m.Oracle()
	assert.NoError(t, err)
}

func TestCloseDropsBothBackends(t *testing.T) {
	wf, of, stores := okFactories()
	m := NewManager(wf, of, "", "", nil)
	require.NoError(t, m.Connect(context.Background(), nil))

	require.NoError(t, m.Close())
	assert.True(t, (*stores)[0].closed)

	_, err := m.Warehouse()
	assert.ErrorIs(t, err, errs.ErrBackendUnavailable)
}
