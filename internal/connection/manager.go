package connection

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/errs"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
	applogger "github.com/gonghuaze999-design/QuantAgrify/pkg/logger"
)

// OracleAnalyzer is the upstream analysis service the manager connects
// alongside the warehouse.
type OracleAnalyzer interface {
	Analyze(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	Close() error
}

// WarehouseFactory builds an archive store for a resolved credential.
// A nil credential means ambient configuration.
type WarehouseFactory func(cred *ServiceCredential) (repository.ArchiveStore, error)

// OracleFactory builds an oracle client for a resolved credential.
type OracleFactory func(cred *ServiceCredential) (OracleAnalyzer, error)

// State is a point-in-time snapshot of connection health.
type State struct {
	WarehouseReady bool
	OracleReady    bool
	ActiveProject  string
	ResolvedFrom   CredentialSource
	LastError      string
}

// Manager owns both backend handles and swaps them wholesale when new
// credentials arrive. Readers never observe a half-swapped pair.
type Manager struct {
	mu        sync.RWMutex
	warehouse repository.ArchiveStore
	oracle    OracleAnalyzer
	state     State

	newWarehouse WarehouseFactory
	newOracle    OracleFactory
	envVar       string
	filePath     string
	l            *applogger.Logger
}

// NewManager creates a disconnected manager. Connect must run before
// the backend accessors return anything.
func NewManager(wf WarehouseFactory, of OracleFactory, envVar, filePath string, l *applogger.Logger) *Manager {
	return &Manager{
		newWarehouse: wf,
		newOracle:    of,
		envVar:       envVar,
		filePath:     filePath,
		l:            l,
	}
}

// Connect resolves credentials and rebuilds both backends. A nil
// payload re-resolves from the static tiers, so startup and hot-swap
// share one path.
//
// Resolution failure is the only hard error. A backend that resolves
// but will not come up leaves the engine degraded: its ready flag drops,
// the failure is recorded in state, and the other backend still swaps.
func (m *Manager) Connect(ctx context.Context, payload json.RawMessage) error {
	cred, source, err := ResolveCredential(payload, m.envVar, m.filePath)
	if err != nil {
		m.mu.Lock()
		m.state.LastError = err.Error()
		m.mu.Unlock()
		if m.l != nil {
			m.l.Error("credential resolution failed",
				applogger.String("source", string(source)),
				applogger.Error(err),
			)
		}
		return err
	}

	next := State{ResolvedFrom: source}
	if cred != nil {
		next.ActiveProject = cred.ProjectID
	}

	var warehouse repository.ArchiveStore
	if m.newWarehouse != nil {
		warehouse, err = m.newWarehouse(cred)
		if err != nil {
			next.LastError = err.Error()
			if m.l != nil {
				m.l.Error("warehouse connect failed", applogger.Error(err))
			}
		} else {
			next.WarehouseReady = true
		}
	}

	var oracle OracleAnalyzer
	if m.newOracle != nil {
		oracle, err = m.newOracle(cred)
		if err != nil {
			next.LastError = err.Error()
			if m.l != nil {
				m.l.Error("oracle connect failed", applogger.Error(err))
			}
		} else {
			next.OracleReady = true
		}
	}

	m.mu.Lock()
	oldWarehouse, oldOracle := m.warehouse, m.oracle
	m.warehouse = warehouse
	m.oracle = oracle
	m.state = next
	m.mu.Unlock()

	// Close the replaced handles outside the lock; in-flight requests
	// holding the old store finish against the old pool.
	if oldWarehouse != nil {
		_ = oldWarehouse.Close()
	}
	if oldOracle != nil {
		_ = oldOracle.Close()
	}

	if m.l != nil {
		m.l.Info("connection swap complete",
			applogger.String("resolved_from", string(source)),
			applogger.String("project", next.ActiveProject),
			applogger.Bool("warehouse_ready", next.WarehouseReady),
			applogger.Bool("oracle_ready", next.OracleReady),
		)
	}
	return nil
}

// Warehouse returns the live archive store or ErrBackendUnavailable.
func (m *Manager) Warehouse() (repository.ArchiveStore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.warehouse == nil || !m.state.WarehouseReady {
		return nil, errs.ErrBackendUnavailable
	}
	return m.warehouse, nil
}

// Oracle returns the live analyzer or ErrBackendUnavailable.
func (m *Manager) Oracle() (OracleAnalyzer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.oracle == nil || !m.state.OracleReady {
		return nil, errs.ErrBackendUnavailable
	}
	return m.oracle, nil
}

// State returns a snapshot of connection health.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// RecordError stores a runtime failure in the state snapshot so the
// status endpoint can surface it without scraping logs.
func (m *Manager) RecordError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.state.LastError = err.Error()
	m.mu.Unlock()
}

// Close releases both backends.
func (m *Manager) Close() error {
	m.mu.Lock()
	warehouse, oracle := m.warehouse, m.oracle
	m.warehouse, m.oracle = nil, nil
	m.state.WarehouseReady, m.state.OracleReady = false, false
	m.mu.Unlock()

	if warehouse != nil {
		_ = warehouse.Close()
	}
	if oracle != nil {
		_ = oracle.Close()
	}
	return nil
}
