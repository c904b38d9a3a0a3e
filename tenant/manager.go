// Package tenant manages the lifecycle of tenant databases: it keeps a
// registry and a storage engine in step when databases are created and
// deleted, and answers whether a caller may use a database.
package tenant

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Neos21/db-api/dberr"
	"github.com/Neos21/db-api/registry"
	"github.com/Neos21/db-api/store"
	"github.com/Neos21/db-api/telemetry"
	"github.com/Neos21/db-api/validate"
)

// Manager owns one engine family: its registry and the engine holding the
// artifacts. Names are only unique within a Manager.
type Manager struct {
	registry registry.Registry
	engine   store.Engine
	log      zerolog.Logger
}

func NewManager(reg registry.Registry, engine store.Engine, log zerolog.Logger) *Manager {
	return &Manager{
		registry: reg,
		engine:   engine,
		log:      telemetry.Component(log, "tenant").With().Str("family", engine.Family()).Logger(),
	}
}

// Family names the engine family this manager serves.
func (m *Manager) Family() string {
	return m.engine.Family()
}

// ValidateDBInput applies the naming and credential rules.
func (m *Manager) ValidateDBInput(name, credential string) error {
	return validate.DBInput(name, credential)
}

func (m *Manager) ExistsDBName(ctx context.Context, name string) (bool, error) {
	return m.registry.ExistsName(ctx, name)
}

func (m *Manager) ExistsDB(ctx context.Context, name, credential string) (bool, error) {
	return m.registry.Exists(ctx, name, credential)
}

// ListDBNames returns every registered name in creation order.
func (m *Manager) ListDBNames(ctx context.Context) ([]string, error) {
	return m.registry.Names(ctx)
}

// Authorize checks that name and credential are well formed and name a
// registered database. It is the gate in front of every data operation.
func (m *Manager) Authorize(ctx context.Context, name, credential string) error {
	if err := m.ValidateDBInput(name, credential); err != nil {
		return err
	}
	ok, err := m.ExistsDB(ctx, name, credential)
	if err != nil {
		return err
	}
	if !ok {
		return dberr.NotFoundf("The DB Does Not Exist")
	}
	return nil
}

// CreateDB initializes an empty artifact and then registers it. If
// registration fails the artifact stays on disk unreferenced; it is logged
// and left for an operator.
func (m *Manager) CreateDB(ctx context.Context, name, credential string) error {
	if err := m.ValidateDBInput(name, credential); err != nil {
		return err
	}
	exists, err := m.ExistsDBName(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return dberr.Conflictf("The Name Of DB Already Exists")
	}

	if err := m.engine.Init(ctx, name); err != nil {
		return err
	}
	if err := m.registry.Add(ctx, registry.Record{Name: name, Credential: credential}); err != nil {
		m.log.Warn().Err(err).Str("db_name", name).Msg("artifact created but not registered")
		return err
	}
	m.log.Info().Str("db_name", name).Msg("database created")
	return nil
}

// DeleteDB unregisters the database and then removes its artifact. The
// registry change stands even when the artifact cannot be removed.
func (m *Manager) DeleteDB(ctx context.Context, name, credential string) error {
	removed, err := m.registry.Remove(ctx, name, credential)
	if err != nil {
		return err
	}
	if !removed {
		return dberr.NotFoundf("The DB Does Not Exist")
	}
	if err := m.engine.Drop(ctx, name); err != nil {
		m.log.Warn().Err(err).Str("db_name", name).Msg("database unregistered but artifact not removed")
		return err
	}
	m.log.Info().Str("db_name", name).Msg("database deleted")
	return nil
}
