package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/conformsync/internal/client/api"
	"github.com/dmitrijs2005/conformsync/internal/client/models"
)

// Syncable is the table-independent view of a Collection.
type Syncable interface {
	Table() string
	Start(ctx context.Context) error
	Sync(ctx context.Context, trig Trigger) (api.Result, error)
	SyncNow(ctx context.Context) (api.Result, error)
	ReloadFromServer(ctx context.Context) error
	ResetSyncFailed(ctx context.Context) error
	State() State
	Close()
}

// Manager owns one collection per table for the lifetime of the client.
type Manager struct {
	Documents     *Grouped[models.Document]
	Exigences     *Grouped[models.Exigence]
	Membres       *Collection[models.Membre]
	Bibliotheque  *Grouped[models.LibraryItem]
	Collaboration *Grouped[models.CollaborationItem]

	deps   Deps
	tables []Syncable
}

func NewManager(deps Deps) *Manager {
	deps = deps.withDefaults()
	m := &Manager{
		Documents:     NewGrouped[models.Document](models.TableDocuments, models.TableDocumentGroups, deps),
		Exigences:     NewGrouped[models.Exigence](models.TableExigences, models.TableExigenceGroups, deps),
		Membres:       NewCollection[models.Membre](models.TableMembres, deps),
		Bibliotheque:  NewGrouped[models.LibraryItem](models.TableBibliotheque, models.TableBibliothequeGroups, deps),
		Collaboration: NewGrouped[models.CollaborationItem](models.TableCollaboration, models.TableCollaborationGroups, deps),
		deps:          deps,
	}
	m.tables = []Syncable{
		m.Documents.Items,
		m.Exigences.Items,
		m.Membres,
		m.Bibliotheque.Items,
		m.Collaboration.Items,
		m.Documents.Groups,
		m.Exigences.Groups,
		m.Bibliotheque.Groups,
		m.Collaboration.Groups,
	}
	return m
}

// Policy returns the effective policy.
func (m *Manager) Policy() Policy { return m.deps.Policy }

// Collections lists every table, in models.AllTables order.
func (m *Manager) Collections() []Syncable {
	return append([]Syncable(nil), m.tables...)
}

func (m *Manager) Collection(table string) (Syncable, error) {
	for _, s := range m.tables {
		if s.Table() == table {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
}

// Start starts every collection, groups first.
func (m *Manager) Start(ctx context.Context) error {
	var errs []error
	for _, s := range m.startOrder() {
		if err := s.Start(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Table(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) startOrder() []Syncable {
	out := make([]Syncable, 0, len(m.tables))
	out = append(out, m.tables[5:]...)
	return append(out, m.tables[:5]...)
}

// SyncAll syncs every table with trig and returns the per-table errors.
func (m *Manager) SyncAll(ctx context.Context, trig Trigger) map[string]error {
	out := make(map[string]error, len(m.tables))
	for _, s := range m.tables {
		_, err := s.Sync(ctx, trig)
		out[s.Table()] = err
	}
	return out
}

// ReloadAll reloads every table from the server. Tables holding unsynced
// local changes are skipped; their scheduled push wins.
func (m *Manager) ReloadAll(ctx context.Context) error {
	var errs []error
	for _, s := range m.startOrder() {
		err := s.ReloadFromServer(ctx)
		if errors.Is(err, ErrLocalChanges) {
			m.deps.Log.Info(ctx, "reload skipped, local changes pending", "table", s.Table())
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Table(), err))
		}
	}
	return errors.Join(errs...)
}

// ResetAll closes the failure circuit of every table.
func (m *Manager) ResetAll(ctx context.Context) error {
	var errs []error
	for _, s := range m.tables {
		if err := s.ResetSyncFailed(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Table(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) States() []State {
	out := make([]State, 0, len(m.tables))
	for _, s := range m.tables {
		out = append(out, s.State())
	}
	return out
}

func (m *Manager) Close() {
	for _, s := range m.tables {
		s.Close()
	}
}
