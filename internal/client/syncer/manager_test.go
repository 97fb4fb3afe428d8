package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/client/api"
	"github.com/dmitrijs2005/conformsync/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Tables(t *testing.T) {
	e := newEnv(t)
	m := NewManager(e.deps)
	defer m.Close()

	var tables []string
	for _, s := range m.Collections() {
		tables = append(tables, s.Table())
	}
	assert.Equal(t, models.AllTables, tables)

	s, err := m.Collection(models.TableBibliothequeGroups)
	require.NoError(t, err)
	assert.Same(t, m.Bibliotheque.Groups, s)

	_, err = m.Collection("users")
	require.ErrorIs(t, err, ErrUnknownTable)
}

func TestManager_StartSyncAllReset(t *testing.T) {
	e := newEnv(t)
	m := NewManager(e.deps)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Start(ctx))
	assert.Equal(t, len(models.AllTables), e.api.loadCount())
	require.Len(t, m.States(), len(models.AllTables))

	e.api.setSyncErr(api.ErrTimeout)
	errs := m.SyncAll(ctx, TriggerBackground)
	require.Len(t, errs, len(models.AllTables))
	for table, err := range errs {
		require.ErrorIs(t, err, api.ErrTimeout, table)
	}
	for _, st := range m.States() {
		assert.True(t, st.SyncFailed, st.Table)
	}

	require.NoError(t, m.ResetAll(ctx))
	for _, st := range m.States() {
		assert.False(t, st.SyncFailed, st.Table)
	}

	require.NoError(t, m.ReloadAll(ctx))
	assert.Equal(t, 2*len(models.AllTables), e.api.loadCount())
}

func TestManager_EditableJSON(t *testing.T) {
	e := newEnv(t)
	m := NewManager(e.deps)
	defer m.Close()
	ctx := context.Background()

	ed, err := m.Editable(models.TableMembres)
	require.NoError(t, err)

	id, err := ed.AddJSON(ctx, []byte(`{"nom":"Durand","prenom":"Anne"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = ed.AddJSON(ctx, []byte(`{"fonction":"auditeur"}`))
	require.ErrorIs(t, err, models.ErrEmptyName)

	_, err = ed.AddJSON(ctx, []byte(`[`))
	require.Error(t, err)

	items, err := ed.ItemsJSON()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, string(items[0]), `"nom":"Durand"`)
	assert.Contains(t, string(items[0]), id)

	_, err = m.Editable("nope")
	require.ErrorIs(t, err, ErrUnknownTable)
}

func TestManager_DeleteGroupCascades(t *testing.T) {
	e := newEnv(t)
	m := NewManager(e.deps)
	defer m.Close()
	ctx := context.Background()

	g, err := m.Documents.Groups.Add(ctx, models.Group{Name: "Qualité"})
	require.NoError(t, err)
	_, err = m.Documents.Items.Add(ctx, models.Document{Nom: "A", GroupID: g.ID})
	require.NoError(t, err)
	_, err = m.Documents.Items.Add(ctx, models.Document{Nom: "B"})
	require.NoError(t, err)

	n, err := m.Delete(ctx, models.TableDocumentGroups, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, m.Documents.Groups.Items())
	require.Len(t, m.Documents.Items.Items(), 1)

	_, err = m.Delete(ctx, models.TableDocuments, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManager_ReloadAllSkipsPendingTables(t *testing.T) {
	e := newEnv(t)
	e.deps.Policy.DebounceDelay = time.Hour
	m := NewManager(e.deps)
	defer m.Close()
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))

	_, err := m.Membres.Add(ctx, models.Membre{Nom: "Local"})
	require.NoError(t, err)

	require.NoError(t, m.ReloadAll(ctx))
	assert.Equal(t, 2*len(models.AllTables)-1, e.api.loadCount())
	assert.Len(t, m.Membres.Items(), 1)
	assert.True(t, m.Membres.State().Pending)
}
