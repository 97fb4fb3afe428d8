package syncer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/conformsync/internal/client/models"
)

// Editable is the table-independent editing surface used by front ends
// that only deal with JSON documents.
type Editable interface {
	Syncable
	AddJSON(ctx context.Context, raw []byte) (string, error)
	ItemsJSON() ([]json.RawMessage, error)
	Delete(ctx context.Context, ids ...string) error
}

// AddJSON decodes raw into a record and adds it. It returns the record id.
func (c *Collection[T]) AddJSON(ctx context.Context, raw []byte) (string, error) {
	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		return "", fmt.Errorf("decode %s record: %w", c.table, err)
	}
	added, err := c.Add(ctx, item)
	if err != nil {
		return "", err
	}
	return added.EntityID(), nil
}

// ItemsJSON returns the current records encoded one by one.
func (c *Collection[T]) ItemsJSON() ([]json.RawMessage, error) {
	items := c.Items()
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *Manager) Editable(table string) (Editable, error) {
	s, err := m.Collection(table)
	if err != nil {
		return nil, err
	}
	e, ok := s.(Editable)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not editable", ErrUnknownTable, table)
	}
	return e, nil
}

// Delete removes records of table. Deleting groups also removes their
// items; the number of such cascaded items is returned.
func (m *Manager) Delete(ctx context.Context, table string, ids ...string) (int, error) {
	var cascade func(ctx context.Context, groupID string) (int, error)
	switch table {
	case models.TableDocumentGroups:
		cascade = m.Documents.DeleteGroup
	case models.TableExigenceGroups:
		cascade = m.Exigences.DeleteGroup
	case models.TableBibliothequeGroups:
		cascade = m.Bibliotheque.DeleteGroup
	case models.TableCollaborationGroups:
		cascade = m.Collaboration.DeleteGroup
	}

	if cascade == nil {
		e, err := m.Editable(table)
		if err != nil {
			return 0, err
		}
		return 0, e.Delete(ctx, ids...)
	}

	total := 0
	for _, id := range ids {
		n, err := cascade(ctx, id)
		if err != nil {
			return total, fmt.Errorf("group %s: %w", id, err)
		}
		total += n
	}
	return total, nil
}
