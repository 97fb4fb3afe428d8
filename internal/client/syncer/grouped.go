package syncer

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/conformsync/internal/client/models"
)

// GroupView is a group with its member records.
type GroupView[T any] struct {
	models.Group
	Items []T
}

// Associate distributes items over groups by groupId. Items referencing a
// missing group are returned as ungrouped.
func Associate[T models.Grouped](groups []models.Group, items []T) ([]GroupView[T], []T) {
	views := make([]GroupView[T], len(groups))
	index := make(map[string]int, len(groups))
	for i, g := range groups {
		views[i] = GroupView[T]{Group: g, Items: []T{}}
		index[g.ID] = i
	}

	ungrouped := []T{}
	for _, item := range items {
		if i, ok := index[item.GroupRef()]; ok && item.GroupRef() != "" {
			views[i].Items = append(views[i].Items, item)
			continue
		}
		ungrouped = append(ungrouped, item)
	}
	return views, ungrouped
}

// Grouped pairs the collection of a grouped area with its group table.
type Grouped[T models.Grouped] struct {
	Items  *Collection[T]
	Groups *Collection[models.Group]

	mu       sync.Mutex
	expanded map[string]bool
}

func NewGrouped[T models.Grouped](itemTable, groupTable string, deps Deps) *Grouped[T] {
	return &Grouped[T]{
		Items:    NewCollection[T](itemTable, deps),
		Groups:   NewCollection[models.Group](groupTable, deps),
		expanded: make(map[string]bool),
	}
}

// Start loads groups before items so the first view is consistent.
func (g *Grouped[T]) Start(ctx context.Context) error {
	if err := g.Groups.Start(ctx); err != nil {
		return err
	}
	return g.Items.Start(ctx)
}

// View returns the groups with their items and the ungrouped items.
func (g *Grouped[T]) View() ([]GroupView[T], []T) {
	views, ungrouped := Associate(g.Groups.Items(), g.Items.Items())

	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range views {
		views[i].Expanded = g.expanded[views[i].ID]
	}
	return views, ungrouped
}

// DeleteGroup removes a group and every item that belongs to it. It returns
// the number of removed items.
func (g *Grouped[T]) DeleteGroup(ctx context.Context, groupID string) (int, error) {
	if err := g.Groups.Delete(ctx, groupID); err != nil {
		return 0, err
	}

	g.mu.Lock()
	delete(g.expanded, groupID)
	g.mu.Unlock()

	return g.Items.DeleteWhere(ctx, func(item T) bool { return item.GroupRef() == groupID })
}

// ToggleExpanded flips the display state of a group. It is never persisted
// or synced.
func (g *Grouped[T]) ToggleExpanded(groupID string) (bool, error) {
	if _, ok := g.Groups.Get(groupID); !ok {
		return false, ErrNotFound
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expanded[groupID] = !g.expanded[groupID]
	return g.expanded[groupID], nil
}

func (g *Grouped[T]) Close() {
	g.Items.Close()
	g.Groups.Close()
}
