package models

import "fmt"

// LibraryItem is an entry of the bibliotheque area.
type LibraryItem struct {
	Meta
	Nom         string `json:"nom"`
	Description string `json:"description,omitempty"`
	Lien        string `json:"lien,omitempty"`
	Fichier     string `json:"fichier,omitempty"`
	GroupID     string `json:"groupId,omitempty"`
}

func (l LibraryItem) GroupRef() string { return l.GroupID }

func (l LibraryItem) Validate() error { return l.Meta.validate() }

// CollaborationItem is an entry of the collaboration area. It has the same
// shape as LibraryItem but lives in its own table.
type CollaborationItem struct {
	Meta
	Nom         string `json:"nom"`
	Description string `json:"description,omitempty"`
	Lien        string `json:"lien,omitempty"`
	Fichier     string `json:"fichier,omitempty"`
	GroupID     string `json:"groupId,omitempty"`
}

func (c CollaborationItem) GroupRef() string { return c.GroupID }

func (c CollaborationItem) Validate() error { return c.Meta.validate() }

// Group is a named container of grouped records. Expanded is UI state only
// and is never sent to the server.
type Group struct {
	Meta
	Name     string `json:"name"`
	UserID   string `json:"userId,omitempty"`
	Expanded bool   `json:"-"`
}

func (g Group) Validate() error {
	if err := g.Meta.validate(); err != nil {
		return err
	}
	if g.Name == "" {
		return fmt.Errorf("group %s: %w", g.ID, ErrEmptyName)
	}
	return nil
}
