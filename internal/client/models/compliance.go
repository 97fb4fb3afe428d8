package models

import "fmt"

// Atteinte is the conformity status of a document or exigence.
type Atteinte string

const (
	AtteinteNone                  Atteinte = ""
	AtteinteNonConforme           Atteinte = "NC"
	AtteintePartiellementConforme Atteinte = "PC"
	AtteinteConforme              Atteinte = "C"
)

// Valid reports whether a is one of the known statuses (empty means not assessed).
func (a Atteinte) Valid() bool {
	switch a {
	case AtteinteNone, AtteinteNonConforme, AtteintePartiellementConforme, AtteinteConforme:
		return true
	}
	return false
}

// Raci lists member ids per responsibility role.
type Raci struct {
	R []string `json:"r"`
	A []string `json:"a"`
	C []string `json:"c"`
	I []string `json:"i"`
}

// Document is a controlled document tracked for conformity.
type Document struct {
	Meta
	Nom             string   `json:"nom"`
	Fichier         string   `json:"fichier,omitempty"`
	Lien            string   `json:"lien,omitempty"`
	Responsabilites Raci     `json:"responsabilites"`
	Atteinte        Atteinte `json:"atteinte,omitempty"`
	Exclusion       bool     `json:"exclusion"`
	GroupID         string   `json:"groupId,omitempty"`
}

func (d Document) GroupRef() string { return d.GroupID }

func (d Document) Validate() error {
	if err := d.Meta.validate(); err != nil {
		return err
	}
	if !d.Atteinte.Valid() {
		return fmt.Errorf("document %s: %w %q", d.ID, ErrInvalidAtteinte, d.Atteinte)
	}
	return nil
}

// Exigence is a compliance requirement.
type Exigence struct {
	Meta
	Nom             string   `json:"nom"`
	Description     string   `json:"description,omitempty"`
	Responsabilites Raci     `json:"responsabilites"`
	Atteinte        Atteinte `json:"atteinte,omitempty"`
	Exclusion       bool     `json:"exclusion"`
	GroupID         string   `json:"groupId,omitempty"`
}

func (e Exigence) GroupRef() string { return e.GroupID }

func (e Exigence) Validate() error {
	if err := e.Meta.validate(); err != nil {
		return err
	}
	if !e.Atteinte.Valid() {
		return fmt.Errorf("exigence %s: %w %q", e.ID, ErrInvalidAtteinte, e.Atteinte)
	}
	return nil
}

// Membre is a team member that can be referenced from RACI fields.
type Membre struct {
	Meta
	Nom       string `json:"nom"`
	Prenom    string `json:"prenom"`
	Fonction  string `json:"fonction,omitempty"`
	Initiales string `json:"initiales,omitempty"`
	Email     string `json:"email,omitempty"`
}

func (m Membre) Validate() error {
	if err := m.Meta.validate(); err != nil {
		return err
	}
	if m.Nom == "" && m.Prenom == "" {
		return fmt.Errorf("membre %s: %w", m.ID, ErrEmptyName)
	}
	return nil
}
