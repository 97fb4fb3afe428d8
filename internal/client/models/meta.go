package models

import (
	"errors"
	"fmt"
	"time"
)

// TimeLayout is the wire format of date_creation and date_modification.
const TimeLayout = time.RFC3339

var (
	ErrEmptyID          = errors.New("empty id")
	ErrInvalidAtteinte  = errors.New("invalid atteinte")
	ErrEmptyName        = errors.New("empty name")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// Entity is the minimal contract the sync engine needs from a record.
type Entity interface {
	EntityID() string
	Validate() error
}

// Stamper is implemented by pointers to records embedding Meta.
type Stamper interface {
	SetEntityID(id string)
	Stamp(now time.Time)
}

// Grouped is implemented by records that may belong to a Group.
type Grouped interface {
	Entity
	GroupRef() string
}

// Meta carries the fields shared by every syncable record.
type Meta struct {
	ID               string `json:"id"`
	DateCreation     string `json:"date_creation,omitempty"`
	DateModification string `json:"date_modification,omitempty"`
}

func (m Meta) EntityID() string { return m.ID }

// SetEntityID assigns the record id.
func (m *Meta) SetEntityID(id string) { m.ID = id }

// Stamp sets date_modification to now, and date_creation too when missing.
func (m *Meta) Stamp(now time.Time) {
	ts := now.UTC().Format(TimeLayout)
	if m.DateCreation == "" {
		m.DateCreation = ts
	}
	m.DateModification = ts
}

// ModifiedAt parses date_modification; the zero time is returned when unset.
func (m Meta) ModifiedAt() (time.Time, error) {
	if m.DateModification == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(TimeLayout, m.DateModification)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, m.DateModification)
	}
	return t, nil
}

func (m Meta) validate() error {
	if m.ID == "" {
		return ErrEmptyID
	}
	for _, ts := range []string{m.DateCreation, m.DateModification} {
		if ts == "" {
			continue
		}
		if _, err := time.Parse(TimeLayout, ts); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
		}
	}
	return nil
}
