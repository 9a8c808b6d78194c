package registry

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrFull     = errors.New("capture session limit reached")
	ErrExists   = errors.New("capture session already registered")
	ErrNotFound = errors.New("capture session not registered")
)

// Session describes one live capture session.
type Session struct {
	ID       uuid.UUID `json:"id"`
	Owner    string    `json:"owner,omitempty"`
	Remote   string    `json:"remote"`
	OpenedAt time.Time `json:"openedAt"`
	LastSeen time.Time `json:"lastSeen"`
}

type Registry interface {
	// session lifecyle
	Acquire(s Session) error
	Release(id uuid.UUID) bool
	Touch(id uuid.UUID, at time.Time) error
	// queries
	Get(id uuid.UUID) (Session, bool)
	List() []Session
	// Stale returns sessions not seen since before.
	Stale(before time.Time) []Session
	Len() int
}
