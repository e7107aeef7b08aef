package session

import (
	"time"

	"github.com/mordechaipotash/talmudic-study-app/models"
)

// Store manages navigation sessions.
type Store interface {
	EnsureSession(id string, ttl time.Duration) (Session, error)
	GetSession(id string) (Session, error)
}

// Session holds one user's study path. Implementations own their locking; the
// HTTP layer treats a session as a single logical actor.
type Session interface {
	ID() string
	Expire(ttl time.Duration)
	State() (models.NavigationState, error)
	Append(ref string) error
	TruncateToParent() error
	Clear() error
	ToggleExpanded(ref string) error
	// SetExpandedCommentary opens one commentary under a section, replacing
	// whatever was open there; an empty ref closes the section.
	SetExpandedCommentary(sectionRef, commentaryRef string) error
}
