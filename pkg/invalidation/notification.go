package invalidation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethpandaops/partcache/pkg/catalog"
	"github.com/google/uuid"
)

// Kind is the scope of a catalog change notification
type Kind string

const (
	// KindRelation invalidates everything cached about one relation
	KindRelation Kind = "relation"
	// KindAll invalidates every cache, e.g. after the extension was reloaded
	KindAll Kind = "all"
	// KindShutdown announces that the partitioning configuration may be going away
	KindShutdown Kind = "shutdown"
)

// Notification is a catalog change notification
type Notification struct {
	ID     uuid.UUID     `json:"id"`
	Kind   Kind          `json:"kind"`
	RelID  catalog.RelID `json:"relid,omitempty"`
	SentAt time.Time     `json:"sent_at"`
}

// NewNotification creates a notification with a fresh identifier
func NewNotification(kind Kind, relid catalog.RelID) Notification {
	return Notification{
		ID:     uuid.New(),
		Kind:   kind,
		RelID:  relid,
		SentAt: time.Now().UTC(),
	}
}

// RelationChanged creates a notification for one relation
func RelationChanged(relid catalog.RelID) Notification {
	return NewNotification(KindRelation, relid)
}

// Validate checks that the notification can be applied
func (n Notification) Validate() error {
	switch n.Kind {
	case KindRelation:
		if n.RelID == catalog.InvalidRelID {
			return fmt.Errorf("%w: relation notification without relid", ErrInvalidNotification)
		}
	case KindAll, KindShutdown:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidNotification, n.Kind)
	}

	return nil
}

// DecodeNotification parses and validates a JSON notification
func DecodeNotification(data []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %w", ErrInvalidNotification, err)
	}

	if err := n.Validate(); err != nil {
		return Notification{}, err
	}

	return n, nil
}
