// internal/types/interfaces.go
package types

import (
	"context"
	"encoding/json"
)

// EventJournal persists session events outside process memory.
type EventJournal interface {
	Append(ctx context.Context, event *Event) error
	Tail(ctx context.Context, key SessionKey, limit int) ([]*Event, error)
	Count(ctx context.Context, key SessionKey) (int64, error)
	Sessions(ctx context.Context) ([]SessionKey, error)
}

type ArtifactStore interface {
	Put(ctx context.Context, key SessionKey, runID RunID, stage string, data any) (ArtifactID, error)
	Get(ctx context.Context, id ArtifactID) (json.RawMessage, error)
	GetMeta(ctx context.Context, id ArtifactID) (*ArtifactMeta, error)
}
