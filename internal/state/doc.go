// Package state holds per-session pipeline state: the in-memory session
// log and key/value store, plus file-backed journal, artifact and task
// storage.
package state

import "github.com/user/charterd/internal/types"

// Compile-time interface compliance checks.
var _ types.EventJournal = (*Journal)(nil)
var _ types.ArtifactStore = (*ArtifactStore)(nil)
