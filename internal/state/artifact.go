// internal/state/artifact.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/user/charterd/internal/types"
)

// artifactWrapper is the on-disk format for artifact files.
type artifactWrapper struct {
	Meta *types.ArtifactMeta `json:"meta"`
	Data json.RawMessage     `json:"data"`
}

// ArtifactStore keeps the final documents produced by pipeline runs, one
// JSON file per artifact under artifacts/<id>.json.
type ArtifactStore struct {
	root string
}

// NewArtifactStore creates a file-backed ArtifactStore rooted at the given directory.
func NewArtifactStore(root string) *ArtifactStore {
	return &ArtifactStore{root: root}
}

func (a *ArtifactStore) artifactPath(id types.ArtifactID) string {
	return filepath.Join(a.root, "artifacts", url.PathEscape(string(id))+".json")
}

func (a *ArtifactStore) read(id types.ArtifactID) (*artifactWrapper, error) {
	data, err := os.ReadFile(a.artifactPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact not found: %s", id)
		}
		return nil, fmt.Errorf("read artifact file: %w", err)
	}

	var wrapper artifactWrapper
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	return &wrapper, nil
}

// Put stores data produced by stage during a run and returns its ID.
func (a *ArtifactStore) Put(_ context.Context, key types.SessionKey, runID types.RunID, stage string, data any) (types.ArtifactID, error) {
	rawData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal artifact data: %w", err)
	}

	id := types.NewArtifactID()
	mime := "application/json"
	if _, ok := data.(string); ok {
		mime = "text/plain"
	}
	wrapper := &artifactWrapper{
		Meta: &types.ArtifactMeta{
			ID:        id,
			Session:   key,
			RunID:     runID,
			Stage:     stage,
			CreatedAt: time.Now(),
			MimeType:  mime,
		},
		Data: rawData,
	}

	content, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact wrapper: %w", err)
	}
	if err := writeFileAtomic(a.artifactPath(id), content); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return id, nil
}

// Get returns the raw data for the given artifact.
func (a *ArtifactStore) Get(_ context.Context, id types.ArtifactID) (json.RawMessage, error) {
	wrapper, err := a.read(id)
	if err != nil {
		return nil, err
	}
	return wrapper.Data, nil
}

// GetMeta returns the metadata for the given artifact.
func (a *ArtifactStore) GetMeta(_ context.Context, id types.ArtifactID) (*types.ArtifactMeta, error) {
	wrapper, err := a.read(id)
	if err != nil {
		return nil, err
	}
	return wrapper.Meta, nil
}
