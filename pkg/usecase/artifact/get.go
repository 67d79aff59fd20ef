package artifact

import (
	"context"

	"github.com/dermalens/dermalens/pkg/model"
)

// GetArtifact returns the stored bytes of one artifact blob. A malformed
// identifier is rejected before the store lookup, distinct from not-found.
func (u *UseCase) GetArtifact(ctx context.Context, rawID string) ([]byte, error) {
	id, err := model.ParseBlobID(rawID)
	if err != nil {
		return nil, err
	}
	return u.blobs.Get(ctx, id)
}

// ListArtifacts enumerates all stored artifact blobs
func (u *UseCase) ListArtifacts(ctx context.Context) ([]*model.BlobInfo, error) {
	return u.blobs.List(ctx)
}
