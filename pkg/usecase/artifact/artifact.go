package artifact

import (
	"context"
	"fmt"

	"github.com/dermalens/dermalens/pkg/adapter"
	"github.com/dermalens/dermalens/pkg/model"
	"github.com/dermalens/dermalens/pkg/repository"
	"github.com/dermalens/dermalens/pkg/utils/logging"
)

// UseCase is the artifact lifecycle manager. It orchestrates the metadata
// repository and the blob store to keep (history, method) → blob ownership
// consistent without cross-store transactions: new blobs are always written
// before the metadata commit, and old blobs are released only after it.
type UseCase struct {
	repo  repository.Repository
	blobs adapter.BlobStore
}

// New creates a new artifact UseCase instance
func New(repo repository.Repository, blobs adapter.BlobStore) *UseCase {
	return &UseCase{
		repo:  repo,
		blobs: blobs,
	}
}

func blobTag(historyID model.HistoryID, method model.Method, kind string) string {
	return fmt.Sprintf("%s_%s_%s", method, kind, historyID)
}

// releaseBlobs deletes blobs that no metadata references anymore. Failures
// here never fail the calling operation: an unreferenced blob is a transient
// leak, not an integrity violation. Returns the number of failed deletes.
func (u *UseCase) releaseBlobs(ctx context.Context, ids []model.BlobID) int {
	failed := 0
	for _, id := range ids {
		if err := u.blobs.Delete(context.WithoutCancel(ctx), id); err != nil {
			failed++
			logging.From(ctx).Warn("failed to delete unreferenced blob",
				"blob_id", id, "error", err)
		}
	}
	return failed
}
