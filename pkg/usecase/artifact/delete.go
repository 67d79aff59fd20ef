package artifact

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"

	"github.com/dermalens/dermalens/pkg/model"
	"github.com/dermalens/dermalens/pkg/utils/logging"
)

// CascadeResult reports the blob cleanup outcome of one history deletion.
// The metadata is gone either way; failed blob deletes are leaks to be
// reconciled, and the caller decides how loudly to escalate them.
type CascadeResult struct {
	BlobsDeleted int
	BlobsFailed  int
}

// Clean reports whether every owned blob was removed
func (r *CascadeResult) Clean() bool {
	return r.BlobsFailed == 0
}

// DeleteHistory removes a history together with every explanation entry and
// blob it transitively owns. Blob deletion is best-effort per blob; entry
// metadata is removed before the history record so a crash mid-cascade never
// leaves entries pointing at deleted parents.
func (u *UseCase) DeleteHistory(ctx context.Context, historyID model.HistoryID) (*CascadeResult, error) {
	history, err := u.repo.GetHistory(ctx, historyID)
	if err != nil {
		return nil, err
	}

	result := &CascadeResult{}
	deleteBlob := func(id model.BlobID) {
		err := u.blobs.Delete(ctx, id)
		switch {
		case err == nil:
			result.BlobsDeleted++
		case errors.Is(err, model.ErrBlobNotFound):
			// Already gone: the reference is released either way
		default:
			result.BlobsFailed++
			logging.From(ctx).Warn("failed to delete owned blob",
				"history_id", historyID, "blob_id", id, "error", err)
		}
	}

	explanation, err := u.repo.GetExplanation(ctx, historyID)
	if err != nil && !errors.Is(err, model.ErrExplanationNotFound) {
		return nil, err
	}
	if explanation != nil {
		for _, id := range explanation.BlobIDs() {
			deleteBlob(id)
		}
	}

	if err := u.repo.DeleteExplanation(ctx, historyID); err != nil {
		return nil, err
	}

	for _, id := range history.OwnedBlobs() {
		deleteBlob(id)
	}

	removed, err := u.repo.DeleteHistory(ctx, historyID)
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		// Another deletion won the race after our initial read
		return nil, goerr.Wrap(model.ErrHistoryNotFound, "history removed concurrently", goerr.V("history_id", historyID))
	}

	return result, nil
}

// BulkDeleteResult aggregates a per-user history sweep
type BulkDeleteResult struct {
	// Removed counts histories fully removed, owned blobs included
	Removed int
	// Partial counts histories whose records were removed but left blobs behind
	Partial int
	// Failed counts histories whose cascade aborted on a storage error
	Failed int
}

// DeleteAllForUser cascade-deletes every history of the user. One failing
// history does not block the others.
func (u *UseCase) DeleteAllForUser(ctx context.Context, userID model.UserID) (*BulkDeleteResult, error) {
	histories, err := u.repo.ListHistoriesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &BulkDeleteResult{}
	for _, history := range histories {
		cascade, err := u.DeleteHistory(ctx, history.ID)
		if err != nil {
			result.Failed++
			logging.From(ctx).Warn("failed to delete history",
				"history_id", history.ID, "user_id", userID, "error", err)
			continue
		}
		if cascade.Clean() {
			result.Removed++
		} else {
			result.Partial++
		}
	}

	return result, nil
}

// PurgeAllBlobs unconditionally removes every blob, bypassing metadata.
// Histories and explanation entries keep their blob IDs and will dangle
// unless the metadata store is reset as well. Intended only for full
// environment resets.
func (u *UseCase) PurgeAllBlobs(ctx context.Context) (int, error) {
	return u.blobs.DeleteAll(ctx)
}
