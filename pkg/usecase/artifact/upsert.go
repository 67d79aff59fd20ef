package artifact

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/dermalens/dermalens/pkg/model"
)

// UpsertEntry stores the artifact blobs for one explanation method under a
// history, replacing the method's previous entry if one exists.
//
// The new blobs are written before the old entry is touched. If anything
// fails up to the metadata commit, the previous entry stays fully intact and
// the fresh blobs are discarded. After the commit the superseded blobs are
// deleted best-effort: a failure there is logged and absorbed, because the
// new state is already correct and visible.
func (u *UseCase) UpsertEntry(ctx context.Context, historyID model.HistoryID, method model.Method, overlay, heatmap []byte) (*model.ExplanationEntry, error) {
	if err := method.Validate(); err != nil {
		return nil, err
	}
	if historyID == "" {
		return nil, goerr.Wrap(model.ErrHistoryRequired, "cannot persist artifact", goerr.V("method", method))
	}
	if len(overlay) == 0 {
		return nil, goerr.New("overlay data is empty", goerr.V("method", method))
	}

	overlayID, err := u.blobs.Put(ctx, overlay, blobTag(historyID, method, "overlay"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store overlay blob")
	}

	entry := &model.ExplanationEntry{
		Method:    method,
		OverlayID: overlayID,
		CreatedAt: time.Now(),
	}
	fresh := []model.BlobID{overlayID}

	if len(heatmap) > 0 {
		heatmapID, err := u.blobs.Put(ctx, heatmap, blobTag(historyID, method, "heatmap"))
		if err != nil {
			u.releaseBlobs(ctx, fresh)
			return nil, goerr.Wrap(err, "failed to store heatmap blob")
		}
		entry.HeatmapID = heatmapID
		fresh = append(fresh, heatmapID)
	}

	prev, err := u.repo.UpsertEntry(ctx, historyID, entry)
	if err != nil {
		// Commit failed: nothing references the fresh blobs
		u.releaseBlobs(ctx, fresh)
		return nil, err
	}

	if prev != nil {
		u.releaseBlobs(ctx, prev.BlobIDs())
	}

	return entry, nil
}
