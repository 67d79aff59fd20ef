package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Method identifies one explanation algorithm
type Method string

const (
	MethodGradCAM             Method = "gradcam"
	MethodLIME                Method = "lime"
	MethodSHAP                Method = "shap"
	MethodAnchor              Method = "anchor"
	MethodIntegratedGradients Method = "integrated_gradients"
)

// Methods lists all known explanation methods
func Methods() []Method {
	return []Method{
		MethodGradCAM,
		MethodLIME,
		MethodSHAP,
		MethodAnchor,
		MethodIntegratedGradients,
	}
}

// Validate checks if the method is a known explanation algorithm
func (m Method) Validate() error {
	switch m {
	case MethodGradCAM, MethodLIME, MethodSHAP, MethodAnchor, MethodIntegratedGradients:
		return nil
	default:
		return goerr.Wrap(ErrUnknownMethod, "unsupported method", goerr.V("method", m))
	}
}

// ExplanationEntry is the artifact metadata of one method applied to one
// history. The entry owns the blobs it references: while it exists the blobs
// must exist, and replacing or removing the entry releases them.
type ExplanationEntry struct {
	Method    Method
	OverlayID BlobID
	HeatmapID BlobID // optional, empty when the method produced no heatmap
	CreatedAt time.Time
}

// BlobIDs returns the blob IDs owned by the entry
func (e *ExplanationEntry) BlobIDs() []BlobID {
	ids := []BlobID{e.OverlayID}
	if e.HeatmapID != "" {
		ids = append(ids, e.HeatmapID)
	}
	return ids
}

// Explanation is the per-history collection of explanation entries, one per
// method. It maps to a single metadata document: replacing one key of
// Entries is the atomic commit point of an upsert.
type Explanation struct {
	HistoryID HistoryID
	Entries   map[Method]*ExplanationEntry
}

// BlobIDs returns every blob ID referenced by any entry
func (x *Explanation) BlobIDs() []BlobID {
	var ids []BlobID
	for _, e := range x.Entries {
		ids = append(ids, e.BlobIDs()...)
	}
	return ids
}
