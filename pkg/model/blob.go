package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type BlobID string

// NewBlobID generates a new unique BlobID
func NewBlobID() BlobID {
	return BlobID(uuid.New().String())
}

// ParseBlobID validates a caller-supplied identifier. A malformed ID is
// rejected here, before any store lookup, and is distinguishable from a
// well-formed ID that refers to no blob.
func ParseBlobID(raw string) (BlobID, error) {
	if _, err := uuid.Parse(raw); err != nil {
		return "", goerr.Wrap(ErrInvalidBlobID, "malformed blob ID", goerr.T(TagInvalidID), goerr.V("id", raw))
	}
	return BlobID(raw), nil
}

// BlobInfo describes one stored blob for enumeration. Blobs carry no
// ownership information; liveness is defined by referencing metadata.
type BlobInfo struct {
	ID        BlobID
	Tag       string
	Size      int64
	CreatedAt time.Time
}
