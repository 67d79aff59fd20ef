package model

import (
	"time"

	"github.com/google/uuid"
)

type UserID string

// Anonymous is the user context of unauthenticated requests. Nothing is
// persisted on their behalf.
const Anonymous UserID = ""

// IsAnonymous reports whether the user context is unauthenticated
func (u UserID) IsAnonymous() bool {
	return u == Anonymous
}

type HistoryID string

// NewHistoryID generates a new unique HistoryID
func NewHistoryID() HistoryID {
	return HistoryID(uuid.New().String())
}

// Classification is the classifier output for one image
type Classification struct {
	PredictedClass string             `json:"predicted_class"`
	Confidence     float64            `json:"confidence"`
	Probabilities  map[string]float64 `json:"probabilities"`
}

// History records one classification event for an authenticated user. It is
// created once per classification call and mutated only by deletion, which
// removes it together with every blob it transitively owns.
type History struct {
	ID             HistoryID
	UserID         UserID
	PredictedClass string
	Confidence     float64
	Probabilities  map[string]float64

	// SourceImageID references the classified input image, if it was
	// retained. Empty when the image was not stored.
	SourceImageID BlobID

	CreatedAt time.Time
}

// OwnedBlobs returns the blob IDs owned directly by the history record
// itself, excluding those owned by its explanation entries.
func (h *History) OwnedBlobs() []BlobID {
	if h.SourceImageID == "" {
		return nil
	}
	return []BlobID{h.SourceImageID}
}
