package repository

import (
	"context"

	"github.com/dermalens/dermalens/pkg/model"
)

// Repository is the metadata store for classification histories and their
// explanation documents. It knows nothing about blob contents; it only holds
// blob IDs. UpsertEntry is the single atomic point of the whole system: every
// cross-store consistency guarantee is built on top of it.
type Repository interface {
	// CreateHistory inserts a new history record
	CreateHistory(ctx context.Context, history *model.History) error

	// GetHistory retrieves a history by ID
	GetHistory(ctx context.Context, id model.HistoryID) (*model.History, error)

	// ListHistoriesByUser retrieves the user's histories, newest first
	ListHistoriesByUser(ctx context.Context, userID model.UserID) ([]*model.History, error)

	// DeleteHistory removes a history record and reports how many records
	// were removed (0 or 1), so that callers can detect a concurrent delete.
	DeleteHistory(ctx context.Context, id model.HistoryID) (int, error)

	// UpsertEntry atomically inserts or replaces the entry for the entry's
	// method under the history, and returns the replaced entry (nil on a
	// plain insert) so the caller can release its blobs. It fails with a
	// not-found error when the parent history does not exist; it never
	// recreates one.
	UpsertEntry(ctx context.Context, historyID model.HistoryID, entry *model.ExplanationEntry) (*model.ExplanationEntry, error)

	// GetExplanation retrieves the explanation document of a history. A
	// history without explanations yields a not-found error.
	GetExplanation(ctx context.Context, historyID model.HistoryID) (*model.Explanation, error)

	// DeleteExplanation removes the explanation document of a history.
	// Deleting an absent document is not an error.
	DeleteExplanation(ctx context.Context, historyID model.HistoryID) error
}
