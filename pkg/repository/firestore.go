package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dermalens/dermalens/pkg/model"
)

const (
	historyCollection     = "histories"
	explanationCollection = "explanations"
)

// Firestore implements Repository using Firestore. The explanation document
// of a history is one Firestore document; UpsertEntry swaps one key of its
// entries map inside a transaction, which is the atomic commit point.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore-backed repository
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client", goerr.T(model.TagStorage))
	}
	return &Firestore{client: client}, nil
}

// Close closes the underlying client
func (f *Firestore) Close() error {
	return f.client.Close()
}

type historyDoc struct {
	UserID         string             `firestore:"user_id"`
	PredictedClass string             `firestore:"predicted_class"`
	Confidence     float64            `firestore:"confidence"`
	Probabilities  map[string]float64 `firestore:"probabilities"`
	SourceImageID  string             `firestore:"source_image_id"`
	CreatedAt      time.Time          `firestore:"created_at"`
}

type entryDoc struct {
	Method    string    `firestore:"method"`
	OverlayID string    `firestore:"overlay_id"`
	HeatmapID string    `firestore:"heatmap_id"`
	CreatedAt time.Time `firestore:"created_at"`
}

type explanationDoc struct {
	Entries map[string]*entryDoc `firestore:"entries"`
}

func toHistoryDoc(h *model.History) *historyDoc {
	return &historyDoc{
		UserID:         string(h.UserID),
		PredictedClass: h.PredictedClass,
		Confidence:     h.Confidence,
		Probabilities:  h.Probabilities,
		SourceImageID:  string(h.SourceImageID),
		CreatedAt:      h.CreatedAt,
	}
}

func (d *historyDoc) toModel(id model.HistoryID) *model.History {
	return &model.History{
		ID:             id,
		UserID:         model.UserID(d.UserID),
		PredictedClass: d.PredictedClass,
		Confidence:     d.Confidence,
		Probabilities:  d.Probabilities,
		SourceImageID:  model.BlobID(d.SourceImageID),
		CreatedAt:      d.CreatedAt,
	}
}

func toEntryDoc(e *model.ExplanationEntry) *entryDoc {
	return &entryDoc{
		Method:    string(e.Method),
		OverlayID: string(e.OverlayID),
		HeatmapID: string(e.HeatmapID),
		CreatedAt: e.CreatedAt,
	}
}

func (d *entryDoc) toModel() *model.ExplanationEntry {
	return &model.ExplanationEntry{
		Method:    model.Method(d.Method),
		OverlayID: model.BlobID(d.OverlayID),
		HeatmapID: model.BlobID(d.HeatmapID),
		CreatedAt: d.CreatedAt,
	}
}

func (f *Firestore) CreateHistory(ctx context.Context, history *model.History) error {
	ref := f.client.Collection(historyCollection).Doc(string(history.ID))
	if _, err := ref.Create(ctx, toHistoryDoc(history)); err != nil {
		return goerr.Wrap(err, "failed to create history", goerr.T(model.TagStorage), goerr.V("history_id", history.ID))
	}
	return nil
}

func (f *Firestore) GetHistory(ctx context.Context, id model.HistoryID) (*model.History, error) {
	snap, err := f.client.Collection(historyCollection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrHistoryNotFound, "no such history", goerr.V("history_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get history", goerr.T(model.TagStorage), goerr.V("history_id", id))
	}

	var doc historyDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode history", goerr.V("history_id", id))
	}
	return doc.toModel(id), nil
}

func (f *Firestore) ListHistoriesByUser(ctx context.Context, userID model.UserID) ([]*model.History, error) {
	it := f.client.Collection(historyCollection).
		Where("user_id", "==", string(userID)).
		OrderBy("created_at", firestore.Desc).
		Documents(ctx)
	defer it.Stop()

	var histories []*model.History
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list histories", goerr.T(model.TagStorage), goerr.V("user_id", userID))
		}
		var doc historyDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode history", goerr.V("history_id", snap.Ref.ID))
		}
		histories = append(histories, doc.toModel(model.HistoryID(snap.Ref.ID)))
	}
	return histories, nil
}

func (f *Firestore) DeleteHistory(ctx context.Context, id model.HistoryID) (int, error) {
	removed := 0
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := f.client.Collection(historyCollection).Doc(string(id))
		if _, err := tx.Get(ref); err != nil {
			if status.Code(err) == codes.NotFound {
				removed = 0
				return nil
			}
			return err
		}
		removed = 1
		return tx.Delete(ref)
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete history", goerr.T(model.TagStorage), goerr.V("history_id", id))
	}
	return removed, nil
}

func (f *Firestore) UpsertEntry(ctx context.Context, historyID model.HistoryID, entry *model.ExplanationEntry) (*model.ExplanationEntry, error) {
	var prev *model.ExplanationEntry

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		prev = nil

		histRef := f.client.Collection(historyCollection).Doc(string(historyID))
		if _, err := tx.Get(histRef); err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrHistoryNotFound, "cannot upsert entry without history", goerr.V("history_id", historyID))
			}
			return goerr.Wrap(err, "failed to check history", goerr.T(model.TagStorage))
		}

		expRef := f.client.Collection(explanationCollection).Doc(string(historyID))
		doc := explanationDoc{Entries: make(map[string]*entryDoc)}
		snap, err := tx.Get(expRef)
		switch {
		case err == nil:
			if err := snap.DataTo(&doc); err != nil {
				return goerr.Wrap(err, "failed to decode explanation document", goerr.V("history_id", historyID))
			}
			if doc.Entries == nil {
				doc.Entries = make(map[string]*entryDoc)
			}
		case status.Code(err) == codes.NotFound:
			// First entry for this history
		default:
			return goerr.Wrap(err, "failed to get explanation document", goerr.T(model.TagStorage))
		}

		if old, ok := doc.Entries[string(entry.Method)]; ok {
			prev = old.toModel()
		}
		doc.Entries[string(entry.Method)] = toEntryDoc(entry)

		return tx.Set(expRef, &doc)
	})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

func (f *Firestore) GetExplanation(ctx context.Context, historyID model.HistoryID) (*model.Explanation, error) {
	snap, err := f.client.Collection(explanationCollection).Doc(string(historyID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrExplanationNotFound, "no explanations for history", goerr.V("history_id", historyID))
		}
		return nil, goerr.Wrap(err, "failed to get explanation document", goerr.T(model.TagStorage), goerr.V("history_id", historyID))
	}

	var doc explanationDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode explanation document", goerr.V("history_id", historyID))
	}

	out := &model.Explanation{
		HistoryID: historyID,
		Entries:   make(map[model.Method]*model.ExplanationEntry, len(doc.Entries)),
	}
	for method, e := range doc.Entries {
		out.Entries[model.Method(method)] = e.toModel()
	}
	return out, nil
}

func (f *Firestore) DeleteExplanation(ctx context.Context, historyID model.HistoryID) error {
	// Firestore deletes are idempotent: removing an absent document succeeds
	if _, err := f.client.Collection(explanationCollection).Doc(string(historyID)).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete explanation document", goerr.T(model.TagStorage), goerr.V("history_id", historyID))
	}
	return nil
}
