package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/dermalens/dermalens/pkg/model"
	"github.com/dermalens/dermalens/pkg/repository"
)

func testRepositories(t *testing.T) map[string]repository.Repository {
	t.Helper()

	sqlite, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]repository.Repository{
		"memory": repository.NewMemory(),
		"sqlite": sqlite,
	}
}

func newHistory(user model.UserID, createdAt time.Time) *model.History {
	return &model.History{
		ID:             model.NewHistoryID(),
		UserID:         user,
		PredictedClass: "mel",
		Confidence:     0.87,
		Probabilities:  map[string]float64{"mel": 0.87, "nv": 0.13},
		CreatedAt:      createdAt,
	}
}

func TestHistoryCreateGet(t *testing.T) {
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			history := newHistory("u1", time.Now())
			history.SourceImageID = model.NewBlobID()

			gt.NoError(t, repo.CreateHistory(ctx, history))

			got, err := repo.GetHistory(ctx, history.ID)
			gt.NoError(t, err)
			gt.Equal(t, got.ID, history.ID)
			gt.Equal(t, got.UserID, history.UserID)
			gt.Equal(t, got.PredictedClass, history.PredictedClass)
			gt.Equal(t, got.SourceImageID, history.SourceImageID)
			gt.Equal(t, got.Probabilities["mel"], 0.87)
		})
	}
}

func TestHistoryGetNotFound(t *testing.T) {
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.GetHistory(context.Background(), model.NewHistoryID())
			gt.Error(t, err)
			if !errors.Is(err, model.ErrHistoryNotFound) {
				t.Errorf("expected history not found, got %v", err)
			}
		})
	}
}

func TestListHistoriesByUserOrdered(t *testing.T) {
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			oldest := newHistory("u1", now.Add(-2*time.Hour))
			middle := newHistory("u1", now.Add(-time.Hour))
			newest := newHistory("u1", now)
			other := newHistory("u2", now)
			for _, h := range []*model.History{oldest, middle, newest, other} {
				gt.NoError(t, repo.CreateHistory(ctx, h))
			}

			histories, err := repo.ListHistoriesByUser(ctx, "u1")
			gt.NoError(t, err)
			gt.A(t, histories).Length(3)
			gt.Equal(t, histories[0].ID, newest.ID)
			gt.Equal(t, histories[1].ID, middle.ID)
			gt.Equal(t, histories[2].ID, oldest.ID)
		})
	}
}

func TestDeleteHistoryCount(t *testing.T) {
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			history := newHistory("u1", time.Now())
			gt.NoError(t, repo.CreateHistory(ctx, history))

			removed, err := repo.DeleteHistory(ctx, history.ID)
			gt.NoError(t, err)
			gt.Equal(t, removed, 1)

			// A second delete is a detectable no-op
			removed, err = repo.DeleteHistory(ctx, history.ID)
			gt.NoError(t, err)
			gt.Equal(t, removed, 0)
		})
	}
}

func TestUpsertEntryInsertAndReplace(t *testing.T) {
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			history := newHistory("u1", time.Now())
			gt.NoError(t, repo.CreateHistory(ctx, history))

			first := &model.ExplanationEntry{
				Method:    model.MethodGradCAM,
				OverlayID: model.NewBlobID(),
				CreatedAt: time.Now(),
			}
			prev, err := repo.UpsertEntry(ctx, history.ID, first)
			gt.NoError(t, err)
			gt.V(t, prev).Nil()

			second := &model.ExplanationEntry{
				Method:    model.MethodGradCAM,
				OverlayID: model.NewBlobID(),
				HeatmapID: model.NewBlobID(),
				CreatedAt: time.Now(),
			}
			prev, err = repo.UpsertEntry(ctx, history.ID, second)
			gt.NoError(t, err)
			gt.V(t, prev).NotNil()
			gt.Equal(t, prev.OverlayID, first.OverlayID)

			explanation, err := repo.GetExplanation(ctx, history.ID)
			gt.NoError(t, err)
			gt.Equal(t, len(explanation.Entries), 1)
			entry := explanation.Entries[model.MethodGradCAM]
			gt.Equal(t, entry.OverlayID, second.OverlayID)
			gt.Equal(t, entry.HeatmapID, second.HeatmapID)
		})
	}
}

func TestUpsertEntryWithoutHistory(t *testing.T) {
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			entry := &model.ExplanationEntry{
				Method:    model.MethodLIME,
				OverlayID: model.NewBlobID(),
				CreatedAt: time.Now(),
			}
			_, err := repo.UpsertEntry(context.Background(), model.NewHistoryID(), entry)
			gt.Error(t, err)
			if !errors.Is(err, model.ErrHistoryNotFound) {
				t.Errorf("expected history not found, got %v", err)
			}
		})
	}
}

func TestGetExplanationNotFound(t *testing.T) {
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.GetExplanation(context.Background(), model.NewHistoryID())
			gt.Error(t, err)
			if !errors.Is(err, model.ErrExplanationNotFound) {
				t.Errorf("expected explanation not found, got %v", err)
			}
		})
	}
}

func TestDeleteExplanationIdempotent(t *testing.T) {
	for name, repo := range testRepositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			history := newHistory("u1", time.Now())
			gt.NoError(t, repo.CreateHistory(ctx, history))

			entry := &model.ExplanationEntry{
				Method:    model.MethodSHAP,
				OverlayID: model.NewBlobID(),
				CreatedAt: time.Now(),
			}
			_, err := repo.UpsertEntry(ctx, history.ID, entry)
			gt.NoError(t, err)

			gt.NoError(t, repo.DeleteExplanation(ctx, history.ID))
			_, err = repo.GetExplanation(ctx, history.ID)
			gt.Error(t, err)

			// Deleting an absent document is not an error
			gt.NoError(t, repo.DeleteExplanation(ctx, history.ID))
		})
	}
}
