package explain_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/dermalens/dermalens/pkg/adapter"
	"github.com/dermalens/dermalens/pkg/model"
	"github.com/dermalens/dermalens/pkg/repository"
	"github.com/dermalens/dermalens/pkg/usecase/artifact"
	"github.com/dermalens/dermalens/pkg/usecase/explain"
)

// fakeExplainer returns a fixed artifact, or nothing when empty
type fakeExplainer struct {
	overlay []byte
	heatmap []byte
}

func (f *fakeExplainer) Generate(ctx context.Context, image []byte) (*adapter.Artifact, error) {
	if len(f.overlay) == 0 {
		return nil, nil
	}
	return &adapter.Artifact{Overlay: f.overlay, Heatmap: f.heatmap}, nil
}

type testEnv struct {
	repo  *repository.Memory
	blobs adapter.BlobStore
	uc    *explain.UseCase
}

func setup(t *testing.T, explainers map[model.Method]adapter.Explainer) *testEnv {
	t.Helper()
	repo := repository.NewMemory()
	blobs := adapter.NewMemoryBlobStore()
	registry := adapter.NewRegistry()
	for method, e := range explainers {
		registry.Register(method, e)
	}
	return &testEnv{
		repo:  repo,
		blobs: blobs,
		uc:    explain.New(artifact.New(repo, blobs), registry),
	}
}

func (e *testEnv) createHistory(t *testing.T, user model.UserID) *model.History {
	t.Helper()
	history := &model.History{
		ID:             model.NewHistoryID(),
		UserID:         user,
		PredictedClass: "mel",
		Confidence:     0.91,
		CreatedAt:      time.Now(),
	}
	gt.NoError(t, e.repo.CreateHistory(context.Background(), history))
	return history
}

func (e *testEnv) blobCount(t *testing.T) int {
	t.Helper()
	infos, err := e.blobs.List(context.Background())
	gt.NoError(t, err)
	return len(infos)
}

func TestExplainAnonymousInline(t *testing.T) {
	env := setup(t, map[model.Method]adapter.Explainer{
		model.MethodGradCAM: &fakeExplainer{overlay: []byte("overlay-bytes")},
	})
	ctx := context.Background()

	out, err := env.uc.Explain(ctx, explain.Input{
		Image:  []byte("image"),
		Method: model.MethodGradCAM,
		User:   model.Anonymous,
	})
	gt.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(out.OverlayBase64)
	gt.NoError(t, err)
	gt.Equal(t, decoded, []byte("overlay-bytes"))
	gt.V(t, out.Entry).Nil()

	// The anonymous path never touches the stores
	gt.Equal(t, env.blobCount(t), 0)
}

func TestExplainAuthenticatedPersists(t *testing.T) {
	env := setup(t, map[model.Method]adapter.Explainer{
		model.MethodLIME: &fakeExplainer{overlay: []byte("lime-overlay"), heatmap: []byte("lime-heatmap")},
	})
	ctx := context.Background()
	history := env.createHistory(t, "u1")

	out, err := env.uc.Explain(ctx, explain.Input{
		Image:     []byte("image"),
		Method:    model.MethodLIME,
		HistoryID: history.ID,
		User:      "u1",
	})
	gt.NoError(t, err)
	gt.V(t, out.Entry).NotNil()
	gt.Equal(t, out.OverlayBase64, "")

	data, err := env.blobs.Get(ctx, out.Entry.OverlayID)
	gt.NoError(t, err)
	gt.Equal(t, data, []byte("lime-overlay"))
	data, err = env.blobs.Get(ctx, out.Entry.HeatmapID)
	gt.NoError(t, err)
	gt.Equal(t, data, []byte("lime-heatmap"))
}

func TestExplainAuthenticatedWithoutHistoryID(t *testing.T) {
	env := setup(t, map[model.Method]adapter.Explainer{
		model.MethodGradCAM: &fakeExplainer{overlay: []byte("overlay")},
	})
	ctx := context.Background()

	_, err := env.uc.Explain(ctx, explain.Input{
		Image:  []byte("image"),
		Method: model.MethodGradCAM,
		User:   "u1",
	})
	gt.Error(t, err)
	if !errors.Is(err, model.ErrHistoryRequired) {
		t.Errorf("expected missing history error, got %v", err)
	}

	// Rejected before any blob write
	gt.Equal(t, env.blobCount(t), 0)
}

func TestExplainGenerationFailure(t *testing.T) {
	env := setup(t, map[model.Method]adapter.Explainer{
		model.MethodAnchor: &fakeExplainer{},
	})
	ctx := context.Background()
	history := env.createHistory(t, "u1")

	_, err := env.uc.Explain(ctx, explain.Input{
		Image:     []byte("image"),
		Method:    model.MethodAnchor,
		HistoryID: history.ID,
		User:      "u1",
	})
	gt.Error(t, err)

	// No partial artifact is stored
	gt.Equal(t, env.blobCount(t), 0)
	_, err = env.repo.GetExplanation(ctx, history.ID)
	gt.Error(t, err)
}

func TestExplainUnknownMethod(t *testing.T) {
	env := setup(t, nil)
	ctx := context.Background()

	_, err := env.uc.Explain(ctx, explain.Input{
		Image:  []byte("image"),
		Method: model.Method("saliency"),
		User:   model.Anonymous,
	})
	gt.Error(t, err)
	if !errors.Is(err, model.ErrUnknownMethod) {
		t.Errorf("expected unknown method error, got %v", err)
	}
}

func TestExplainMethodNotConfigured(t *testing.T) {
	env := setup(t, map[model.Method]adapter.Explainer{
		model.MethodGradCAM: &fakeExplainer{overlay: []byte("overlay")},
	})
	ctx := context.Background()

	_, err := env.uc.Explain(ctx, explain.Input{
		Image:  []byte("image"),
		Method: model.MethodSHAP,
		User:   model.Anonymous,
	})
	gt.Error(t, err)
}
