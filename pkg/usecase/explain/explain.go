package explain

import (
	"context"
	"encoding/base64"

	"github.com/m-mizutani/goerr/v2"

	"github.com/dermalens/dermalens/pkg/adapter"
	"github.com/dermalens/dermalens/pkg/model"
	"github.com/dermalens/dermalens/pkg/usecase/artifact"
)

// UseCase runs the explanation flow: generate an artifact for one method and
// either persist it under a history (authenticated) or return it inline
// (anonymous). The anonymous path never touches the stores.
type UseCase struct {
	artifacts *artifact.UseCase
	registry  *adapter.Registry
}

// New creates a new explain UseCase instance
func New(artifacts *artifact.UseCase, registry *adapter.Registry) *UseCase {
	return &UseCase{
		artifacts: artifacts,
		registry:  registry,
	}
}

// Input contains parameters for one explanation request
type Input struct {
	Image     []byte
	Method    model.Method
	HistoryID model.HistoryID
	User      model.UserID
}

// Output is the explanation result. Entry is set on the persisted path;
// OverlayBase64/HeatmapBase64 on the anonymous path.
type Output struct {
	Method        model.Method
	Entry         *model.ExplanationEntry
	OverlayBase64 string
	HeatmapBase64 string
}

// Explain generates and delivers one explanation artifact.
func (u *UseCase) Explain(ctx context.Context, input Input) (*Output, error) {
	if err := input.Method.Validate(); err != nil {
		return nil, err
	}
	if len(input.Image) == 0 {
		return nil, goerr.New("image data is empty")
	}

	// An authenticated request without a history ID is an error, checked
	// before generation so no artifact bytes are ever produced or stored
	// for it. It is never downgraded to the anonymous path.
	if !input.User.IsAnonymous() && input.HistoryID == "" {
		return nil, goerr.Wrap(model.ErrHistoryRequired, "cannot persist explanation", goerr.V("method", input.Method))
	}

	generator, err := u.registry.Lookup(input.Method)
	if err != nil {
		return nil, err
	}

	art, err := generator.Generate(ctx, input.Image)
	if err != nil {
		return nil, goerr.Wrap(err, "explanation generation failed", goerr.V("method", input.Method))
	}
	if art == nil || len(art.Overlay) == 0 {
		return nil, goerr.New("explanation method produced no result",
			goerr.T(model.TagGenerationFailure), goerr.V("method", input.Method))
	}

	if input.User.IsAnonymous() {
		out := &Output{
			Method:        input.Method,
			OverlayBase64: base64.StdEncoding.EncodeToString(art.Overlay),
		}
		if len(art.Heatmap) > 0 {
			out.HeatmapBase64 = base64.StdEncoding.EncodeToString(art.Heatmap)
		}
		return out, nil
	}

	entry, err := u.artifacts.UpsertEntry(ctx, input.HistoryID, input.Method, art.Overlay, art.Heatmap)
	if err != nil {
		return nil, err
	}
	return &Output{Method: input.Method, Entry: entry}, nil
}
