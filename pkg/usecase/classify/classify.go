package classify

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/dermalens/dermalens/pkg/adapter"
	"github.com/dermalens/dermalens/pkg/model"
	"github.com/dermalens/dermalens/pkg/repository"
)

// DefaultConfidenceThreshold rejects predictions the model itself is not
// sure about, before anything is persisted.
const DefaultConfidenceThreshold = 0.5

// UseCase runs the classification flow: classify, gate on confidence, and
// record a history for authenticated users.
type UseCase struct {
	repo       repository.Repository
	blobs      adapter.BlobStore
	classifier adapter.Classifier
	threshold  float64
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithThreshold overrides the minimum accepted confidence
func WithThreshold(threshold float64) Option {
	return func(u *UseCase) {
		u.threshold = threshold
	}
}

// New creates a new classify UseCase instance
func New(repo repository.Repository, blobs adapter.BlobStore, classifier adapter.Classifier, opts ...Option) *UseCase {
	u := &UseCase{
		repo:       repo,
		blobs:      blobs,
		classifier: classifier,
		threshold:  DefaultConfidenceThreshold,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Input contains parameters for one classification request
type Input struct {
	Image    []byte
	Filename string
	User     model.UserID
}

// Output is the classification result. HistoryID is set only for
// authenticated users.
type Output struct {
	Classification *model.Classification
	HistoryID      model.HistoryID
}

// Classify runs the classifier on the image. Results below the confidence
// threshold are rejected before any persistence. For authenticated users the
// source image is retained and a history record created; for anonymous users
// nothing is stored.
func (u *UseCase) Classify(ctx context.Context, input Input) (*Output, error) {
	if len(input.Image) == 0 {
		return nil, goerr.New("image data is empty")
	}

	result, err := u.classifier.Classify(ctx, input.Image)
	if err != nil {
		return nil, goerr.Wrap(err, "classification failed")
	}

	if result.Confidence < u.threshold {
		return nil, goerr.New("unable to classify the image with sufficient confidence",
			goerr.T(model.TagLowConfidence),
			goerr.V("confidence", result.Confidence),
			goerr.V("predicted_class", result.PredictedClass),
			goerr.V("threshold", u.threshold))
	}

	out := &Output{Classification: result}
	if input.User.IsAnonymous() {
		return out, nil
	}

	sourceID, err := u.blobs.Put(ctx, input.Image, "source_"+input.Filename)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to retain source image")
	}

	history := &model.History{
		ID:             model.NewHistoryID(),
		UserID:         input.User,
		PredictedClass: result.PredictedClass,
		Confidence:     result.Confidence,
		Probabilities:  result.Probabilities,
		SourceImageID:  sourceID,
		CreatedAt:      time.Now(),
	}
	if err := u.repo.CreateHistory(ctx, history); err != nil {
		// The record never existed, so the retained image is unreferenced
		_ = u.blobs.Delete(context.WithoutCancel(ctx), sourceID)
		return nil, goerr.Wrap(err, "failed to create history")
	}

	out.HistoryID = history.ID
	return out, nil
}
