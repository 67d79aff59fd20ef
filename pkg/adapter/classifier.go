package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/m-mizutani/goerr/v2"

	"github.com/dermalens/dermalens/pkg/model"
)

// Classifier is the interface to the image classification model. The model
// itself runs elsewhere; this core only consumes its output.
type Classifier interface {
	// Classify returns the predicted label with per-label probabilities
	Classify(ctx context.Context, image []byte) (*model.Classification, error)
}

// httpClassifier implements Classifier against an inference HTTP endpoint
type httpClassifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClassifier creates a classifier backed by an inference endpoint.
// The endpoint receives raw image bytes and responds with a JSON
// classification result.
func NewHTTPClassifier(endpoint string) Classifier {
	return &httpClassifier{
		endpoint: endpoint,
		client:   http.DefaultClient,
	}
}

func (c *httpClassifier) Classify(ctx context.Context, image []byte) (*model.Classification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build classify request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call classifier", goerr.V("endpoint", c.endpoint))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, goerr.New("classifier returned an error",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(body)))
	}

	var result model.Classification
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, goerr.Wrap(err, "failed to decode classification result")
	}
	if result.PredictedClass == "" {
		return nil, goerr.New("classifier returned an empty prediction")
	}

	return &result, nil
}
