package adapter_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/dermalens/dermalens/pkg/adapter"
)

func TestHTTPClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.Method, http.MethodPost)
		body, err := io.ReadAll(r.Body)
		gt.NoError(t, err)
		gt.Equal(t, body, []byte("image-bytes"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predicted_class":"mel","confidence":0.87,"probabilities":{"mel":0.87,"nv":0.13}}`))
	}))
	defer srv.Close()

	result, err := adapter.NewHTTPClassifier(srv.URL).Classify(context.Background(), []byte("image-bytes"))
	gt.NoError(t, err)
	gt.Equal(t, result.PredictedClass, "mel")
	gt.Equal(t, result.Confidence, 0.87)
	gt.Equal(t, result.Probabilities["nv"], 0.13)
}

func TestHTTPClassifierServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "inference unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := adapter.NewHTTPClassifier(srv.URL).Classify(context.Background(), []byte("image"))
	gt.Error(t, err)
}

func TestHTTPClassifierEmptyPrediction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"confidence":0.5}`))
	}))
	defer srv.Close()

	_, err := adapter.NewHTTPClassifier(srv.URL).Classify(context.Background(), []byte("image"))
	gt.Error(t, err)
}
