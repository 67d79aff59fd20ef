package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/dermalens/dermalens/pkg/model"
)

// Artifact is the output of one explanation generator: a visual overlay and
// an optional raw heatmap, both encoded images.
type Artifact struct {
	Overlay []byte
	Heatmap []byte
}

// Explainer produces an explanation artifact for an input image. A nil
// artifact with a nil error means the method could not explain this input;
// callers must surface that, not skip it silently.
type Explainer interface {
	Generate(ctx context.Context, image []byte) (*Artifact, error)
}

// Registry maps explanation method names to their generators
type Registry struct {
	explainers map[model.Method]Explainer
}

// NewRegistry creates an empty explainer registry
func NewRegistry() *Registry {
	return &Registry{
		explainers: make(map[model.Method]Explainer),
	}
}

// Register adds a generator for the method, replacing any previous one
func (r *Registry) Register(method model.Method, e Explainer) {
	r.explainers[method] = e
}

// Lookup returns the generator for the method
func (r *Registry) Lookup(method model.Method) (Explainer, error) {
	e, ok := r.explainers[method]
	if !ok {
		return nil, goerr.Wrap(model.ErrUnknownMethod, "method not configured", goerr.V("method", method))
	}
	return e, nil
}

// MethodConfig declares one explanation generator endpoint
type MethodConfig struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
}

type methodsFile struct {
	Methods []MethodConfig `yaml:"methods"`
}

// LoadRegistry builds a registry from a YAML methods file. Each listed
// method gets an HTTP-backed generator.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read methods config", goerr.V("path", path))
	}

	var file methodsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse methods config", goerr.V("path", path))
	}
	if len(file.Methods) == 0 {
		return nil, goerr.New("methods config declares no methods", goerr.V("path", path))
	}

	registry := NewRegistry()
	for _, m := range file.Methods {
		method := model.Method(m.Name)
		if err := method.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid method in config", goerr.V("path", path))
		}
		if m.Endpoint == "" {
			return nil, goerr.New("method endpoint is required", goerr.V("method", m.Name))
		}
		registry.Register(method, NewHTTPExplainer(m.Endpoint))
	}

	return registry, nil
}

// httpExplainer implements Explainer against a generator HTTP endpoint
type httpExplainer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPExplainer creates a generator client. The endpoint receives raw
// image bytes and responds with base64-encoded overlay and optional heatmap,
// or a JSON null when it cannot explain the input.
func NewHTTPExplainer(endpoint string) Explainer {
	return &httpExplainer{
		endpoint: endpoint,
		client:   http.DefaultClient,
	}
}

type explainerResponse struct {
	Overlay []byte `json:"overlay"`
	Heatmap []byte `json:"heatmap,omitempty"`
}

func (e *httpExplainer) Generate(ctx context.Context, image []byte) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build generate request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call explainer", goerr.V("endpoint", e.endpoint))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, goerr.New("explainer returned an error",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(body)))
	}

	var result *explainerResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, goerr.Wrap(err, "failed to decode explanation result")
	}
	if result == nil || len(result.Overlay) == 0 {
		// JSON null: the method declined this input
		return nil, nil
	}

	return &Artifact{Overlay: result.Overlay, Heatmap: result.Heatmap}, nil
}
