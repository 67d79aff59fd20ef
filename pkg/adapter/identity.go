package adapter

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/dermalens/dermalens/pkg/model"
)

// IdentityResolver maps a request credential to a user. An empty or unknown
// credential resolves to the anonymous user for optional-auth flows.
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (model.UserID, error)
}

// staticTokenResolver resolves bearer tokens from a fixed token→user map
type staticTokenResolver struct {
	tokens map[string]model.UserID
}

// NewStaticTokenResolver creates a resolver over a fixed token map
func NewStaticTokenResolver(tokens map[string]model.UserID) IdentityResolver {
	return &staticTokenResolver{tokens: tokens}
}

// ParseTokenMap parses "token=user" pairs separated by commas, the format of
// the auth-tokens configuration value.
func ParseTokenMap(raw string) (map[string]model.UserID, error) {
	tokens := make(map[string]model.UserID)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, user, ok := strings.Cut(pair, "=")
		if !ok || token == "" || user == "" {
			return nil, goerr.New("invalid token pair, expected token=user", goerr.V("pair", pair))
		}
		tokens[token] = model.UserID(user)
	}
	return tokens, nil
}

func (r *staticTokenResolver) Resolve(ctx context.Context, credential string) (model.UserID, error) {
	if credential == "" {
		return model.Anonymous, nil
	}
	user, ok := r.tokens[credential]
	if !ok {
		// Invalid credentials degrade to anonymous on optional-auth flows
		return model.Anonymous, nil
	}
	return user, nil
}
