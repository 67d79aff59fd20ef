package adapter_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/dermalens/dermalens/pkg/adapter"
	"github.com/dermalens/dermalens/pkg/model"
)

func TestParseTokenMap(t *testing.T) {
	tokens, err := adapter.ParseTokenMap("tok1=alice, tok2=bob")
	gt.NoError(t, err)
	gt.Equal(t, len(tokens), 2)
	gt.Equal(t, tokens["tok1"], model.UserID("alice"))
	gt.Equal(t, tokens["tok2"], model.UserID("bob"))
}

func TestParseTokenMapEmpty(t *testing.T) {
	tokens, err := adapter.ParseTokenMap("")
	gt.NoError(t, err)
	gt.Equal(t, len(tokens), 0)
}

func TestParseTokenMapInvalid(t *testing.T) {
	for _, raw := range []string{"tok1", "=alice", "tok1="} {
		_, err := adapter.ParseTokenMap(raw)
		gt.Error(t, err)
	}
}

func TestStaticTokenResolver(t *testing.T) {
	resolver := adapter.NewStaticTokenResolver(map[string]model.UserID{
		"tok1": "alice",
	})
	ctx := context.Background()

	user, err := resolver.Resolve(ctx, "tok1")
	gt.NoError(t, err)
	gt.Equal(t, user, model.UserID("alice"))

	// Unknown and missing credentials both degrade to anonymous
	user, err = resolver.Resolve(ctx, "bogus")
	gt.NoError(t, err)
	gt.Equal(t, user, model.Anonymous)

	user, err = resolver.Resolve(ctx, "")
	gt.NoError(t, err)
	gt.Equal(t, user, model.Anonymous)
}
