package adapter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/dermalens/dermalens/pkg/adapter"
	"github.com/dermalens/dermalens/pkg/model"
)

func testBlobStores(t *testing.T) map[string]adapter.BlobStore {
	t.Helper()

	local, err := adapter.NewLocalBlobStore(t.TempDir())
	gt.NoError(t, err)

	return map[string]adapter.BlobStore{
		"memory": adapter.NewMemoryBlobStore(),
		"local":  local,
	}
}

func TestBlobStoreRoundTrip(t *testing.T) {
	for name, store := range testBlobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := store.Put(ctx, []byte("image-bytes"), "gradcam_overlay_h1")
			gt.NoError(t, err)

			data, err := store.Get(ctx, id)
			gt.NoError(t, err)
			gt.Equal(t, data, []byte("image-bytes"))
		})
	}
}

func TestBlobStoreGetNotFound(t *testing.T) {
	for name, store := range testBlobStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), model.NewBlobID())
			gt.Error(t, err)
			if !errors.Is(err, model.ErrBlobNotFound) {
				t.Errorf("expected blob not found, got %v", err)
			}
		})
	}
}

func TestBlobStoreDelete(t *testing.T) {
	for name, store := range testBlobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := store.Put(ctx, []byte("data"), "tag")
			gt.NoError(t, err)
			gt.NoError(t, store.Delete(ctx, id))

			_, err = store.Get(ctx, id)
			gt.Error(t, err)

			// Deleting again reports not-found; the caller decides severity
			err = store.Delete(ctx, id)
			gt.Error(t, err)
			if !errors.Is(err, model.ErrBlobNotFound) {
				t.Errorf("expected blob not found, got %v", err)
			}
		})
	}
}

func TestBlobStoreList(t *testing.T) {
	for name, store := range testBlobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			infos, err := store.List(ctx)
			gt.NoError(t, err)
			gt.A(t, infos).Length(0)

			id1, err := store.Put(ctx, []byte("one"), "tag-one")
			gt.NoError(t, err)
			_, err = store.Put(ctx, []byte("three"), "tag-two")
			gt.NoError(t, err)

			infos, err = store.List(ctx)
			gt.NoError(t, err)
			gt.A(t, infos).Length(2)

			byID := make(map[model.BlobID]string)
			for _, info := range infos {
				byID[info.ID] = info.Tag
			}
			gt.Equal(t, byID[id1], "tag-one")
		})
	}
}

func TestBlobStoreDeleteAll(t *testing.T) {
	for name, store := range testBlobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				_, err := store.Put(ctx, []byte{byte(i)}, "tag")
				gt.NoError(t, err)
			}

			removed, err := store.DeleteAll(ctx)
			gt.NoError(t, err)
			gt.Equal(t, removed, 3)

			infos, err := store.List(ctx)
			gt.NoError(t, err)
			gt.A(t, infos).Length(0)
		})
	}
}

func TestLocalBlobStoreRequiresRoot(t *testing.T) {
	_, err := adapter.NewLocalBlobStore("  ")
	gt.Error(t, err)
}
