package adapter

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/dermalens/dermalens/pkg/model"
)

// BlobStore is the byte storage for artifact images. IDs are generated by
// the store and carry no ownership information: a blob is live only while
// some metadata record references it.
type BlobStore interface {
	// Put stores the data and returns a new opaque identifier
	Put(ctx context.Context, data []byte, tag string) (model.BlobID, error)
	// Get returns the stored bytes
	Get(ctx context.Context, id model.BlobID) ([]byte, error)
	// Delete removes one blob. A missing blob is reported as not-found;
	// callers decide whether that matters during cleanup.
	Delete(ctx context.Context, id model.BlobID) error
	// List enumerates all stored blobs
	List(ctx context.Context) ([]*model.BlobInfo, error)
	// DeleteAll removes every blob regardless of references and returns the
	// removed count. Maintenance only: it can strand metadata references.
	DeleteAll(ctx context.Context) (int, error)
}

const blobTagKey = "tag"

// storageClient implements BlobStore using Cloud Storage
type storageClient struct {
	bucketName string
	client     *storage.Client
}

// NewStorage creates a new Cloud Storage backed blob store
func NewStorage(ctx context.Context, bucketName string) (BlobStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client", goerr.T(model.TagStorage))
	}

	return &storageClient{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (s *storageClient) Put(ctx context.Context, data []byte, tag string) (model.BlobID, error) {
	id := model.NewBlobID()
	obj := s.client.Bucket(s.bucketName).Object(string(id))

	// A blob write must not be canceled once started: a half-written object
	// referenced by nothing is harmless, an interrupted one is not reusable.
	w := obj.NewWriter(context.WithoutCancel(ctx))
	w.Metadata = map[string]string{blobTagKey: tag}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", goerr.Wrap(err, "failed to write blob", goerr.T(model.TagStorage), goerr.V("id", id))
	}
	if err := w.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to finalize blob", goerr.T(model.TagStorage), goerr.V("id", id))
	}

	return id, nil
}

func (s *storageClient) Get(ctx context.Context, id model.BlobID) ([]byte, error) {
	r, err := s.client.Bucket(s.bucketName).Object(string(id)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, goerr.Wrap(model.ErrBlobNotFound, "no such object", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to read blob", goerr.T(model.TagStorage), goerr.V("id", id))
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read blob body", goerr.T(model.TagStorage), goerr.V("id", id))
	}
	return data, nil
}

func (s *storageClient) Delete(ctx context.Context, id model.BlobID) error {
	err := s.client.Bucket(s.bucketName).Object(string(id)).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return goerr.Wrap(model.ErrBlobNotFound, "no such object", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to delete blob", goerr.T(model.TagStorage), goerr.V("id", id))
	}
	return nil
}

func (s *storageClient) List(ctx context.Context) ([]*model.BlobInfo, error) {
	var infos []*model.BlobInfo

	it := s.client.Bucket(s.bucketName).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list blobs", goerr.T(model.TagStorage))
		}
		infos = append(infos, &model.BlobInfo{
			ID:        model.BlobID(attrs.Name),
			Tag:       attrs.Metadata[blobTagKey],
			Size:      attrs.Size,
			CreatedAt: attrs.Created,
		})
	}

	return infos, nil
}

func (s *storageClient) DeleteAll(ctx context.Context) (int, error) {
	bucket := s.client.Bucket(s.bucketName)
	removed := 0

	it := bucket.Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return removed, goerr.Wrap(err, "failed to enumerate blobs for purge", goerr.T(model.TagStorage))
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil {
			if errors.Is(err, storage.ErrObjectNotExist) {
				continue
			}
			return removed, goerr.Wrap(err, "failed to purge blob", goerr.T(model.TagStorage), goerr.V("id", attrs.Name))
		}
		removed++
	}

	return removed, nil
}
