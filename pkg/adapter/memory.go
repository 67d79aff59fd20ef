package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/dermalens/dermalens/pkg/model"
)

type memoryBlob struct {
	data      []byte
	tag       string
	createdAt time.Time
}

// memoryBlobStore implements BlobStore in memory. Used for tests and
// throwaway local runs.
type memoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[model.BlobID]memoryBlob
}

// NewMemoryBlobStore creates an in-memory blob store
func NewMemoryBlobStore() BlobStore {
	return &memoryBlobStore{
		blobs: make(map[model.BlobID]memoryBlob),
	}
}

func (s *memoryBlobStore) Put(ctx context.Context, data []byte, tag string) (model.BlobID, error) {
	id := model.NewBlobID()

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = memoryBlob{data: buf, tag: tag, createdAt: time.Now()}
	return id, nil
}

func (s *memoryBlobStore) Get(ctx context.Context, id model.BlobID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrBlobNotFound, "no such blob", goerr.V("id", id))
	}

	buf := make([]byte, len(blob.data))
	copy(buf, blob.data)
	return buf, nil
}

func (s *memoryBlobStore) Delete(ctx context.Context, id model.BlobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; !ok {
		return goerr.Wrap(model.ErrBlobNotFound, "no such blob", goerr.V("id", id))
	}
	delete(s.blobs, id)
	return nil
}

func (s *memoryBlobStore) List(ctx context.Context) ([]*model.BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]*model.BlobInfo, 0, len(s.blobs))
	for id, blob := range s.blobs {
		infos = append(infos, &model.BlobInfo{
			ID:        id,
			Tag:       blob.tag,
			Size:      int64(len(blob.data)),
			CreatedAt: blob.createdAt,
		})
	}
	return infos, nil
}

func (s *memoryBlobStore) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.blobs)
	s.blobs = make(map[model.BlobID]memoryBlob)
	return removed, nil
}
