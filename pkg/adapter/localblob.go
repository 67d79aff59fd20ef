package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/dermalens/dermalens/pkg/model"
)

const blobMetaSuffix = ".meta.json"

type blobMeta struct {
	Tag       string    `json:"tag"`
	CreatedAt time.Time `json:"created_at"`
}

// localBlobStore implements BlobStore on the local filesystem. Each blob is
// one data file named by its ID plus a JSON sidecar carrying the tag and
// creation time.
type localBlobStore struct {
	root string
}

// NewLocalBlobStore creates a filesystem blob store rooted at root
func NewLocalBlobStore(root string) (BlobStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, goerr.New("blob store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve blob store root", goerr.V("root", root))
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create blob store directories", goerr.T(model.TagStorage))
	}
	return &localBlobStore{root: abs}, nil
}

func (s *localBlobStore) path(id model.BlobID) string {
	// IDs are store-generated UUIDs; ParseBlobID re-checks caller input so a
	// crafted identifier never becomes a path segment.
	return filepath.Join(s.root, string(id))
}

func (s *localBlobStore) Put(ctx context.Context, data []byte, tag string) (model.BlobID, error) {
	id := model.NewBlobID()

	// Write into tmp and rename so a crash never leaves a partial blob under
	// its final name.
	tmp, err := os.CreateTemp(filepath.Join(s.root, "tmp"), "put-*")
	if err != nil {
		return "", goerr.Wrap(err, "failed to create temp blob", goerr.T(model.TagStorage))
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", goerr.Wrap(err, "failed to write blob", goerr.T(model.TagStorage))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", goerr.Wrap(err, "failed to close temp blob", goerr.T(model.TagStorage))
	}

	meta, err := json.Marshal(blobMeta{Tag: tag, CreatedAt: time.Now().UTC()})
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", goerr.Wrap(err, "failed to encode blob metadata")
	}
	if err := os.WriteFile(s.path(id)+blobMetaSuffix, meta, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return "", goerr.Wrap(err, "failed to write blob metadata", goerr.T(model.TagStorage), goerr.V("id", id))
	}
	if err := os.Rename(tmpPath, s.path(id)); err != nil {
		_ = os.Remove(tmpPath)
		_ = os.Remove(s.path(id) + blobMetaSuffix)
		return "", goerr.Wrap(err, "failed to finalize blob", goerr.T(model.TagStorage), goerr.V("id", id))
	}

	return id, nil
}

func (s *localBlobStore) Get(ctx context.Context, id model.BlobID) ([]byte, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, goerr.Wrap(model.ErrBlobNotFound, "no such file", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to read blob", goerr.T(model.TagStorage), goerr.V("id", id))
	}
	return data, nil
}

func (s *localBlobStore) Delete(ctx context.Context, id model.BlobID) error {
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return goerr.Wrap(model.ErrBlobNotFound, "no such file", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to delete blob", goerr.T(model.TagStorage), goerr.V("id", id))
	}
	_ = os.Remove(s.path(id) + blobMetaSuffix)
	return nil
}

func (s *localBlobStore) List(ctx context.Context) ([]*model.BlobInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read blob store root", goerr.T(model.TagStorage))
	}

	var infos []*model.BlobInfo
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), blobMetaSuffix) {
			continue
		}
		info := &model.BlobInfo{ID: model.BlobID(entry.Name())}
		if fi, err := entry.Info(); err == nil {
			info.Size = fi.Size()
		}
		if raw, err := os.ReadFile(s.path(info.ID) + blobMetaSuffix); err == nil {
			var meta blobMeta
			if err := json.Unmarshal(raw, &meta); err == nil {
				info.Tag = meta.Tag
				info.CreatedAt = meta.CreatedAt
			}
		}
		infos = append(infos, info)
	}

	return infos, nil
}

func (s *localBlobStore) DeleteAll(ctx context.Context) (int, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, info := range infos {
		if err := s.Delete(ctx, info.ID); err != nil {
			if errors.Is(err, model.ErrBlobNotFound) {
				continue
			}
			return removed, err
		}
		removed++
	}
	return removed, nil
}
