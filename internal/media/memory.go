package media

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps uploads in process. Used when no MongoDB is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	files   map[string]Object
	baseURL string
}

func NewMemoryStore(publicBaseURL string) *MemoryStore {
	return &MemoryStore{
		files:   make(map[string]Object),
		baseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

func (s *MemoryStore) Upload(_ context.Context, obj Object) (string, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")

	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	obj.Data = data

	s.mu.Lock()
	s.files[id] = obj
	s.mu.Unlock()

	return s.baseURL + "/media/" + id, nil
}

func (s *MemoryStore) Open(_ context.Context, id string) (*File, error) {
	s.mu.RLock()
	obj, ok := s.files[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	return &File{
		ReadCloser:  io.NopCloser(bytes.NewReader(obj.Data)),
		ContentType: obj.ContentType,
		Size:        int64(len(obj.Data)),
		UploadedAt:  time.Now(),
	}, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Opener = (*MemoryStore)(nil)
	_ Store  = (*GridFSStore)(nil)
	_ Opener = (*GridFSStore)(nil)
)
