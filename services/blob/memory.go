package blobsvc

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

// MemoryStore keeps blobs in memory. Failures can be injected per operation.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	fail  map[string]error
}

var _ core.BlobStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
		fail:  make(map[string]error),
	}
}

// FailOn makes every following call of `op` ("upload", "download" or "remove") return `err`.
// A nil `err` clears the failure.
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

func (s *MemoryStore) Upload(_ context.Context, path string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading blob")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["upload"]; err != nil {
		return err
	}
	s.blobs[path] = data
	return nil
}

func (s *MemoryStore) Download(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["download"]; err != nil {
		return nil, err
	}
	data, ok := s.blobs[path]
	if !ok {
		return nil, core.NewNotFoundError("blob", path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Remove(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["remove"]; err != nil {
		return err
	}
	delete(s.blobs, path)
	return nil
}

// Paths lists the stored paths, sorted.
func (s *MemoryStore) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.blobs))
	for p := range s.blobs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
