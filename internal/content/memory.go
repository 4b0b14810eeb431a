package content

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[int64]*Document
	meta map[int64]map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[int64]*Document),
		meta: make(map[int64]map[string]string),
	}
}

// Put inserts or replaces a document.
func (s *MemoryStore) Put(doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.docs[doc.ID] = &cp
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id int64) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// ResolveURL implements Store.
func (s *MemoryStore) ResolveURL(_ context.Context, url string) (*Document, error) {
	want := trimSlash(url)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.docs {
		if d.Permalink != "" && trimSlash(d.Permalink) == want {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListPublished implements Store.
func (s *MemoryStore) ListPublished(_ context.Context, docType string) ([]*Document, error) {
	s.mu.RLock()
	var out []*Document
	for _, d := range s.docs {
		if d.Published() && d.Type == docType {
			cp := *d
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.Before(out[j].PublishedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetMeta implements Store.
func (s *MemoryStore) GetMeta(_ context.Context, id int64, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta[id][key], nil
}

// SetMeta implements Store.
func (s *MemoryStore) SetMeta(_ context.Context, id int64, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return ErrNotFound
	}
	m, ok := s.meta[id]
	if !ok {
		m = make(map[string]string)
		s.meta[id] = m
	}
	m[key] = value
	return nil
}

func trimSlash(u string) string {
	return strings.TrimRight(u, "/")
}
