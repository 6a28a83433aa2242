package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"meterprofile/internal/ingest/application"
)

const defaultMaxPreviews = 256

type previewEntry struct {
	preview  *application.Preview
	storedAt time.Time
}

// PreviewStore keeps import previews in memory until saved or expired.
type PreviewStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	items      map[string]previewEntry
}

// NewPreviewStore creates a store. A zero ttl keeps previews until evicted by size.
func NewPreviewStore(ttl time.Duration, maxEntries int) *PreviewStore {
	if maxEntries <= 0 {
		maxEntries = defaultMaxPreviews
	}
	return &PreviewStore{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		items:      make(map[string]previewEntry),
	}
}

// Put stores a preview, evicting expired and then oldest entries beyond capacity.
func (s *PreviewStore) Put(ctx context.Context, preview *application.Preview) error {
	_ = ctx
	if preview == nil || preview.BatchID == "" {
		return application.ErrPreviewNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.evictExpired(now)
	s.items[preview.BatchID] = previewEntry{preview: preview, storedAt: now}
	if len(s.items) > s.maxEntries {
		s.evictOldest(len(s.items) - s.maxEntries)
	}
	return nil
}

// Get returns a stored preview.
func (s *PreviewStore) Get(ctx context.Context, batchID string) (*application.Preview, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[batchID]
	if !ok {
		return nil, application.ErrPreviewNotFound
	}
	if s.expired(entry, s.now()) {
		delete(s.items, batchID)
		return nil, application.ErrPreviewNotFound
	}
	return entry.preview, nil
}

// Delete drops a preview; unknown ids are ignored.
func (s *PreviewStore) Delete(ctx context.Context, batchID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, batchID)
	return nil
}

// Len returns the number of stored previews, expired ones included.
func (s *PreviewStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *PreviewStore) expired(entry previewEntry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(entry.storedAt) > s.ttl
}

func (s *PreviewStore) evictExpired(now time.Time) {
	for id, entry := range s.items {
		if s.expired(entry, now) {
			delete(s.items, id)
		}
	}
}

func (s *PreviewStore) evictOldest(count int) {
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.items[ids[i]].storedAt.Before(s.items[ids[j]].storedAt)
	})
	for _, id := range ids[:count] {
		delete(s.items, id)
	}
}
