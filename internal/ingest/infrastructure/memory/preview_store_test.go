package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"meterprofile/internal/ingest/application"
)

func TestPreviewStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewPreviewStore(time.Minute, 0)
	store.now = func() time.Time { return now }

	if err := store.Put(ctx, &application.Preview{BatchID: "b-1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Get(ctx, "b-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "b-1"); !errors.Is(err, application.ErrPreviewNotFound) {
		t.Fatalf("expected expired preview, got %v", err)
	}
	if err := store.Put(ctx, &application.Preview{}); !errors.Is(err, application.ErrPreviewNotFound) {
		t.Fatalf("expected error for empty batch id, got %v", err)
	}
}

func TestPreviewStore_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewPreviewStore(0, 2)
	store.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Put(ctx, &application.Preview{BatchID: id}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 previews, got %d", store.Len())
	}
	if _, err := store.Get(ctx, "a"); !errors.Is(err, application.ErrPreviewNotFound) {
		t.Fatalf("expected oldest evicted, got %v", err)
	}
	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "c"); err != nil {
		t.Fatalf("get c: %v", err)
	}
}
