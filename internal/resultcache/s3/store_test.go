package s3

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/farmpulse/hexquery/internal/resultcache"
)

type fakeClient struct {
	objects map[string][]byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: make(map[string][]byte)}
}

func (f *fakeClient) Put(_ context.Context, _, key string, payload []byte) error {
	f.objects[key] = payload
	return nil
}

func (f *fakeClient) Get(_ context.Context, _, key string) ([]byte, error) {
	body, ok := f.objects[key]
	if !ok {
		return nil, resultcache.ErrNotFound
	}
	return body, nil
}

func (f *fakeClient) Delete(_ context.Context, _, key string) error {
	if _, ok := f.objects[key]; !ok {
		return resultcache.ErrNotFound
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeClient) List(_ context.Context, _, _ string) ([]string, error) {
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}
	return keys, nil
}

func (f *fakeClient) BucketExists(context.Context, string) (bool, error) { return true, nil }

func (f *fakeClient) CreateBucket(context.Context, string, string) error { return nil }

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewWithClient("results", "hexquery", newFakeClient())
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "r1", []byte(`{"count": 2}`), time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	payload, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(payload) != `{"count": 2}` {
		t.Fatalf("payload = %s", payload)
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 1 || ids[0] != "r1" {
		t.Fatalf("ids = %v", ids)
	}

	if err := store.Delete(ctx, "r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "r1"); !errors.Is(err, resultcache.ErrNotFound) {
		t.Fatalf("Get after delete: %v, want ErrNotFound", err)
	}
}

func TestStoreEnforcesTTLOnRead(t *testing.T) {
	fake := newFakeClient()
	store, err := NewWithClient("results", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "old", []byte(`{}`), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := store.Get(ctx, "old"); !errors.Is(err, resultcache.ErrNotFound) {
		t.Fatalf("Get after expiry: %v, want ErrNotFound", err)
	}
	if len(fake.objects) != 0 {
		t.Fatal("expected expired object to be deleted on read")
	}
}

func TestStoreRejectsBadIDs(t *testing.T) {
	store, err := NewWithClient("results", "", newFakeClient())
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}

	if err := store.Put(context.Background(), "", []byte(`{}`), time.Hour); err == nil {
		t.Fatal("expected error for empty id")
	}
	if err := store.Put(context.Background(), "../escape", []byte(`{}`), time.Hour); err == nil {
		t.Fatal("expected error for path-traversal id")
	}
}
