package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "", 30*time.Second)
	return store, mr, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func testRecord(jti string) *Record {
	now := time.Now()
	return &Record{
		JTI:          jti,
		UserID:       "u-1",
		TokenVersion: 1,
		Device:       Device{IP: "10.0.0.1", UserAgent: "curl/8.5", Name: "laptop"},
		CreatedAt:    now.Unix(),
		ExpiresAt:    now.Add(time.Hour).Unix(),
	}
}

func TestDeleteSessionIdempotent(t *testing.T) {
	store, _, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	rec := testRecord("jti-1")

	if err := store.Save(ctx, rec, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := store.Delete(ctx, rec.UserID, rec.JTI); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, rec.UserID, rec.JTI); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	if _, err := store.Get(ctx, rec.JTI); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	isMember, err := rdb.SIsMember(ctx, "sessions-of-user:u-1", rec.JTI).Result()
	if err != nil {
		t.Fatalf("sismember: %v", err)
	}
	if isMember {
		t.Fatal("expected jti removed from user set")
	}
}

func TestDeleteNeverSavedSessionIsNoop(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()

	if err := store.Delete(context.Background(), "u-unknown", "jti-unknown"); err != nil {
		t.Fatalf("delete of absent session should be a no-op, got %v", err)
	}
}

func TestDeleteLeavesSiblingSessionIntact(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	a := testRecord("jti-a")
	b := testRecord("jti-b")
	b.Device.Name = "phone"
	for _, rec := range []*Record{a, b} {
		if err := store.Save(ctx, rec, time.Hour); err != nil {
			t.Fatalf("save %s: %v", rec.JTI, err)
		}
	}

	if err := store.Delete(ctx, a.UserID, a.JTI); err != nil {
		t.Fatalf("delete a: %v", err)
	}

	got, err := store.Get(ctx, b.JTI)
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if got.Device.Name != "phone" {
		t.Fatalf("sibling record changed: %+v", got)
	}
	members, err := store.Members(ctx, b.UserID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0] != b.JTI {
		t.Fatalf("expected only %s in set, got %v", b.JTI, members)
	}
}
