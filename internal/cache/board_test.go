package cache

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type board struct {
	Columns []string `json:"columns"`
}

func newTestBoard(t *testing.T, ttl time.Duration) (*Board[board], *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := log.New()
	logger.SetOutput(io.Discard)
	return NewBoard[board](client, ttl, logger), mr
}

func TestBoardReadThrough(t *testing.T) {
	c, mr := newTestBoard(t, time.Minute)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (board, error) {
		calls++
		return board{Columns: []string{"todo", "done"}}, nil
	}

	for i := 0; i < 2; i++ {
		got, err := c.Get(ctx, "sp_1", load)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if len(got.Columns) != 2 {
			t.Fatalf("Get() = %+v", got)
		}
	}
	if calls != 1 {
		t.Fatalf("loader called %d times, want 1", calls)
	}
	if !mr.Exists("kanban:board:sp_1") {
		t.Fatal("expected cached key")
	}
}

func TestBoardEvictForcesReload(t *testing.T) {
	c, mr := newTestBoard(t, time.Minute)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (board, error) {
		calls++
		return board{}, nil
	}

	if _, err := c.Get(ctx, "sp_1", load); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := c.Get(ctx, "sp_2", load); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	c.Evict(ctx, "sp_1", "sp_2", "")
	if mr.Exists("kanban:board:sp_1") || mr.Exists("kanban:board:sp_2") {
		t.Fatal("expected both boards evicted")
	}
	if _, err := c.Get(ctx, "sp_1", load); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("loader called %d times, want 3", calls)
	}
}

func TestBoardDropsCorruptEntries(t *testing.T) {
	c, mr := newTestBoard(t, time.Minute)
	if err := mr.Set("kanban:board:sp_1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := c.Get(context.Background(), "sp_1", func(context.Context) (board, error) {
		return board{Columns: []string{"fresh"}}, nil
	})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Columns) != 1 || got.Columns[0] != "fresh" {
		t.Fatalf("Get() = %+v, want reloaded board", got)
	}
}

func TestBoardDisabledPassesThrough(t *testing.T) {
	c := NewBoard[board](nil, time.Minute, nil)
	if c.Enabled() {
		t.Fatal("nil client must disable the cache")
	}
	wantErr := errors.New("db down")
	if _, err := c.Get(context.Background(), "sp_1", func(context.Context) (board, error) {
		return board{}, wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("Get() error = %v, want loader error", err)
	}
	c.Evict(context.Background(), "sp_1")
}

func TestBoardZeroTTLDoesNotStore(t *testing.T) {
	c, mr := newTestBoard(t, 0)
	if _, err := c.Get(context.Background(), "sp_1", func(context.Context) (board, error) { return board{}, nil }); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if mr.Exists("kanban:board:sp_1") {
		t.Fatal("zero ttl must not store")
	}
}

func TestBoardEvictDuringLoadDiscardsStaleValue(t *testing.T) {
	c, _ := newTestBoard(t, time.Minute)
	ctx := context.Background()

	// The first load reads the database, then a writer evicts before the
	// loaded value reaches Redis.
	stale, err := c.Get(ctx, "sp_1", func(ctx context.Context) (board, error) {
		c.Evict(ctx, "sp_1")
		return board{Columns: []string{"stale"}}, nil
	})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stale.Columns[0] != "stale" {
		t.Fatalf("first Get() = %+v", stale)
	}

	fresh, err := c.Get(ctx, "sp_1", func(context.Context) (board, error) {
		return board{Columns: []string{"fresh"}}, nil
	})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(fresh.Columns) != 1 || fresh.Columns[0] != "fresh" {
		t.Fatalf("Get() after racing eviction = %+v, want fresh board", fresh)
	}
}

func TestBoardEvictBumpsGeneration(t *testing.T) {
	c, mr := newTestBoard(t, time.Minute)
	ctx := context.Background()
	load := func(context.Context) (board, error) { return board{}, nil }

	c.Evict(ctx, "sp_1")
	if _, err := c.Get(ctx, "sp_1", load); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !mr.Exists("kanban:board:sp_1:1") {
		t.Fatalf("keys = %v, want generation 1 entry", mr.Keys())
	}
	c.Evict(ctx, "sp_1")
	if mr.Exists("kanban:board:sp_1:1") {
		t.Fatal("eviction left the previous generation behind")
	}
	if got, _ := mr.Get("kanban:board-gen:sp_1"); got != "2" {
		t.Fatalf("generation = %q, want 2", got)
	}
}
