package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliradar/tracker/internal/model"
)

func TestOpenSQLite(t *testing.T) {
	uri := "sqlite://" + filepath.Join(t.TempDir(), "tracker.db")
	s, err := Open(context.Background(), uri, Options{})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	_, err = s.FindAgent(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	d, ok := SQLite(s)
	assert.True(t, ok)
	assert.NotNil(t, d)
}

func TestOpenUnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), "postgres://user:secret@db/x", Options{})
	require.ErrorIs(t, err, ErrUnknownScheme)
	assert.NotContains(t, err.Error(), "secret")
}

func TestHandleOpensOnce(t *testing.T) {
	var opens int
	var mu sync.Mutex
	h := NewHandle(":memory:", Options{})
	h.open = func(ctx context.Context, uri string, opts Options) (Store, error) {
		mu.Lock()
		opens++
		mu.Unlock()
		return Open(ctx, uri, opts)
	}
	defer h.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.Ping(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, opens)

	p := model.Point{DeviceID: "D", Latitude: 1, Longitude: 2, Timestamp: "2024-01-01T00:00:00Z"}
	require.NoError(t, h.Insert(ctx, model.Flights, p))
	got, err := h.History(ctx, model.Flights, model.DeviceID, "D")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, ok := SQLite(h)
	assert.True(t, ok)
}

func TestHandleRetriesFailedOpen(t *testing.T) {
	fail := true
	h := NewHandle("unused", Options{})
	h.open = func(ctx context.Context, uri string, opts Options) (Store, error) {
		if fail {
			return nil, errors.New("unreachable")
		}
		return Open(ctx, ":memory:", opts)
	}
	defer h.Close()

	ctx := context.Background()
	_, err := h.Distinct(ctx, model.Flights, model.DeviceID)
	require.Error(t, err)

	_, ok := SQLite(h)
	assert.False(t, ok, "nothing is open yet")

	fail = false
	ids, err := h.Distinct(ctx, model.Flights, model.DeviceID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSharedReturnsSameHandle(t *testing.T) {
	a := Shared(":memory:", Options{})
	b := Shared("sqlite://elsewhere.db", Options{})
	assert.Same(t, a, b)
	assert.Equal(t, ":memory:", b.uri)
}
