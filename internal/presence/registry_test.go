package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sinchita-code/quickchat/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandle struct{ id string }

func (h stubHandle) ID() string             { return h.id }
func (h stubHandle) Push(events.Event) bool { return true }

func TestRegistry_LastConnectionWins(t *testing.T) {
	r := NewRegistry()
	u := uuid.New()
	h1, h2 := stubHandle{"h1"}, stubHandle{"h2"}

	assert.Nil(t, r.Register(u, h1))
	prev := r.Register(u, h2)
	require.NotNil(t, prev)
	assert.Equal(t, "h1", prev.ID())

	got, ok := r.Lookup(u)
	require.True(t, ok)
	assert.Equal(t, "h2", got.ID())

	// stale disconnect from h1 must not remove h2
	assert.False(t, r.Unregister(u, h1))
	got, ok = r.Lookup(u)
	require.True(t, ok)
	assert.Equal(t, "h2", got.ID())

	assert.True(t, r.Unregister(u, h2))
	_, ok = r.Lookup(u)
	assert.False(t, ok)
	assert.False(t, r.Unregister(u, h2), "second unregister is a no-op")
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Snapshot())

	a, b := uuid.New(), uuid.New()
	r.Register(a, stubHandle{"a"})
	r.Register(b, stubHandle{"b"})

	snap := r.Snapshot()
	assert.ElementsMatch(t, []uuid.UUID{a, b}, snap)
	assert.Equal(t, snap, r.Snapshot(), "snapshot order is stable")
	assert.Equal(t, 2, r.Len())
	assert.True(t, r.IsOnline(a))
}

func TestRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry()
	users := make([]uuid.UUID, 16)
	for i := range users {
		users[i] = uuid.New()
	}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := users[i%len(users)]
			h := stubHandle{fmt.Sprintf("conn-%d", i)}
			r.Register(u, h)
			r.Unregister(u, h)
		}(i)
	}
	wg.Wait()

	// every handle unregistered itself or was replaced and then its
	// replacement unregistered; whatever remains must be a live entry
	for _, u := range users {
		if h, ok := r.Lookup(u); ok {
			assert.NotEmpty(t, h.ID())
		}
	}
	assert.LessOrEqual(t, r.Len(), len(users))
}
