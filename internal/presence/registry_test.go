package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_FirstAndLastConnection(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.IsOnline("u1"))
	assert.True(t, r.Register("u1", "c1"))
	assert.False(t, r.Register("u1", "c2"))
	assert.True(t, r.IsOnline("u1"))
	assert.Equal(t, 2, r.Connections("u1"))

	assert.False(t, r.Remove("u1", "c1"))
	assert.True(t, r.IsOnline("u1"))
	assert.True(t, r.Remove("u1", "c2"))
	assert.False(t, r.IsOnline("u1"))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_RemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.Remove("ghost", "c1"))

	r.Register("u1", "c1")
	assert.False(t, r.Remove("u1", "other"))
	assert.True(t, r.IsOnline("u1"))

	assert.True(t, r.Remove("u1", "c1"))
	assert.False(t, r.Remove("u1", "c1"))
}

func TestRegistry_OnlineUserIDs(t *testing.T) {
	r := NewRegistry()
	r.Register("a", "1")
	r.Register("b", "2")
	r.Register("b", "3")

	assert.ElementsMatch(t, []string{"a", "b"}, r.OnlineUserIDs())
	assert.Equal(t, 2, r.Count())
}

func TestRegistry_ConcurrentConnections(t *testing.T) {
	r := NewRegistry()
	const users = 20
	const perUser = 50

	var firsts, lasts sync.Map
	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		for c := 0; c < perUser; c++ {
			wg.Add(1)
			go func(u, c int) {
				defer wg.Done()
				userID := fmt.Sprintf("user-%d", u)
				if r.Register(userID, fmt.Sprintf("conn-%d", c)) {
					_, dup := firsts.LoadOrStore(userID, true)
					assert.False(t, dup, "first reported twice for %s", userID)
				}
			}(u, c)
		}
	}
	wg.Wait()
	assert.Equal(t, users, r.Count())

	for u := 0; u < users; u++ {
		for c := 0; c < perUser; c++ {
			wg.Add(1)
			go func(u, c int) {
				defer wg.Done()
				userID := fmt.Sprintf("user-%d", u)
				if r.Remove(userID, fmt.Sprintf("conn-%d", c)) {
					_, dup := lasts.LoadOrStore(userID, true)
					assert.False(t, dup, "last reported twice for %s", userID)
				}
			}(u, c)
		}
	}
	wg.Wait()

	assert.Equal(t, 0, r.Count())
	for u := 0; u < users; u++ {
		_, ok := lasts.Load(fmt.Sprintf("user-%d", u))
		assert.True(t, ok)
	}
}
