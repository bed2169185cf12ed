package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore[T any](t *testing.T, cfg Config) *Store[T] {
	t.Helper()
	s, err := New[T](cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStore_SetGetDelete(t *testing.T) {
	s := newStore[int64](t, Config{MaxItems: 100})

	s.Set("expenses:sum:06/24", 120350)
	s.Wait()

	v, ok := s.Get("expenses:sum:06/24")
	require.True(t, ok)
	assert.Equal(t, int64(120350), v)
	assert.Equal(t, 1, s.Size())

	s.Delete("expenses:sum:06/24")
	_, ok = s.Get("expenses:sum:06/24")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Size())
}

func TestStore_DeletePrefix(t *testing.T) {
	s := newStore[string](t, Config{MaxItems: 100})
	s.Set(Key("expenses", "sum", "06/24"), "a")
	s.Set(Key("expenses", "list"), "b")
	s.Set(Key("incomes", "sum", "06/24"), "c")
	s.Wait()

	assert.Equal(t, 2, s.DeletePrefix("expenses:"))
	_, ok := s.Get("expenses:list")
	assert.False(t, ok)
	v, ok := s.Get("incomes:sum:06/24")
	require.True(t, ok)
	assert.Equal(t, "c", v)
}

func TestStore_TTLExpiration(t *testing.T) {
	s := newStore[string](t, Config{MaxItems: 100, TTL: 50 * time.Millisecond})
	s.Set("key", "value")
	s.Wait()

	_, ok := s.Get("key")
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)
	_, ok = s.Get("key")
	assert.False(t, ok, "value should expire after its TTL")
}

func TestStore_Clear(t *testing.T) {
	s := newStore[int](t, DefaultConfig())
	s.Set("a", 1)
	s.Set("b", 2)
	s.Wait()

	s.Clear()
	assert.Equal(t, 0, s.Size())
	_, ok := s.Get("a")
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "incomes:sum:06/24", Key("incomes", "sum", "06/24"))
}
