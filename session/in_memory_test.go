package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/rules"
)

func TestInMemoryStore_CreateGetDelete(t *testing.T) {
	s := NewInMemoryStore()

	sess, err := s.Create(rules.New())
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	require.NoError(t, s.Delete(sess.ID))
	_, err = s.Get(sess.ID)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	assert.ErrorIs(t, s.Delete(sess.ID), core.ErrSessionNotFound)
}

func TestInMemoryStore_NilGame(t *testing.T) {
	_, err := NewInMemoryStore().Create(nil)
	assert.Error(t, err)
}

func TestInMemoryStore_Limit(t *testing.T) {
	s := NewInMemoryStore(func(c *Config) { c.MaxSessions = 1 })

	_, err := s.Create(rules.New())
	require.NoError(t, err)
	_, err = s.Create(rules.New())
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestInMemoryStore_ListOrdered(t *testing.T) {
	s := NewInMemoryStore(func(c *Config) { c.MaxSessions = 0 })

	for i := 0; i < 5; i++ {
		_, err := s.Create(rules.New())
		require.NoError(t, err)
	}

	list := s.List()
	require.Len(t, list, 5)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].Created.Before(list[i-1].Created))
	}
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	s := NewInMemoryStore(func(c *Config) { c.MaxSessions = 0 })

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := s.Create(rules.New())
			if err != nil {
				t.Error(err)
				return
			}
			_, _ = s.Get(sess.ID)
			_ = s.List()
		}()
	}
	wg.Wait()
	assert.Len(t, s.List(), 20)
}
