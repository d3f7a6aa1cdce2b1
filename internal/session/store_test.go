package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S-feLayer/SafeLayer-Chat/internal/detect"
)

func TestStoreCreateAndLookup(t *testing.T) {
	st := NewStore(time.Minute)

	err := st.WithSession("s1", func(s *Session) error {
		require.Nil(t, s.Lookup(detect.TypeEmail, "john@acme.com"))
		e := s.Create(detect.TypeEmail, "john@acme.com", "John@Acme.com", "jo**@acme.com")
		require.NotEmpty(t, e.ID)
		assert.Equal(t, 1, e.OccurrenceCount)

		got := s.Lookup(detect.TypeEmail, "john@acme.com")
		require.NotNil(t, got)
		assert.Equal(t, e.ID, got.ID)

		// Same key under a different type is a different entity slot.
		assert.Nil(t, s.Lookup(detect.TypePhone, "john@acme.com"))
		return nil
	})
	require.NoError(t, err)
}

func TestPersonLabelSequence(t *testing.T) {
	st := NewStore(time.Minute)

	var labels []string
	err := st.WithSession("s1", func(s *Session) error {
		for i := 0; i < 28; i++ {
			labels = append(labels, s.NextPersonLabel())
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "A", labels[0])
	assert.Equal(t, "B", labels[1])
	assert.Equal(t, "Z", labels[25])
	assert.Equal(t, "AA", labels[26])
	assert.Equal(t, "AB", labels[27])
}

func TestLabelCounterIsPerSession(t *testing.T) {
	st := NewStore(time.Minute)

	for _, id := range []string{"a", "b"} {
		err := st.WithSession(id, func(s *Session) error {
			assert.Equal(t, "A", s.NextPersonLabel())
			return nil
		})
		require.NoError(t, err)
	}
}

func TestSessionIsolation(t *testing.T) {
	st := NewStore(time.Minute)

	require.NoError(t, st.WithSession("a", func(s *Session) error {
		s.Create(detect.TypePersonName, "john smith", "John Smith", "Person A")
		return nil
	}))
	require.NoError(t, st.WithSession("b", func(s *Session) error {
		assert.Nil(t, s.Lookup(detect.TypePersonName, "john smith"))
		return nil
	}))
}

func TestSnapshotOrderAndNotFound(t *testing.T) {
	st := NewStore(time.Minute)

	_, err := st.Snapshot("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, st.WithSession("s1", func(s *Session) error {
		s.Create(detect.TypePersonName, "john smith", "John Smith", "Person A")
		e := s.Create(detect.TypeEmail, "john@acme.com", "john@acme.com", "jo**@acme.com")
		e.OccurrenceCount++
		return nil
	}))

	summary, err := st.Snapshot("s1")
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "Person A", summary[0].Mask)
	assert.Equal(t, detect.TypeEmail, summary[1].Type)
	assert.Equal(t, 2, summary[1].OccurrenceCount)
}

func TestExpire(t *testing.T) {
	st := NewStore(time.Minute)

	require.NoError(t, st.WithSession("s1", func(s *Session) error { return nil }))
	require.Equal(t, 1, st.Len())

	require.NoError(t, st.Expire("s1"))
	assert.Equal(t, 0, st.Len())
	assert.ErrorIs(t, st.Expire("s1"), ErrSessionNotFound)

	// A new session under the same id starts clean.
	require.NoError(t, st.WithSession("s1", func(s *Session) error {
		assert.Equal(t, "A", s.NextPersonLabel())
		return nil
	}))
}

func TestSweepIdle(t *testing.T) {
	st := NewStore(10 * time.Millisecond)

	require.NoError(t, st.WithSession("old", func(s *Session) error { return nil }))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, st.WithSession("fresh", func(s *Session) error { return nil }))

	removed := st.SweepIdle(time.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"fresh"}, st.IDs())
}

func TestWithSessionAfterExpireOfHeldPointer(t *testing.T) {
	st := NewStore(time.Minute)

	// A request can fetch the session pointer and then lose the race to
	// Expire before taking the session lock. The stale pointer must be
	// recognizably dead and WithSession must land on a fresh session.
	stale := st.getOrCreate("s1")
	require.NoError(t, st.Expire("s1"))

	stale.mu.Lock()
	dead := stale.expired
	stale.mu.Unlock()
	require.True(t, dead)

	require.NoError(t, st.WithSession("s1", func(s *Session) error {
		require.NotSame(t, stale, s)
		e := s.Create(detect.TypeEmail, "john@acme.com", "john@acme.com", "jo**@acme.com")
		assert.Equal(t, 1, e.OccurrenceCount)
		return nil
	}))
	assert.Equal(t, 1, st.Len())
}

func TestConcurrentWithSessionAndExpire(t *testing.T) {
	st := NewStore(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = st.WithSession("s1", func(s *Session) error {
					if s.Lookup(detect.TypeEmail, "k") == nil {
						s.Create(detect.TypeEmail, "k", "john@acme.com", "jo**@acme.com")
					}
					return nil
				})
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 500; j++ {
			_ = st.Expire("s1")
		}
	}()
	wg.Wait()
}

func TestConcurrentCreateSingleEntity(t *testing.T) {
	st := NewStore(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.WithSession("s1", func(s *Session) error {
				if s.Lookup(detect.TypePersonName, "john smith") == nil {
					mask := "Person " + s.NextPersonLabel()
					s.Create(detect.TypePersonName, "john smith", "John Smith", mask)
				} else {
					s.Lookup(detect.TypePersonName, "john smith").OccurrenceCount++
				}
				return nil
			})
		}()
	}
	wg.Wait()

	summary, err := st.Snapshot("s1")
	require.NoError(t, err)
	require.Len(t, summary, 1, "concurrent callers must converge on one entity")
	assert.Equal(t, "Person A", summary[0].Mask)
	assert.Equal(t, 32, summary[0].OccurrenceCount)
}
