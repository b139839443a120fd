package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdmission_Admit(t *testing.T) {
	t.Run("should admit prompts under both limits", func(t *testing.T) {
		a := NewAdmission(10, 5)

		for i := 0; i < 5; i++ {
			ok, reason := a.Admit()
			assert.True(t, ok)
			assert.Empty(t, reason)
		}
	})

	t.Run("should reject when too many prompts are pending", func(t *testing.T) {
		a := NewAdmission(100, 2)
		a.Admit()
		a.Admit()

		ok, reason := a.Admit()
		assert.False(t, ok)
		assert.Equal(t, "too many pending prompts", reason)

		a.Done()
		ok, _ = a.Admit()
		assert.True(t, ok)
	})

	t.Run("should reject when rate limit exceeded", func(t *testing.T) {
		a := NewAdmission(3, 10)
		for i := 0; i < 3; i++ {
			a.Admit()
			a.Done()
		}

		ok, reason := a.Admit()
		assert.False(t, ok)
		assert.Equal(t, "rate limit exceeded", reason)
	})

	t.Run("should admit again after the window slides", func(t *testing.T) {
		clock := time.Now()
		a := NewAdmission(2, 10)
		a.now = func() time.Time { return clock }

		a.Admit()
		a.Admit()
		ok, _ := a.Admit()
		assert.False(t, ok)

		clock = clock.Add(61 * time.Second)
		ok, _ = a.Admit()
		assert.True(t, ok)
	})

	t.Run("should not count rejected prompts", func(t *testing.T) {
		a := NewAdmission(0, 1)
		a.Admit()
		for i := 0; i < 5; i++ {
			ok, _ := a.Admit()
			assert.False(t, ok)
		}

		recent, pending := a.Stats()
		assert.Equal(t, 1, recent)
		assert.Equal(t, 1, pending)
	})
}

func TestAdmission_Done(t *testing.T) {
	a := NewAdmission(0, 3)
	a.Done()

	_, pending := a.Stats()
	assert.Equal(t, 0, pending)
}

func TestAdmission_Concurrent(t *testing.T) {
	a := NewAdmission(0, 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := a.Admit(); ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, admitted)
	_, pending := a.Stats()
	assert.Equal(t, 50, pending)
}
