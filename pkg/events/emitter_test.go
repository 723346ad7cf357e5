package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specvital/pyadapter/pkg/domain"
)

func TestEmitter_OrderAndHistory(t *testing.T) {
	t.Parallel()

	e := NewEmitter[int]()
	var first, second []int
	e.Subscribe(func(v int) { first = append(first, v) })
	unsubscribe := e.Subscribe(func(v int) { second = append(second, v) })

	e.Publish(1)
	e.Publish(2)
	unsubscribe()
	e.Publish(3)

	assert.Equal(t, []int{1, 2, 3}, first)
	assert.Equal(t, []int{1, 2}, second)
	assert.Equal(t, []int{1, 2, 3}, e.History())
}

func TestEmitter_HistoryIsCopy(t *testing.T) {
	t.Parallel()

	e := NewEmitter[string]()
	e.Publish("a")

	h := e.History()
	h[0] = "mutated"

	assert.Equal(t, []string{"a"}, e.History())

	e.Reset()
	assert.Empty(t, e.History())
}

func TestEmitter_ConcurrentPublish(t *testing.T) {
	t.Parallel()

	const n = 100
	e := NewEmitter[int]()
	var seen int
	e.Subscribe(func(int) { seen++ })

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			e.Publish(v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, seen)
	assert.Len(t, e.History(), n)
}

func TestLoadFinished(t *testing.T) {
	t.Parallel()

	suite := domain.NewSuite("root", "Pytest tests", "", domain.KindRoot)

	t.Run("should carry the suite on success", func(t *testing.T) {
		ev := LoadFinished(suite, nil)
		assert.Equal(t, KindFinished, ev.Type)
		assert.Same(t, suite, ev.Suite)
		assert.Empty(t, ev.ErrorMessage)
	})

	t.Run("should drop the suite on failure", func(t *testing.T) {
		ev := LoadFinished(suite, errors.New("exit status 4"))
		assert.Nil(t, ev.Suite)
		assert.Equal(t, "exit status 4", ev.ErrorMessage)
	})
}

func TestTestState(t *testing.T) {
	t.Parallel()

	ev := TestState("run-1", domain.NewTestEvent("a.B.test_c", domain.StatePassed, ""))

	require.NotNil(t, ev.State)
	assert.Equal(t, KindTest, ev.Type)
	assert.Equal(t, "a.B.test_c", ev.State.Test)
}
