package collection

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cloneSlice(v []string) []string { return append([]string(nil), v...) }

func TestStore_StartsEmpty(t *testing.T) {
	s := New[int](nil)

	state := s.Snapshot()
	assert.NotNil(t, state.Items)
	assert.Empty(t, state.Items)
	assert.False(t, state.Loading)
	assert.Empty(t, state.Err)
}

func TestStore_ReplaceAndUpdate(t *testing.T) {
	s := New[int](nil)

	s.Replace([]int{1, 2, 3})
	assert.Equal(t, []int{1, 2, 3}, s.Items())

	s.Update(func(items []int) []int { return append([]int{0}, items...) })
	assert.Equal(t, []int{0, 1, 2, 3}, s.Items())

	s.Update(func([]int) []int { return nil })
	assert.NotNil(t, s.Items())
	assert.Empty(t, s.Items())
}

func TestStore_SnapshotsAreIsolated(t *testing.T) {
	s := New(cloneSlice)
	input := [][]string{{"a", "b"}}
	s.Replace(input)

	input[0][0] = "mutated caller"
	snap := s.Items()
	assert.Equal(t, "a", snap[0][0])

	snap[0][0] = "mutated snapshot"
	assert.Equal(t, "a", s.Items()[0][0])
}

func TestStore_SubscribersSeeEveryChange(t *testing.T) {
	s := New[string](nil)

	var seen []State[string]
	unsubscribe := s.Subscribe(func(st State[string]) { seen = append(seen, st) })

	s.SetLoading(true)
	s.Replace([]string{"g1"})
	s.SetError("boom")
	s.Reset()

	require.Len(t, seen, 4)
	assert.True(t, seen[0].Loading)
	assert.Equal(t, []string{"g1"}, seen[1].Items)
	assert.Equal(t, "boom", seen[2].Err)
	assert.Equal(t, State[string]{Items: []string{}}, seen[3])

	unsubscribe()
	unsubscribe()
	s.Replace([]string{"g2"})
	assert.Len(t, seen, 4)
}

func TestStore_SubscriberMayReadStore(t *testing.T) {
	s := New[int](nil)

	var lengths []int
	s.Subscribe(func(State[int]) { lengths = append(lengths, len(s.Items())) })

	s.Replace([]int{1, 2})
	assert.Equal(t, []int{2}, lengths)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := New[int](nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Update(func(items []int) []int { return append(items, i) })
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Items(), 50)
}

func TestStore_SetAndStatusNotifyOnce(t *testing.T) {
	s := New[int](nil)

	var seen []State[int]
	s.Subscribe(func(st State[int]) { seen = append(seen, st) })

	s.SetStatus(true, "")
	s.Set(State[int]{Items: []int{7}, Err: "partial"})

	require.Len(t, seen, 2)
	assert.True(t, seen[0].Loading)
	assert.Equal(t, State[int]{Items: []int{7}, Err: "partial"}, seen[1])
	assert.Equal(t, State[int]{Items: []int{7}, Err: "partial"}, s.Snapshot())
}
