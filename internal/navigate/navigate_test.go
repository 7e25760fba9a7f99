package navigate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnce(t *testing.T) {
	rec := &Recorder{}
	once := NewOnce(rec)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			once.Navigate("/login")
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"/login"}, rec.Destinations())

	once.Reset()
	once.Navigate("/login")
	assert.Equal(t, []string{"/login", "/login"}, rec.Destinations())
}

func TestRecorder_Take(t *testing.T) {
	rec := &Recorder{}

	_, ok := rec.Take()
	assert.False(t, ok)

	rec.Navigate("/a")
	rec.Navigate("/b")

	last, ok := rec.Last()
	assert.True(t, ok)
	assert.Equal(t, "/b", last)

	last, ok = rec.Take()
	assert.True(t, ok)
	assert.Equal(t, "/b", last)
	assert.Empty(t, rec.Destinations())
}
