package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/edugate/internal/session/sessiontest"
)

var testUser = User{ID: "u-1", Name: "Test Student", Role: "student"}

func newTestStore(t *testing.T) (*Store, *sessiontest.Clock) {
	t.Helper()

	clock := sessiontest.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := NewStore(NewMemoryArea(), WithClock(clock.Now))
	require.NoError(t, store.Load(context.Background()))

	return store, clock
}

func TestStore_Set(t *testing.T) {
	t.Run("stores token and user", func(t *testing.T) {
		store, clock := newTestStore(t)
		token := sessiontest.Token(t, "u-1", clock.Now().Add(time.Hour))

		require.NoError(t, store.Set(token, testUser))

		got, ok := store.Token()
		require.True(t, ok)
		assert.Equal(t, token, got)

		user, ok := store.User()
		require.True(t, ok)
		assert.Equal(t, testUser, user)
	})

	t.Run("rejects token that does not decode", func(t *testing.T) {
		store, _ := newTestStore(t)

		for _, token := range []string{"", "not-a-jwt", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.!!!.sig"} {
			err := store.Set(token, testUser)
			require.ErrorIs(t, err, ErrMalformedToken, "token %q", token)
		}

		_, ok := store.Token()
		assert.False(t, ok)
		_, ok = store.User()
		assert.False(t, ok)
	})

	t.Run("rejects token without expiry", func(t *testing.T) {
		store, _ := newTestStore(t)

		err := store.Set(sessiontest.TokenWithoutExpiry(t, "u-1"), testUser)
		require.ErrorIs(t, err, ErrMalformedToken)
	})

	t.Run("set clear set leaves no residue", func(t *testing.T) {
		store, clock := newTestStore(t)
		token := sessiontest.Token(t, "u-1", clock.Now().Add(time.Hour))

		require.NoError(t, store.Set(token, testUser))
		single := store.Snapshot()

		require.NoError(t, store.SetRefreshToken("refresh-1"))
		require.NoError(t, store.Clear())
		require.NoError(t, store.Set(token, testUser))

		assert.Equal(t, single, store.Snapshot())
	})

	t.Run("notifies observers", func(t *testing.T) {
		store, clock := newTestStore(t)

		var events []Event
		unsubscribe := store.Subscribe(func(ev Event) { events = append(events, ev) })

		token := sessiontest.Token(t, "u-1", clock.Now().Add(time.Hour))
		require.NoError(t, store.Set(token, testUser))
		require.NoError(t, store.Clear())
		require.NoError(t, store.Clear())

		unsubscribe()
		require.NoError(t, store.Set(token, testUser))

		assert.Equal(t, []Event{EventSet, EventCleared}, events)
	})
}

func TestStore_Clear(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		store, _ := newTestStore(t)

		require.NoError(t, store.Clear())
		require.NoError(t, store.Clear())

		_, ok := store.Token()
		assert.False(t, ok)
	})

	t.Run("discard reports whether a session ended", func(t *testing.T) {
		store, clock := newTestStore(t)
		require.NoError(t, store.Set(sessiontest.Token(t, "u-1", clock.Now().Add(time.Hour)), testUser))

		cleared, err := store.Discard()
		require.NoError(t, err)
		assert.True(t, cleared)

		cleared, err = store.Discard()
		require.NoError(t, err)
		assert.False(t, cleared)
	})

	t.Run("removes every session key", func(t *testing.T) {
		area := NewMemoryArea()
		clock := sessiontest.NewClock(time.Now())
		store := NewStore(area, WithClock(clock.Now))
		require.NoError(t, store.Load(context.Background()))

		token := sessiontest.Token(t, "u-1", clock.Now().Add(time.Hour))
		require.NoError(t, store.Set(token, testUser))
		require.NoError(t, store.SetRefreshToken("refresh-1"))
		store.TouchActivity()

		require.NoError(t, store.Clear())

		values, err := area.Load()
		require.NoError(t, err)
		assert.Empty(t, values)

		_, ok := store.User()
		assert.False(t, ok)
		_, ok = store.LastActivity()
		assert.False(t, ok)
	})
}

func TestStore_IsExpired(t *testing.T) {
	store, clock := newTestStore(t)
	expiry := clock.Now().Add(time.Hour)
	require.NoError(t, store.Set(sessiontest.Token(t, "u-1", expiry), testUser))

	tests := []struct {
		name     string
		now      time.Time
		expected bool
	}{
		{name: "before expiry", now: expiry.Add(-time.Second), expected: false},
		{name: "at expiry", now: expiry, expected: true},
		{name: "after expiry", now: expiry.Add(time.Second), expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.Set(tt.now)
			assert.Equal(t, tt.expected, store.IsExpired())
		})
	}
}

func TestStore_IsExpired_NoToken(t *testing.T) {
	store, _ := newTestStore(t)
	assert.True(t, store.IsExpired())
}

func TestStore_IsExpired_UndecodableToken(t *testing.T) {
	area := NewMemoryArea()
	require.NoError(t, area.Update(func(v map[string]string) {
		v[KeyToken] = "garbage"
		v[KeyUser] = `{"id":"u-1"}`
	}))

	store := NewStore(area)
	require.NoError(t, store.Load(context.Background()))

	assert.True(t, store.IsExpired())
	_, ok := store.Expiry()
	assert.False(t, ok)
}

func TestStore_IsInactive(t *testing.T) {
	t.Run("false when never touched", func(t *testing.T) {
		store, _ := newTestStore(t)
		assert.False(t, store.IsInactive(time.Millisecond))
	})

	t.Run("boundary is strictly greater", func(t *testing.T) {
		store, clock := newTestStore(t)
		maxIdle := 30 * time.Minute

		store.TouchActivity()

		clock.Advance(maxIdle)
		assert.False(t, store.IsInactive(maxIdle))

		clock.Advance(time.Millisecond)
		assert.True(t, store.IsInactive(maxIdle))
	})

	t.Run("touch resets idle timer", func(t *testing.T) {
		store, clock := newTestStore(t)

		store.TouchActivity()
		clock.Advance(2 * time.Hour)
		store.TouchActivity()

		assert.False(t, store.IsInactive(time.Hour))
	})
}

func TestStore_EnforceIdle(t *testing.T) {
	store, clock := newTestStore(t)
	maxIdle := time.Hour
	require.NoError(t, store.Set(sessiontest.Token(t, "u-1", clock.Now().Add(48*time.Hour)), testUser))

	assert.False(t, store.EnforceIdle(maxIdle))

	clock.Advance(maxIdle + time.Millisecond)
	assert.True(t, store.EnforceIdle(maxIdle))

	_, ok := store.Token()
	assert.False(t, ok)
	assert.False(t, store.EnforceIdle(maxIdle))
}

func TestStore_Load(t *testing.T) {
	t.Run("not ready before load", func(t *testing.T) {
		store := NewStore(NewMemoryArea())
		assert.False(t, store.Ready())

		require.NoError(t, store.Load(context.Background()))
		assert.True(t, store.Ready())
	})

	t.Run("purges profile without token", func(t *testing.T) {
		area := NewMemoryArea()
		require.NoError(t, area.Update(func(v map[string]string) {
			v[KeyUser] = `{"id":"u-1"}`
			v[KeyRefreshToken] = "refresh-1"
		}))

		store := NewStore(area)
		require.NoError(t, store.Load(context.Background()))

		values, err := area.Load()
		require.NoError(t, err)
		assert.NotContains(t, values, KeyUser)
		assert.NotContains(t, values, KeyRefreshToken)
	})

	t.Run("purges activity without token", func(t *testing.T) {
		area := NewMemoryArea()
		require.NoError(t, area.Update(func(v map[string]string) {
			v[KeyLastActivity] = "1700000000000"
		}))

		store := NewStore(area)
		require.NoError(t, store.Load(context.Background()))

		values, err := area.Load()
		require.NoError(t, err)
		assert.Empty(t, values)

		_, ok := store.LastActivity()
		assert.False(t, ok)
	})

	t.Run("honours cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		store := NewStore(NewMemoryArea())
		require.ErrorIs(t, store.Load(ctx), context.Canceled)
		assert.False(t, store.Ready())
	})
}

func TestStore_SetRefreshToken_RequiresSession(t *testing.T) {
	store, _ := newTestStore(t)
	require.Error(t, store.SetRefreshToken("refresh-1"))
}

func TestFileArea(t *testing.T) {
	t.Run("creates directory with correct permissions", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "state")

		_, err := NewFileArea(dir)
		require.NoError(t, err)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	})

	t.Run("session survives reload", func(t *testing.T) {
		dir := t.TempDir()
		area, err := NewFileArea(dir)
		require.NoError(t, err)

		clock := sessiontest.NewClock(time.Now())
		store := NewStore(area, WithClock(clock.Now))
		require.NoError(t, store.Load(context.Background()))

		token := sessiontest.Token(t, "u-1", clock.Now().Add(time.Hour))
		require.NoError(t, store.Set(token, testUser))

		info, err := os.Stat(area.Path())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

		_, err = os.Stat(area.Path() + ".tmp")
		assert.True(t, os.IsNotExist(err))

		reopened, err := NewFileArea(dir)
		require.NoError(t, err)
		again := NewStore(reopened, WithClock(clock.Now))
		require.NoError(t, again.Load(context.Background()))

		got, ok := again.Token()
		require.True(t, ok)
		assert.Equal(t, token, got)

		user, ok := again.User()
		require.True(t, ok)
		assert.Equal(t, testUser, user)
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		dir := t.TempDir()
		area, err := NewFileArea(dir)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(area.Path(), []byte("{not json"), 0600))

		store := NewStore(area)
		require.Error(t, store.Load(context.Background()))
	})
}

func TestFingerprint(t *testing.T) {
	assert.Empty(t, Fingerprint(""))

	fp := Fingerprint("token-a")
	assert.Len(t, fp, 12)
	assert.Equal(t, fp, Fingerprint("token-a"))
	assert.NotEqual(t, fp, Fingerprint("token-b"))
}

func TestIdleMonitor_Check(t *testing.T) {
	store, clock := newTestStore(t)
	require.NoError(t, store.Set(sessiontest.Token(t, "u-1", clock.Now().Add(48*time.Hour)), testUser))

	called := 0
	monitor := NewIdleMonitor(store, time.Hour, time.Minute, func() { called++ })

	assert.False(t, monitor.Check())

	clock.Advance(time.Hour + time.Second)
	assert.True(t, monitor.Check())
	assert.Equal(t, 1, called)
}
