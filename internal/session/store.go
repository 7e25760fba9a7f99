package session

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event describes a change to the session.
type Event int

const (
	// EventSet is emitted after a new session has been stored.
	EventSet Event = iota + 1
	// EventCleared is emitted after a session has been removed.
	EventCleared
)

func (e Event) String() string {
	switch e {
	case EventSet:
		return "set"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Observer is notified after the session changes. Observers run outside the
// store lock and may read the store.
type Observer func(Event)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry and idle checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	Ready        bool
	Token        string
	User         *User
	Expiry       time.Time
	Expired      bool
	LastActivity time.Time
	RefreshToken string
}

// Authenticated reports whether the snapshot holds a usable credential.
func (s Snapshot) Authenticated() bool {
	return s.Token != "" && !s.Expired
}

// Store is the single source of truth for the client session.
type Store struct {
	area Area
	now  func() time.Time

	mu     sync.RWMutex
	values map[string]string
	ready  bool

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

// NewStore creates a store over area. Call Load before relying on Ready.
func NewStore(area Area, opts ...Option) *Store {
	s := &Store{
		area:      area,
		now:       time.Now,
		values:    make(map[string]string),
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load hydrates the store from its area. Orphaned profiles without a token
// are purged.
func (s *Store) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	values, err := s.area.Load()
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if values[KeyToken] == "" {
		if orphaned(values) {
			log.Warn().Msg("purging session state without token")
			if err := s.area.Update(purgeOrphans); err != nil {
				return fmt.Errorf("failed to purge session profile: %w", err)
			}
			purgeOrphans(values)
		}
	}

	s.mu.Lock()
	s.values = values
	s.ready = true
	s.mu.Unlock()

	log.Debug().
		Bool("token", values[KeyToken] != "").
		Str("fingerprint", Fingerprint(values[KeyToken])).
		Msg("session loaded")

	return nil
}

// Ready reports whether Load (or a Set) has completed.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ready
}

// Token returns the bearer credential, if any.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token := s.values[KeyToken]
	return token, token != ""
}

// User returns the profile captured at login, if a session exists.
func (s *Store) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.userLocked()
}

func (s *Store) userLocked() (User, bool) {
	if s.values[KeyToken] == "" {
		return User{}, false
	}

	raw, ok := s.values[KeyUser]
	if !ok {
		return User{}, false
	}

	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		log.Debug().Err(err).Msg("failed to decode session profile")
		return User{}, false
	}
	return u, true
}

// Set stores a new session, replacing any previous one. The token must carry
// an expiry claim.
func (s *Store) Set(token string, user User) error {
	expiry, err := DecodeExpiry(token)
	if err != nil {
		return err
	}

	profile, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	s.mu.Lock()
	next := map[string]string{
		KeyToken:        token,
		KeyUser:         string(profile),
		KeyLastActivity: formatMillis(s.now()),
	}
	err = s.area.Update(func(v map[string]string) {
		clear(v)
		maps.Copy(v, next)
	})
	if err == nil {
		s.values = next
		s.ready = true
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	log.Info().
		Str("fingerprint", Fingerprint(token)).
		Str("user", user.ID).
		Str("role", user.Role).
		Time("expiry", expiry).
		Msg("session stored")

	s.notify(EventSet)
	return nil
}

// SetRefreshToken stores the reserved refresh credential alongside an
// existing session. It is never read by the session logic itself.
func (s *Store) SetRefreshToken(refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values[KeyToken] == "" {
		return fmt.Errorf("no session to attach refresh token to")
	}

	if err := s.area.Update(func(v map[string]string) {
		v[KeyRefreshToken] = refreshToken
	}); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	s.values[KeyRefreshToken] = refreshToken

	return nil
}

// Clear removes the session. Clearing an empty store is a no-op.
func (s *Store) Clear() error {
	_, err := s.Discard()
	return err
}

// Discard removes the session and reports whether one was present. Only the
// caller that actually ended a session sees true.
func (s *Store) Discard() (bool, error) {
	s.mu.Lock()
	hadSession := s.values[KeyToken] != "" || s.values[KeyUser] != ""
	err := s.area.Update(purgeOrphans)
	if err == nil {
		fingerprint := Fingerprint(s.values[KeyToken])
		s.values = make(map[string]string)
		if hadSession {
			log.Info().Str("fingerprint", fingerprint).Msg("session cleared")
		}
	}
	s.mu.Unlock()

	if err != nil {
		return false, fmt.Errorf("failed to clear session: %w", err)
	}

	if hadSession {
		s.notify(EventCleared)
	}
	return hadSession, nil
}

// IsExpired decodes the current token and reports whether it is past its
// expiry. Tokens that fail to decode count as expired.
func (s *Store) IsExpired() bool {
	token, ok := s.Token()
	if !ok {
		return true
	}

	expiry, err := DecodeExpiry(token)
	if err != nil {
		return true
	}

	return !s.now().Before(expiry)
}

// Expiry returns the expiry decoded from the current token.
func (s *Store) Expiry() (time.Time, bool) {
	token, ok := s.Token()
	if !ok {
		return time.Time{}, false
	}

	expiry, err := DecodeExpiry(token)
	if err != nil {
		return time.Time{}, false
	}
	return expiry, true
}

// TouchActivity records the current time as the last user interaction.
func (s *Store) TouchActivity() {
	now := formatMillis(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.area.Update(func(v map[string]string) {
		v[KeyLastActivity] = now
	}); err != nil {
		log.Warn().Err(err).Msg("failed to record activity")
		return
	}
	s.values[KeyLastActivity] = now
}

// LastActivity returns the last recorded interaction.
func (s *Store) LastActivity() (time.Time, bool) {
	s.mu.RLock()
	raw, ok := s.values[KeyLastActivity]
	s.mu.RUnlock()

	if !ok {
		return time.Time{}, false
	}
	return parseMillis(raw)
}

// IsInactive reports whether more than maxIdle has passed since the last
// recorded activity. A session that was never touched is never inactive.
func (s *Store) IsInactive(maxIdle time.Duration) bool {
	last, ok := s.LastActivity()
	if !ok {
		return false
	}
	return s.now().Sub(last) > maxIdle
}

// EnforceIdle clears the session when it has been inactive for longer than
// maxIdle. It returns true when a session was cleared.
func (s *Store) EnforceIdle(maxIdle time.Duration) bool {
	if _, ok := s.Token(); !ok {
		return false
	}
	if !s.IsInactive(maxIdle) {
		return false
	}

	log.Info().Dur("maxIdle", maxIdle).Msg("session idle, clearing")

	cleared, err := s.Discard()
	if err != nil {
		log.Error().Err(err).Msg("failed to clear idle session")
		return false
	}
	return cleared
}

// Snapshot returns the current session state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Ready:        s.ready,
		Token:        s.values[KeyToken],
		RefreshToken: s.values[KeyRefreshToken],
	}
	if u, ok := s.userLocked(); ok {
		snap.User = &u
	}
	rawActivity := s.values[KeyLastActivity]
	s.mu.RUnlock()

	if last, ok := parseMillis(rawActivity); ok {
		snap.LastActivity = last
	}

	snap.Expired = true
	if snap.Token != "" {
		if expiry, err := DecodeExpiry(snap.Token); err == nil {
			snap.Expiry = expiry
			snap.Expired = !s.now().Before(expiry)
		}
	}

	return snap
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Store) notify(ev Event) {
	s.obsMu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range observers {
		fn(ev)
	}
}

// orphaned reports whether values hold session keys that must not outlive
// the token.
func orphaned(values map[string]string) bool {
	for _, key := range []string{KeyToken, KeyUser, KeyLastActivity, KeyRefreshToken} {
		if _, ok := values[key]; ok {
			return true
		}
	}
	return false
}

// purgeOrphans drops every session key.
func purgeOrphans(values map[string]string) {
	delete(values, KeyToken)
	delete(values, KeyUser)
	delete(values, KeyLastActivity)
	delete(values, KeyRefreshToken)
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(raw string) (time.Time, bool) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
