package gmail

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// DefaultStateTTL bounds how long a consent link stays usable. Re-authorization
// notices can sit unread in the chat for a while.
const DefaultStateTTL = 24 * time.Hour

// StateStore issues single-use OAuth state values.
type StateStore struct {
	mu     sync.Mutex
	states *cache.Cache
}

// NewStateStore returns a store whose states expire after ttl.
func NewStateStore(ttl time.Duration) *StateStore {
	return &StateStore{states: cache.New(ttl, ttl)}
}

// Issue returns a new random state.
func (s *StateStore) Issue() string {
	state := uuid.NewString()
	s.states.SetDefault(state, struct{}{})
	return state
}

// Consume reports whether state was issued, has not expired and was not used
// before. A consumed state is forgotten.
func (s *StateStore) Consume(state string) bool {
	if state == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states.Get(state); !ok {
		return false
	}
	s.states.Delete(state)
	return true
}

// Consent issues consent URLs whose state the callback can verify.
type Consent struct {
	*Authenticator
	states *StateStore
}

// NewConsent pairs an authenticator with a state store.
func NewConsent(auth *Authenticator, states *StateStore) *Consent {
	return &Consent{Authenticator: auth, states: states}
}

// ConsentURL returns a consent page URL carrying a fresh state.
func (c *Consent) ConsentURL() string {
	return c.AuthURL(c.states.Issue())
}

// VerifyState consumes a state echoed back by the consent page.
func (c *Consent) VerifyState(state string) bool {
	return c.states.Consume(state)
}
