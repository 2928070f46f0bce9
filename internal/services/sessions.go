package services

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Lllllllleong/pdfchatgenie/internal/models"
)

const DefaultSessionCacheSize = 256

// Session is one uploaded document ready for questions.
type Session struct {
	ID        string
	Key       string
	FileHash  string
	PageCount int
	Index     *Index
	CreatedAt time.Time
}

// SessionStore keeps sessions in memory for at most ttl, evicting the least
// recently used session once size is reached.
type SessionStore struct {
	cache *expirable.LRU[string, *Session]
}

func NewSessionStore(size int, ttl time.Duration) *SessionStore {
	if size <= 0 {
		size = DefaultSessionCacheSize
	}
	return &SessionStore{cache: expirable.NewLRU[string, *Session](size, nil, ttl)}
}

func (s *SessionStore) Put(session *Session) {
	s.cache.Add(session.ID, session)
}

// Get returns the session or an error wrapping models.ErrSessionNotFound.
func (s *SessionStore) Get(id string) (*Session, error) {
	session, ok := s.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	return session, nil
}

func (s *SessionStore) Len() int { return s.cache.Len() }
