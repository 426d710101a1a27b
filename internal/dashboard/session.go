package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kgrbac.org/internal/demo"
	"kgrbac.org/internal/ids"
)

const (
	cookieName = "kgrbac_session"
	sessionTTL = 12 * time.Hour
)

// Session is one browser's view of the demo. Its mutex serializes actions so
// only one build, share or query runs at a time per session.
type Session struct {
	ID string

	mu       sync.Mutex
	state    *demo.State
	last     *demo.Payload
	lastSeen time.Time
}

type sessionStore struct {
	secret []byte
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func newSessionStore(secret []byte) *sessionStore {
	return &sessionStore{secret: secret, now: time.Now, sessions: map[string]*Session{}}
}

func (s *sessionStore) sign(id string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *sessionStore) parse(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("session token without subject")
	}
	return claims.Subject, nil
}

// load returns the session named by the request cookie, creating one and
// setting the cookie when it is missing, invalid or expired.
func (s *sessionStore) load(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if c, err := r.Cookie(cookieName); err == nil {
		if id, err := s.parse(c.Value); err == nil {
			s.mu.Lock()
			sess, ok := s.sessions[id]
			if ok {
				sess.lastSeen = s.now()
			}
			s.mu.Unlock()
			if ok {
				return sess, nil
			}
		}
	}

	sess := &Session{ID: ids.Prefixed("sess"), lastSeen: s.now()}
	token, err := s.sign(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	s.mu.Lock()
	s.evictLocked()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL / time.Second),
	})
	return sess, nil
}

func (s *sessionStore) evictLocked() {
	cutoff := s.now().Add(-sessionTTL)
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
