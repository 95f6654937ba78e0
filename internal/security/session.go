package security

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"

	"social-go/internal/db"
	"social-go/internal/models"
)

const (
	CookieName = "social_session"
	tokenKey   = "token"
)

var ErrNoSession = errors.New("no session")

// SessionStore keeps session rows in the database and hands the token to
// browsers in a signed cookie. API clients may send it as a Bearer token.
type SessionStore struct {
	store *sessions.CookieStore
	db    *db.DB
	ttl   time.Duration
	now   func() time.Time
}

func NewSessionStore(database *db.DB, secret string, ttl time.Duration) *SessionStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionStore{
		store: store,
		db:    database,
		ttl:   ttl,
		now:   time.Now,
	}
}

// CreateSession stores a new session for username and sets the cookie.
func (s *SessionStore) CreateSession(w http.ResponseWriter, r *http.Request, username string) (*models.Session, error) {
	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	session := &models.Session{
		Token:     token,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.db.CreateSession(r.Context(), session); err != nil {
		return nil, err
	}

	// a stale or forged cookie still yields a fresh session to write into
	cookie, _ := s.store.Get(r, CookieName)
	cookie.Values[tokenKey] = token
	if err := cookie.Save(r, w); err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession resolves the caller's session from the Authorization header or
// the cookie. It returns ErrNoSession when neither carries a token.
func (s *SessionStore) GetSession(r *http.Request) (*models.Session, error) {
	token := s.token(r)
	if token == "" {
		return nil, ErrNoSession
	}
	return s.db.GetSession(r.Context(), token)
}

func (s *SessionStore) token(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	cookie, err := s.store.Get(r, CookieName)
	if err != nil {
		return ""
	}
	token, _ := cookie.Values[tokenKey].(string)
	return token
}

// DestroySession deletes the caller's session row and expires the cookie.
func (s *SessionStore) DestroySession(w http.ResponseWriter, r *http.Request) error {
	if token := s.token(r); token != "" {
		if err := s.db.DeleteSession(r.Context(), token); err != nil {
			return err
		}
	}
	cookie, _ := s.store.Get(r, CookieName)
	cookie.Options.MaxAge = -1
	delete(cookie.Values, tokenKey)
	return cookie.Save(r, w)
}

// PurgeExpired removes sessions past their expiry.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	return s.db.PurgeExpiredSessions(ctx, s.now())
}
