package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	SessionName       = "edits_session"
	UserIDKey         = "user_id"
	UsernameKey       = "username"
	AccessLevelKey    = "access_level"
	SessionCreatedKey = "created_at"

	sessionMaxAge = 86400 * 30
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
)

type AccessLevel string

const (
	AccessUnauthenticated AccessLevel = "unauthenticated"
	AccessUser            AccessLevel = "user"
	AccessAdmin           AccessLevel = "admin"
)

// AccessLevelForRole maps a stored user role to the session access level.
func AccessLevelForRole(role string) AccessLevel {
	if role == string(AccessAdmin) {
		return AccessAdmin
	}
	return AccessUser
}

// SessionUser is what the session cookie carries about the signed-in user.
type SessionUser struct {
	ID          string
	Username    string
	AccessLevel AccessLevel
	CreatedAt   time.Time
}

func (u SessionUser) IsAdmin() bool {
	return u.AccessLevel == AccessAdmin
}

type SessionManager struct {
	store *sessions.CookieStore
}

func NewSessionManager(secret string) *SessionManager {
	if secret == "" {
		slog.Warn("SESSION_SECRET not set, sessions will not survive a restart")
		secret = generateSecret()
	}
	return &SessionManager{
		store: sessions.NewCookieStore([]byte(secret)),
	}
}

func generateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.StdEncoding.EncodeToString(b)
}

func (sm *SessionManager) SaveSession(w http.ResponseWriter, r *http.Request, user SessionUser) error {
	session, _ := sm.store.Get(r, SessionName)
	session.Values[UserIDKey] = user.ID
	session.Values[UsernameKey] = user.Username
	session.Values[AccessLevelKey] = string(user.AccessLevel)
	session.Values[SessionCreatedKey] = time.Now().Unix()

	session.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
	}

	return session.Save(r, w)
}

// GetSession decodes the session cookie. A missing cookie or one without a
// user yields ErrNotAuthenticated; a cookie that fails to decode yields the
// decode error.
func (sm *SessionManager) GetSession(r *http.Request) (SessionUser, error) {
	session, err := sm.store.Get(r, SessionName)
	if err != nil {
		_, cookieErr := r.Cookie(SessionName)
		slog.Warn("failed to decode session", "error", err, "host", r.Host, "has_cookie", cookieErr == nil)
		return SessionUser{}, err
	}

	uid, ok := session.Values[UserIDKey].(string)
	if !ok || uid == "" {
		return SessionUser{}, ErrNotAuthenticated
	}
	uname, ok := session.Values[UsernameKey].(string)
	if !ok {
		return SessionUser{}, ErrNotAuthenticated
	}

	user := SessionUser{ID: uid, Username: uname, AccessLevel: AccessUser}
	if level, ok := session.Values[AccessLevelKey].(string); ok && AccessLevel(level) == AccessAdmin {
		user.AccessLevel = AccessAdmin
	}
	if unix, ok := session.Values[SessionCreatedKey].(int64); ok {
		user.CreatedAt = time.Unix(unix, 0)
	}
	return user, nil
}

// GetAccessLevel returns AccessUnauthenticated if the session is missing or invalid.
func (sm *SessionManager) GetAccessLevel(r *http.Request) AccessLevel {
	user, err := sm.GetSession(r)
	if err != nil {
		return AccessUnauthenticated
	}
	return user.AccessLevel
}

func (sm *SessionManager) IsAuthenticated(r *http.Request) bool {
	_, err := sm.GetSession(r)
	return err == nil
}

func (sm *SessionManager) ClearSession(w http.ResponseWriter, r *http.Request) error {
	session, _ := sm.store.Get(r, SessionName)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
