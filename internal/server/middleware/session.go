package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/keygate/keygate/internal/service"
)

// SessionCookie is the name of the signed session cookie.
const SessionCookie = "keygate_session"

type sessionContextKey struct{}

// Sessions moves service.Session values between the request context and
// the signed session cookie.
type Sessions struct {
	auth   *service.AuthService
	secure bool
	logger *slog.Logger
}

// NewSessions creates a Sessions. secure marks the cookie Secure, which
// browsers only send over HTTPS.
func NewSessions(auth *service.AuthService, secure bool, logger *slog.Logger) *Sessions {
	return &Sessions{auth: auth, secure: secure, logger: logger}
}

// Load decodes the session cookie into the request context. A valid
// session that grants something is re-issued so its idle timeout slides.
// An invalid or expired cookie is cleared and the request continues with
// an empty session.
func (s *Sessions) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := &service.Session{}
		if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
			got, err := s.auth.ValidateSession(c.Value)
			if err != nil {
				s.logger.Debug("session rejected",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				s.Clear(w)
			} else {
				sess = got
			}
		}

		if !sess.Empty() {
			if err := s.Save(w, *sess); err != nil {
				s.logger.Warn("session refresh failed", "error", err)
			}
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// Save signs sess into the response, replacing any session cookie already
// set on w. An empty session clears the cookie.
func (s *Sessions) Save(w http.ResponseWriter, sess service.Session) error {
	if sess.Empty() {
		s.Clear(w)
		return nil
	}
	token, exp, err := s.auth.IssueSession(sess)
	if err != nil {
		return err
	}
	s.setCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie.
func (s *Sessions) Clear(w http.ResponseWriter) {
	s.setCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Sessions) setCookie(w http.ResponseWriter, c *http.Cookie) {
	h := w.Header()
	var kept []string
	for _, v := range h.Values("Set-Cookie") {
		if !strings.HasPrefix(v, SessionCookie+"=") {
			kept = append(kept, v)
		}
	}
	h.Del("Set-Cookie")
	for _, v := range kept {
		h.Add("Set-Cookie", v)
	}
	http.SetCookie(w, c)
}

// SessionFrom returns the session loaded for this request. It never
// returns nil; a request without a session gets an empty one.
func SessionFrom(ctx context.Context) *service.Session {
	if sess, ok := ctx.Value(sessionContextKey{}).(*service.Session); ok && sess != nil {
		return sess
	}
	return &service.Session{}
}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess *service.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// RequireAdmin redirects requests whose session lacks the admin flag to
// loginPath with a 302.
func RequireAdmin(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !SessionFrom(r.Context()).Admin {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
