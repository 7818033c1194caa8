package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/sheetdesk/internal/core"
	"github.com/JonMunkholm/sheetdesk/internal/logging"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "sheetdesk_session"

type ctxKey struct{}

// WithRequestMetadata adds IP and User-Agent to context for audit logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithRequestMeta(ctx, core.RequestMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
}

// clientIP returns the host part of RemoteAddr, already rewritten by
// TrustedRealIP for requests from trusted proxies.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// withSession resolves the caller's session from its cookie, starting a new
// one when the cookie is missing or the session has expired.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sess *core.Session
		if c, err := r.Cookie(SessionCookie); err == nil {
			sess, _ = s.sessions.Get(c.Value)
		}
		if sess == nil {
			var err error
			sess, err = s.sessions.Create()
			if err != nil {
				s.fail(w, r, err)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    sess.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.cfg.Session.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := logging.WithSessionID(r.Context(), sess.ID)
		ctx = WithRequestMetadata(ctx, r)
		ctx = context.WithValue(ctx, ctxKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFrom returns the session attached by withSession.
func sessionFrom(r *http.Request) *core.Session {
	sess, _ := r.Context().Value(ctxKey{}).(*core.Session)
	return sess
}
