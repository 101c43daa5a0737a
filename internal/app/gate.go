package app

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"jarvis/board/internal/auth"
)

const sessionCookie = "jarvis_session"

var publicPaths = map[string]bool{
	"/login":          true,
	"/api/auth/login": true,
	"/api/health":     true,
	"/api/ready":      true,
	"/favicon.ico":    true,
}

func isPublicPath(path string) bool {
	return publicPaths[path] || strings.HasPrefix(path, "/static/")
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// gate admits public paths, bearer tokens on the allow-list for API paths,
// and a live session cookie everywhere else.
func (s *HTTPServer) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if r.Method == http.MethodOptions || isPublicPath(path) {
			next.ServeHTTP(w, r)
			return
		}

		if isAPIPath(path) {
			if token := bearerToken(r); token != "" {
				if !s.service.AllowsAPIToken(token) {
					writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API token", nil)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if err := s.checkSession(r); err != nil {
				if isAuthError(err) {
					writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
					return
				}
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if err := s.checkSession(r); err != nil {
			if !isAuthError(err) {
				s.logger.Error("session lookup", zap.String("path", path), zap.Error(err))
			}
			http.Redirect(w, r, "/login?from="+url.QueryEscape(path), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) checkSession(r *http.Request) error {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return auth.ErrInvalidToken
	}
	_, err = s.service.SessionFromCookie(r.Context(), cookie.Value)
	return err
}

func isAuthError(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken)
}
