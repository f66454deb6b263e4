package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/itchan-dev/accounts/shared/domain"
	"github.com/itchan-dev/accounts/shared/logger"
	"github.com/itchan-dev/accounts/shared/utils"
)

// AccessTokenCookie holds the session token for browser clients.
const AccessTokenCookie = "accessToken"

// SessionDecoder verifies session tokens.
type SessionDecoder interface {
	DecodeSession(token string) (domain.SessionClaims, error)
}

// Key to store the session claims in the request context
type key int

const SessionClaimsKey key = 0

type Auth struct {
	decoder SessionDecoder
}

func NewAuth(decoder SessionDecoder) *Auth {
	return &Auth{decoder: decoder}
}

// NeedAuth rejects requests without a valid session token.
func (a *Auth) NeedAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := TokenFromRequest(r)
			if tokenString == "" {
				http.Error(w, "Please sign-in", http.StatusUnauthorized)
				return
			}

			claims, err := a.decoder.DecodeSession(tokenString)
			if err != nil {
				logger.Log.Debug("session token rejected", "error", err)
				utils.WriteErrorAndStatusCode(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), SessionClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromRequest reads the access token cookie and falls back to the bearer header.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found {
		return strings.TrimSpace(token)
	}
	return ""
}

// GetClaimsFromContext returns the claims stored by NeedAuth.
func GetClaimsFromContext(r *http.Request) (domain.SessionClaims, bool) {
	claims, ok := r.Context().Value(SessionClaimsKey).(domain.SessionClaims)
	return claims, ok
}
