package jwt

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/itchan-dev/accounts/shared/config"
	"github.com/itchan-dev/accounts/shared/domain"
	internal_errors "github.com/itchan-dev/accounts/shared/errors"
	"github.com/itchan-dev/accounts/shared/logger"
)

// JwtService issues and verifies both token kinds. The two are never interchangeable.
type JwtService interface {
	NewSession(user domain.User) (string, error)
	DecodeSession(token string) (domain.SessionClaims, error)
	EncodeConfirmation(raw string) string
	DecodeConfirmation(envelope string) (string, error)
}

type Jwt struct {
	secretKey []byte
	issuer    string
	audience  string
	ttl       time.Duration
	now       func() time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

func New(secretKey string, cfg config.Jwt) *Jwt {
	return &Jwt{
		secretKey: []byte(secretKey),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		ttl:       cfg.TTL,
		now:       time.Now,
	}
}

func (j *Jwt) NewSession(user domain.User) (string, error) {
	now := j.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Id,
			Issuer:    j.issuer,
			Audience:  jwt.ClaimStrings{j.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
		Email:   user.Email,
		Purpose: domain.PurposeSession,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		logger.Log.Error("failed to sign session token", "user_id", user.Id, "error", err)
		return "", errors.New("Can't create token")
	}
	return tokenString, nil
}

func (j *Jwt) DecodeSession(tokenString string) (domain.SessionClaims, error) {
	if !looksLikeJwt(tokenString) {
		if _, err := j.DecodeConfirmation(tokenString); err == nil {
			return domain.SessionClaims{}, internal_errors.ErrPurposeMismatch
		}
		return domain.SessionClaims{}, internal_errors.ErrMalformedToken
	}

	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithAudience(j.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return domain.SessionClaims{}, mapParseError(err)
	}

	if claims.Purpose != domain.PurposeSession {
		return domain.SessionClaims{}, internal_errors.ErrPurposeMismatch
	}
	if claims.Subject == "" || claims.Email == "" {
		return domain.SessionClaims{}, internal_errors.ErrMalformedToken
	}

	out := domain.SessionClaims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Purpose: claims.Purpose,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return internal_errors.ErrExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return internal_errors.ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience):
		return internal_errors.ErrSignatureInvalid
	default:
		logger.Log.Debug("session token rejected", "error", err)
		return internal_errors.ErrSignatureInvalid
	}
}

// EncodeConfirmation wraps a raw confirmation token for use in a URL.
// The envelope is an encoding, integrity comes from the store that issued raw.
func (j *Jwt) EncodeConfirmation(raw string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(domain.PurposeConfirmEmail + ":" + raw))
}

func (j *Jwt) DecodeConfirmation(envelope string) (string, error) {
	if looksLikeJwt(envelope) {
		return "", internal_errors.WithStatus(internal_errors.ErrPurposeMismatch, http.StatusBadRequest)
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(envelope, "="))
	if err != nil || len(decoded) == 0 {
		return "", internal_errors.WithStatus(internal_errors.ErrMalformedToken, http.StatusBadRequest)
	}
	raw, found := strings.CutPrefix(string(decoded), domain.PurposeConfirmEmail+":")
	if !found {
		return "", internal_errors.WithStatus(internal_errors.ErrPurposeMismatch, http.StatusBadRequest)
	}
	if raw == "" {
		return "", internal_errors.WithStatus(internal_errors.ErrMalformedToken, http.StatusBadRequest)
	}
	return raw, nil
}

func looksLikeJwt(s string) bool {
	return strings.Count(s, ".") == 2
}
