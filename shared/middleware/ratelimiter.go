package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"
	"strings"

	"github.com/itchan-dev/accounts/shared/logger"
	"github.com/itchan-dev/accounts/shared/middleware/ratelimiter"
)

// maxIdentityBody caps request bodies on rate limited routes.
// The same cap applies to the handler, so it never reads more than the limiter saw.
const maxIdentityBody = 1 << 16

func RateLimit(rl *ratelimiter.Limiter, getIdentity func(r *http.Request) (string, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxIdentityBody)
			}
			identity, err := getIdentity(r)
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			if err != nil {
				// let the handler report what is wrong with the request
				next.ServeHTTP(w, r)
				return
			}
			if !rl.Allow(identity) {
				logger.Log.Warn("rate limit exceeded", "path", r.URL.Path, "identity", identity)
				http.Error(w, "Rate limit exceeded, try again later", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetIP extracts the client IP from RemoteAddr.
// Forwarded headers are honoured only through chi's RealIP middleware, which rewrites RemoteAddr.
func GetIP(r *http.Request) (string, error) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("invalid IP address: %s", ip)
	}
	return ip, nil
}

// GetFieldFromBody extracts a string field from a JSON body and restores the body for the handler.
// The body is decoded with the rules handlers use, so "Email" and "email" name the same field.
// Values are lowercased so "A@x.com" and "a@x.com" share a bucket.
func GetFieldFromBody(field string) func(r *http.Request) (string, error) {
	target := reflect.StructOf([]reflect.StructField{{
		Name: "Value",
		Type: reflect.TypeOf(""),
		Tag:  reflect.StructTag(fmt.Sprintf(`json:%q`, field)),
	}})
	return func(r *http.Request) (string, error) {
		if r.Body == nil {
			return "", errors.New("empty request body")
		}
		body, err := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("failed to read request body: %w", err)
		}

		data := reflect.New(target)
		if err := json.NewDecoder(bytes.NewReader(body)).Decode(data.Interface()); err != nil {
			return "", errors.New("invalid request body")
		}
		value := strings.ToLower(strings.TrimSpace(data.Elem().Field(0).String()))
		if value == "" {
			return "", fmt.Errorf("%s field is required", field)
		}
		return value, nil
	}
}

func GetEmailFromBody(r *http.Request) (string, error) {
	return GetFieldFromBody("email")(r)
}

