package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"gistlick-api/src/gist"

	"github.com/google/uuid"
)

type contextKey string

const (
	gistClientKey contextKey = "gistClient"
	userInfoKey   contextKey = "userInfo"
)

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func bearerToken(r *http.Request) (string, error) {
	authorization := r.Header.Get("Authorization")
	if authorization == "" {
		return "", errors.New("Authorization header missing or invalid. Use Bearer token.")
	}

	parts := strings.Fields(authorization)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("Authorization header must be 'Bearer TOKEN'")
	}

	return parts[1], nil
}

// authMiddleware builds a gist client bound to the request's bearer token,
// verifies the token against the remote user endpoint, and stashes the client
// and identity in the request context. Nothing outlives the request.
func (s *Serve) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeError(http.StatusUnauthorized, err.Error(), w)
			return
		}

		client := gist.NewClient(s.config.GithubAPIURL, token, s.config.HTTPTimeout, logger)

		user, err := client.User(r.Context())
		if err != nil {
			writeAPIError(err, w)
			return
		}

		ctx := context.WithValue(r.Context(), gistClientKey, client)
		ctx = context.WithValue(ctx, userInfoKey, user)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientFromRequest(r *http.Request) *gist.Client {
	client, _ := r.Context().Value(gistClientKey).(*gist.Client)
	return client
}

func userFromRequest(r *http.Request) *gist.User {
	user, _ := r.Context().Value(userInfoKey).(*gist.User)
	return user
}

// requestIDMiddleware tags every request with an ID for log correlation.
var requestIDMiddleware = func(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		logger.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("incoming request")

		next.ServeHTTP(w, r)
	})
}

var addCorsHeaders = func(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedHeaders := "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-CSRF-Token"
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
		w.Header().Set("Access-Control-Expose-Headers", "Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
