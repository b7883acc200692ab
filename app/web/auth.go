package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/taskhook/app/auth"
	"github.com/umputun/taskhook/app/store"
)

type contextKey string

// ctxUserKey holds the authenticated identity claims in the request context
const ctxUserKey contextKey = "user"

// handleRegister creates a new account and issues a bearer token.
// The email uniqueness check-then-create is not atomic, concurrent
// registrations with the same email can race, matching the storage contract
// which leaves uniqueness to the caller.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeJSONError(w, http.StatusBadRequest, "email and password required")
		return
	}

	_, err := s.store.FindUserByEmail(r.Context(), req.Email)
	if err == nil {
		s.writeJSONError(w, http.StatusConflict, store.ErrDuplicateEmail.Error())
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Printf("[ERROR] failed to check email %s: %v", req.Email, err)
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	hash, err := s.authn.HashPassword(req.Password)
	if err != nil {
		log.Printf("[ERROR] failed to hash password: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Email, hash, req.Name)
	if err != nil {
		log.Printf("[ERROR] failed to create user %s: %v", req.Email, err)
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := s.authn.MakeToken(user.ID, user.Email)
	if err != nil {
		log.Printf("[ERROR] failed to issue token for %s: %v", user.ID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[INFO] registered user %s (%s)", user.ID, user.Email)
	s.writeJSON(w, http.StatusOK, APIAuthResponse{Token: token, User: toAPIUser(user)})
}

// handleLogin verifies credentials and issues a bearer token. Unknown email
// and wrong password produce the same response, nothing distinguishes the two.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeJSONError(w, http.StatusBadRequest, "email and password required")
		return
	}

	user, err := s.store.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[ERROR] failed to find user %s: %v", req.Email, err)
			s.writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		s.writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !s.authn.CheckPassword(user.PasswordHash, req.Password) {
		s.writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.authn.MakeToken(user.ID, user.Email)
	if err != nil {
		log.Printf("[ERROR] failed to issue token for %s: %v", user.ID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[INFO] user %s logged in", user.ID)
	s.writeJSON(w, http.StatusOK, APIAuthResponse{Token: token, User: toAPIUser(user)})
}

// authMiddleware requires a valid bearer token and puts the identity claims
// into the request context
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.writeJSONError(w, http.StatusUnauthorized, "missing token")
			return
		}

		claims, err := s.authn.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			log.Printf("[DEBUG] rejected token: %v", err)
			s.writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestUser returns the identity claims stored by authMiddleware
func requestUser(r *http.Request) (auth.Claims, bool) {
	claims, ok := r.Context().Value(ctxUserKey).(auth.Claims)
	return claims, ok
}
