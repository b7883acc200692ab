package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/taskhook/app/store"
)

func TestServer_handleRegister(t *testing.T) {
	srv, storePath := newTestServer(t)

	t.Run("success", func(t *testing.T) {
		body := `{"email":"a@x.com","password":"pw123456","name":"Alice"}`
		req := httptest.NewRequest("POST", "/api/auth/register", strings.NewReader(body))
		w := httptest.NewRecorder()
		srv.handleRegister(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var resp APIAuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.NotEmpty(t, resp.User.ID)
		assert.Equal(t, "a@x.com", resp.User.Email)
		assert.Equal(t, "Alice", resp.User.Name)
		assert.Equal(t, "free", resp.User.Plan)

		// password hash never leaves the server
		assert.NotContains(t, w.Body.String(), "passwordHash")
		assert.NotContains(t, w.Body.String(), "pw123456")

		// issued token carries the user identity
		claims, err := srv.authn.ParseToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, resp.User.ID, claims.ID)
		assert.Equal(t, "a@x.com", claims.Email)
	})

	t.Run("duplicate email rejected without mutation", func(t *testing.T) {
		body := `{"email":"a@x.com","password":"other-pw"}`
		req := httptest.NewRequest("POST", "/api/auth/register", strings.NewReader(body))
		w := httptest.NewRecorder()
		srv.handleRegister(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)

		// the user collection size is unchanged
		data, err := os.ReadFile(storePath)
		require.NoError(t, err)
		var doc struct {
			Users []store.User `json:"users"`
		}
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Len(t, doc.Users, 1)
	})

	t.Run("validation failures", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"missing email", `{"password":"pw123456"}`},
			{"missing password", `{"email":"b@x.com"}`},
			{"empty body", `{}`},
			{"broken json", `{"email":`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := httptest.NewRequest("POST", "/api/auth/register", strings.NewReader(tt.body))
				w := httptest.NewRecorder()
				srv.handleRegister(w, req)
				assert.Equal(t, http.StatusBadRequest, w.Code)
			})
		}
	})
}

func TestServer_handleLogin(t *testing.T) {
	srv, _ := newTestServer(t)

	// register a user to log in as
	req := httptest.NewRequest("POST", "/api/auth/register",
		strings.NewReader(`{"email":"a@x.com","password":"pw123456"}`))
	w := httptest.NewRecorder()
	srv.handleRegister(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("success", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/auth/login",
			strings.NewReader(`{"email":"a@x.com","password":"pw123456"}`))
		w := httptest.NewRecorder()
		srv.handleLogin(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp APIAuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "a@x.com", resp.User.Email)
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		wrongPw := httptest.NewRecorder()
		srv.handleLogin(wrongPw, httptest.NewRequest("POST", "/api/auth/login",
			strings.NewReader(`{"email":"a@x.com","password":"nope"}`)))

		unknown := httptest.NewRecorder()
		srv.handleLogin(unknown, httptest.NewRequest("POST", "/api/auth/login",
			strings.NewReader(`{"email":"ghost@x.com","password":"pw123456"}`)))

		assert.Equal(t, http.StatusUnauthorized, wrongPw.Code)
		assert.Equal(t, http.StatusUnauthorized, unknown.Code)
		assert.Equal(t, wrongPw.Body.String(), unknown.Body.String())
	})

	t.Run("missing fields", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/auth/login", strings.NewReader(`{"email":"a@x.com"}`))
		w := httptest.NewRecorder()
		srv.handleLogin(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_authMiddleware(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	client := http.Client{}

	call := func(t *testing.T, token string) *http.Response {
		req, err := http.NewRequest("GET", ts.URL+"/api/tasks", http.NoBody)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("no token", func(t *testing.T) {
		resp := call(t, "")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage token", func(t *testing.T) {
		resp := call(t, "garbage")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := srv.authn.MakeToken("user-1", "a@x.com")
		require.NoError(t, err)
		resp := call(t, token)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
