package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/users", "", CreateUserRequest{Name: "New User", Email: "NewUser@Test.org", Password: "password"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "User created successfully")

	user, err := s.store.Read(t.Context()).UserByEmail("newuser@test.org")
	require.NoError(t, err)
	assert.Equal(t, "New User", user.Name)
	assert.NotEqual(t, "password", user.PasswordHash)

	w = s.do(http.MethodPost, "/users", "", CreateUserRequest{Name: "Again", Email: "newuser@test.org", Password: "password"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "email address already in use")

	for _, req := range []CreateUserRequest{
		{Name: "Bad", Email: "not-an-email", Password: "password"},
		{Name: "Short", Email: "short@test.org", Password: "12345"},
		{Email: "noname@test.org", Password: "password"},
	} {
		w = s.do(http.MethodPost, "/users", "", req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%+v", req)
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	token := s.signup("user@test.org")

	claims, err := s.tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user@test.org", claims.Email)

	w := s.do(http.MethodPost, "/login", "", LoginRequest{Email: "user@test.org", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(http.MethodPost, "/login", "", LoginRequest{Email: "nobody@test.org", Password: "password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(http.MethodPost, "/login", "", LoginRequest{Email: "user@test.org"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)
	token := s.signup("user@test.org")
	ops := s.signup("ops@example.com")

	w := s.do(http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	ghost, err := s.tokens.Issue(424242, "ghost@test.org")
	require.NoError(t, err)
	w = s.do(http.MethodGet, "/me", ghost, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		Elevated bool `json:"elevated"`
		User     struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	decode(t, w, &me)
	assert.Equal(t, "user@test.org", me.User.Email)
	assert.False(t, me.Elevated)
	assert.NotContains(t, w.Body.String(), "password")

	w = s.do(http.MethodGet, "/me", ops, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &me)
	assert.True(t, me.Elevated)
}
