package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/provsalt/eldercare/internal/models"
	"github.com/provsalt/eldercare/internal/store"
	"github.com/provsalt/eldercare/internal/token"
)

func newUserFixture(t *testing.T) (*Handler, *store.SQLiteStore, *token.Issuer) {
	t.Helper()

	db, err := store.NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	issuer := token.NewIssuer([]byte("users_test_secret"), time.Hour)
	h := NewHandler(db, nil, issuer, &recordingBroadcaster{})
	return h, db, issuer
}

func userRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users", h.Signup)
	mux.HandleFunc("POST /api/users/login", h.Login)
	return mux
}

func registerUser(t *testing.T, db *store.SQLiteStore, email, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user, err := db.CreateUser(context.Background(), "Test User", email, string(hash), "en", models.RoleUser)
	require.NoError(t, err)
	return user
}

func TestLogin(t *testing.T) {
	req := require.New(t)
	h, db, issuer := newUserFixture(t)
	router := userRouter(h)
	user := registerUser(t, db, "alice@example.com", "correct horse battery")

	t.Run("success returns a verifiable token", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/users/login",
			`{"email":"alice@example.com","password":"correct horse battery"}`)
		req.Equal(http.StatusOK, w.Code)

		var resp LoginResponse
		req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		req.Equal(user.ID.String(), resp.ID)
		req.Equal("alice@example.com", resp.Email)

		ident, err := issuer.Verify(resp.Token)
		req.NoError(err)
		req.Equal(user.ID, ident.UserID)
		req.Equal(models.RoleUser, ident.Role)
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		wrong := doJSON(t, router, http.MethodPost, "/api/users/login",
			`{"email":"alice@example.com","password":"nope"}`)
		unknown := doJSON(t, router, http.MethodPost, "/api/users/login",
			`{"email":"nobody@example.com","password":"nope"}`)

		req.Equal(http.StatusUnauthorized, wrong.Code)
		req.Equal(http.StatusUnauthorized, unknown.Code)
		req.Equal(wrong.Body.String(), unknown.Body.String())
	})

	t.Run("malformed body", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/users/login", `{"email":`)
		req.Equal(http.StatusBadRequest, w.Code)
	})

	t.Run("missing fields fail validation", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/users/login", `{"email":"alice@example.com"}`)
		req.Equal(http.StatusBadRequest, w.Code)
	})
}

func TestSignup(t *testing.T) {
	req := require.New(t)
	h, db, _ := newUserFixture(t)
	router := userRouter(h)

	t.Run("creates account with hashed password", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/users",
			`{"name":"Bob","email":"bob@example.com","password":"hunter2hunter2"}`)
		req.Equal(http.StatusCreated, w.Code)

		var resp SignupResponse
		req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		req.Equal("Bob", resp.Name)

		stored, err := db.GetUserByEmail(context.Background(), "bob@example.com")
		req.NoError(err)
		req.NotEqual("hunter2hunter2", stored.PasswordHash)
		req.NoError(bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("hunter2hunter2")))
		req.Equal(models.RoleUser, stored.Role)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/users",
			`{"name":"Bob Again","email":"bob@example.com","password":"hunter2hunter2"}`)
		req.Equal(http.StatusConflict, w.Code)
	})

	t.Run("short password rejected", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/users",
			`{"name":"Eve","email":"eve@example.com","password":"short"}`)
		req.Equal(http.StatusBadRequest, w.Code)
	})
}
