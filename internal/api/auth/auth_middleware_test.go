package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/medicalq/backend/internal/api"
	"github.com/medicalq/backend/internal/identity"
)

func newTestMiddleware(provider identity.Provider, repo UserRepo) *Middleware {
	return NewMiddleware(provider, repo, NewRevocationList(nil), slog.Default())
}

// echoPrincipal records whether a principal reached the handler.
func echoPrincipal(captured **User) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := GetUserFromContext(r.Context()); ok {
			*captured = u
		}
		w.WriteHeader(http.StatusOK)
	})
}

func bearerRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuthenticate(t *testing.T) {
	activeUser := &User{ID: uuid.New(), FirebaseUID: "uid-1", Role: RolePatient, IsActive: true}

	t.Run("missing header", func(t *testing.T) {
		m := newTestMiddleware(new(MockProvider), new(MockUserRepo))
		var got *User
		w := httptest.NewRecorder()
		m.Authenticate(echoPrincipal(&got)).ServeHTTP(w, bearerRequest(""))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Nil(t, got)
	})

	t.Run("malformed header", func(t *testing.T) {
		m := newTestMiddleware(new(MockProvider), new(MockUserRepo))
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Token abc")

		w := httptest.NewRecorder()
		var got *User
		m.Authenticate(echoPrincipal(&got)).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		provider := new(MockProvider)
		provider.On("VerifyToken", mock.Anything, "expired").
			Return(nil, &identity.Error{Kind: identity.KindTokenExpired, Op: "VerifyToken"})
		m := newTestMiddleware(provider, new(MockUserRepo))

		w := httptest.NewRecorder()
		var got *User
		m.Authenticate(echoPrincipal(&got)).ServeHTTP(w, bearerRequest("expired"))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("no local record", func(t *testing.T) {
		provider := new(MockProvider)
		repo := new(MockUserRepo)
		provider.On("VerifyToken", mock.Anything, "tok").
			Return(&identity.Token{UID: "ghost", IssuedAt: time.Now()}, nil)
		repo.On("GetUserByFirebaseUID", mock.Anything, "ghost").
			Return(nil, fmt.Errorf("%w: no user", api.ErrNotFound))
		m := newTestMiddleware(provider, repo)

		w := httptest.NewRecorder()
		var got *User
		m.Authenticate(echoPrincipal(&got)).ServeHTTP(w, bearerRequest("tok"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("deactivated account", func(t *testing.T) {
		provider := new(MockProvider)
		repo := new(MockUserRepo)
		provider.On("VerifyToken", mock.Anything, "tok").
			Return(&identity.Token{UID: "uid-1", IssuedAt: time.Now()}, nil)
		repo.On("GetUserByFirebaseUID", mock.Anything, "uid-1").
			Return(&User{ID: uuid.New(), FirebaseUID: "uid-1", IsActive: false}, nil)
		m := newTestMiddleware(provider, repo)

		w := httptest.NewRecorder()
		var got *User
		m.Authenticate(echoPrincipal(&got)).ServeHTTP(w, bearerRequest("tok"))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("valid token attaches the principal", func(t *testing.T) {
		provider := new(MockProvider)
		repo := new(MockUserRepo)
		provider.On("VerifyToken", mock.Anything, "tok").
			Return(&identity.Token{UID: "uid-1", IssuedAt: time.Now()}, nil)
		repo.On("GetUserByFirebaseUID", mock.Anything, "uid-1").Return(activeUser, nil)
		m := newTestMiddleware(provider, repo)

		w := httptest.NewRecorder()
		var got *User
		m.Authenticate(echoPrincipal(&got)).ServeHTTP(w, bearerRequest("tok"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, activeUser.ID, got.ID)
	})

	t.Run("cached principal does not outlive token expiry", func(t *testing.T) {
		provider := new(MockProvider)
		repo := new(MockUserRepo)
		provider.On("VerifyToken", mock.Anything, "tok").
			Return(&identity.Token{
				UID:       "uid-1",
				IssuedAt:  time.Now(),
				ExpiresAt: time.Now().Add(20 * time.Millisecond),
			}, nil).Once()
		repo.On("GetUserByFirebaseUID", mock.Anything, "uid-1").Return(activeUser, nil).Once()
		m := newTestMiddleware(provider, repo)

		handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, bearerRequest("tok"))
		assert.Equal(t, http.StatusOK, w.Code)

		time.Sleep(40 * time.Millisecond)

		w = httptest.NewRecorder()
		handler.ServeHTTP(w, bearerRequest("tok"))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		// Only the first request performed a full verification.
		provider.AssertExpectations(t)
	})

	t.Run("repeat requests hit the principal cache", func(t *testing.T) {
		provider := new(MockProvider)
		repo := new(MockUserRepo)
		provider.On("VerifyToken", mock.Anything, "tok").
			Return(&identity.Token{UID: "uid-1", IssuedAt: time.Now()}, nil).Once()
		repo.On("GetUserByFirebaseUID", mock.Anything, "uid-1").Return(activeUser, nil).Once()
		m := newTestMiddleware(provider, repo)

		handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, bearerRequest("tok"))
			assert.Equal(t, http.StatusOK, w.Code)
		}
		provider.AssertExpectations(t)
		repo.AssertExpectations(t)
	})
}

func TestOptionalAuthenticate(t *testing.T) {
	t.Run("no header proceeds anonymously", func(t *testing.T) {
		m := newTestMiddleware(new(MockProvider), new(MockUserRepo))

		w := httptest.NewRecorder()
		var got *User
		m.OptionalAuthenticate(echoPrincipal(&got)).ServeHTTP(w, bearerRequest(""))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, got)
	})

	t.Run("invalid token proceeds anonymously", func(t *testing.T) {
		provider := new(MockProvider)
		provider.On("VerifyToken", mock.Anything, "bad").
			Return(nil, &identity.Error{Kind: identity.KindTokenInvalid, Op: "VerifyToken"})
		m := newTestMiddleware(provider, new(MockUserRepo))

		w := httptest.NewRecorder()
		var got *User
		m.OptionalAuthenticate(echoPrincipal(&got)).ServeHTTP(w, bearerRequest("bad"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, got)
	})
}

func TestRoleGates(t *testing.T) {
	serve := func(gate func(http.Handler) http.Handler, user *User) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/gated", nil)
		if user != nil {
			req = req.WithContext(context.WithValue(req.Context(), userKey, user))
		}
		w := httptest.NewRecorder()
		gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(w, req)
		return w
	}

	t.Run("gates return 401 without a principal", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(RequireDoctor(), nil).Code)
		assert.Equal(t, http.StatusUnauthorized, serve(RequireAdmin(), nil).Code)
	})

	t.Run("verified doctor gate", func(t *testing.T) {
		verified := &User{Role: RoleDoctor, IsVerified: true, IsActive: true}
		unverified := &User{Role: RoleDoctor, IsVerified: false, IsActive: true}
		inactive := &User{Role: RoleDoctor, IsVerified: true, IsActive: false}

		assert.Equal(t, http.StatusOK, serve(RequireVerifiedDoctor(), verified).Code)
		assert.Equal(t, http.StatusForbidden, serve(RequireVerifiedDoctor(), unverified).Code)
		assert.Equal(t, http.StatusForbidden, serve(RequireVerifiedDoctor(), inactive).Code)
		// Plain doctor gate admits the unverified doctor.
		assert.Equal(t, http.StatusOK, serve(RequireDoctor(), unverified).Code)
	})

	t.Run("admin gate rejects everyone else", func(t *testing.T) {
		admin := &User{Role: RoleAdmin, IsVerified: true, IsActive: true}
		doctor := &User{Role: RoleDoctor, IsVerified: true, IsActive: true}

		assert.Equal(t, http.StatusOK, serve(RequireAdmin(), admin).Code)
		assert.Equal(t, http.StatusForbidden, serve(RequireAdmin(), doctor).Code)
	})
}

func TestRequireOwnerOrAdmin(t *testing.T) {
	owner := &User{ID: uuid.New(), Role: RolePatient, IsActive: true}
	admin := &User{ID: uuid.New(), Role: RoleAdmin, IsVerified: true, IsActive: true}
	stranger := &User{ID: uuid.New(), Role: RolePatient, IsActive: true}

	serve := func(user *User, paramValue string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/users/"+paramValue, nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("userID", paramValue)
		ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
		ctx = context.WithValue(ctx, userKey, user)

		w := httptest.NewRecorder()
		RequireOwnerOrAdmin("userID")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(w, req.WithContext(ctx))
		return w
	}

	assert.Equal(t, http.StatusOK, serve(owner, owner.ID.String()).Code)
	assert.Equal(t, http.StatusOK, serve(admin, owner.ID.String()).Code)
	assert.Equal(t, http.StatusForbidden, serve(stranger, owner.ID.String()).Code)
	assert.Equal(t, http.StatusForbidden, serve(owner, "not-a-uuid").Code)
}
