package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider() *LocalProvider {
	return NewLocalProvider("test-secret", time.Hour)
}

func TestLocalCreateUser(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider()

	t.Run("rejects bad email", func(t *testing.T) {
		_, err := p.CreateUser(ctx, NewUserParams{Email: "not-an-email", Password: "secret1"})
		assert.True(t, IsKind(err, KindInvalidEmail))
	})

	t.Run("rejects weak password", func(t *testing.T) {
		_, err := p.CreateUser(ctx, NewUserParams{Email: "a@example.com", Password: "short"})
		assert.True(t, IsKind(err, KindWeakPassword))
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		_, err := p.CreateUser(ctx, NewUserParams{Email: "dup@example.com", Password: "secret1"})
		require.NoError(t, err)

		_, err = p.CreateUser(ctx, NewUserParams{Email: "dup@example.com", Password: "secret1"})
		assert.True(t, IsKind(err, KindEmailExists))
	})
}

func TestLocalTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider()

	uid, err := p.CreateUser(ctx, NewUserParams{
		Email: "maria@example.com", Password: "secret1", DisplayName: "Maria",
	})
	require.NoError(t, err)
	require.NoError(t, p.SetCustomClaims(ctx, uid, Claims{Role: "patient", IsVerified: true}))

	signed, err := p.SignIn(ctx, "maria@example.com", "secret1")
	require.NoError(t, err)

	token, err := p.VerifyToken(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, uid, token.UID)
	assert.Equal(t, "patient", token.Claims.Role)
	assert.True(t, token.Claims.IsVerified)
	assert.False(t, token.IssuedAt.IsZero())
	assert.True(t, token.ExpiresAt.After(token.IssuedAt))
}

func TestLocalSignIn(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider()

	_, err := p.CreateUser(ctx, NewUserParams{Email: "maria@example.com", Password: "secret1"})
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		_, err := p.SignIn(ctx, "maria@example.com", "wrong-password")
		assert.True(t, IsKind(err, KindTokenInvalid))
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := p.SignIn(ctx, "ghost@example.com", "secret1")
		assert.True(t, IsKind(err, KindNotFound))
	})
}

func TestLocalVerifyToken(t *testing.T) {
	ctx := context.Background()

	t.Run("garbage token", func(t *testing.T) {
		p := newTestProvider()
		_, err := p.VerifyToken(ctx, "not.a.jwt")
		assert.True(t, IsKind(err, KindTokenInvalid))
	})

	t.Run("wrong signing key", func(t *testing.T) {
		p := newTestProvider()
		other := NewLocalProvider("different-secret", time.Hour)

		_, err := other.CreateUser(ctx, NewUserParams{Email: "a@example.com", Password: "secret1"})
		require.NoError(t, err)
		signed, err := other.SignIn(ctx, "a@example.com", "secret1")
		require.NoError(t, err)

		_, err = p.VerifyToken(ctx, signed)
		assert.True(t, IsKind(err, KindTokenInvalid))
	})

	t.Run("expired token", func(t *testing.T) {
		p := NewLocalProvider("test-secret", time.Nanosecond)
		_, err := p.CreateUser(ctx, NewUserParams{Email: "a@example.com", Password: "secret1"})
		require.NoError(t, err)
		signed, err := p.SignIn(ctx, "a@example.com", "secret1")
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		_, err = p.VerifyToken(ctx, signed)
		assert.True(t, IsKind(err, KindTokenExpired))
	})

	t.Run("revocation invalidates earlier tokens", func(t *testing.T) {
		p := newTestProvider()
		uid, err := p.CreateUser(ctx, NewUserParams{Email: "a@example.com", Password: "secret1"})
		require.NoError(t, err)
		signed, err := p.SignIn(ctx, "a@example.com", "secret1")
		require.NoError(t, err)

		require.NoError(t, p.RevokeRefreshTokens(ctx, uid))

		_, err = p.VerifyToken(ctx, signed)
		assert.True(t, IsKind(err, KindTokenRevoked))
	})
}

func TestLocalUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider()

	uid, err := p.CreateUser(ctx, NewUserParams{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)

	t.Run("password change takes effect", func(t *testing.T) {
		newPw := "brand-new-password"
		require.NoError(t, p.UpdateUser(ctx, uid, UpdateUserParams{Password: &newPw}))

		_, err := p.SignIn(ctx, "a@example.com", "secret1")
		assert.True(t, IsKind(err, KindTokenInvalid))
		_, err = p.SignIn(ctx, "a@example.com", newPw)
		assert.NoError(t, err)
	})

	t.Run("weak replacement password rejected", func(t *testing.T) {
		pw := "tiny"
		err := p.UpdateUser(ctx, uid, UpdateUserParams{Password: &pw})
		assert.True(t, IsKind(err, KindWeakPassword))
	})

	t.Run("delete frees the email for reuse", func(t *testing.T) {
		require.NoError(t, p.DeleteUser(ctx, uid))

		assert.True(t, IsKind(p.DeleteUser(ctx, uid), KindNotFound))

		_, err := p.CreateUser(ctx, NewUserParams{Email: "a@example.com", Password: "secret1"})
		assert.NoError(t, err)
	})
}

func TestKindHelpers(t *testing.T) {
	wrapped := &Error{Kind: KindEmailExists, Op: "CreateUser"}
	assert.Equal(t, KindEmailExists, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(context.Canceled))
	assert.True(t, IsKind(wrapped, KindEmailExists))
	assert.False(t, IsKind(wrapped, KindNotFound))
}
