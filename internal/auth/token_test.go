package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore_RoundTrip(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "nested", "token"))

	tok, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, store.Save("  abc.def.ghi \n"))
	info, err := os.Stat(store.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tok, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	tok, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestTokenStore_RejectsEmpty(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "token"))
	assert.Error(t, store.Save("   "))
	_, err := os.Stat(store.Path)
	assert.True(t, os.IsNotExist(err))
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("test-secret-key"))
	require.NoError(t, err)
	return s
}

func TestInspect(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signed(t, jwt.MapClaims{"sub": "operador", "exp": exp.Unix()})

	c, err := Inspect(tok)
	require.NoError(t, err)
	assert.Equal(t, "operador", c.Subject)
	assert.True(t, c.ExpiresAt.Equal(exp))
	assert.False(t, c.Expired(time.Now()))
	assert.True(t, c.Expired(exp))
	assert.True(t, c.Expired(exp.Add(time.Minute)))
}

func TestInspect_NoExpiry(t *testing.T) {
	c, err := Inspect(signed(t, jwt.MapClaims{"sub": "operador"}))
	require.NoError(t, err)
	assert.True(t, c.ExpiresAt.IsZero())
	assert.False(t, c.Expired(time.Now().Add(100*365*24*time.Hour)))
}

func TestInspect_Malformed(t *testing.T) {
	_, err := Inspect("not.a.jwt.token")
	assert.Error(t, err)
	_, err = Inspect("opaque-session-id")
	assert.Error(t, err)
}
