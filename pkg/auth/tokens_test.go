package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentStoreParsesTokens(t *testing.T) {
	t.Setenv("FBHARVEST_ACCESS_TOKENS", " tok1 , tok2,, tok3 ")
	t.Setenv("FBHARVEST_TOKEN_EXPIRY", "2027-01-15")

	set, err := NewEnvironmentStore().Retrieve()
	require.NoError(t, err)
	assert.Equal(t, []string{"tok1", "tok2", "tok3"}, set.Tokens)
	assert.Equal(t, 2027, set.Expiry.Year())
}

func TestEnvironmentStoreEmpty(t *testing.T) {
	t.Setenv("FBHARVEST_ACCESS_TOKENS", "")
	_, err := NewEnvironmentStore().Retrieve()
	assert.ErrorIs(t, err, ErrTokensNotFound)

	t.Setenv("FBHARVEST_ACCESS_TOKENS", " , ,")
	_, err = NewEnvironmentStore().Retrieve()
	assert.ErrorIs(t, err, ErrTokensNotFound)
}

func TestEnvironmentStoreCannotPersist(t *testing.T) {
	store := NewEnvironmentStore()
	assert.ErrorIs(t, store.Store(&TokenSet{Tokens: []string{"x"}}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete(), ErrStoreUnavailable)
}

func TestTokenSetExpired(t *testing.T) {
	assert.False(t, (&TokenSet{}).Expired(), "no expiry means never expired")
	assert.False(t, (&TokenSet{Expiry: time.Now().Add(time.Hour)}).Expired())
	assert.True(t, (&TokenSet{Expiry: time.Now().Add(-time.Hour)}).Expired())
}

func TestManagerRetrievePrefersEnvironment(t *testing.T) {
	t.Setenv("FBHARVEST_ACCESS_TOKENS", "envtok")

	set, err := NewManager().Retrieve()
	require.NoError(t, err)
	assert.Equal(t, []string{"envtok"}, set.Tokens)
}

func TestManagerStoreRejectsEmptySet(t *testing.T) {
	assert.Error(t, NewManager().Store(nil))
	assert.Error(t, NewManager().Store(&TokenSet{}))
}
