package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	got, err := ParseKey(hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = ParseKey("0x" + hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = ParseKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = ParseKey("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseKey(strings.Repeat("ab", 8))
	assert.Error(t, err)
}

func TestStore_ImportAndCredentials(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(255 - i)
	}
	s, err := Open(OpenOptions{Path: t.TempDir(), EncryptionKey: key})
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Import(DefaultPrefix, map[string]string{
		KeyAPIKey:    "k-123",
		KeyAPISecret: " s-456 ",
		"":           "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	apiKey, apiSecret, err := s.Credentials(DefaultPrefix)
	require.NoError(t, err)
	assert.Equal(t, "k-123", apiKey)
	assert.Equal(t, "s-456", apiSecret)

	_, ok, err := s.GetString("env/MISSING")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetString("empty", ""))
	v, ok, err := s.GetString("empty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestStore_NotOpened(t *testing.T) {
	var s *Store
	_, _, err := s.GetString("x")
	assert.ErrorIs(t, err, ErrNotOpened)
	assert.NoError(t, s.Close())
}
