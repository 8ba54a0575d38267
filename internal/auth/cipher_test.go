package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef"

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(testEncryptionKey)
	require.NoError(t, err)
	return c
}

func TestNewCipherRejectsBadKeyLength(t *testing.T) {
	_, err := NewCipher("not-32-bytes")
	assert.Error(t, err)
}

func TestSealOpenRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	plaintext := []byte(`{"base_url":"http://kuma.lan:3001","api_key":"uk1_abc"}`)
	envelope, err := c.Seal(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, string(plaintext), envelope)

	opened, err := c.Open(envelope)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealProducesUniqueEnvelopes(t *testing.T) {
	c := newTestCipher(t)

	plaintext := []byte("same input")
	first, err := c.Seal(plaintext)
	require.NoError(t, err)
	second, err := c.Seal(plaintext)
	require.NoError(t, err)

	// Random nonces mean identical plaintexts never seal identically.
	assert.NotEqual(t, first, second)
}

func TestOpenRejectsGarbage(t *testing.T) {
	c := newTestCipher(t)

	_, err := c.Open("not base64!!")
	assert.Error(t, err)

	_, err = c.Open("c2hvcnQ=") // valid base64, shorter than a nonce
	assert.Error(t, err)
}

func TestOpenRejectsForeignKey(t *testing.T) {
	c := newTestCipher(t)
	other, err := NewCipher("ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)

	envelope, err := c.Seal([]byte("secret data"))
	require.NoError(t, err)

	_, err = other.Open(envelope)
	assert.Error(t, err, "an envelope sealed under a different key must not open")
}
