package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labwatch/labwatch/internal/auth"
)

func newTestCredService(t *testing.T) *Service {
	t.Helper()
	cipher, err := auth.NewCipher("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	return NewService(cipher)
}

func TestEncryptDecryptContainerRoundTrip(t *testing.T) {
	svc := newTestCredService(t)

	plaintext := []byte(`{"host":"10.0.0.5","community":"public"}`)
	container, err := svc.Encrypt(plaintext)
	require.NoError(t, err)

	// The container is a JSON string wrapping the envelope.
	assert.Equal(t, byte('"'), container[0])

	opened, err := svc.Decrypt(container)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestDecryptAcceptsRawEnvelope(t *testing.T) {
	svc := newTestCredService(t)

	plaintext := []byte(`{"host":"10.0.0.5"}`)
	container, err := svc.Encrypt(plaintext)
	require.NoError(t, err)

	// Strip the JSON-string wrapping to simulate an older row.
	raw := container[1 : len(container)-1]
	opened, err := svc.Decrypt(raw)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestDecryptEmptyContainer(t *testing.T) {
	svc := newTestCredService(t)

	_, err := svc.Decrypt(nil)
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = svc.Decrypt([]byte{})
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestParseUptimeKuma(t *testing.T) {
	creds, err := Parse[UptimeKumaCredentials]([]byte(`{"base_url":"http://kuma.lan:3001","api_key":"uk1_abc"}`))
	require.NoError(t, err)
	assert.Equal(t, "http://kuma.lan:3001", creds.BaseURL)
	assert.Equal(t, "uk1_abc", creds.APIKey)
}

func TestParseRejectsMissingFields(t *testing.T) {
	_, err := Parse[UptimeKumaCredentials]([]byte(`{"base_url":"http://kuma.lan:3001"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APIKey")

	_, err = Parse[ProxmoxCredentials]([]byte(`{"base_url":"https://pve.lan:8006","token_id":"root@pam!watch"}`))
	assert.Error(t, err)
}

func TestParseRejectsMalformedURL(t *testing.T) {
	_, err := Parse[ProxmoxCredentials]([]byte(`{"base_url":"not a url","token_id":"t","token_secret":"s"}`))
	assert.Error(t, err)
}

func TestParseRejectsBadJSON(t *testing.T) {
	_, err := Parse[SNMPCredentials]([]byte(`{"host":`))
	assert.Error(t, err)
}

func TestParseLinuxSSHRequiresSecret(t *testing.T) {
	_, err := Parse[LinuxSSHCredentials]([]byte(`{"host":"10.0.0.9","username":"pi"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password or private_key")

	creds, err := Parse[LinuxSSHCredentials]([]byte(`{"host":"10.0.0.9","username":"pi","password":"raspberry"}`))
	require.NoError(t, err)
	assert.Equal(t, "pi", creds.Username)
}
