package credentials

import (
	"encoding/json"
	"fmt"

	"github.com/labwatch/labwatch/internal/auth"
)

// Service decrypts stored credential blobs
type Service struct {
	cipher *auth.Cipher
}

// NewService creates a new credential service
func NewService(cipher *auth.Cipher) *Service {
	return &Service{cipher: cipher}
}

// Decrypt opens a stored credential container and returns the plaintext
// credential JSON. The container is a JSON string holding the encrypted
// envelope; raw envelopes from older rows are accepted as a fallback.
func (s *Service) Decrypt(container []byte) ([]byte, error) {
	if len(container) == 0 {
		return nil, ErrNoCredentials
	}

	var envelope string
	if err := json.Unmarshal(container, &envelope); err != nil {
		envelope = string(container)
	}

	plaintext, err := s.cipher.Open(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	return plaintext, nil
}

// Encrypt seals plaintext credential JSON into the stored container format.
func (s *Service) Encrypt(plaintext []byte) ([]byte, error) {
	envelope, err := s.cipher.Seal(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	container, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap credentials: %w", err)
	}

	return container, nil
}
