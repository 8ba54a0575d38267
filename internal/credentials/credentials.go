// Package credentials defines the typed credential shapes for each service
// family and the decryption of stored credential blobs. Validation mirrors
// the API-side constraints so a blob written by an older version still fails
// loudly here instead of deep inside a driver.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrNoCredentials is returned when an integration has no credential blob.
var ErrNoCredentials = errors.New("no credentials configured")

// UptimeKumaCredentials authenticates against an Uptime Kuma metrics endpoint.
// The API key is sent as the basic-auth password; the username is ignored by Kuma.
type UptimeKumaCredentials struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	APIKey  string `json:"api_key" validate:"required,min=1"`
}

// ProxmoxCredentials authenticates against a Proxmox VE API using an API token.
type ProxmoxCredentials struct {
	BaseURL       string `json:"base_url" validate:"required,url"`
	TokenID       string `json:"token_id" validate:"required,min=1"`
	TokenSecret   string `json:"token_secret" validate:"required,min=1"`
	Node          string `json:"node,omitempty"`
	SkipTLSVerify bool   `json:"skip_tls_verify"`
}

// SNMPCredentials holds SNMP v2c access parameters
type SNMPCredentials struct {
	Host      string `json:"host" validate:"required,min=1"`
	Port      int    `json:"port,omitempty"`
	Community string `json:"community" validate:"required,min=1"`
}

// WindowsCredentials holds WinRM access parameters
type WindowsCredentials struct {
	Host     string `json:"host" validate:"required,min=1"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username" validate:"required,min=1"`
	Password string `json:"password" validate:"required,min=1"`
	Domain   string `json:"domain,omitempty"`
	UseHTTPS bool   `json:"use_https"`
}

// LinuxSSHCredentials holds SSH access parameters. Either password or
// private_key must be provided.
type LinuxSSHCredentials struct {
	Host       string `json:"host" validate:"required,min=1"`
	Port       int    `json:"port,omitempty"`
	Username   string `json:"username" validate:"required,min=1"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"private_key,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
}

// Validate implements custom validation for SSH credentials
func (c *LinuxSSHCredentials) Validate() error {
	if c.Password == "" && c.PrivateKey == "" {
		return fmt.Errorf("either password or private_key is required for SSH")
	}
	return nil
}

var validate = validator.New()

type customValidator interface {
	Validate() error
}

// Parse unmarshals a decrypted credential payload into the given typed
// struct and validates it.
func Parse[T any](plaintext []byte) (*T, error) {
	creds := new(T)
	if err := json.Unmarshal(plaintext, creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	if err := validate.Struct(creds); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, fe.Field())
			}
			return nil, fmt.Errorf("invalid credentials: missing or malformed fields: %s",
				strings.Join(fields, ", "))
		}
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}

	if cv, ok := any(creds).(customValidator); ok {
		if err := cv.Validate(); err != nil {
			return nil, fmt.Errorf("invalid credentials: %w", err)
		}
	}

	return creds, nil
}
