package driver

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labwatch/labwatch/internal/credentials"
	"github.com/labwatch/labwatch/internal/model"
)

// Factory builds the correct driver variant for an integration's service
// type from its decrypted credential payload.
type Factory struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// NewFactory creates a driver factory. The timeout bounds the network calls
// of the drivers it builds.
func NewFactory(timeout time.Duration, logger *slog.Logger) *Factory {
	return &Factory{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     logger.With("component", "driver_factory"),
	}
}

// Build constructs the driver variant for the integration. An unrecognized
// service type is a construction error, never silently defaulted.
func (f *Factory) Build(in model.Integration, plaintext []byte) (Driver, error) {
	switch in.ServiceType {
	case model.ServiceUptimeKuma:
		creds, err := credentials.Parse[credentials.UptimeKumaCredentials](plaintext)
		if err != nil {
			return nil, err
		}
		return NewUptimeKuma(creds, f.httpClient), nil

	case model.ServiceProxmox:
		creds, err := credentials.Parse[credentials.ProxmoxCredentials](plaintext)
		if err != nil {
			return nil, err
		}
		return NewProxmox(creds, f.timeout), nil

	case model.ServiceSNMP:
		creds, err := credentials.Parse[credentials.SNMPCredentials](plaintext)
		if err != nil {
			return nil, err
		}
		return NewSNMP(creds, f.timeout), nil

	case model.ServiceWindows:
		creds, err := credentials.Parse[credentials.WindowsCredentials](plaintext)
		if err != nil {
			return nil, err
		}
		return NewWindows(creds, f.timeout)

	case model.ServiceLinuxSSH:
		creds, err := credentials.Parse[credentials.LinuxSSHCredentials](plaintext)
		if err != nil {
			return nil, err
		}
		return NewLinuxSSH(creds, f.timeout)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownServiceType, in.ServiceType)
	}
}
