package model

import (
	"time"

	"github.com/google/uuid"
)

// ServiceType identifies the family of external service an integration talks to.
type ServiceType string

const (
	ServiceUptimeKuma ServiceType = "uptimekuma"
	ServiceProxmox    ServiceType = "proxmox"
	ServiceSNMP       ServiceType = "snmp"
	ServiceWindows    ServiceType = "windows"
	ServiceLinuxSSH   ServiceType = "linuxssh"
)

// PollOutcome is the persisted classification of an integration's last poll.
type PollOutcome string

const (
	OutcomeSuccess PollOutcome = "success"
	OutcomeFailed  PollOutcome = "failed"
)

// Status is the coarse state of a monitored item as shown on the dashboard.
type Status string

const (
	StatusOnline  Status = "online"
	StatusWarning Status = "warning"
	StatusOffline Status = "offline"
)

// Integration represents a configured connection to an external service.
// The credential blob is stored encrypted; only the poll pipeline decrypts it.
type Integration struct {
	ID                   uuid.UUID   `json:"id"`
	Name                 string      `json:"name"`
	ServiceType          ServiceType `json:"service_type"`
	EncryptedCredentials []byte      `json:"-"`
	PollIntervalSeconds  int         `json:"poll_interval_seconds,omitempty"`
	Active               bool        `json:"active"`
	LastPolledAt         *time.Time  `json:"last_polled_at,omitempty"`
	LastPollOutcome      PollOutcome `json:"last_poll_outcome,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// MetricPayload is the aggregate result of one integration poll. It is built
// fresh each cycle, published on the event bus and broadcast to streaming
// clients, and never persisted beyond the last-poll summary.
type MetricPayload struct {
	IntegrationID   uuid.UUID      `json:"integration_id"`
	IntegrationName string         `json:"integration_name"`
	IntegrationType ServiceType    `json:"integration_type"`
	Timestamp       time.Time      `json:"timestamp"`
	Data            map[string]any `json:"data"`
}

// StatusMap maps a monitored item id to its derived status. Maps may be
// partial; consumers merge them and never treat an absent key as a removal.
type StatusMap map[string]Status
