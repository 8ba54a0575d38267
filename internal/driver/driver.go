// Package driver normalizes heterogeneous home-lab services into a common
// capability model. Each variant adapts one external service family; the
// Factory dispatches on an integration's service type at construction time,
// so adding a service family is a closed change here plus a credential shape.
package driver

import (
	"context"
	"errors"

	"github.com/labwatch/labwatch/internal/model"
)

var (
	// ErrUnknownServiceType is returned by the factory for an unrecognized tag.
	ErrUnknownServiceType = errors.New("unknown service type")

	// ErrMetricUnavailable is returned when a driver cannot produce a value
	// for a requested capability key.
	ErrMetricUnavailable = errors.New("metric unavailable")
)

// Capability describes a named metric or data point a driver can report.
type Capability struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Unit  string `json:"unit,omitempty"`
}

// Driver is the common contract every service adapter implements.
// Capabilities returns the ordered descriptor list for this instance;
// FetchMetric resolves a single capability key. A failed fetch must not
// invalidate sibling capabilities.
type Driver interface {
	Type() model.ServiceType
	Capabilities(ctx context.Context) ([]Capability, error)
	FetchMetric(ctx context.Context, key string) (any, error)
	Close() error
}

// Monitor is one probe reported by an uptime-monitoring service.
type Monitor struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	State      string  `json:"state"` // up, down, pending, maintenance
	ResponseMS float64 `json:"response_ms,omitempty"`
}

// Guest is one VM or container reported by a virtualization host.
type Guest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"` // qemu, lxc
	Running bool   `json:"running"`
}

// MonitorLister is the extended read exposed by uptime-monitor drivers,
// consumed by read-only endpoints outside the poll cycle.
type MonitorLister interface {
	ListMonitors(ctx context.Context) ([]Monitor, error)
}

// GuestLister is the extended read exposed by virtualization drivers.
type GuestLister interface {
	ListGuests(ctx context.Context) ([]Guest, error)
}
