package driver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labwatch/labwatch/internal/credentials"
	"github.com/labwatch/labwatch/internal/model"
)

var proxmoxCapabilities = []Capability{
	{Key: "cpu_percent", Label: "CPU Usage", Unit: "%"},
	{Key: "memory_used_bytes", Label: "Memory Used", Unit: "bytes"},
	{Key: "memory_total_bytes", Label: "Memory Total", Unit: "bytes"},
	{Key: "uptime_seconds", Label: "Uptime", Unit: "s"},
	{Key: "guests_running", Label: "Guests Running"},
	{Key: "guests_total", Label: "Guests Total"},
	{Key: "guests", Label: "Guest List"},
}

// Proxmox adapts a Proxmox VE node through its JSON API using an API token.
type Proxmox struct {
	creds  *credentials.ProxmoxCredentials
	client *http.Client

	mu     sync.Mutex
	node   string
	status *pveNodeStatus
	guests []Guest
}

type pveNodeStatus struct {
	CPU    float64 `json:"cpu"`
	Uptime int64   `json:"uptime"`
	Memory struct {
		Used  int64 `json:"used"`
		Total int64 `json:"total"`
	} `json:"memory"`
}

type pveGuest struct {
	VMID   json.Number `json:"vmid"`
	Name   string      `json:"name"`
	Status string      `json:"status"`
}

// NewProxmox creates a Proxmox VE driver. TLS verification can be skipped
// for hosts running the default self-signed certificate.
func NewProxmox(creds *credentials.ProxmoxCredentials, timeout time.Duration) *Proxmox {
	transport := &http.Transport{}
	if creds.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &Proxmox{
		creds:  creds,
		client: &http.Client{Timeout: timeout, Transport: transport},
		node:   creds.Node,
	}
}

func (d *Proxmox) Type() model.ServiceType {
	return model.ServiceProxmox
}

func (d *Proxmox) Capabilities(_ context.Context) ([]Capability, error) {
	caps := make([]Capability, len(proxmoxCapabilities))
	copy(caps, proxmoxCapabilities)
	return caps, nil
}

func (d *Proxmox) FetchMetric(ctx context.Context, key string) (any, error) {
	switch key {
	case "cpu_percent", "memory_used_bytes", "memory_total_bytes", "uptime_seconds":
		status, err := d.nodeStatus(ctx)
		if err != nil {
			return nil, err
		}
		switch key {
		case "cpu_percent":
			return status.CPU * 100, nil
		case "memory_used_bytes":
			return status.Memory.Used, nil
		case "memory_total_bytes":
			return status.Memory.Total, nil
		default:
			return status.Uptime, nil
		}

	case "guests", "guests_running", "guests_total":
		guests, err := d.guestList(ctx)
		if err != nil {
			return nil, err
		}
		switch key {
		case "guests":
			return guests, nil
		case "guests_total":
			return len(guests), nil
		default:
			running := 0
			for _, g := range guests {
				if g.Running {
					running++
				}
			}
			return running, nil
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrMetricUnavailable, key)
	}
}

// ListGuests implements GuestLister
func (d *Proxmox) ListGuests(ctx context.Context) ([]Guest, error) {
	return d.guestList(ctx)
}

func (d *Proxmox) Close() error {
	return nil
}

func (d *Proxmox) nodeStatus(ctx context.Context) (*pveNodeStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.status != nil {
		return d.status, nil
	}

	node, err := d.resolveNodeLocked(ctx)
	if err != nil {
		return nil, err
	}

	var status pveNodeStatus
	if err := d.getJSON(ctx, "/api2/json/nodes/"+node+"/status", &status); err != nil {
		return nil, fmt.Errorf("failed to fetch node status: %w", err)
	}

	d.status = &status
	return d.status, nil
}

func (d *Proxmox) guestList(ctx context.Context) ([]Guest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.guests != nil {
		return d.guests, nil
	}

	node, err := d.resolveNodeLocked(ctx)
	if err != nil {
		return nil, err
	}

	var guests []Guest
	for _, kind := range []string{"qemu", "lxc"} {
		var raw []pveGuest
		if err := d.getJSON(ctx, "/api2/json/nodes/"+node+"/"+kind, &raw); err != nil {
			return nil, fmt.Errorf("failed to list %s guests: %w", kind, err)
		}
		for _, g := range raw {
			guests = append(guests, Guest{
				ID:      g.VMID.String(),
				Name:    g.Name,
				Kind:    kind,
				Running: g.Status == "running",
			})
		}
	}

	d.guests = guests
	return guests, nil
}

// resolveNodeLocked returns the configured node name, falling back to the
// first node the cluster reports.
func (d *Proxmox) resolveNodeLocked(ctx context.Context) (string, error) {
	if d.node != "" {
		return d.node, nil
	}

	var nodes []struct {
		Node string `json:"node"`
	}
	if err := d.getJSON(ctx, "/api2/json/nodes", &nodes); err != nil {
		return "", fmt.Errorf("failed to list nodes: %w", err)
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("proxmox reported no nodes")
	}

	d.node = nodes[0].Node
	return d.node, nil
}

func (d *Proxmox) getJSON(ctx context.Context, path string, out any) error {
	url := strings.TrimRight(d.creds.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization",
		fmt.Sprintf("PVEAPIToken=%s=%s", d.creds.TokenID, d.creds.TokenSecret))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request returned status %d", resp.StatusCode)
	}

	// PVE wraps every response in a {"data": ...} envelope
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}

	return nil
}
