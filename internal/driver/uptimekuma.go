package driver

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/labwatch/labwatch/internal/credentials"
	"github.com/labwatch/labwatch/internal/model"
)

// Kuma monitor_status gauge values
const (
	kumaStatusDown        = 0
	kumaStatusUp          = 1
	kumaStatusPending     = 2
	kumaStatusMaintenance = 3
)

var uptimeKumaCapabilities = []Capability{
	{Key: "monitors_up", Label: "Monitors Up"},
	{Key: "monitors_down", Label: "Monitors Down"},
	{Key: "monitors_total", Label: "Monitors Total"},
	{Key: "avg_response_ms", Label: "Average Response Time", Unit: "ms"},
	{Key: "monitors", Label: "Monitor List"},
}

// UptimeKuma adapts an Uptime Kuma instance through its Prometheus-format
// metrics endpoint. The API key is passed as the basic-auth password.
type UptimeKuma struct {
	creds  *credentials.UptimeKumaCredentials
	client *http.Client

	mu       sync.Mutex
	snapshot []Monitor
	fetched  bool
}

// NewUptimeKuma creates an Uptime Kuma driver
func NewUptimeKuma(creds *credentials.UptimeKumaCredentials, client *http.Client) *UptimeKuma {
	return &UptimeKuma{creds: creds, client: client}
}

func (d *UptimeKuma) Type() model.ServiceType {
	return model.ServiceUptimeKuma
}

func (d *UptimeKuma) Capabilities(_ context.Context) ([]Capability, error) {
	caps := make([]Capability, len(uptimeKumaCapabilities))
	copy(caps, uptimeKumaCapabilities)
	return caps, nil
}

func (d *UptimeKuma) FetchMetric(ctx context.Context, key string) (any, error) {
	monitors, err := d.monitors(ctx)
	if err != nil {
		return nil, err
	}

	switch key {
	case "monitors":
		return monitors, nil
	case "monitors_total":
		return len(monitors), nil
	case "monitors_up", "monitors_down":
		up, down := 0, 0
		for _, m := range monitors {
			switch m.State {
			case "up":
				up++
			case "down":
				down++
			}
		}
		if key == "monitors_up" {
			return up, nil
		}
		return down, nil
	case "avg_response_ms":
		sum, n := 0.0, 0
		for _, m := range monitors {
			if m.ResponseMS > 0 {
				sum += m.ResponseMS
				n++
			}
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: no response time samples", ErrMetricUnavailable)
		}
		return sum / float64(n), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrMetricUnavailable, key)
	}
}

// ListMonitors implements MonitorLister
func (d *UptimeKuma) ListMonitors(ctx context.Context) ([]Monitor, error) {
	return d.monitors(ctx)
}

func (d *UptimeKuma) Close() error {
	return nil
}

// monitors fetches the metrics endpoint once per driver instance; a driver
// lives for a single poll cycle, so all capabilities share one scrape.
func (d *UptimeKuma) monitors(ctx context.Context) ([]Monitor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fetched {
		return d.snapshot, nil
	}

	url := strings.TrimRight(d.creds.BaseURL, "/") + "/metrics"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build metrics request: %w", err)
	}
	req.SetBasicAuth("", d.creds.APIKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metrics request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics request returned status %d", resp.StatusCode)
	}

	monitors, err := parseKumaMetrics(bufio.NewScanner(resp.Body))
	if err != nil {
		return nil, err
	}

	d.snapshot = monitors
	d.fetched = true
	return monitors, nil
}

// parseKumaMetrics extracts monitor_status and monitor_response_time gauges
// from Kuma's Prometheus exposition text.
func parseKumaMetrics(scanner *bufio.Scanner) ([]Monitor, error) {
	byName := make(map[string]*Monitor)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var metric string
		switch {
		case strings.HasPrefix(line, "monitor_status{"):
			metric = "status"
		case strings.HasPrefix(line, "monitor_response_time{"):
			metric = "response"
		default:
			continue
		}

		labels, value, err := parsePromLine(line)
		if err != nil {
			continue
		}

		name := labels["monitor_name"]
		if name == "" {
			continue
		}

		m, ok := byName[name]
		if !ok {
			m = &Monitor{ID: name, Name: name, State: "pending"}
			byName[name] = m
		}

		switch metric {
		case "status":
			switch int(value) {
			case kumaStatusUp:
				m.State = "up"
			case kumaStatusDown:
				m.State = "down"
			case kumaStatusMaintenance:
				m.State = "maintenance"
			default:
				m.State = "pending"
			}
		case "response":
			m.ResponseMS = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metrics body: %w", err)
	}

	monitors := make([]Monitor, 0, len(byName))
	for _, m := range byName {
		monitors = append(monitors, *m)
	}
	sort.Slice(monitors, func(i, j int) bool { return monitors[i].Name < monitors[j].Name })

	return monitors, nil
}

// parsePromLine splits `name{k="v",...} value` into labels and value.
func parsePromLine(line string) (map[string]string, float64, error) {
	open := strings.Index(line, "{")
	closing := strings.LastIndex(line, "}")
	if open < 0 || closing < open {
		return nil, 0, fmt.Errorf("malformed metric line")
	}

	labels := make(map[string]string)
	for _, pair := range splitLabels(line[open+1 : closing]) {
		eq := strings.Index(pair, "=")
		if eq < 0 {
			continue
		}
		key := pair[:eq]
		val := strings.Trim(pair[eq+1:], `"`)
		labels[key] = val
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(line[closing+1:]), 64)
	if err != nil {
		return nil, 0, fmt.Errorf("malformed metric value: %w", err)
	}

	return labels, value, nil
}

// splitLabels splits on commas outside quoted label values.
func splitLabels(s string) []string {
	var parts []string
	var sb strings.Builder
	inQuote := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && inQuote && i+1 < len(s):
			sb.WriteByte(c)
			i++
			sb.WriteByte(s[i])
		case c == '"':
			inQuote = !inQuote
			sb.WriteByte(c)
		case c == ',' && !inQuote:
			parts = append(parts, sb.String())
			sb.Reset()
		default:
			sb.WriteByte(c)
		}
	}
	if sb.Len() > 0 {
		parts = append(parts, sb.String())
	}

	return parts
}
