package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/masterzen/winrm"

	"github.com/labwatch/labwatch/internal/credentials"
	"github.com/labwatch/labwatch/internal/model"
)

const (
	defaultWinRMHTTPPort  = 5985
	defaultWinRMHTTPSPort = 5986
)

var windowsCapabilities = []Capability{
	{Key: "cpu_percent", Label: "CPU Usage", Unit: "%"},
	{Key: "memory_used_bytes", Label: "Memory Used", Unit: "bytes"},
	{Key: "memory_total_bytes", Label: "Memory Total", Unit: "bytes"},
	{Key: "uptime_seconds", Label: "Uptime", Unit: "s"},
}

// Windows adapts a Windows host over WinRM, collecting metrics through
// PowerShell WMI queries. Domain credentials switch the transport to NTLM.
type Windows struct {
	client *winrm.Client
}

// NewWindows creates a WinRM-backed Windows host driver
func NewWindows(creds *credentials.WindowsCredentials, timeout time.Duration) (*Windows, error) {
	port := creds.Port
	if port == 0 {
		if creds.UseHTTPS {
			port = defaultWinRMHTTPSPort
		} else {
			port = defaultWinRMHTTPPort
		}
	}

	endpoint := winrm.NewEndpoint(
		creds.Host,
		port,
		creds.UseHTTPS,
		true, // skip certificate verification, homelab hosts are self-signed
		nil, nil, nil,
		timeout,
	)

	var client *winrm.Client
	var err error

	if creds.Domain != "" {
		params := winrm.DefaultParameters
		params.TransportDecorator = func() winrm.Transporter {
			return &winrm.ClientNTLM{}
		}
		client, err = winrm.NewClientWithParameters(
			endpoint,
			fmt.Sprintf("%s\\%s", creds.Domain, creds.Username),
			creds.Password,
			params,
		)
	} else {
		client, err = winrm.NewClient(endpoint, creds.Username, creds.Password)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create WinRM client: %w", err)
	}

	return &Windows{client: client}, nil
}

func (d *Windows) Type() model.ServiceType {
	return model.ServiceWindows
}

func (d *Windows) Capabilities(_ context.Context) ([]Capability, error) {
	caps := make([]Capability, len(windowsCapabilities))
	copy(caps, windowsCapabilities)
	return caps, nil
}

func (d *Windows) FetchMetric(ctx context.Context, key string) (any, error) {
	switch key {
	case "cpu_percent":
		return d.fetchCPU(ctx)
	case "memory_used_bytes", "memory_total_bytes":
		used, total, err := d.fetchMemory(ctx)
		if err != nil {
			return nil, err
		}
		if key == "memory_used_bytes" {
			return used, nil
		}
		return total, nil
	case "uptime_seconds":
		return d.fetchUptime(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrMetricUnavailable, key)
	}
}

func (d *Windows) Close() error {
	return nil
}

func (d *Windows) fetchCPU(ctx context.Context) (float64, error) {
	out, err := d.runPowerShell(ctx,
		`Get-WmiObject Win32_PerfFormattedData_PerfOS_Processor | Where-Object { $_.Name -eq '_Total' } | Select-Object PercentProcessorTime | ConvertTo-Json -Compress`)
	if err != nil {
		return 0, fmt.Errorf("failed to collect CPU metrics: %w", err)
	}

	var data struct {
		PercentProcessorTime float64 `json:"PercentProcessorTime"`
	}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		return 0, fmt.Errorf("failed to parse CPU data: %w", err)
	}

	return data.PercentProcessorTime, nil
}

func (d *Windows) fetchMemory(ctx context.Context) (used, total float64, err error) {
	out, err := d.runPowerShell(ctx,
		`Get-WmiObject Win32_OperatingSystem | Select-Object TotalVisibleMemorySize, FreePhysicalMemory | ConvertTo-Json -Compress`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to collect memory metrics: %w", err)
	}

	// WMI reports these in KB
	var data struct {
		TotalVisibleMemorySize float64 `json:"TotalVisibleMemorySize"`
		FreePhysicalMemory     float64 `json:"FreePhysicalMemory"`
	}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		return 0, 0, fmt.Errorf("failed to parse memory data: %w", err)
	}

	total = data.TotalVisibleMemorySize * 1024
	used = total - data.FreePhysicalMemory*1024
	return used, total, nil
}

func (d *Windows) fetchUptime(ctx context.Context) (int64, error) {
	out, err := d.runPowerShell(ctx,
		`[int64]((Get-Date) - (Get-CimInstance Win32_OperatingSystem).LastBootUpTime).TotalSeconds`)
	if err != nil {
		return 0, fmt.Errorf("failed to collect uptime: %w", err)
	}

	var seconds int64
	if _, err := fmt.Sscanf(strings.TrimSpace(out), "%d", &seconds); err != nil {
		return 0, fmt.Errorf("failed to parse uptime %q: %w", out, err)
	}

	return seconds, nil
}

// runPowerShell executes a PowerShell command and returns trimmed stdout
func (d *Windows) runPowerShell(ctx context.Context, script string) (string, error) {
	psCmd := fmt.Sprintf("powershell.exe -NoProfile -NonInteractive -Command \"%s\"",
		strings.ReplaceAll(script, "\"", "`\""))

	stdout, stderr, exitCode, err := d.client.RunWithContextWithString(ctx, psCmd, "")
	if err != nil {
		return "", fmt.Errorf("WinRM execution failed: %w", err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("PowerShell command failed (exit code %d): %s", exitCode, stderr)
	}

	return strings.TrimSpace(stdout), nil
}
