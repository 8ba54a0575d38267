package driver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/labwatch/labwatch/internal/credentials"
	"github.com/labwatch/labwatch/internal/model"
)

const defaultSSHPort = 22

var linuxSSHCapabilities = []Capability{
	{Key: "load_1m", Label: "Load Average (1m)"},
	{Key: "memory_used_bytes", Label: "Memory Used", Unit: "bytes"},
	{Key: "memory_total_bytes", Label: "Memory Total", Unit: "bytes"},
	{Key: "uptime_seconds", Label: "Uptime", Unit: "s"},
}

// LinuxSSH adapts a Linux host over SSH, reading /proc through shell
// commands. The connection is established lazily on first fetch and shared
// by sibling capabilities.
type LinuxSSH struct {
	addr   string
	config *ssh.ClientConfig

	mu     sync.Mutex
	client *ssh.Client
}

// NewLinuxSSH creates an SSH-backed Linux host driver supporting password
// and private-key authentication.
func NewLinuxSSH(creds *credentials.LinuxSSHCredentials, timeout time.Duration) (*LinuxSSH, error) {
	var authMethods []ssh.AuthMethod

	if creds.Password != "" {
		authMethods = append(authMethods, ssh.Password(creds.Password))
	}

	if creds.PrivateKey != "" {
		var key ssh.Signer
		var err error
		if creds.Passphrase != "" {
			key, err = ssh.ParsePrivateKeyWithPassphrase([]byte(creds.PrivateKey), []byte(creds.Passphrase))
		} else {
			key, err = ssh.ParsePrivateKey([]byte(creds.PrivateKey))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(key))
	}

	port := creds.Port
	if port == 0 {
		port = defaultSSHPort
	}

	return &LinuxSSH{
		addr: fmt.Sprintf("%s:%d", creds.Host, port),
		config: &ssh.ClientConfig{
			User:            creds.Username,
			Auth:            authMethods,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
			Timeout:         timeout,
		},
	}, nil
}

func (d *LinuxSSH) Type() model.ServiceType {
	return model.ServiceLinuxSSH
}

func (d *LinuxSSH) Capabilities(_ context.Context) ([]Capability, error) {
	caps := make([]Capability, len(linuxSSHCapabilities))
	copy(caps, linuxSSHCapabilities)
	return caps, nil
}

func (d *LinuxSSH) FetchMetric(ctx context.Context, key string) (any, error) {
	switch key {
	case "load_1m":
		out, err := d.run(ctx, "cat /proc/loadavg")
		if err != nil {
			return nil, err
		}
		fields := strings.Fields(out)
		if len(fields) == 0 {
			return nil, fmt.Errorf("unexpected /proc/loadavg output %q", out)
		}
		load, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse load average: %w", err)
		}
		return load, nil

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
		out, err := d.run(ctx, "cat /proc/uptime")
		if err != nil {
			return nil, err
		}
		fields := strings.Fields(out)
		if len(fields) == 0 {
			return nil, fmt.Errorf("unexpected /proc/uptime output %q", out)
		}
		seconds, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse uptime: %w", err)
		}
		return int64(seconds), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrMetricUnavailable, key)
	}
}

func (d *LinuxSSH) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return nil
	}
	client := d.client
	d.client = nil
	return client.Close()
}

// fetchMemory parses MemTotal and MemAvailable from /proc/meminfo (values in kB)
func (d *LinuxSSH) fetchMemory(ctx context.Context) (used, total int64, err error) {
	out, err := d.run(ctx, "grep -E '^(MemTotal|MemAvailable):' /proc/meminfo")
	if err != nil {
		return 0, 0, err
	}

	var totalKB, availKB int64
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		value, parseErr := strconv.ParseInt(fields[1], 10, 64)
		if parseErr != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB = value
		case "MemAvailable:":
			availKB = value
		}
	}
	if totalKB == 0 {
		return 0, 0, fmt.Errorf("failed to parse /proc/meminfo output %q", out)
	}

	total = totalKB * 1024
	used = (totalKB - availKB) * 1024
	return used, total, nil
}

// run executes a command, honoring context cancellation. The SSH protocol has
// no command deadline of its own; on expiry the session is torn down, which
// unblocks the remote read.
func (d *LinuxSSH) run(ctx context.Context, command string) (string, error) {
	client, err := d.connect()
	if err != nil {
		return "", err
	}

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open SSH session: %w", err)
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.Output(command)
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		session.Close()
		return "", ctx.Err()
	case res := <-done:
		session.Close()
		if res.err != nil {
			return "", fmt.Errorf("command %q failed: %w", command, res.err)
		}
		return strings.TrimSpace(string(res.out)), nil
	}
}

func (d *LinuxSSH) connect() (*ssh.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}

	client, err := ssh.Dial("tcp", d.addr, d.config)
	if err != nil {
		return nil, fmt.Errorf("SSH connection failed: %w", err)
	}

	d.client = client
	return client, nil
}
