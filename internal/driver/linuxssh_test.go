package driver

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/labwatch/labwatch/internal/credentials"
)

// startStallingSSHServer runs an SSH server that accepts any password and
// acknowledges exec requests but never produces output, so the remote
// command hangs forever.
func startStallingSSHServer(t *testing.T) (string, int) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(ssh.ConnMetadata, []byte) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
				if err != nil {
					return
				}
				go ssh.DiscardRequests(reqs)
				for newCh := range chans {
					ch, chReqs, err := newCh.Accept()
					if err != nil {
						continue
					}
					_ = ch // never written to or closed
					go func() {
						for req := range chReqs {
							if req.WantReply {
								_ = req.Reply(req.Type == "exec", nil)
							}
						}
					}()
				}
			}()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestLinuxSSHFetchBoundedByContext(t *testing.T) {
	host, port := startStallingSSHServer(t)

	drv, err := NewLinuxSSH(&credentials.LinuxSSHCredentials{
		Host:     host,
		Port:     port,
		Username: "pi",
		Password: "raspberry",
	}, 2*time.Second)
	require.NoError(t, err)
	defer drv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = drv.FetchMetric(ctx, "uptime_seconds")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second, "a hung remote command must not outlive the fetch deadline")
}

func TestLinuxSSHUnknownCapability(t *testing.T) {
	drv, err := NewLinuxSSH(&credentials.LinuxSSHCredentials{
		Host:     "10.0.0.9",
		Username: "pi",
		Password: "raspberry",
	}, time.Second)
	require.NoError(t, err)
	defer drv.Close()

	_, err = drv.FetchMetric(context.Background(), "disk_free")
	assert.ErrorIs(t, err, ErrMetricUnavailable)
}
