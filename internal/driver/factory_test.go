package driver

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labwatch/labwatch/internal/model"
)

func newTestFactory() *Factory {
	return NewFactory(5*time.Second, slog.New(slog.DiscardHandler))
}

func integrationOf(serviceType model.ServiceType) model.Integration {
	return model.Integration{
		ID:          uuid.New(),
		Name:        "test-" + string(serviceType),
		ServiceType: serviceType,
		Active:      true,
	}
}

func capabilityKeys(t *testing.T, drv Driver) []string {
	t.Helper()
	caps, err := drv.Capabilities(context.Background())
	require.NoError(t, err)
	keys := make([]string, 0, len(caps))
	for _, c := range caps {
		keys = append(keys, c.Key)
	}
	return keys
}

func TestBuildUnknownServiceType(t *testing.T) {
	f := newTestFactory()

	_, err := f.Build(integrationOf(model.ServiceType("homeassistant")), []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownServiceType)
	assert.Contains(t, err.Error(), "homeassistant")
}

func TestBuildRejectsInvalidCredentials(t *testing.T) {
	f := newTestFactory()

	_, err := f.Build(integrationOf(model.ServiceUptimeKuma), []byte(`{"base_url":"http://kuma.lan"}`))
	assert.Error(t, err, "missing api_key must fail at construction")

	_, err = f.Build(integrationOf(model.ServiceSNMP), []byte(`{"host":"10.0.0.5"}`))
	assert.Error(t, err, "missing community must fail at construction")
}

func TestBuildUptimeKuma(t *testing.T) {
	f := newTestFactory()

	drv, err := f.Build(integrationOf(model.ServiceUptimeKuma),
		[]byte(`{"base_url":"http://kuma.lan:3001","api_key":"uk1_abc"}`))
	require.NoError(t, err)
	defer drv.Close()

	assert.Equal(t, model.ServiceUptimeKuma, drv.Type())
	assert.ElementsMatch(t,
		[]string{"monitors_up", "monitors_down", "monitors_total", "avg_response_ms", "monitors"},
		capabilityKeys(t, drv))

	_, ok := drv.(MonitorLister)
	assert.True(t, ok, "kuma driver must support the monitor listing read")
}

func TestBuildProxmox(t *testing.T) {
	f := newTestFactory()

	drv, err := f.Build(integrationOf(model.ServiceProxmox),
		[]byte(`{"base_url":"https://pve.lan:8006","token_id":"root@pam!watch","token_secret":"s3cret","skip_tls_verify":true}`))
	require.NoError(t, err)
	defer drv.Close()

	assert.Equal(t, model.ServiceProxmox, drv.Type())
	assert.ElementsMatch(t,
		[]string{"cpu_percent", "memory_used_bytes", "memory_total_bytes", "uptime_seconds", "guests_running", "guests_total", "guests"},
		capabilityKeys(t, drv))

	_, ok := drv.(GuestLister)
	assert.True(t, ok, "proxmox driver must support the guest listing read")
}

func TestBuildSNMP(t *testing.T) {
	f := newTestFactory()

	drv, err := f.Build(integrationOf(model.ServiceSNMP),
		[]byte(`{"host":"10.0.0.1","community":"public"}`))
	require.NoError(t, err)
	defer drv.Close()

	assert.Equal(t, model.ServiceSNMP, drv.Type())
	assert.ElementsMatch(t,
		[]string{"uptime_seconds", "hostname", "interface_count"},
		capabilityKeys(t, drv))
}

func TestBuildWindows(t *testing.T) {
	f := newTestFactory()

	drv, err := f.Build(integrationOf(model.ServiceWindows),
		[]byte(`{"host":"10.0.0.20","username":"monitor","password":"pw"}`))
	require.NoError(t, err)
	defer drv.Close()

	assert.Equal(t, model.ServiceWindows, drv.Type())
	assert.ElementsMatch(t,
		[]string{"cpu_percent", "memory_used_bytes", "memory_total_bytes", "uptime_seconds"},
		capabilityKeys(t, drv))
}

func TestBuildLinuxSSH(t *testing.T) {
	f := newTestFactory()

	drv, err := f.Build(integrationOf(model.ServiceLinuxSSH),
		[]byte(`{"host":"10.0.0.9","username":"pi","password":"raspberry"}`))
	require.NoError(t, err)
	defer drv.Close()

	assert.Equal(t, model.ServiceLinuxSSH, drv.Type())
	assert.ElementsMatch(t,
		[]string{"load_1m", "memory_used_bytes", "memory_total_bytes", "uptime_seconds"},
		capabilityKeys(t, drv))
}
