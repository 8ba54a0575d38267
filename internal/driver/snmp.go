package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/labwatch/labwatch/internal/credentials"
	"github.com/labwatch/labwatch/internal/model"
)

const (
	oidSysUpTime = "1.3.6.1.2.1.1.3.0" // TimeTicks, hundredths of a second
	oidSysName   = "1.3.6.1.2.1.1.5.0"
	oidIfNumber  = "1.3.6.1.2.1.2.1.0"

	defaultSNMPPort = 161
)

var snmpCapabilities = []Capability{
	{Key: "uptime_seconds", Label: "Uptime", Unit: "s"},
	{Key: "hostname", Label: "Hostname"},
	{Key: "interface_count", Label: "Interface Count"},
}

var snmpOIDs = map[string]string{
	"uptime_seconds":  oidSysUpTime,
	"hostname":        oidSysName,
	"interface_count": oidIfNumber,
}

// SNMP adapts a generic network device over SNMP v2c. The session connects
// lazily on first fetch and is reused for sibling capabilities.
type SNMP struct {
	creds *credentials.SNMPCredentials

	mu        sync.Mutex
	session   *gosnmp.GoSNMP
	connected bool
}

// NewSNMP creates an SNMP v2c driver
func NewSNMP(creds *credentials.SNMPCredentials, timeout time.Duration) *SNMP {
	port := creds.Port
	if port == 0 {
		port = defaultSNMPPort
	}

	return &SNMP{
		creds: creds,
		session: &gosnmp.GoSNMP{
			Target:    creds.Host,
			Port:      uint16(port),
			Version:   gosnmp.Version2c,
			Community: creds.Community,
			Timeout:   timeout,
			Retries:   1,
		},
	}
}

func (d *SNMP) Type() model.ServiceType {
	return model.ServiceSNMP
}

func (d *SNMP) Capabilities(_ context.Context) ([]Capability, error) {
	caps := make([]Capability, len(snmpCapabilities))
	copy(caps, snmpCapabilities)
	return caps, nil
}

func (d *SNMP) FetchMetric(_ context.Context, key string) (any, error) {
	oid, ok := snmpOIDs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMetricUnavailable, key)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		if err := d.session.Connect(); err != nil {
			return nil, fmt.Errorf("SNMP connection failed: %w", err)
		}
		d.connected = true
	}

	result, err := d.session.Get([]string{oid})
	if err != nil {
		return nil, fmt.Errorf("SNMP get failed for %s: %w", oid, err)
	}
	if len(result.Variables) == 0 || result.Variables[0].Type == gosnmp.NoSuchObject {
		return nil, fmt.Errorf("%w: device did not report %s", ErrMetricUnavailable, oid)
	}

	pdu := result.Variables[0]
	switch key {
	case "uptime_seconds":
		return gosnmp.ToBigInt(pdu.Value).Int64() / 100, nil
	case "hostname":
		if b, ok := pdu.Value.([]byte); ok {
			return string(b), nil
		}
		return fmt.Sprintf("%v", pdu.Value), nil
	default:
		return gosnmp.ToBigInt(pdu.Value).Int64(), nil
	}
}

func (d *SNMP) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}
	d.connected = false
	return d.session.Conn.Close()
}
