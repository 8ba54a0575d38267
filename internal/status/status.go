// Package status derives the coarse per-item state shown on the dashboard
// from driver poll payloads, and maintains the merge-only cache consumers
// read it back from.
package status

import (
	"github.com/labwatch/labwatch/internal/driver"
	"github.com/labwatch/labwatch/internal/model"
)

// FromPayload maps a poll payload to per-item statuses using the heuristic
// for the payload's service family: uptime monitors report state directly,
// virtualization guests are online while running. Service families with no
// status source yield an empty map; their items stay at the consumer-side
// "warning" default.
func FromPayload(p model.MetricPayload) model.StatusMap {
	switch p.IntegrationType {
	case model.ServiceUptimeKuma:
		monitors, ok := p.Data["monitors"].([]driver.Monitor)
		if !ok {
			return nil
		}
		return fromMonitors(monitors)

	case model.ServiceProxmox:
		guests, ok := p.Data["guests"].([]driver.Guest)
		if !ok {
			return nil
		}
		return fromGuests(guests)

	default:
		return nil
	}
}

func fromMonitors(monitors []driver.Monitor) model.StatusMap {
	sm := make(model.StatusMap, len(monitors))
	for _, m := range monitors {
		switch m.State {
		case "up":
			sm[m.ID] = model.StatusOnline
		case "down":
			sm[m.ID] = model.StatusOffline
		default:
			// pending and maintenance states carry no verdict
			sm[m.ID] = model.StatusWarning
		}
	}
	return sm
}

func fromGuests(guests []driver.Guest) model.StatusMap {
	sm := make(model.StatusMap, len(guests))
	for _, g := range guests {
		if g.Running {
			sm[g.ID] = model.StatusOnline
		} else {
			sm[g.ID] = model.StatusOffline
		}
	}
	return sm
}
