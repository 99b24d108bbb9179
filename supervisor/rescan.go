package supervisor

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"gortlbridge/device"
	"gortlbridge/shared"
)

// Scanner lists the dongles currently attached.
type Scanner func(ctx context.Context) []device.Device

// Parked reports whether any radio has exhausted its retry budget.
func (s *Supervisor) Parked() bool {
	for _, r := range s.radios {
		r.mu.Lock()
		parked := r.parked
		r.mu.Unlock()
		if parked {
			return true
		}
	}
	return false
}

// Rescan relaunches every parked radio whose dongle is in devices but was
// missing from previous, and returns their status keys.
func (s *Supervisor) Rescan(previous, devices []device.Device) []string {
	var keys []string
	for _, r := range s.radios {
		r.mu.Lock()
		parked := r.parked
		r.mu.Unlock()
		if !parked || !Attached(r.spec, devices) || Attached(r.spec, previous) {
			continue
		}
		log.Info("Dongle reappeared; relaunching parked radio", "radio", r.spec.Name, "key", r.key)
		r.requestRestart(ReasonHardware)
		keys = append(keys, r.key)
	}
	return keys
}

// WatchHardware re-enumerates the dongles every interval while a radio is
// parked, starting from the devices found at startup. It returns when ctx is
// done.
func (s *Supervisor) WatchHardware(ctx context.Context, every time.Duration, scan Scanner, initial []device.Device) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	previous := initial
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.Parked() {
			continue
		}
		devices := scan(ctx)
		if ctx.Err() != nil {
			return
		}
		s.Rescan(previous, devices)
		previous = devices
	}
}

// Attached reports whether the dongle a radio launches with is among devices.
// It follows the -d selector: serials match case-insensitively, anything else
// matches the index.
func Attached(spec shared.RadioSpec, devices []device.Device) bool {
	sel := deviceSelector(spec)
	for _, d := range devices {
		if serial, ok := strings.CutPrefix(sel, ":"); ok {
			if strings.EqualFold(d.Serial, serial) {
				return true
			}
			continue
		}
		if idx, err := strconv.Atoi(sel); err == nil && idx == d.Index {
			return true
		}
	}
	return false
}
