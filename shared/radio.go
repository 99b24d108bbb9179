package shared

import (
	"strconv"
	"strings"
)

// RadioState is the lifecycle state of one supervised decoder process.
type RadioState int

const (
	StateUnknown RadioState = iota
	StateStarting
	StateScanning
	StateOnline
	StateError
	StateRebooting
	StateStopped
)

func (s RadioState) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateScanning:
		return "Scanning"
	case StateOnline:
		return "Online"
	case StateError:
		return "Error"
	case StateRebooting:
		return "Rebooting"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// MarshalText renders the state name in JSON snapshots.
func (s RadioState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RadioSpec describes one decoder instance. It is treated as immutable once
// planned.
type RadioSpec struct {
	Name        string
	ID          string
	Freqs       []string
	HopInterval int
	Rate        string
	Protocols   []string
	// Device overrides the -d selector verbatim (e.g. ":00000101").
	Device       string
	Index        *int
	Args         []string
	ConfigPath   string
	ConfigInline string
	StatusID     string
	Slot         int
}

// StatusKey names the radio in status events: status_id, then id, then the
// device index, then the slot.
func (r RadioSpec) StatusKey() string {
	switch {
	case strings.TrimSpace(r.StatusID) != "":
		return SafeStatusSuffix(r.StatusID)
	case strings.TrimSpace(r.ID) != "":
		return SafeStatusSuffix(r.ID)
	case r.Index != nil:
		return strconv.Itoa(*r.Index)
	default:
		return strconv.Itoa(r.Slot)
	}
}

// FreqDisplay joins the frequency list for logs.
func (r RadioSpec) FreqDisplay() string {
	return strings.Join(r.Freqs, ",")
}

// SafeStatusSuffix keeps [A-Za-z0-9_-] and replaces everything else with '_'.
func SafeStatusSuffix(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// IntPtr is a small helper for RadioSpec.Index literals.
func IntPtr(i int) *int { return &i }
