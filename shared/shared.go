package shared

import (
	"errors"
	"time"
)

var (
	ErrNoDevice         = errors.New("no device found")
	ErrUSBBusy          = errors.New("usb device busy")
	ErrUSBAccess        = errors.New("usb access denied")
	ErrBinaryNotFound   = errors.New("decoder binary not found")
	ErrLaunchFailure    = errors.New("radio launch failure")
	ErrProcessCrash     = errors.New("radio process crashed")
	ErrRestartRequested = errors.New("radio restart requested")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// Publisher receives everything the bridge produces. Implementations must not
// block the caller for long: the supervisor and the pipeline call it inline.
type Publisher interface {
	PublishStatus(ev StatusEvent)
	PublishSensor(ev SensorEvent)
	PublishBattery(ev BatteryEvent)
}

// Line is one raw line read from a decoder process' output.
type Line struct {
	RadioID   string
	RadioName string
	Text      string
	Time      time.Time
}

// SensorReading is one decoded event from a decoder process.
type SensorReading struct {
	Model    string
	DeviceID string
	RadioID  string
	Radio    string
	// Fields hold float64, string or bool values.
	Fields map[string]any
	Time   time.Time
}

// StatusEvent is emitted on every supervisor state transition.
type StatusEvent struct {
	RadioID   string
	RadioName string
	State     RadioState
	Reason    string
	Time      time.Time
}

// SensorEvent carries one field value, either averaged or passed through.
type SensorEvent struct {
	RadioID     string
	DeviceID    string
	DeviceModel string
	Field       string
	Value       any
	Samples     int
	Time        time.Time
}

// BatteryEvent is emitted on debounced battery transitions.
type BatteryEvent struct {
	RadioID     string
	DeviceID    string
	DeviceModel string
	IsLow       bool
	Time        time.Time
}

// Label returns the composite identity used for allow/deny matching.
func (r SensorReading) Label() string {
	return r.Model + "_" + r.DeviceID
}
