// Package battery turns noisy battery_ok readings into a stable low-battery
// alert per device.
package battery

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"gortlbridge/shared"
)

type deviceKey struct {
	model string
	id    string
}

type state struct {
	low     bool
	radioID string

	okSince time.Time
	timer   *time.Timer
	gen     uint64
}

// cancelClear abandons a pending clear. The generation bump makes an already
// fired timer callback a no-op.
func (s *state) cancelClear() {
	s.okSince = time.Time{}
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Debouncer sets the LOW alert on the first not-OK observation and clears it
// only after OK has held for clearAfter. A zero clearAfter clears on the next
// OK observation.
type Debouncer struct {
	clearAfter time.Duration
	publisher  shared.Publisher

	mu      sync.Mutex
	states  map[deviceKey]*state
	stopped bool
}

func New(clearAfter time.Duration, publisher shared.Publisher) *Debouncer {
	return &Debouncer{
		clearAfter: clearAfter,
		publisher:  publisher,
		states:     make(map[deviceKey]*state),
	}
}

// OK interprets a battery_ok field value: numbers >= 0.5 and true are OK.
// known is false for values that say nothing about the battery.
func OK(value any) (ok, known bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case float64:
		return v >= 0.5, true
	default:
		return false, false
	}
}

// Observe records one battery_ok reading taken at "at". The first observation
// of a device publishes its initial state; afterwards only transitions are
// published.
func (d *Debouncer) Observe(deviceID, model, radioID string, ok bool, at time.Time) {
	key := deviceKey{model: model, id: deviceID}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	st, seen := d.states[key]
	publish := false
	switch {
	case !seen:
		st = &state{low: !ok}
		d.states[key] = st
		publish = true
	case !ok:
		st.cancelClear()
		if !st.low {
			st.low = true
			publish = true
		}
	case st.low && d.clearAfter <= 0:
		st.low = false
		publish = true
	case st.low && st.okSince.IsZero():
		st.okSince = at
		gen := st.gen
		st.timer = time.AfterFunc(d.clearAfter, func() { d.expire(key, gen) })
	case st.low && at.Sub(st.okSince) >= d.clearAfter:
		st.cancelClear()
		st.low = false
		publish = true
	}
	st.radioID = radioID
	low := st.low
	d.mu.Unlock()

	if publish {
		d.emit(key, radioID, low, at)
	}
}

func (d *Debouncer) expire(key deviceKey, gen uint64) {
	d.mu.Lock()
	st, ok := d.states[key]
	if d.stopped || !ok || st.gen != gen || !st.low {
		d.mu.Unlock()
		return
	}
	st.cancelClear()
	st.low = false
	radioID := st.radioID
	d.mu.Unlock()

	d.emit(key, radioID, false, time.Now())
}

func (d *Debouncer) emit(key deviceKey, radioID string, low bool, at time.Time) {
	log.Debug("Battery state", "model", key.model, "id", key.id, "low", low)
	d.publisher.PublishBattery(shared.BatteryEvent{
		RadioID:     radioID,
		DeviceID:    key.id,
		DeviceModel: key.model,
		IsLow:       low,
		Time:        at,
	})
}

// IsLow reports the current alert for a device. known is false before its
// first observation.
func (d *Debouncer) IsLow(deviceID, model string) (low, known bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.states[deviceKey{model: model, id: deviceID}]
	if !ok {
		return false, false
	}
	return st.low, true
}

// Stop cancels every pending clear timer. Later observations are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for _, st := range d.states {
		st.cancelClear()
	}
}
