package battery

import (
	"sync"
	"testing"
	"time"

	"gortlbridge/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []shared.BatteryEvent
}

func (r *recorder) PublishStatus(shared.StatusEvent) {}
func (r *recorder) PublishSensor(shared.SensorEvent) {}
func (r *recorder) PublishBattery(ev shared.BatteryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) lows() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.IsLow)
	}
	return out
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestOK(t *testing.T) {
	for _, tt := range []struct {
		in        any
		ok, known bool
	}{
		{1.0, true, true},
		{0.0, false, true},
		{0.5, true, true},
		{true, true, true},
		{false, false, true},
		{"1", false, false},
	} {
		ok, known := OK(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.known, known, "%v", tt.in)
	}
}

func TestInitialStateIsPublished(t *testing.T) {
	rec := &recorder{}
	d := New(300*time.Second, rec)
	defer d.Stop()

	d.Observe("1", "X", "r1", true, t0)
	d.Observe("1", "X", "r1", true, t0.Add(time.Second))
	assert.Equal(t, []bool{false}, rec.lows())

	low, known := d.IsLow("1", "X")
	assert.True(t, known)
	assert.False(t, low)
}

func TestLowIsImmediate(t *testing.T) {
	rec := &recorder{}
	d := New(300*time.Second, rec)
	defer d.Stop()

	d.Observe("1", "X", "r1", true, t0)
	d.Observe("1", "X", "r1", false, t0.Add(time.Second))
	d.Observe("1", "X", "r1", false, t0.Add(2*time.Second))
	assert.Equal(t, []bool{false, true}, rec.lows())
}

func TestClearAfterDelay(t *testing.T) {
	rec := &recorder{}
	d := New(300*time.Second, rec)
	defer d.Stop()

	d.Observe("1", "X", "r1", false, t0)
	d.Observe("1", "X", "r1", true, t0.Add(10*time.Second))
	d.Observe("1", "X", "r1", true, t0.Add(210*time.Second))
	assert.Equal(t, []bool{true}, rec.lows(), "200s of OK is not enough")

	d.Observe("1", "X", "r1", true, t0.Add(311*time.Second))
	assert.Equal(t, []bool{true, false}, rec.lows(), "301s of OK clears")
}

func TestNotOKResetsStreak(t *testing.T) {
	rec := &recorder{}
	d := New(300*time.Second, rec)
	defer d.Stop()

	d.Observe("1", "X", "r1", false, t0)
	d.Observe("1", "X", "r1", true, t0.Add(time.Second))
	d.Observe("1", "X", "r1", false, t0.Add(200*time.Second))
	d.Observe("1", "X", "r1", true, t0.Add(250*time.Second))
	d.Observe("1", "X", "r1", true, t0.Add(400*time.Second))
	assert.Equal(t, []bool{true}, rec.lows())

	d.Observe("1", "X", "r1", true, t0.Add(551*time.Second))
	assert.Equal(t, []bool{true, false}, rec.lows())
}

func TestZeroDelayClearsOnNextOK(t *testing.T) {
	rec := &recorder{}
	d := New(0, rec)
	defer d.Stop()

	d.Observe("1", "X", "r1", false, t0)
	d.Observe("1", "X", "r1", true, t0.Add(time.Millisecond))
	assert.Equal(t, []bool{true, false}, rec.lows())
}

func TestTimerClearsWithoutFurtherReadings(t *testing.T) {
	rec := &recorder{}
	d := New(50*time.Millisecond, rec)
	defer d.Stop()

	d.Observe("1", "X", "r1", false, time.Now())
	d.Observe("1", "X", "r1", true, time.Now())

	require.Eventually(t, func() bool { return len(rec.lows()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []bool{true, false}, rec.lows())
	assert.Equal(t, "r1", rec.events[1].RadioID)
}

func TestStopCancelsTimers(t *testing.T) {
	rec := &recorder{}
	d := New(30*time.Millisecond, rec)

	d.Observe("1", "X", "r1", false, time.Now())
	d.Observe("1", "X", "r1", true, time.Now())
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []bool{true}, rec.lows())
}

func TestDevicesAreIndependent(t *testing.T) {
	rec := &recorder{}
	d := New(0, rec)
	defer d.Stop()

	d.Observe("1", "X", "r1", false, t0)
	d.Observe("1", "Y", "r1", true, t0)
	low, _ := d.IsLow("1", "X")
	assert.True(t, low)
	low, _ = d.IsLow("1", "Y")
	assert.False(t, low)
}
