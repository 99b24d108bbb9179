// Package aggregate averages sensor fields over fixed time windows.
package aggregate

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"gortlbridge/shared"
)

const (
	idleIntervals = 10
	minIdle       = 10 * time.Minute
)

// Key identifies one aggregation window. Model keeps two device types that
// share a cleaned id from being averaged together.
type Key struct {
	RadioID  string
	DeviceID string
	Model    string
	Field    string
}

type window struct {
	sum   float64
	count int

	text    any
	hasText bool

	first, last time.Time
	active      time.Time
}

func (w *window) empty() bool { return w.count == 0 && !w.hasText }

func (w *window) reset() {
	w.sum, w.count = 0, 0
	w.text, w.hasText = nil, false
	w.first, w.last = time.Time{}, time.Time{}
}

// Buffer holds one window per (radio, device, field). With a zero interval it
// is a pass-through and forwards every field as it arrives.
type Buffer struct {
	interval  time.Duration
	idleAfter time.Duration
	publisher shared.Publisher

	mu      sync.Mutex
	windows map[Key]*window
}

func New(interval time.Duration, publisher shared.Publisher) *Buffer {
	return &Buffer{
		interval:  interval,
		idleAfter: max(idleIntervals*interval, minIdle),
		publisher: publisher,
		windows:   make(map[Key]*window),
	}
}

func (b *Buffer) Interval() time.Duration { return b.interval }

// Ingest adds every field of r to its window. Numeric values are summed for
// averaging; other values replace the window's last value.
func (b *Buffer) Ingest(r shared.SensorReading) {
	if b.interval <= 0 {
		for _, field := range sortedFields(r.Fields) {
			b.publisher.PublishSensor(shared.SensorEvent{
				RadioID:     r.RadioID,
				DeviceID:    r.DeviceID,
				DeviceModel: r.Model,
				Field:       field,
				Value:       r.Fields[field],
				Samples:     1,
				Time:        r.Time,
			})
		}
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for field, value := range r.Fields {
		k := Key{RadioID: r.RadioID, DeviceID: r.DeviceID, Model: r.Model, Field: field}
		w, ok := b.windows[k]
		if !ok {
			w = &window{}
			b.windows[k] = w
		}
		if f, isNum := value.(float64); isNum {
			w.sum += f
			w.count++
		} else {
			w.text, w.hasText = value, true
		}
		if w.first.IsZero() {
			w.first = r.Time
		}
		w.last = r.Time
		w.active = r.Time
	}
}

// Flush emits one event per non-empty window, resets those windows, and
// drops windows that have been idle for too long. It returns the number of
// events published.
func (b *Buffer) Flush(now time.Time) int {
	b.mu.Lock()
	var out []shared.SensorEvent
	for k, w := range b.windows {
		if w.empty() {
			if !w.active.IsZero() && now.Sub(w.active) >= b.idleAfter {
				delete(b.windows, k)
			}
			continue
		}

		ev := shared.SensorEvent{
			RadioID:     k.RadioID,
			DeviceID:    k.DeviceID,
			DeviceModel: k.Model,
			Field:       k.Field,
			Time:        w.last,
		}
		if w.count > 0 {
			ev.Value = w.sum / float64(w.count)
			ev.Samples = w.count
		} else {
			ev.Value = w.text
			ev.Samples = 1
		}
		out = append(out, ev)
		w.reset()
	}
	b.mu.Unlock()

	slices.SortFunc(out, func(a, c shared.SensorEvent) int {
		return cmp.Or(
			cmp.Compare(a.RadioID, c.RadioID),
			cmp.Compare(a.DeviceID, c.DeviceID),
			cmp.Compare(a.DeviceModel, c.DeviceModel),
			cmp.Compare(a.Field, c.Field),
		)
	})
	for _, ev := range out {
		b.publisher.PublishSensor(ev)
	}
	return len(out)
}

// Len returns the number of live windows.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.windows)
}

// Run flushes on every interval tick until ctx is done. Windows still open at
// shutdown are discarded, not flushed.
func (b *Buffer) Run(ctx context.Context) {
	if b.interval <= 0 {
		return
	}
	log.Infof("Averaging sensor data every %s", b.interval)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			dropped := len(b.windows)
			clear(b.windows)
			b.mu.Unlock()
			log.Debug("Aggregation stopped", "discarded_windows", dropped)
			return
		case now := <-ticker.C:
			if n := b.Flush(now); n > 0 {
				log.Debug("Flushed averaged readings", "count", n)
			}
		}
	}
}

func sortedFields(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
