// Package pipeline is the single consumer of decoder output: it parses,
// filters and routes every line read from the radios.
package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"gortlbridge/aggregate"
	"gortlbridge/battery"
	"gortlbridge/filter"
	"gortlbridge/metrics"
	"gortlbridge/rtl433"
	"gortlbridge/shared"
)

const batteryField = "battery_ok"

// Activity is told about every admitted reading.
type Activity interface {
	MarkActivity(radioID string, at time.Time)
}

type Pipeline struct {
	parser   *rtl433.Parser
	filter   *filter.Filter
	buffer   *aggregate.Buffer
	battery  *battery.Debouncer
	activity Activity
	metrics  *metrics.Metrics
}

func New(parser *rtl433.Parser, f *filter.Filter, buffer *aggregate.Buffer, debouncer *battery.Debouncer, activity Activity, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		parser:   parser,
		filter:   f,
		buffer:   buffer,
		battery:  debouncer,
		activity: activity,
		metrics:  m,
	}
}

// Run handles lines until ctx is done or lines is closed.
func (p *Pipeline) Run(ctx context.Context, lines <-chan shared.Line) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			p.Handle(line)
		}
	}
}

// Handle processes one decoder line. Lines that are not device events are
// dropped silently.
func (p *Pipeline) Handle(line shared.Line) {
	reading, ok := p.parser.Parse(line)
	if !ok {
		p.metrics.LineOutcome(line.RadioID, metrics.OutcomeNoise)
		return
	}
	if !p.filter.Admit(reading) {
		p.metrics.LineOutcome(line.RadioID, metrics.OutcomeFiltered)
		log.Debug("Filtered device", "model", reading.Model, "id", reading.DeviceID)
		return
	}
	p.metrics.LineOutcome(line.RadioID, metrics.OutcomeEvent)

	if p.activity != nil {
		p.activity.MarkActivity(reading.RadioID, reading.Time)
	}

	if v, present := reading.Fields[batteryField]; present {
		if isOK, known := battery.OK(v); known {
			p.battery.Observe(reading.DeviceID, reading.Model, reading.RadioID, isOK, reading.Time)
			delete(reading.Fields, batteryField)
		}
	}

	if len(reading.Fields) > 0 {
		p.buffer.Ingest(reading)
		p.metrics.SetWindows(p.buffer.Len())
	}
}
