package publisher

import "gortlbridge/shared"

// Fanout forwards every event to each publisher in order.
type Fanout []shared.Publisher

// NewFanout drops nil publishers so optional sinks can be passed unchecked.
func NewFanout(pubs ...shared.Publisher) Fanout {
	out := make(Fanout, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (f Fanout) PublishStatus(ev shared.StatusEvent) {
	for _, p := range f {
		p.PublishStatus(ev)
	}
}

func (f Fanout) PublishSensor(ev shared.SensorEvent) {
	for _, p := range f {
		p.PublishSensor(ev)
	}
}

func (f Fanout) PublishBattery(ev shared.BatteryEvent) {
	for _, p := range f {
		p.PublishBattery(ev)
	}
}
