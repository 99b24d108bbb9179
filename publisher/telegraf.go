package publisher

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"gortlbridge/shared"
	"gortlbridge/utils"
)

// Measurement names written to Telegraf.
const (
	MeasurementSensor  = "rtl_433"
	MeasurementBattery = "rtl_433_battery"
	MeasurementRadio   = "rtl_433_radio"
)

// drainTimeout bounds the posts made after shutdown.
const drainTimeout = 5 * time.Second

// Telegraf posts every event to a Telegraf http_listener as InfluxDB line
// protocol.
type Telegraf struct {
	url    string
	client *http.Client
	queue  chan any
}

func NewTelegraf(url string) *Telegraf {
	return &Telegraf{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		queue:  make(chan any, queueSize),
	}
}

func (t *Telegraf) enqueue(ev any) {
	select {
	case t.queue <- ev:
	default:
		log.Warn("Telegraf queue full, dropping event", "type", fmt.Sprintf("%T", ev))
	}
}

func (t *Telegraf) PublishStatus(ev shared.StatusEvent)   { t.enqueue(ev) }
func (t *Telegraf) PublishSensor(ev shared.SensorEvent)   { t.enqueue(ev) }
func (t *Telegraf) PublishBattery(ev shared.BatteryEvent) { t.enqueue(ev) }

// Run receives queued events and publishes them to the Telegraf server until
// ctx is done, then posts what is left within drainTimeout.
func (t *Telegraf) Run(ctx context.Context) {
	for {
		select {
		case ev := <-t.queue:
			if ctx.Err() != nil {
				t.drain(ev)
				return
			}
			t.publish(ctx, ev)

		case <-ctx.Done():
			t.drain(nil)
			return
		}
	}
}

func (t *Telegraf) drain(first any) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if first != nil {
		t.publish(ctx, first)
	}
	for {
		select {
		case ev := <-t.queue:
			t.publish(ctx, ev)
		default:
			log.Info("Telegraf publisher received shutdown signal (cancelled).")
			return
		}
	}
}

func (t *Telegraf) publish(ctx context.Context, ev any) {
	line, err := LineProtocol(ev)
	if err != nil {
		log.Error("no metric published", "err", err)
		return
	}
	t.post(ctx, line)
}

func (t *Telegraf) post(ctx context.Context, line string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewBufferString(line))
	if err != nil {
		log.Error("Error creating request", "err", err)
		return
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := t.client.Do(req)
	if err != nil {
		log.Error("Error posting to Telegraf", "err", err)
		return
	}
	if err := resp.Body.Close(); err != nil {
		log.Error("Error failed to close Request Body", "err", err)
	}

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		log.Debugf("metric published to Telegraf: %s", utils.ReplaceBinaryWithHex(line))
	} else {
		log.Warnf("FAILED metric published to Telegraf Line: [%s], StatusCode: %d, Status: %s", utils.ReplaceBinaryWithHex(line), resp.StatusCode, resp.Status)
	}
}

// LineProtocol renders one bridge event as a line protocol record.
func LineProtocol(ev any) (string, error) {
	switch e := ev.(type) {
	case shared.SensorEvent:
		tags := map[string]string{"radio": e.RadioID, "model": e.DeviceModel, "device": e.DeviceID}
		fields := fieldValue(e.Field, e.Value)
		if e.Samples > 0 {
			fields += fmt.Sprintf(",samples=%di", e.Samples)
		}
		return line(MeasurementSensor, tags, fields, e.Time), nil

	case shared.BatteryEvent:
		tags := map[string]string{"radio": e.RadioID, "model": e.DeviceModel, "device": e.DeviceID}
		return line(MeasurementBattery, tags, fmt.Sprintf("low=%t", e.IsLow), e.Time), nil

	case shared.StatusEvent:
		tags := map[string]string{"radio": e.RadioID, "name": e.RadioName}
		fields := fmt.Sprintf("state=%s,reason=%s", quote(e.State.String()), quote(e.Reason))
		return line(MeasurementRadio, tags, fields, e.Time), nil

	default:
		return "", fmt.Errorf("unknown Telegraf message type %T", ev)
	}
}

func line(measurement string, tags map[string]string, fields string, at time.Time) string {
	keys := make([]string, 0, len(tags))
	for k, v := range tags {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(escape(measurement, ", "))
	for _, k := range keys {
		b.WriteByte(',')
		b.WriteString(escape(k, ",= "))
		b.WriteByte('=')
		b.WriteString(escape(tags[k], ",= "))
	}
	b.WriteByte(' ')
	b.WriteString(fields)
	if at.IsZero() {
		at = time.Now()
	}
	fmt.Fprintf(&b, " %d", at.UnixNano())
	return b.String()
}

func fieldValue(key string, v any) string {
	k := escape(key, ",= ")
	switch x := v.(type) {
	case float64, float32:
		return k + "=" + FormatValue(x)
	case int, int64:
		return fmt.Sprintf("%s=%di", k, x)
	case bool:
		return fmt.Sprintf("%s=%t", k, x)
	default:
		return k + "=" + quote(FormatValue(x))
	}
}

func escape(s, special string) string {
	if !strings.ContainsAny(s, special) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
