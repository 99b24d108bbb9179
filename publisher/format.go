// Package publisher delivers bridge events to MQTT and Telegraf.
package publisher

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gortlbridge/shared"
)

// FormatValue renders a sensor value as a state payload. Floats are rounded
// to two decimals and integral values are printed without a fraction.
func FormatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func formatFloat(f float64) string {
	r := math.Round(f*100) / 100
	if r == 0 {
		r = 0 // drop the sign of -0
	}
	if r == math.Trunc(r) && !math.IsInf(r, 0) {
		return strconv.FormatFloat(r, 'f', 0, 64)
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// StatusPayload is the text published for a radio state: the diagnostic
// reason when the radio is in Error, otherwise the state name.
func StatusPayload(ev shared.StatusEvent) string {
	if ev.State == shared.StateError && ev.Reason != "" {
		return ev.Reason
	}
	return ev.State.String()
}

// BatteryPayload maps a low flag to the binary sensor payload.
func BatteryPayload(low bool) string {
	if low {
		return "ON"
	}
	return "OFF"
}
