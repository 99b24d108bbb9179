package rtl433

import (
	"math"
	"strings"
)

// derive adds computed fields for a few well known device families. Raw keys
// that are replaced by a derived field are removed from data.
func derive(model string, data map[string]any, fields map[string]any) {
	if strings.Contains(model, "Neptune-R900") {
		if c, ok := number(data["consumption"]); ok {
			fields["meter_reading"] = c / 10.0
			delete(data, "consumption")
		}
	}

	if strings.Contains(model, "SCM") || strings.Contains(model, "ERT") {
		if c, ok := number(data["consumption"]); ok {
			fields["Consumption"] = c
			delete(data, "consumption")
		}
	}

	tc, haveTemp := number(data["temperature_C"])
	if !haveTemp {
		if tf, ok := number(data["temperature_F"]); ok {
			tc, haveTemp = (tf-32.0)*5.0/9.0, true
		}
	}
	if rh, ok := number(data["humidity"]); ok && haveTemp {
		if dp, ok := DewPointF(tc, rh); ok {
			fields["dew_point"] = dp
		}
	}
}

// DewPointF uses the Magnus formula and returns the dew point in °F rounded to
// one decimal. ok is false when humidity is outside (0, 100].
func DewPointF(tempC, humidity float64) (float64, bool) {
	if humidity <= 0 || humidity > 100 {
		return 0, false
	}
	const a, b = 17.27, 237.7
	alpha := (a*tempC)/(b+tempC) + math.Log(humidity/100.0)
	dpC := (b * alpha) / (a - alpha)
	return round(dpC*9.0/5.0+32.0, 1), true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
