// Package rtl433 turns rtl_433 output lines into sensor readings.
package rtl433

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gortlbridge/shared"
	"gortlbridge/utils"
)

// identityKeys are tried in order to find the device id.
var identityKeys = []string{"id", "channel"}

// Parser converts decoder lines into readings. It holds no per-line state and
// is safe for concurrent use.
type Parser struct {
	skip map[string]bool
}

func NewParser(skipKeys []string) *Parser {
	skip := make(map[string]bool, len(skipKeys)+1)
	for _, k := range skipKeys {
		skip[k] = true
	}
	skip["model"] = true
	return &Parser{skip: skip}
}

// Parse decodes one line. ok is false for anything that is not a JSON device
// event: log output, stats objects without a model, or broken JSON.
func (p *Parser) Parse(line shared.Line) (shared.SensorReading, bool) {
	text := strings.TrimSpace(line.Text)
	if !utils.IsLikelyJSON([]byte(text)) {
		return shared.SensorReading{}, false
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return shared.SensorReading{}, false
	}

	model, _ := data["model"].(string)
	model = strings.TrimSpace(model)
	if model == "" {
		return shared.SensorReading{}, false
	}

	rawID := "unknown"
	for _, k := range identityKeys {
		if v, ok := data[k]; ok && v != nil {
			rawID = fmt.Sprint(v)
			break
		}
	}

	fields := make(map[string]any)
	derive(model, data, fields)

	for key, raw := range Flatten(data) {
		if p.skip[key] {
			continue
		}
		value, ok := normalize(raw)
		if !ok {
			continue
		}

		switch key {
		case "temperature_C", "temp_C":
			if c, isNum := value.(float64); isNum {
				fields["temperature"] = round(c*1.8+32.0, 1)
				continue
			}
		case "temperature_F", "temp_F", "temperature":
			if _, isNum := value.(float64); isNum {
				fields["temperature"] = value
				continue
			}
		}
		fields[key] = value
	}

	return shared.SensorReading{
		Model:    model,
		DeviceID: utils.CleanID(rawID),
		RadioID:  line.RadioID,
		Radio:    line.RadioName,
		Fields:   fields,
		Time:     line.Time,
	}, true
}

// Flatten collapses nested objects and arrays into one level, joining keys
// with '_' ({"channel":{"A":1}} -> channel_A, ["x","y"] -> flags_0, flags_1).
func Flatten(data map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(v any, prefix string)
	walk = func(v any, prefix string) {
		switch t := v.(type) {
		case map[string]any:
			for k, child := range t {
				walk(child, join(prefix, k))
			}
		case []any:
			for i, child := range t {
				walk(child, join(prefix, strconv.Itoa(i)))
			}
		default:
			if prefix != "" {
				out[prefix] = t
			}
		}
	}
	walk(data, "")
	return out
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

// normalize maps decoded JSON values onto float64, string or bool.
func normalize(v any) (any, bool) {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f, true
		}
		return t.String(), true
	case float64:
		return t, true
	case string:
		return t, true
	case bool:
		return t, true
	default:
		return nil, false
	}
}

func number(v any) (float64, bool) {
	n, ok := normalize(v)
	if !ok {
		return 0, false
	}
	f, ok := n.(float64)
	return f, ok
}
