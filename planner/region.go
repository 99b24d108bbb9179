package planner

import (
	"encoding/json"
	"os"
	"strings"
)

// CoreConfigPath is where Home Assistant keeps the instance country.
var CoreConfigPath = "/config/.storage/core.config"

// DetectCountry makes a best-effort guess at the host country code: the
// configured value, then HOMEASSISTANT_COUNTRY / HA_COUNTRY / COUNTRY, then the
// Home Assistant core config. Empty when unknown.
func DetectCountry(configured string) string {
	if c := strings.TrimSpace(configured); c != "" {
		return strings.ToUpper(c)
	}
	for _, k := range []string{"HOMEASSISTANT_COUNTRY", "HA_COUNTRY", "COUNTRY"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return strings.ToUpper(v)
		}
	}

	raw, err := os.ReadFile(CoreConfigPath)
	if err != nil {
		return ""
	}
	var doc struct {
		Data struct {
			Country string `json:"country"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(doc.Data.Country))
}
