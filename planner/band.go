package planner

import "strings"

const secondaryHopInterval = 15

// eu868Countries are EU + EEA + UK + CH, the broad 868 MHz ISM users.
var eu868Countries = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true, "CZ": true, "DK": true,
	"EE": true, "FI": true, "FR": true, "DE": true, "GR": true, "HU": true, "IE": true,
	"IT": true, "LV": true, "LT": true, "LU": true, "MT": true, "NL": true, "PL": true,
	"PT": true, "RO": true, "SK": true, "SI": true, "ES": true, "SE": true,
	"IS": true, "LI": true, "NO": true, "CH": true, "GB": true,
}

// IsEU868 reports whether a country code uses the 868 MHz band.
func IsEU868(country string) bool {
	return eu868Countries[strings.ToUpper(strings.TrimSpace(country))]
}

// SecondaryBand returns the frequency list and hop interval for the second
// auto-planned radio.
//
//	auto   : by country; unknown country hops 868M and 915M
//	eu     : 868M
//	us     : 915M
//	world  : hop 868M,915M
//	custom : override, falling back to auto
//	other  : taken as a literal frequency list
func SecondaryBand(plan, country, override string) ([]string, int) {
	p := strings.ToLower(strings.TrimSpace(plan))
	if p == "" {
		p = "auto"
	}

	if p == "custom" {
		if ov := strings.TrimSpace(override); ov != "" {
			return withHop(ov)
		}
		p = "auto"
	}

	switch p {
	case "auto", "detect", "country":
		cc := strings.ToUpper(strings.TrimSpace(country))
		switch {
		case IsEU868(cc):
			return []string{"868M"}, 0
		case cc != "":
			return []string{"915M"}, 0
		default:
			return []string{"868M", "915M"}, secondaryHopInterval
		}
	case "eu", "europe", "uk":
		return []string{"868M"}, 0
	case "us", "usa", "na", "north_america", "north-america", "canada", "au", "australia", "nz", "new_zealand":
		return []string{"915M"}, 0
	case "world", "global", "intl", "international":
		return []string{"868M", "915M"}, secondaryHopInterval
	}
	return withHop(plan)
}

// HopperBand returns the "interesting" auxiliary bands for the third radio,
// minus anything already covered by the other radios. It may be empty.
func HopperBand(country string, used []string) []string {
	taken := make(map[string]bool, len(used))
	for _, f := range used {
		taken[strings.ToLower(strings.TrimSpace(f))] = true
	}

	candidates := []string{"315M", "345M", "390M", "868M"}
	if IsEU868(country) {
		candidates = []string{"169.4M", "868.95M", "869.525M", "915M"}
	}

	var chosen []string
	for _, f := range candidates {
		if !taken[strings.ToLower(f)] {
			chosen = append(chosen, f)
		}
	}
	return chosen
}

func withHop(freqs string) ([]string, int) {
	list := splitFreqs(freqs)
	if len(list) > 1 {
		return list, secondaryHopInterval
	}
	return list, 0
}

func splitFreqs(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
