package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gortlbridge/device"
	"gortlbridge/shared"
)

var (
	bareNumber  = regexp.MustCompile(`^\d+(\.\d+)?$`)
	bareInteger = regexp.MustCompile(`^\d+$`)
)

// BindManual pins manual radios to enumerated hardware by matching their id
// to a device serial. Every entry is kept, including ones whose id repeats an
// earlier one. The returned warnings are meant for the startup log.
func BindManual(specs []shared.RadioSpec, devices []device.Device) ([]shared.RadioSpec, []string) {
	bySerial := make(map[string]int, len(devices))
	for _, d := range devices {
		bySerial[strings.ToLower(d.Serial)] = d.Index
	}

	var (
		out      []shared.RadioSpec
		warnings []string
		seen     = make(map[string]bool, len(specs))
	)
	for _, spec := range specs {
		key := strings.ToLower(strings.TrimSpace(spec.ID))
		if key != "" {
			if seen[key] {
				warnings = append(warnings, fmt.Sprintf("duplicate id '%s' for radio %q; its status key gets a numeric suffix", key, spec.Name))
			}
			seen[key] = true
		}

		if idx, ok := bySerial[key]; ok && key != "" && spec.Index == nil {
			spec.Index = shared.IntPtr(idx)
		} else if key != "" && !ok {
			warnings = append(warnings, fmt.Sprintf("configured serial %s not found in scan; the driver may fail", spec.ID))
		}
		out = append(out, spec)
	}
	return out, warnings
}

// Validate returns human readable warnings for common configuration
// mistakes in a radio spec.
func Validate(spec shared.RadioSpec) []string {
	var warnings []string

	for _, f := range spec.Freqs {
		if !bareNumber.MatchString(f) {
			continue
		}
		if v, err := strconv.ParseFloat(f, 64); err == nil && v < 1_000_000 {
			warnings = append(warnings, fmt.Sprintf(
				"frequency '%s' has no suffix and will be read as Hz; did you mean '%sM'?", f, f))
		}
	}

	if spec.HopInterval > 0 && len(spec.Freqs) < 2 {
		warnings = append(warnings, fmt.Sprintf(
			"hop interval is set to %ds but only one frequency is configured (%s); hopping will be ignored",
			spec.HopInterval, spec.FreqDisplay()))
	}

	if bareInteger.MatchString(spec.Rate) {
		if v, err := strconv.Atoi(spec.Rate); err == nil && v < 1_000_000 {
			warnings = append(warnings, fmt.Sprintf(
				"sample rate '%s' has no suffix; did you mean '%sk'?", spec.Rate, spec.Rate))
		}
	}

	if strings.TrimSpace(spec.ID) == "" {
		warnings = append(warnings,
			"radio is missing a device 'id'; it may default to index 0 and conflict with others")
	}
	return warnings
}
