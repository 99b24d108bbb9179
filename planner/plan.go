// Package planner decides which decoder instances to run.
package planner

import (
	"gortlbridge/device"
	"gortlbridge/shared"
)

const (
	// HardCap is the most radios auto mode will ever plan.
	HardCap = 3

	secondaryRate     = "1024k"
	hopperRate        = "1024k"
	hopperHopInterval = 30
)

// Preference carries the auto-mode knobs.
type Preference struct {
	BandPlan          string
	Country           string
	SecondaryOverride string
	HopperOverride    string
	SingleRadio       bool
	MaxRadios         int
	DefaultFreq       string
	DefaultRate       string
	DefaultHop        int
}

// Plan returns the ordered radios to run. A non-empty manual list is
// authoritative and returned unchanged. Otherwise up to three radios are
// derived from the enumerated devices: the default band, a region-aware high
// band, and a hopper over auxiliary bands the first two do not cover.
func Plan(devices []device.Device, manual []shared.RadioSpec, pref Preference) []shared.RadioSpec {
	if len(manual) > 0 {
		return manual
	}
	if len(devices) == 0 {
		return nil
	}

	limit := HardCap
	if pref.MaxRadios > 0 && pref.MaxRadios < limit {
		limit = pref.MaxRadios
	}
	if pref.SingleRadio {
		limit = 1
	}
	n := min(len(devices), limit)

	primary := shared.ParseList(pref.DefaultFreq)
	if len(primary) == 0 {
		primary = []string{"433.92M"}
	}
	rate := pref.DefaultRate
	if rate == "" {
		rate = "250k"
	}
	primaryHop := 0
	if len(primary) > 1 {
		primaryHop = pref.DefaultHop
	}

	specs := []shared.RadioSpec{bindDevice(devices[0], 0, primary, primaryHop, rate)}

	if n > 1 {
		freqs, hop := SecondaryBand(pref.BandPlan, pref.Country, pref.SecondaryOverride)
		specs = append(specs, bindDevice(devices[1], 1, freqs, hop, secondaryRate))
	}

	if n > 2 {
		var used []string
		for _, s := range specs {
			used = append(used, s.Freqs...)
		}
		hopper := splitFreqs(pref.HopperOverride)
		if len(hopper) == 0 {
			hopper = HopperBand(pref.Country, used)
		}
		if len(hopper) > 0 {
			hop := 0
			if len(hopper) > 1 {
				hop = hopperHopInterval
			}
			specs = append(specs, bindDevice(devices[2], 2, hopper, hop, hopperRate))
		}
	}

	return specs
}

func bindDevice(d device.Device, slot int, freqs []string, hop int, rate string) shared.RadioSpec {
	return shared.RadioSpec{
		Name:        d.Name,
		ID:          d.Serial,
		Freqs:       freqs,
		HopInterval: hop,
		Rate:        rate,
		Index:       shared.IntPtr(d.Index),
		Slot:        slot,
	}
}
