package planner

import (
	"os"
	"path/filepath"
	"testing"

	"gortlbridge/device"
	"gortlbridge/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func devices(serials ...string) []device.Device {
	var out []device.Device
	for i, s := range serials {
		out = append(out, device.Device{Name: "RTL_" + s, Serial: s, Index: i})
	}
	return out
}

func usPref() Preference {
	return Preference{BandPlan: "auto", Country: "US", DefaultFreq: "433.92M", DefaultRate: "250k", DefaultHop: 60}
}

func TestPlanManualIsAuthoritative(t *testing.T) {
	manual := []shared.RadioSpec{
		{Name: "A", ID: "101", Freqs: []string{"433.92M"}},
		{Name: "B", ID: "102", Freqs: []string{"915M"}},
	}
	plan := Plan(devices("1", "2", "3"), manual, usPref())
	assert.Equal(t, manual, plan)

	plan = Plan(nil, manual, usPref())
	assert.Len(t, plan, 2)
}

func TestPlanNoDevices(t *testing.T) {
	assert.Empty(t, Plan(nil, nil, usPref()))
}

func TestPlanAutoSingle(t *testing.T) {
	plan := Plan(devices("101"), nil, usPref())
	require.Len(t, plan, 1)
	r := plan[0]
	assert.Equal(t, "101", r.ID)
	assert.Equal(t, []string{"433.92M"}, r.Freqs)
	assert.Equal(t, "250k", r.Rate)
	assert.Equal(t, 0, r.HopInterval)
	require.NotNil(t, r.Index)
	assert.Equal(t, 0, *r.Index)
	assert.Equal(t, 0, r.Slot)
}

func TestPlanAutoSingleRadioSwitch(t *testing.T) {
	pref := usPref()
	pref.SingleRadio = true
	assert.Len(t, Plan(devices("101", "102", "103"), nil, pref), 1)
}

func TestPlanAutoTwoRadiosUS(t *testing.T) {
	plan := Plan(devices("101", "102"), nil, usPref())
	require.Len(t, plan, 2)
	assert.Equal(t, []string{"433.92M"}, plan[0].Freqs)
	assert.Equal(t, []string{"915M"}, plan[1].Freqs)
	assert.Equal(t, 0, plan[1].HopInterval)
	assert.Equal(t, "1024k", plan[1].Rate)
	assert.Equal(t, 1, *plan[1].Index)
}

func TestPlanAutoThreeRadiosNoOverlap(t *testing.T) {
	plan := Plan(devices("101", "102", "103", "104"), nil, usPref())
	require.Len(t, plan, 3, "hard cap is three radios")

	assert.Equal(t, []string{"315M", "345M", "390M", "868M"}, plan[2].Freqs)
	assert.Equal(t, hopperHopInterval, plan[2].HopInterval)

	ids := map[string]bool{}
	for _, r := range plan {
		ids[r.ID] = true
	}
	assert.Len(t, ids, 3)
}

func TestPlanAutoThreeRadiosEU(t *testing.T) {
	pref := usPref()
	pref.Country = "DE"
	plan := Plan(devices("101", "102", "103"), nil, pref)
	require.Len(t, plan, 3)
	assert.Equal(t, []string{"868M"}, plan[1].Freqs)
	assert.Equal(t, []string{"169.4M", "868.95M", "869.525M", "915M"}, plan[2].Freqs)
}

func TestPlanAutoMaxRadios(t *testing.T) {
	pref := usPref()
	pref.MaxRadios = 2
	assert.Len(t, Plan(devices("1", "2", "3"), nil, pref), 2)
}

func TestPlanUnknownRegionHopsBothBands(t *testing.T) {
	pref := usPref()
	pref.Country = ""
	plan := Plan(devices("1", "2"), nil, pref)
	require.Len(t, plan, 2)
	assert.Equal(t, []string{"868M", "915M"}, plan[1].Freqs)
	assert.Equal(t, 15, plan[1].HopInterval)
}

func TestSecondaryBand(t *testing.T) {
	tests := []struct {
		plan, country, override string
		freqs                   []string
		hop                     int
	}{
		{"auto", "US", "", []string{"915M"}, 0},
		{"auto", "DE", "", []string{"868M"}, 0},
		{"auto", "", "", []string{"868M", "915M"}, 15},
		{"eu", "US", "", []string{"868M"}, 0},
		{"us", "DE", "", []string{"915M"}, 0},
		{"world", "US", "", []string{"868M", "915M"}, 15},
		{"custom", "US", "920M", []string{"920M"}, 0},
		{"custom", "US", "868M,915M", []string{"868M", "915M"}, 15},
		{"custom", "DE", "", []string{"868M"}, 0},
		{"920M", "", "", []string{"920M"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.plan+"/"+tt.country, func(t *testing.T) {
			freqs, hop := SecondaryBand(tt.plan, tt.country, tt.override)
			assert.Equal(t, tt.freqs, freqs)
			assert.Equal(t, tt.hop, hop)
		})
	}
}

func TestHopperBandExcludesUsed(t *testing.T) {
	us := HopperBand("US", []string{"433.92m", "915m"})
	assert.Equal(t, []string{"315M", "345M", "390M", "868M"}, us)

	eu := HopperBand("DE", []string{"868m", "868.95M", "915M"})
	assert.Equal(t, []string{"169.4M", "869.525M"}, eu)

	assert.Empty(t, HopperBand("US", []string{"315M", "345M", "390M", "868M"}))
}

func TestBindManual(t *testing.T) {
	specs := []shared.RadioSpec{
		{Name: "A", ID: "00000101"},
		{Name: "Dup", ID: "00000101"},
		{Name: "B", ID: "ABC"},
		{Name: "Missing", ID: "zzz"},
	}
	bound, warnings := BindManual(specs, devices("00000101", "abc"))

	require.Len(t, bound, 4)
	assert.Equal(t, "Dup", bound[1].Name)
	assert.Equal(t, 0, *bound[0].Index)
	assert.Equal(t, 0, *bound[1].Index)
	assert.Equal(t, 1, *bound[2].Index)
	assert.Nil(t, bound[3].Index)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "duplicate id '00000101'")
	assert.Contains(t, warnings[1], "zzz")

	assert.Nil(t, specs[0].Index, "input specs are not mutated")

	pinned, warnings := BindManual([]shared.RadioSpec{
		{Name: "A", ID: "00000001", Index: shared.IntPtr(0)},
		{Name: "B", ID: "00000001", Index: shared.IntPtr(1)},
	}, devices("00000001", "00000001"))
	require.Len(t, pinned, 2)
	assert.Equal(t, 0, *pinned[0].Index)
	assert.Equal(t, 1, *pinned[1].Index)
	assert.Len(t, warnings, 1)
}

func TestValidate(t *testing.T) {
	warns := Validate(shared.RadioSpec{Freqs: []string{"433.92"}, Rate: "250", HopInterval: 30})
	require.Len(t, warns, 4)
	assert.Contains(t, warns[0], "433.92M")
	assert.Contains(t, warns[1], "hop interval")
	assert.Contains(t, warns[2], "250k")
	assert.Contains(t, warns[3], "id")

	assert.Empty(t, Validate(shared.RadioSpec{ID: "1", Freqs: []string{"868M", "915M"}, Rate: "1024k", HopInterval: 15}))
}

func TestDetectCountry(t *testing.T) {
	t.Setenv("HOMEASSISTANT_COUNTRY", "")
	t.Setenv("HA_COUNTRY", "")
	t.Setenv("COUNTRY", "")

	old := CoreConfigPath
	t.Cleanup(func() { CoreConfigPath = old })

	CoreConfigPath = filepath.Join(t.TempDir(), "core.config")
	assert.Equal(t, "", DetectCountry(""))

	require.NoError(t, os.WriteFile(CoreConfigPath, []byte(`{"data":{"country":"nl"}}`), 0o600))
	assert.Equal(t, "NL", DetectCountry(""))

	t.Setenv("HA_COUNTRY", "us")
	assert.Equal(t, "US", DetectCountry(""))
	assert.Equal(t, "DE", DetectCountry("de"))
}
