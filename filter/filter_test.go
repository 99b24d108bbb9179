package filter

import (
	"testing"

	"gortlbridge/shared"

	"github.com/stretchr/testify/assert"
)

func reading(model, id string) shared.SensorReading {
	return shared.SensorReading{Model: model, DeviceID: id}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern, name string
		want          bool
	}{
		{"SimpliSafe*", "SimpliSafe-Sensor", true},
		{"SimpliSafe*", "simplisafe-sensor", false},
		{"*Tire*", "EezTire-TPMS", true},
		{"acurite-?", "acurite-5", true},
		{"acurite-?", "acurite-55", false},
		{"exact", "exact", true},
		{"exact", "exactly", false},
		{"*", "", true},
		{"", "", true},
		{"a*b*c", "axxbyyc", true},
		{"a*b*c", "axxbyy", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Match(tt.pattern, tt.name), "%s ~ %s", tt.pattern, tt.name)
	}
}

func TestAdmitDefaultBlacklist(t *testing.T) {
	f := New(nil, []string{"SimpliSafe*", "EezTire*"})
	assert.False(t, f.Admit(reading("SimpliSafe-Sensor", "1")))
	assert.False(t, f.Admit(reading("EezTire-E618", "2")))
	assert.True(t, f.Admit(reading("Acurite-5n1", "3")))
}

func TestAdmitWhitelist(t *testing.T) {
	f := New([]string{"Acurite*", "1234"}, nil)
	assert.True(t, f.Admit(reading("Acurite-Tower", "9")))
	assert.True(t, f.Admit(reading("LaCrosse", "1234")))
	assert.False(t, f.Admit(reading("LaCrosse", "99")))
}

func TestAdmitBlacklistWins(t *testing.T) {
	f := New([]string{"Acurite*"}, []string{"Acurite-Tower_3"})
	assert.True(t, f.Admit(reading("Acurite-Tower", "2")))
	assert.False(t, f.Admit(reading("Acurite-Tower", "3")))
}

func TestAdmitIgnoresBlankPatterns(t *testing.T) {
	f := New([]string{" ", ""}, []string{""})
	assert.True(t, f.Admit(reading("Anything", "1")))
}
