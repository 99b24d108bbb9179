package shared

import (
	"strings"
	"time"
)

// Config is the application configuration.
type Config struct {
	MQTT                MQTTConfig       `yaml:"mqtt"`
	Bridge              BridgeConfig     `yaml:"bridge"`
	RTL433              RTL433Config     `yaml:"rtl433"`
	Radios              []RadioConfig    `yaml:"radios"`
	Auto                AutoConfig       `yaml:"auto"`
	Filter              FilterConfig     `yaml:"filter"`
	ThrottleInterval    int              `yaml:"throttle_interval"`
	BatteryOKClearAfter int              `yaml:"battery_ok_clear_after"`
	Supervisor          SupervisorConfig `yaml:"supervisor"`
	TelegrafURL         string           `yaml:"telegraf_url"`
	MetricsAddr         string           `yaml:"metrics_addr"`
	LockFile            string           `yaml:"lock_file"`
	Log                 LogConfig        `yaml:"log"`
}

type MQTTConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	User      string `yaml:"user"`
	Pass      string `yaml:"pass"`
	ClientID  string `yaml:"client_id"`
	KeepAlive int    `yaml:"keepalive"`
	QoS       byte   `yaml:"qos"`
}

type BridgeConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	TopicPrefix string `yaml:"topic_prefix"`
	IDSuffix    string `yaml:"id_suffix"`
}

type RTL433Config struct {
	Binary             string    `yaml:"binary"`
	EepromBinary       string    `yaml:"eeprom_binary"`
	Args               ArgsField `yaml:"args"`
	ConfigPath         string    `yaml:"config_path"`
	ConfigInline       string    `yaml:"config_inline"`
	DefaultFreq        string    `yaml:"default_freq"`
	DefaultRate        string    `yaml:"default_rate"`
	DefaultHopInterval int       `yaml:"default_hop_interval"`
}

// RadioConfig is one manual radio entry as written in the config file.
type RadioConfig struct {
	Name         string    `yaml:"name"`
	ID           string    `yaml:"id"`
	Freq         ListField `yaml:"freq"`
	Rate         string    `yaml:"rate"`
	HopInterval  int       `yaml:"hop_interval"`
	Protocols    ListField `yaml:"protocols"`
	Device       string    `yaml:"device"`
	Args         ArgsField `yaml:"args"`
	ConfigPath   string    `yaml:"config_path"`
	ConfigInline string    `yaml:"config_inline"`
	StatusID     string    `yaml:"status_id"`
}

type AutoConfig struct {
	SingleRadio   bool   `yaml:"single_radio"`
	MaxRadios     int    `yaml:"max_radios"`
	BandPlan      string `yaml:"band_plan"`
	Country       string `yaml:"country"`
	SecondaryFreq string `yaml:"secondary_freq"`
	HopperFreqs   string `yaml:"hopper_freqs"`
}

type FilterConfig struct {
	Whitelist []string `yaml:"whitelist"`
	Blacklist []string `yaml:"blacklist"`
	SkipKeys  []string `yaml:"skip_keys"`
}

type SupervisorConfig struct {
	QuietPeriod time.Duration `yaml:"quiet_period"`
	GracePeriod time.Duration `yaml:"grace_period"`
	HangTimeout time.Duration `yaml:"hang_timeout"`
	// StartStagger delays each radio's first launch by its position times
	// this value so dongles on one hub do not power up together.
	StartStagger time.Duration `yaml:"start_stagger"`
	// RescanInterval is how often dongles are re-enumerated while a radio
	// is parked; 0 disables it.
	RescanInterval time.Duration `yaml:"rescan_interval"`
	Backoff        BackoffConfig `yaml:"backoff"`
}

type BackoffConfig struct {
	Initial     time.Duration `yaml:"initial"`
	Max         time.Duration `yaml:"max"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxAttempts int           `yaml:"max_attempts"`
	Jitter      bool          `yaml:"jitter"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Spec converts a manual radio entry into a RadioSpec, filling the frequency
// and rate from the rtl_433 defaults when they are omitted.
func (rc RadioConfig) Spec(slot int, defaults RTL433Config) RadioSpec {
	freqs := []string(rc.Freq)
	if len(freqs) == 0 && defaults.DefaultFreq != "" {
		freqs = ParseList(defaults.DefaultFreq)
	}
	rate := strings.TrimSpace(rc.Rate)
	if rate == "" {
		rate = defaults.DefaultRate
	}
	hop := rc.HopInterval
	if hop == 0 && len(freqs) > 1 {
		hop = defaults.DefaultHopInterval
	}
	name := strings.TrimSpace(rc.Name)
	if name == "" {
		name = "RTL_" + strings.TrimSpace(rc.ID)
	}
	return RadioSpec{
		Name:         name,
		ID:           strings.TrimSpace(rc.ID),
		Freqs:        freqs,
		HopInterval:  hop,
		Rate:         rate,
		Protocols:    []string(rc.Protocols),
		Device:       strings.TrimSpace(rc.Device),
		Args:         []string(rc.Args),
		ConfigPath:   strings.TrimSpace(rc.ConfigPath),
		ConfigInline: rc.ConfigInline,
		StatusID:     strings.TrimSpace(rc.StatusID),
		Slot:         slot,
	}
}

// ManualSpecs converts every configured radio.
func (c *Config) ManualSpecs() []RadioSpec {
	specs := make([]RadioSpec, 0, len(c.Radios))
	for i, rc := range c.Radios {
		specs = append(specs, rc.Spec(i, c.RTL433))
	}
	return specs
}
