package utils

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gortlbridge/shared"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

// DefaultConfig mirrors the defaults of the add-on options schema.
func DefaultConfig() *shared.Config {
	return &shared.Config{
		MQTT: shared.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			KeepAlive: 60,
		},
		Bridge: shared.BridgeConfig{
			ID:          "42",
			Name:        "rtl-haos-bridge",
			TopicPrefix: "home",
		},
		RTL433: shared.RTL433Config{
			Binary:             "rtl_433",
			EepromBinary:       "rtl_eeprom",
			DefaultFreq:        "433.92M",
			DefaultRate:        "250k",
			DefaultHopInterval: 60,
		},
		Auto: shared.AutoConfig{
			BandPlan: "auto",
		},
		Filter: shared.FilterConfig{
			Blacklist: []string{"SimpliSafe*", "EezTire*"},
			SkipKeys:  []string{"time", "protocol", "mod", "id"},
		},
		ThrottleInterval:    30,
		BatteryOKClearAfter: 300,
		Supervisor: shared.SupervisorConfig{
			QuietPeriod:    10 * time.Minute,
			GracePeriod:    2 * time.Second,
			StartStagger:   5 * time.Second,
			RescanInterval: time.Minute,
			Backoff: shared.BackoffConfig{
				Initial:     5 * time.Second,
				Max:         5 * time.Minute,
				Multiplier:  2.0,
				MaxAttempts: 10,
			},
		},
		LockFile: os.TempDir() + "/gortlbridge.lock",
		Log: shared.LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// LoadConfig reads filename on top of the defaults and applies environment
// overrides. A missing file is not an error.
func LoadConfig(filename string) (*shared.Config, error) {
	cfg := DefaultConfig()

	if filename != "" {
		if err := loadFromFile(cfg, filename); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
			log.Warn("config file not found, using defaults", "path", filename)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *shared.Config, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer func() {
		err = file.Close()
		if err != nil {
			log.Warnf("failed to close config file")
		}
	}()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing %s: %w", filename, err)
	}
	return nil
}

func applyEnvOverrides(cfg *shared.Config) error {
	if v := os.Getenv("MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("MQTT_USER"); v != "" {
		cfg.MQTT.User = v
	}
	if v := os.Getenv("MQTT_PASS"); v != "" {
		cfg.MQTT.Pass = v
	}
	if v := os.Getenv("RTL_433_ARGS"); v != "" {
		cfg.RTL433.Args = shared.SplitArgs(v)
	}
	if v := os.Getenv("RTL_433_BIN"); v != "" {
		cfg.RTL433.Binary = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("COUNTRY"); v != "" && cfg.Auto.Country == "" {
		cfg.Auto.Country = v
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"MQTT_PORT", &cfg.MQTT.Port},
		{"RTL_THROTTLE_INTERVAL", &cfg.ThrottleInterval},
		{"BATTERY_OK_CLEAR_AFTER", &cfg.BatteryOKClearAfter},
	}
	for _, o := range ints {
		v := strings.TrimSpace(os.Getenv(o.env))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", shared.ErrInvalidConfig, o.env, v)
		}
		*o.dst = n
	}
	return nil
}

// ValidateConfig rejects values the bridge cannot run with.
func ValidateConfig(cfg *shared.Config) error {
	if cfg.MQTT.Port <= 0 || cfg.MQTT.Port > 65535 {
		return fmt.Errorf("%w: mqtt.port %d out of range", shared.ErrInvalidConfig, cfg.MQTT.Port)
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", shared.ErrInvalidConfig)
	}
	if cfg.ThrottleInterval < 0 {
		return fmt.Errorf("%w: throttle_interval cannot be negative", shared.ErrInvalidConfig)
	}
	if cfg.BatteryOKClearAfter < 0 {
		return fmt.Errorf("%w: battery_ok_clear_after cannot be negative", shared.ErrInvalidConfig)
	}
	if cfg.Auto.MaxRadios < 0 {
		return fmt.Errorf("%w: auto.max_radios cannot be negative", shared.ErrInvalidConfig)
	}
	b := cfg.Supervisor.Backoff
	if b.Initial < 0 || b.Max < 0 || b.Multiplier < 0 {
		return fmt.Errorf("%w: supervisor.backoff values cannot be negative", shared.ErrInvalidConfig)
	}
	if b.Max > 0 && b.Max < b.Initial {
		return fmt.Errorf("%w: supervisor.backoff.max must be >= initial", shared.ErrInvalidConfig)
	}
	if err := validateDurations(cfg.Supervisor); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.RTL433.Binary) == "" {
		return fmt.Errorf("%w: rtl433.binary is empty", shared.ErrInvalidConfig)
	}
	for i, r := range cfg.Radios {
		if r.ConfigPath != "" && r.ConfigInline != "" {
			return fmt.Errorf("%w: radios[%d] sets both config_path and config_inline", shared.ErrInvalidConfig, i)
		}
	}
	return nil
}

// validateDurations rejects supervisor durations below a millisecond. YAML
// reads a bare integer such as "quiet_period: 600" as nanoseconds, so those
// values always mean a missing unit.
func validateDurations(sc shared.SupervisorConfig) error {
	for name, d := range map[string]time.Duration{
		"quiet_period":    sc.QuietPeriod,
		"grace_period":    sc.GracePeriod,
		"hang_timeout":    sc.HangTimeout,
		"start_stagger":   sc.StartStagger,
		"rescan_interval": sc.RescanInterval,
		"backoff.initial": sc.Backoff.Initial,
		"backoff.max":     sc.Backoff.Max,
	} {
		if d > 0 && d < time.Millisecond {
			return fmt.Errorf("%w: supervisor.%s is %s; durations need a unit such as %ds", shared.ErrInvalidConfig, name, d, int64(d))
		}
	}
	return nil
}
