// Package device discovers attached RTL-SDR dongles.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	defaultMaxDevices = 8
	defaultTimeout    = 5 * time.Second
)

// Device is one enumerated dongle. Serial is unique across one enumeration.
type Device struct {
	Name   string
	Serial string
	Index  int
}

// Runner executes a probe command and returns its combined output and exit
// code. err is only set when the command could not run at all.
type Runner func(ctx context.Context, name string, args ...string) (output string, exitCode int, err error)

// Enumerator probes device indexes with rtl_eeprom.
type Enumerator struct {
	Binary     string
	MaxDevices int
	Timeout    time.Duration
	run        Runner
}

func NewEnumerator(binary string) *Enumerator {
	if binary == "" {
		binary = "rtl_eeprom"
	}
	return &Enumerator{
		Binary:     binary,
		MaxDevices: defaultMaxDevices,
		Timeout:    defaultTimeout,
		run:        execRunner,
	}
}

// WithRunner replaces the command runner.
func (e *Enumerator) WithRunner(r Runner) *Enumerator {
	e.run = r
	return e
}

// Enumerate returns the attached devices ordered by index. It never fails:
// no hardware, or no probe binary, yields an empty list.
func (e *Enumerator) Enumerate(ctx context.Context) []Device {
	var devices []Device

	for index := 0; index < e.MaxDevices; index++ {
		if ctx.Err() != nil {
			break
		}

		probeCtx, cancel := context.WithTimeout(ctx, e.Timeout)
		out, code, err := e.run(probeCtx, e.Binary, "-d", strconv.Itoa(index))
		cancel()
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				log.Warn("probe binary not found; cannot auto-detect radios", "binary", e.Binary)
			} else {
				log.Warn("device probe failed", "index", index, "err", err)
			}
			break
		}

		if strings.Contains(out, "No supported devices") || strings.Contains(out, "No matching device") {
			break
		}

		if serial := parseSerial(out); serial != "" {
			log.Infof("found RTL-SDR at index %d: serial %s", index, serial)
			devices = append(devices, Device{Serial: serial, Index: index})
		} else if code == 0 {
			devices = append(devices, Device{Serial: strconv.Itoa(index), Index: index})
		}
	}

	return Dedupe(devices)
}

// Dedupe renames repeated serials in discovery order: the first keeps the raw
// serial, later ones become serial-1, serial-2, ... skipping any name that is
// already taken by another device.
func Dedupe(devices []Device) []Device {
	taken := make(map[string]bool, len(devices))
	for _, d := range devices {
		taken[d.Serial] = true
	}

	seen := make(map[string]int, len(devices))
	assigned := make(map[string]bool, len(devices))
	out := make([]Device, 0, len(devices))

	for _, d := range devices {
		raw := d.Serial
		serial := raw
		if assigned[raw] {
			n := seen[raw]
			for {
				n++
				serial = fmt.Sprintf("%s-%d", raw, n)
				if !taken[serial] && !assigned[serial] {
					break
				}
			}
			seen[raw] = n
			log.Warn("duplicate serial number, renaming", "serial", raw, "index", d.Index, "renamed", serial)
		}
		assigned[serial] = true
		d.Serial = serial
		d.Name = "RTL_" + serial
		out = append(out, d)
	}
	return out
}

func parseSerial(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "Serial number") && !strings.Contains(line, "serial number") && !strings.Contains(line, "S/N") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		fields := strings.Fields(parts[1])
		if len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

func execRunner(ctx context.Context, name string, args ...string) (string, int, error) {
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return buf.String(), 0, nil
	case errors.As(err, &exitErr):
		return buf.String(), exitErr.ExitCode(), nil
	default:
		return buf.String(), -1, err
	}
}
