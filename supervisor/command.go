package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gortlbridge/shared"
)

const defaultHopInterval = 60

// forcedArgs always lead the decoder command line: JSON events on stdout
// with time, protocol and signal level metadata.
var forcedArgs = []string{"-F", "json", "-M", "time:iso", "-M", "protocol", "-M", "level"}

// CommandOptions are the global decoder settings shared by every radio.
type CommandOptions struct {
	Binary       string
	Args         []string
	ConfigPath   string
	ConfigInline string
	// TempDir receives materialized inline configs; empty means os.TempDir.
	TempDir string
}

// BuildCommand returns the argv for one radio and a cleanup func that removes
// any temporary config file. Passthrough arguments come after the forced
// output flags; radio settings win over global ones. The returned warnings
// describe passthrough flags that were dropped.
func BuildCommand(spec shared.RadioSpec, opts CommandOptions) (argv []string, cleanup func(), warnings []string, err error) {
	cleanup = func() {}

	bin := opts.Binary
	if bin == "" {
		bin = "rtl_433"
	}
	argv = append([]string{bin}, forcedArgs...)
	argv = append(argv, "-d", deviceSelector(spec))

	for _, f := range spec.Freqs {
		argv = append(argv, "-f", f)
	}
	if len(spec.Freqs) > 1 {
		hop := spec.HopInterval
		if hop <= 0 {
			hop = defaultHopInterval
		}
		argv = append(argv, "-H", strconv.Itoa(hop))
	}
	if spec.Rate != "" {
		argv = append(argv, "-s", spec.Rate)
	}
	for _, p := range spec.Protocols {
		argv = append(argv, "-R", p)
	}

	cfgPath, cfgInline := spec.ConfigPath, spec.ConfigInline
	if cfgPath == "" && strings.TrimSpace(cfgInline) == "" {
		cfgPath, cfgInline = opts.ConfigPath, opts.ConfigInline
	}
	switch {
	case strings.TrimSpace(cfgInline) != "":
		path, err := writeInlineConfig(opts.TempDir, spec.StatusKey(), cfgInline)
		if err != nil {
			return nil, cleanup, nil, fmt.Errorf("write inline config: %w", err)
		}
		cleanup = func() { _ = os.Remove(path) }
		argv = append(argv, "-c", path)
	case cfgPath != "":
		argv = append(argv, "-c", resolveConfigPath(cfgPath))
	}

	global, w1 := SanitizeArgs(opts.Args)
	radio, w2 := SanitizeArgs(spec.Args)
	argv = append(argv, global...)
	argv = append(argv, radio...)
	return argv, cleanup, append(w1, w2...), nil
}

// deviceSelector picks the -d value: an explicit override, the enumerated
// index, the serial, or index 0.
func deviceSelector(spec shared.RadioSpec) string {
	switch {
	case spec.Device != "":
		return spec.Device
	case spec.Index != nil:
		return strconv.Itoa(*spec.Index)
	case strings.TrimSpace(spec.ID) != "":
		id := strings.TrimSpace(spec.ID)
		if _, err := strconv.Atoi(id); err == nil && len(id) <= 2 {
			return id
		}
		return ":" + id
	default:
		return "0"
	}
}

func writeInlineConfig(dir, key, content string) (string, error) {
	f, err := os.CreateTemp(dir, "rtl_433_"+shared.SafeStatusSuffix(key)+"_*.conf")
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// resolveConfigPath makes a relative path absolute when it exists relative to
// the working directory, and otherwise leaves it for the decoder to search.
func resolveConfigPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
	}
	return path
}

// SanitizeArgs drops passthrough "-F <fmt>" options that would write to
// stdout and corrupt the JSON stream. Outputs with a target ("-F json:/x",
// "-F mqtt://...") are kept.
func SanitizeArgs(args []string) ([]string, []string) {
	var (
		out      []string
		warnings []string
	)
	for i := 0; i < len(args); i++ {
		a := args[i]
		var value string
		switch {
		case a == "-F" && i+1 < len(args):
			value = args[i+1]
		case strings.HasPrefix(a, "-F") && len(a) > 2:
			value = a[2:]
		default:
			out = append(out, a)
			continue
		}
		if strings.Contains(value, ":") {
			out = append(out, a)
			continue
		}
		warnings = append(warnings, fmt.Sprintf("dropping passthrough output '-F %s': stdout is reserved for JSON events", value))
		if a == "-F" {
			i++
		}
	}
	return out, warnings
}

// CommandLine renders argv for logs.
func CommandLine(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = strconv.Quote(a)
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}
