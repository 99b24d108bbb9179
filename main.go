package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"gortlbridge/shared"
	"gortlbridge/supervisor"
	"gortlbridge/utils"
)

var (
	configPath string
	logLevel   string

	cfg       *shared.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "gortlbridge",
	Short: "Run rtl_433 on every attached RTL-SDR dongle and publish the readings",
	Long: `gortlbridge enumerates RTL-SDR dongles, plans one rtl_433 decoder per
dongle, supervises the processes and publishes averaged sensor readings,
battery alerts and radio status to MQTT (and optionally Telegraf).

Without a subcommand the bridge runs.`,
	SilenceUsage:       true,
	PersistentPreRunE:  loadSettings,
	PersistentPostRunE: closeSettings,
	RunE:               runBridge,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge (default)",
	Args:  cobra.NoArgs,
	RunE:  runBridge,
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the attached RTL-SDR dongles",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the radio plan and the rtl_433 command lines without launching",
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "level", "", "Log level (overrides log.level)")
	rootCmd.AddCommand(runCmd, devicesCmd, planCmd)
}

func loadSettings(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = utils.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logCloser, err = setupLogging(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to parse log level %q: %w", cfg.Log.Level, err)
	}
	return nil
}

func closeSettings(*cobra.Command, []string) error {
	if logCloser == nil {
		return nil
	}
	return logCloser.Close()
}

func runDevices(cmd *cobra.Command, _ []string) error {
	devices := enumerate(cmd.Context(), cfg)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tSERIAL\tNAME")
	for _, d := range devices {
		fmt.Fprintf(w, "%d\t%s\t%s\n", d.Index, d.Serial, d.Name)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(devices) == 0 {
		log.Warn("No RTL-SDR devices found")
	}
	return nil
}

func runPlan(cmd *cobra.Command, _ []string) error {
	specs := planRadios(cfg, enumerate(cmd.Context(), cfg))
	opts := supervisor.OptionsFromConfig(cfg).Command
	opts.TempDir = os.TempDir()

	out := cmd.OutOrStdout()
	for _, spec := range specs {
		argv, cleanup, warnings, err := supervisor.BuildCommand(spec, opts)
		if err != nil {
			return fmt.Errorf("radio %s: %w", spec.StatusKey(), err)
		}
		cleanup()
		fmt.Fprintf(out, "%s [%s] freq=%s rate=%s\n", spec.Name, spec.StatusKey(), spec.FreqDisplay(), spec.Rate)
		fmt.Fprintf(out, "  %s\n", supervisor.CommandLine(argv))
		for _, w := range warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
	}
	if len(specs) == 0 {
		fmt.Fprintln(out, "no radios planned")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
