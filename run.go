package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"gortlbridge/aggregate"
	"gortlbridge/battery"
	"gortlbridge/device"
	"gortlbridge/filter"
	"gortlbridge/metrics"
	"gortlbridge/pipeline"
	"gortlbridge/planner"
	"gortlbridge/publisher"
	"gortlbridge/rtl433"
	"gortlbridge/shared"
	"gortlbridge/supervisor"
)

const (
	lockTimeout = 5 * time.Second
	lineBuffer  = 256

	// AutoRadioName is the generic radio run when nothing was found.
	AutoRadioName = "RTL_auto"
)

func enumerate(ctx context.Context, cfg *shared.Config) []device.Device {
	return device.NewEnumerator(cfg.RTL433.EepromBinary).Enumerate(ctx)
}

// planRadios turns the configuration and the scan into the radios to run.
// Manual radios win; otherwise the auto planner runs, and with no hardware
// at all a single generic radio is planned so a dongle plugged in later is
// picked up by the restart loop.
func planRadios(cfg *shared.Config, devices []device.Device) []shared.RadioSpec {
	if manual := cfg.ManualSpecs(); len(manual) > 0 {
		specs, warnings := planner.BindManual(manual, devices)
		for _, w := range warnings {
			log.Warn(w)
		}
		for _, spec := range specs {
			for _, w := range planner.Validate(spec) {
				log.Warn(w, "radio", spec.Name)
			}
		}
		return specs
	}

	country := planner.DetectCountry(cfg.Auto.Country)
	specs := planner.Plan(devices, nil, planner.Preference{
		BandPlan:          cfg.Auto.BandPlan,
		Country:           country,
		SecondaryOverride: cfg.Auto.SecondaryFreq,
		HopperOverride:    cfg.Auto.HopperFreqs,
		SingleRadio:       cfg.Auto.SingleRadio,
		MaxRadios:         cfg.Auto.MaxRadios,
		DefaultFreq:       cfg.RTL433.DefaultFreq,
		DefaultRate:       cfg.RTL433.DefaultRate,
		DefaultHop:        cfg.RTL433.DefaultHopInterval,
	})
	if len(specs) > 0 {
		return specs
	}

	log.Warn("No RTL-SDR devices found; starting a generic radio on the default band")
	return []shared.RadioSpec{shared.RadioConfig{
		Name: AutoRadioName,
		ID:   "0",
	}.Spec(0, cfg.RTL433)}
}

func runBridge(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock, err := device.AcquireLock(ctx, cfg.LockFile, lockTimeout)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("failed to release lock", "path", cfg.LockFile, "err", err)
		}
	}()

	devices := enumerate(ctx, cfg)
	specs := planRadios(cfg, devices)
	for _, s := range specs {
		log.Info("Planned radio", "name", s.Name, "key", s.StatusKey(), "freq", s.FreqDisplay(), "rate", s.Rate)
	}

	m := metrics.New()

	// Publishers outlive the radios so the final Stopped statuses and the
	// offline availability still reach the broker.
	pubCtx, cancelPub := context.WithCancel(context.Background())
	defer cancelPub()
	var wg sync.WaitGroup
	goRun := func(fn func(context.Context), ctx context.Context) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	mq := publisher.FromConfig(cfg)
	sinks := []shared.Publisher{mq}
	goRun(mq.Run, pubCtx)
	if cfg.TelegrafURL != "" {
		log.Info("starting telegraf publisher", "url", cfg.TelegrafURL)
		tg := publisher.NewTelegraf(cfg.TelegrafURL)
		sinks = append(sinks, tg)
		goRun(tg.Run, pubCtx)
	}
	pub := m.Instrument(publisher.NewFanout(sinks...))

	lines := make(chan shared.Line, lineBuffer)
	opts := supervisor.OptionsFromConfig(cfg)
	opts.Command.TempDir = os.TempDir()
	sup := supervisor.New(specs, opts, supervisor.ExecLauncher{}, pub, lines)

	if err := mq.Connect(sup); err != nil {
		cancelPub()
		wg.Wait()
		return err
	}
	defer mq.Close()

	buf := aggregate.New(time.Duration(cfg.ThrottleInterval)*time.Second, pub)
	debouncer := battery.New(time.Duration(cfg.BatteryOKClearAfter)*time.Second, pub)
	defer debouncer.Stop()

	pipe := pipeline.New(
		rtl433.NewParser(cfg.Filter.SkipKeys),
		filter.New(cfg.Filter.Whitelist, cfg.Filter.Blacklist),
		buf, debouncer, sup, m,
	)
	goRun(buf.Run, ctx)
	goRun(func(ctx context.Context) { pipe.Run(ctx, lines) }, ctx)
	goRun(func(ctx context.Context) {
		scan := func(ctx context.Context) []device.Device { return enumerate(ctx, cfg) }
		sup.WatchHardware(ctx, cfg.Supervisor.RescanInterval, scan, devices)
	}, ctx)

	if cfg.MetricsAddr != "" {
		handler := m.Handler(func() any { return sup.Snapshot() })
		goRun(func(ctx context.Context) {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, handler); err != nil {
				log.Error("metrics server failed", "err", err)
			}
		}, ctx)
	}

	log.Info("Bridge running", "radios", len(specs))
	runErr := sup.Run(ctx)

	log.Info("Radios stopped, flushing publishers")
	stop()
	cancelPub()
	wg.Wait()
	if runErr != nil {
		return fmt.Errorf("supervisor: %w", runErr)
	}
	log.Info("All routines complete. Exiting.")
	return nil
}
