// Package supervisor runs one rtl_433 process per planned radio and keeps it
// alive for the lifetime of the bridge.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"gortlbridge/rtl433"
	"gortlbridge/shared"
	"gortlbridge/utils"
)

// Status reasons set by the supervisor itself. Hardware reasons come from
// rtl433.Diagnose.
const (
	ReasonExited    = "Error: Process Exited"
	ReasonNoOutput  = "Error: No Output"
	ReasonLaunch    = "Error: Launch Failed"
	ReasonBadConfig = "Error: Bad Config"
	ReasonRestart   = "Restart requested"
	ReasonHardware  = "Hardware found"
	ReasonQuiet     = "No recent readings"
)

const (
	maxLivenessPeriod = 30 * time.Second
	minLivenessPeriod = 10 * time.Millisecond
)

// Options configure a Supervisor.
type Options struct {
	Command      CommandOptions
	QuietPeriod  time.Duration
	GracePeriod  time.Duration
	HangTimeout  time.Duration
	StartStagger time.Duration
	Backoff      shared.BackoffConfig
}

// OptionsFromConfig maps the supervisor and rtl_433 sections of the config.
func OptionsFromConfig(cfg *shared.Config) Options {
	return Options{
		Command: CommandOptions{
			Binary:       cfg.RTL433.Binary,
			Args:         []string(cfg.RTL433.Args),
			ConfigPath:   cfg.RTL433.ConfigPath,
			ConfigInline: cfg.RTL433.ConfigInline,
		},
		QuietPeriod:  cfg.Supervisor.QuietPeriod,
		GracePeriod:  cfg.Supervisor.GracePeriod,
		HangTimeout:  cfg.Supervisor.HangTimeout,
		StartStagger: cfg.Supervisor.StartStagger,
		Backoff:      cfg.Supervisor.Backoff,
	}
}

// RadioStatus is a point-in-time copy of one radio's runtime record.
type RadioStatus struct {
	Key          string            `json:"key"`
	Name         string            `json:"name"`
	State        shared.RadioState `json:"state"`
	Reason       string            `json:"reason,omitempty"`
	PID          int               `json:"pid,omitempty"`
	Failures     int               `json:"failures"`
	LastActivity time.Time         `json:"last_activity"`
}

type radio struct {
	spec    shared.RadioSpec
	key     string
	restart chan string

	mu           sync.Mutex
	state        shared.RadioState
	reason       string
	pid          int
	failures     int
	parked       bool
	startedAt    time.Time
	lastActivity time.Time

	lastOutput atomic.Int64
	diag       atomic.Pointer[rtl433.Diagnostic]
}

func (r *radio) requestRestart(reason string) {
	select {
	case r.restart <- reason:
	default:
	}
}

func (r *radio) touch(at time.Time) { r.lastOutput.Store(at.UnixNano()) }

func (r *radio) silentFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, r.lastOutput.Load()))
}

// Supervisor owns the decoder processes. Every radio gets its own goroutine
// and its own restart channel, so a restart or crash never touches the others.
type Supervisor struct {
	opts      Options
	policy    Policy
	launcher  Launcher
	publisher shared.Publisher
	lines     chan<- shared.Line

	radios []*radio
	byKey  map[string]*radio

	now func() time.Time
}

// New prepares supervision for specs. Output lines of every radio are sent to
// lines, which the caller must drain.
func New(specs []shared.RadioSpec, opts Options, launcher Launcher, publisher shared.Publisher, lines chan<- shared.Line) *Supervisor {
	s := &Supervisor{
		opts:      opts,
		policy:    NewPolicy(opts.Backoff),
		launcher:  launcher,
		publisher: publisher,
		lines:     lines,
		byKey:     make(map[string]*radio, len(specs)),
		now:       time.Now,
	}
	for _, spec := range specs {
		key := spec.StatusKey()
		for n, base := 1, key; s.byKey[key] != nil; n++ {
			key = fmt.Sprintf("%s-%d", base, n)
		}
		r := &radio{spec: spec, key: key, restart: make(chan string, 1)}
		s.radios = append(s.radios, r)
		s.byKey[key] = r
	}
	return s
}

// Keys returns the status key of every supervised radio in plan order.
func (s *Supervisor) Keys() []string {
	keys := make([]string, len(s.radios))
	for i, r := range s.radios {
		keys[i] = r.key
	}
	return keys
}

// Run supervises every radio until ctx is cancelled, then stops all processes
// and returns once they have exited.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.radios) == 0 {
		return shared.ErrNoDevice
	}

	var wg sync.WaitGroup
	for i, r := range s.radios {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runLoop(ctx, r, time.Duration(i)*s.opts.StartStagger)
		}()
	}
	wg.Wait()
	log.Info("All radios stopped")
	return nil
}

// RestartRadios reboots every supervised radio.
func (s *Supervisor) RestartRadios() {
	log.Info("Restart requested for all radios")
	for _, r := range s.radios {
		r.requestRestart(ReasonRestart)
	}
}

// RestartRadio reboots the radio with the given status key.
func (s *Supervisor) RestartRadio(key string) bool {
	r, ok := s.byKey[key]
	if !ok {
		return false
	}
	log.Info("Restart requested", "radio", r.spec.Name, "key", key)
	r.requestRestart(ReasonRestart)
	return true
}

// MarkActivity records an admitted reading from a radio. A Scanning radio
// becomes Online and its failure counter is reset. Readings older than the
// current process are left over from a previous run and ignored.
func (s *Supervisor) MarkActivity(radioID string, at time.Time) {
	r, ok := s.byKey[radioID]
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startedAt.IsZero() || at.Before(r.startedAt) {
		log.Debug("Ignoring reading from a previous process", "radio", r.spec.Name, "at", at)
		return
	}
	if at.After(r.lastActivity) {
		r.lastActivity = at
	}
	if r.state == shared.StateScanning {
		r.failures = 0
		s.transitionLocked(r, shared.StateOnline, "")
	}
}

// Snapshot returns the runtime record of every radio in plan order.
func (s *Supervisor) Snapshot() []RadioStatus {
	out := make([]RadioStatus, 0, len(s.radios))
	for _, r := range s.radios {
		r.mu.Lock()
		out = append(out, RadioStatus{
			Key:          r.key,
			Name:         r.spec.Name,
			State:        r.state,
			Reason:       r.reason,
			PID:          r.pid,
			Failures:     r.failures,
			LastActivity: r.lastActivity,
		})
		r.mu.Unlock()
	}
	return out
}

func (s *Supervisor) runLoop(ctx context.Context, r *radio, stagger time.Duration) {
	defer s.transition(r, shared.StateStopped, "")

	if stagger > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(stagger):
		}
	}

	for {
		s.transition(r, shared.StateStarting, "")
		err := s.runOnce(ctx, r)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, shared.ErrRestartRequested) {
			continue
		}

		reason := ReasonExited
		var runErr *RunError
		if errors.As(err, &runErr) {
			reason = runErr.Reason
		}

		r.mu.Lock()
		r.failures++
		failures := r.failures
		r.pid = 0
		s.transitionLocked(r, shared.StateError, reason)
		r.mu.Unlock()

		var timer *time.Timer
		var wait <-chan time.Time
		if s.policy.Exhausted(failures) {
			r.mu.Lock()
			r.parked = true
			r.mu.Unlock()
			log.Error("Radio parked after repeated failures; waiting for a restart command or the dongle to reappear",
				"radio", r.spec.Name, "failures", failures, "err", err)
		} else {
			delay := s.policy.Delay(failures)
			log.Warn("Radio failed; restarting", "radio", r.spec.Name, "reason", reason,
				"failures", failures, "in", delay, "err", err)
			timer = time.NewTimer(delay)
			wait = timer.C
		}

		select {
		case <-ctx.Done():
			return
		case reason := <-r.restart:
			r.mu.Lock()
			r.failures = 0
			s.transitionLocked(r, shared.StateRebooting, reason)
			r.mu.Unlock()
		case <-wait:
		}
		r.mu.Lock()
		r.parked = false
		r.mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context, r *radio) error {
	argv, cleanup, warnings, err := BuildCommand(r.spec, s.opts.Command)
	if err != nil {
		return &RunError{Kind: LaunchFailure, Reason: ReasonBadConfig, Err: err}
	}
	defer cleanup()
	for _, w := range warnings {
		log.Warn(w, "radio", r.spec.Name)
	}

	log.Infof("[%s] Starting on %s (rate %s)", r.spec.Name, r.spec.FreqDisplay(), r.spec.Rate)
	log.Infof("[%s] %s", r.spec.Name, CommandLine(argv))

	r.mu.Lock()
	r.startedAt = s.now()
	r.mu.Unlock()
	proc, err := s.launcher.Launch(ctx, argv)
	if err != nil {
		reason := ReasonLaunch
		if errors.Is(err, shared.ErrBinaryNotFound) {
			reason = rtl433.ReasonNotFound
		}
		return &RunError{Kind: LaunchFailure, Reason: reason, Err: err}
	}

	r.diag.Store(nil)
	r.touch(s.now())
	r.mu.Lock()
	r.pid = proc.Pid()
	s.transitionLocked(r, shared.StateScanning, "")
	r.mu.Unlock()

	readersDone := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.readStdout(ctx, r, proc.Stdout())
		}()
		go func() {
			defer wg.Done()
			s.readStderr(r, proc.Stderr())
		}()
		wg.Wait()
		close(readersDone)
	}()

	exited := make(chan error, 1)
	go func() {
		<-readersDone
		exited <- proc.Wait()
	}()

	stop := func() {
		if err := proc.Terminate(s.opts.GracePeriod); err != nil {
			log.Warn("Terminate failed", "radio", r.spec.Name, "err", err)
		}
		<-exited
	}

	var tick <-chan time.Time
	if every := s.livenessPeriod(); every > 0 {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case err := <-exited:
			return s.exitError(r, err)

		case <-ctx.Done():
			stop()
			return ctx.Err()

		case reason := <-r.restart:
			r.mu.Lock()
			r.failures = 0
			s.transitionLocked(r, shared.StateRebooting, reason)
			r.mu.Unlock()
			stop()
			return shared.ErrRestartRequested

		case now := <-tick:
			s.checkQuiet(r, now)
			if s.opts.HangTimeout > 0 && r.silentFor(now) >= s.opts.HangTimeout {
				log.Warn("Radio produced no output; terminating", "radio", r.spec.Name, "timeout", s.opts.HangTimeout)
				stop()
				return &RunError{Kind: ProcessCrash, Reason: ReasonNoOutput,
					Err: fmt.Errorf("%w: no output for %s", shared.ErrProcessCrash, s.opts.HangTimeout)}
			}
		}
	}
}

// exitError classifies a process that exited on its own. A recognized
// hardware message means the radio never got going.
func (s *Supervisor) exitError(r *radio, waitErr error) error {
	if d := r.diag.Load(); d != nil {
		return &RunError{Kind: LaunchFailure, Reason: d.Reason, Err: d.Err}
	}
	if waitErr == nil {
		waitErr = errors.New("exited with status 0")
	}
	return &RunError{Kind: ProcessCrash, Reason: ReasonExited, Err: waitErr}
}

func (s *Supervisor) readStdout(ctx context.Context, r *radio, out io.Reader) {
	err := rtl433.ReadLines(out, func(text string) bool {
		now := s.now()
		r.touch(now)
		if strings.TrimSpace(text) == "" {
			return true
		}
		if d, ok := rtl433.Diagnose(text); ok {
			r.diag.Store(&d)
		} else if strings.HasPrefix(strings.TrimSpace(text), "{") && r.diag.Swap(nil) != nil {
			log.Debug("Radio decoding again; clearing hardware diagnostic", "radio", r.spec.Name)
		}
		if log.GetLevel() <= log.DebugLevel {
			log.Debugf("[%s] %s", r.spec.Name, utils.ReplaceBinaryWithHex(text))
		}

		select {
		case s.lines <- shared.Line{RadioID: r.key, RadioName: r.spec.Name, Text: text, Time: now}:
			return true
		case <-ctx.Done():
			return false
		}
	})
	if err != nil {
		log.Debug("stdout read ended", "radio", r.spec.Name, "err", err)
	}
}

func (s *Supervisor) readStderr(r *radio, errOut io.Reader) {
	err := rtl433.ReadLines(errOut, func(text string) bool {
		r.touch(s.now())
		if d, ok := rtl433.Diagnose(text); ok {
			if prev := r.diag.Load(); prev == nil || prev.Reason != d.Reason {
				log.Warn("Radio hardware problem", "radio", r.spec.Name, "reason", d.Reason, "line", text)
			}
			r.diag.Store(&d)
			return true
		}
		log.Debugf("[%s] stderr: %s", r.spec.Name, utils.ReplaceBinaryWithHex(text))
		return true
	})
	if err != nil {
		log.Debug("stderr read ended", "radio", r.spec.Name, "err", err)
	}
}

func (s *Supervisor) checkQuiet(r *radio, now time.Time) {
	if s.opts.QuietPeriod <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == shared.StateOnline && now.Sub(r.lastActivity) >= s.opts.QuietPeriod {
		s.transitionLocked(r, shared.StateScanning, ReasonQuiet)
	}
}

// livenessPeriod is how often quiet and hang checks run; 0 disables them.
func (s *Supervisor) livenessPeriod() time.Duration {
	var d time.Duration
	for _, p := range []time.Duration{s.opts.QuietPeriod, s.opts.HangTimeout} {
		if p > 0 && (d == 0 || p < d) {
			d = p
		}
	}
	if d == 0 {
		return 0
	}
	return min(max(d/4, minLivenessPeriod), maxLivenessPeriod)
}

func (s *Supervisor) transition(r *radio, to shared.RadioState, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.transitionLocked(r, to, reason)
}

// transitionLocked applies a state change and publishes it. r.mu must be
// held so status events of one radio are published in order.
func (s *Supervisor) transitionLocked(r *radio, to shared.RadioState, reason string) {
	from := r.state
	if !CanTransition(from, to) {
		if from != to {
			log.Warn("Refusing radio state change", "radio", r.spec.Name, "from", from, "to", to)
		}
		return
	}
	r.state, r.reason = to, reason
	if to == shared.StateStopped {
		r.pid = 0
	}

	log.Info("Radio status", "radio", r.spec.Name, "key", r.key, "state", to, "reason", reason)
	s.publisher.PublishStatus(shared.StatusEvent{
		RadioID:   r.key,
		RadioName: r.spec.Name,
		State:     to,
		Reason:    reason,
		Time:      s.now(),
	})
}
